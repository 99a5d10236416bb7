package mainboilerplate

import (
	_ "expvar" // Registers /debug/vars.
	"fmt"
	"net/http"
	_ "net/http/pprof" // Registers /debug/pprof/.
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// DiagnosticsConfig configures the debugging and diagnostics surface of a
// scrivod process.
type DiagnosticsConfig struct {
	// Reserved for future flags. The /debug handlers are always served.
}

// terminationLog is the file Kubernetes reads for a pod termination message.
const terminationLog = "/dev/termination-log"

// InitDiagnosticsAndRecover registers diagnostics handlers on the default
// HTTP mux, which the Server serves alongside gRPC. It returns a closure to
// defer in main: the closure recovers a panic, writing it as the container
// termination message before re-panicking.
func InitDiagnosticsAndRecover(DiagnosticsConfig) func() {
	grpc.EnableTracing = true

	// Readiness check for the process supervisor.
	http.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	// Prometheus metrics. The /debug/pprof/ and /debug/vars handlers are
	// registered by their package imports.
	http.Handle("/debug/metrics", promhttp.Handler())

	return func() {
		var r = recover()
		if r == nil {
			return
		}
		if f, err := os.OpenFile(terminationLog, os.O_WRONLY, 0777); err == nil {
			fmt.Fprintf(f, "%+v", r)
			f.Close()
		}
		panic(r)
	}
}

// Must panics (after logging) if |err| is non-nil. |extra| are alternating
// log field keys and values of the logged event.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var fields = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		fields[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(fields).Panic(msg)
}
