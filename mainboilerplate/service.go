package mainboilerplate

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"go.scrivodb.dev/core/server"
	"go.scrivodb.dev/core/task"
)

// ServiceConfig represents identification and addressing configuration of the process.
type ServiceConfig struct {
	Host string `long:"host" env:"HOST" default:"localhost" description:"Addressable, advertised hostname of this process"`
	Port uint16 `long:"port" env:"PORT" default:"8080" description:"Service port for HTTP and gRPC requests"`
}

// MustBuildServer builds and returns a Server bound to the configured
// interface and port, and panics on error.
func MustBuildServer(cfg ServiceConfig) *server.Server {
	var srv, err = server.New("", cfg.Port)
	Must(err, "failed to build server", "host", cfg.Host, "port", cfg.Port)
	return srv
}

// ServeUntilSignaled serves |srv| until a SIGTERM or SIGINT is received,
// and then gracefully stops it. This is the principal service loop of
// scrivod processes.
func ServeUntilSignaled(srv *server.Server) {
	var tasks = task.NewGroup(context.Background())
	srv.QueueTasks(tasks)

	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	tasks.Queue("awaiting signal", func() error {
		select {
		case sig := <-signalCh:
			log.WithField("signal", sig).Info("caught signal")
			tasks.Cancel()
		case <-tasks.Context().Done():
		}
		return nil
	})

	tasks.GoRun()
	Must(tasks.Wait(), "service failed")
}
