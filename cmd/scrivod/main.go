package main

import (
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"go.scrivodb.dev/core/docstore"
	pb "go.scrivodb.dev/core/docstore/protocol"
	"go.scrivodb.dev/core/docstore/storage"
	mbp "go.scrivodb.dev/core/mainboilerplate"
	"go.scrivodb.dev/core/metrics"
)

const iniFilename = "scrivod.ini"

// Config is the top-level configuration object of a Scrivo document server.
var Config = new(struct {
	Docstore struct {
		mbp.ServiceConfig
		Database          string        `long:"database" env:"DATABASE" default:"databases/default" description:"Database served by this process"`
		HeartbeatInterval time.Duration `long:"heartbeat.interval" env:"HEARTBEAT_INTERVAL" default:"15s" description:"Period between NO_CHANGE heartbeats of idle Listen streams"`
		FilterInterval    time.Duration `long:"filter.interval" env:"FILTER_INTERVAL" default:"1m" description:"Period between existence filter emissions for query targets"`
		WriteWindow       int           `long:"write.window" env:"WRITE_WINDOW" default:"10" description:"Maximum un-acknowledged responses of a streaming Write session"`
		PageSize          int32         `long:"page.size" env:"PAGE_SIZE" default:"100" description:"Default page size of document listings"`
	} `group:"Docstore" namespace:"docstore" env-namespace:"DOCSTORE"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

type serveScrivod struct{}

func (serveScrivod) Execute(args []string) error {
	defer mbp.InitDiagnosticsAndRecover(Config.Diagnostics)()
	mbp.InitLog(Config.Log)

	log.WithField("config", Config).Info("starting scrivod")
	prometheus.MustRegister(metrics.DocstoreCollectors()...)

	var srv = mbp.MustBuildServer(Config.Docstore.ServiceConfig)

	var store = storage.NewStore()
	var service = docstore.NewService(Config.Docstore.Database, store, docstore.Config{
		HeartbeatInterval:   Config.Docstore.HeartbeatInterval,
		FilterInterval:      Config.Docstore.FilterInterval,
		MaxUnackedResponses: Config.Docstore.WriteWindow,
		DefaultPageSize:     Config.Docstore.PageSize,
	})
	pb.RegisterDocstoreServer(srv.GRPCServer, service)
	grpc_prometheus.Register(srv.GRPCServer)

	mbp.ServeUntilSignaled(srv)

	log.Info("goodbye")
	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	parser.AddCommand("serve", "Serve as Scrivo document server", `
serve a Scrivo document server with the provided configuration, until
signaled to exit (via SIGTERM). In-flight streams are drained before the
process exits.
`, &serveScrivod{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
