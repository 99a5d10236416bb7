// Package server bundles the gRPC and HTTP serving concerns of a Scrivo
// process behind one bound TCP socket.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/pkg/errors"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"

	"go.scrivodb.dev/core/task"
)

// Server bundles gRPC & HTTP servers, multiplexed over a single bound TCP
// socket (using CMux). Additional protocols may be added to the Server by
// interacting directly with its provided CMux.
type Server struct {
	// RawListener is the bound TCP listener of the Server.
	RawListener *net.TCPListener
	// CMux wraps RawListener to provide connection protocol multiplexing over
	// a single bound socket. gRPC and HTTP Listeners are provided by default.
	// Additional Listeners may be added directly via CMux.Match() -- though
	// it is then the user's responsibility to Serve the resulting Listeners.
	CMux cmux.CMux
	// GRPCListener is a CMux Listener for gRPC connections.
	GRPCListener net.Listener
	// HTTPListener is a CMux Listener for HTTP connections.
	HTTPListener net.Listener
	// HTTPMux is the http.ServeMux which is served by Serve().
	HTTPMux *http.ServeMux
	// GRPCServer is the gRPC server mux which is served by Serve().
	GRPCServer *grpc.Server
	// Ctx is cancelled when Server.GracefulStop is called.
	Ctx context.Context

	cancel context.CancelFunc
}

// New builds and returns a Server of the given TCP network interface |iface|
// and |port|. |port| may be zero, in which case a random free port is assigned.
func New(iface string, port uint16) (*Server, error) {
	var addr = fmt.Sprintf("%s:%d", iface, port)

	var raw, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to bind service address (%s)", addr)
	}

	var ctx, cancel = context.WithCancel(context.Background())

	var srv = &Server{
		HTTPMux: http.DefaultServeMux,
		GRPCServer: grpc.NewServer(
			grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
			grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		),
		RawListener: raw.(*net.TCPListener),
		Ctx:         ctx,
		cancel:      cancel,
	}

	srv.CMux = cmux.New(tcpKeepAliveListener{srv.RawListener})
	srv.GRPCListener = srv.CMux.Match(cmux.HTTP2HeaderField("content-type", "application/grpc"))
	srv.HTTPListener = srv.CMux.Match(cmux.HTTP1Fast())

	return srv, nil
}

// Endpoint of the Server.
func (s *Server) Endpoint() string {
	return "http://" + s.RawListener.Addr().String()
}

// QueueTasks of serving the Server onto |tasks|: the CMux itself, the HTTP
// server, the gRPC server, and a task which gracefully stops the Server upon
// |tasks| cancellation. If additional Listeners have been derived from the
// Server.CMux, connections must be Accept()'d by further tasks queued by the
// caller.
func (s *Server) QueueTasks(tasks *task.Group) {
	tasks.Queue("server.ServeCMux", func() error {
		if err := s.CMux.Serve(); err != nil && s.Ctx.Err() == nil {
			return err
		}
		return nil
	})
	tasks.Queue("server.ServeHTTP", func() error {
		if err := http.Serve(s.HTTPListener, s.HTTPMux); err != nil && s.Ctx.Err() == nil {
			return err
		}
		return nil
	})
	tasks.Queue("server.ServeGRPC", func() error {
		if err := s.GRPCServer.Serve(s.GRPCListener); err != grpc.ErrServerStopped {
			return err
		}
		return nil
	})
	tasks.Queue("server.GracefulStop", func() error {
		<-tasks.Context().Done()
		s.GracefulStop()
		return nil
	})
}

// GracefulStop the Server. Attempts to Accept() connections from CMux Listeners
// may begin failing after a GracefulStop call is started. The Server.Ctx may be
// inspected to determine if the Server is stopping.
// Returns when server stop is complete.
func (s *Server) GracefulStop() {
	// GRPCServer.GracefulStop will close GRPCListener, which closes RawListener.
	// Cancel our context so Serve loops recognize this is a graceful closure.
	s.cancel()

	s.GRPCServer.GracefulStop()
}

// GRPCLoopback dials and returns a connection to the local gRPC server.
func (s *Server) GRPCLoopback() (*grpc.ClientConn, error) {
	var addr = s.RawListener.Addr().String()

	var cc, err = grpc.DialContext(s.Ctx, addr,
		grpc.WithInsecure(),
		grpc.WithContextDialer(DialerFunc))

	if err != nil {
		return nil, err
	}
	return cc, nil
}

// MustGRPCLoopback dials and returns a connection to the local gRPC server,
// and panics on error.
func (s *Server) MustGRPCLoopback() *grpc.ClientConn {
	if cc, err := s.GRPCLoopback(); err != nil {
		panic(err)
	} else {
		return cc
	}
}
