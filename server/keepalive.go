package server

import (
	"context"
	"net"
	"time"
)

// Dialer is copied from the invocation in http.DefaultTransport:
// https://github.com/golang/go/blob/859cab099c5a9a9b4939960b630b78e468c8c39e/src/net/http/transport.go#L40-L44
var Dialer = &net.Dialer{
	Timeout:   30 * time.Second,
	KeepAlive: 30 * time.Second,
}

// DialerFunc dials |addr| with |ctx|. It's designed to be easily used
// as a grpc.DialOption, eg:
//   grpc.WithContextDialer(server.DialerFunc)
func DialerFunc(ctx context.Context, addr string) (net.Conn, error) {
	return Dialer.DialContext(ctx, "tcp", addr)
}

// tcpKeepAliveListener sets TCP keep-alive timeouts on accepted
// connections so dead TCP connections (e.g. closing laptop mid-download)
// eventually go away.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
