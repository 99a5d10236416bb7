package mainboilerplate

import (
	"context"
	"net/url"

	"google.golang.org/grpc"

	pb "go.scrivodb.dev/core/docstore/protocol"
	"go.scrivodb.dev/core/server"
)

// AddressConfig of a remote service.
type AddressConfig struct {
	Address string `long:"address" env:"ADDRESS" default:"http://localhost:8080" description:"Service address endpoint"`
}

// Dial the configured server address.
func (c *AddressConfig) Dial(ctx context.Context) *grpc.ClientConn {
	var u, err = url.Parse(c.Address)
	Must(err, "failed to parse service address", "address", c.Address)

	cc, err := grpc.DialContext(ctx, u.Host,
		grpc.WithInsecure(),
		grpc.WithContextDialer(server.DialerFunc))
	Must(err, "failed to dial remote service", "endpoint", c.Address)

	return cc
}

// DocstoreClient dials and returns a new DocstoreClient.
func (c *AddressConfig) DocstoreClient(ctx context.Context) pb.DocstoreClient {
	return pb.NewDocstoreClient(c.Dial(ctx))
}
