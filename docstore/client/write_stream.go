package client

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	pb "go.scrivodb.dev/core/docstore/protocol"
)

// writeStreamIdleInterval is the period after which an idle WriteStream
// re-sends its latest stream token, acknowledging responses and keeping the
// session alive.
const writeStreamIdleInterval = time.Second * 30

// WriteStream is a streaming writer over the bidirectional Write RPC. Each
// Write call applies one atomic batch, in strict call order. The stream
// acknowledges server tokens as it goes, persists the latest token, and
// transparently reopens the session if the stream breaks.
type WriteStream struct {
	dc       pb.DocstoreClient
	database string

	mu       sync.Mutex
	stream   pb.Docstore_WriteClient
	streamID string
	token    []byte
	lastSend time.Time
	closedCh chan struct{}
}

// NewWriteStream opens a WriteStream of |database| over client |dc|.
func NewWriteStream(ctx context.Context, dc pb.DocstoreClient, database string) (*WriteStream, error) {
	var ws = &WriteStream{
		dc:       dc,
		database: database,
		closedCh: make(chan struct{}),
	}
	if err := ws.open(ctx, "", nil); err != nil {
		return nil, err
	}
	go ws.idleLoop(ctx)
	return ws, nil
}

// open establishes or resumes the underlying stream session.
func (ws *WriteStream) open(ctx context.Context, streamID string, token []byte) error {
	var stream, err = ws.dc.Write(ctx)
	if err != nil {
		return errors.WithMessage(err, "opening write stream")
	}
	if err = stream.Send(&pb.WriteRequest{
		Database:    ws.database,
		StreamID:    streamID,
		StreamToken: token,
	}); err != nil {
		return errors.WithMessage(err, "establishing write stream")
	}
	resp, err := stream.Recv()
	if err != nil {
		return errors.WithMessage(err, "reading write stream establishment")
	}

	ws.stream = stream
	ws.streamID = resp.StreamID
	ws.token = resp.StreamToken
	ws.lastSend = time.Now()
	return nil
}

// Write applies one atomic batch and returns its results. If the stream has
// broken, the session is reopened from the last acknowledged token and the
// batch is applied to the resumed session.
func (ws *WriteStream) Write(ctx context.Context, writes []pb.Write) (*pb.WriteResponse, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	var resp, err = ws.roundTrip(writes)
	if err == nil {
		return resp, nil
	}
	// Batch outcomes with a definite status are not retried: the batch was
	// rejected, not lost.
	if s := pb.StatusOf(err); s == pb.StatusFailedPrecondition || s == pb.StatusInvalidArgument {
		return nil, err
	}
	log.WithFields(log.Fields{"err": err, "stream": ws.streamID}).
		Warn("write stream failed (reopening)")

	if err = ws.open(ctx, ws.streamID, ws.token); err != nil {
		return nil, err
	}
	return ws.roundTrip(writes)
}

// roundTrip sends one batch and receives its response. Called with ws.mu held.
func (ws *WriteStream) roundTrip(writes []pb.Write) (*pb.WriteResponse, error) {
	var err = ws.stream.Send(&pb.WriteRequest{
		Writes:      writes,
		StreamToken: ws.token, // Acknowledge through the last response.
	})
	if err != nil {
		return nil, err
	}
	ws.lastSend = time.Now()

	resp, err := ws.stream.Recv()
	if err != nil {
		return nil, err
	}
	ws.token = resp.StreamToken
	return resp, nil
}

// Token returns the latest acknowledged stream token. Persist it along with
// the stream id to resume the session from another process.
func (ws *WriteStream) Token() (streamID string, token []byte) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.streamID, append([]byte(nil), ws.token...)
}

// Close gracefully finishes the stream.
func (ws *WriteStream) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	close(ws.closedCh)
	if err := ws.stream.CloseSend(); err != nil {
		return err
	}
	// Drain until the server closes its side.
	for {
		if _, err := ws.stream.Recv(); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// idleLoop re-sends the latest token when the stream sits idle, so the
// server's acknowledgement window does not starve between batches.
func (ws *WriteStream) idleLoop(ctx context.Context) {
	var ticker = time.NewTicker(writeStreamIdleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ws.closedCh:
			return
		case <-ticker.C:
		}

		ws.mu.Lock()
		if time.Since(ws.lastSend) >= writeStreamIdleInterval {
			if _, err := ws.roundTrip(nil); err != nil {
				log.WithFields(log.Fields{"err": err, "stream": ws.streamID}).
					Warn("write stream keepalive failed")
			}
		}
		ws.mu.Unlock()
	}
}
