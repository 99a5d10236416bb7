package docstore

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	pb "go.scrivodb.dev/core/docstore/protocol"
	"go.scrivodb.dev/core/metrics"
)

// writeStreamExpiry bounds how long a disconnected Write session is retained
// for resumption.
const writeStreamExpiry = time.Minute * 10

// Write dispatches the DocstoreServer.Write API.
func (svc *Service) Write(stream pb.Docstore_WriteServer) (err error) {
	defer instrumentDocstoreRPC("Write", &err)()

	var fsm = writeFSM{svc: svc, stream: stream}
	fsm.run()

	if fsm.err != nil {
		log.WithFields(log.Fields{"err": fsm.err, "stream": fsm.streamID()}).
			Warn("served Write RPC failed")
	}
	return fsm.err
}

// writeFSM is a state machine which models the steps of a streaming Write
// session: establishing or resuming the session, consuming ordered write
// batches, and enforcing the session's bounded acknowledgement window.
type writeFSM struct {
	svc    *Service
	stream pb.Docstore_WriteServer

	session *writeStream // Resolved session.
	state   writeState   // Current FSM state.
	err     error        // Error encountered during FSM execution.
}

type writeState int8

const (
	stateWriteResolve   writeState = iota // Initial state.
	stateWriteStreaming                   // Semi-terminal state (requires more input).
	stateWriteError                       // Terminal state.
	stateWriteFinished                    // Terminal state.
)

// writeStream is the durable state of a streaming Write session, retained
// across stream disconnects until it expires.
type writeStream struct {
	id string

	mu sync.Mutex
	// seq is the sequence number of the most recently committed batch.
	seq int64
	// ackedSeq is the highest sequence the client has acknowledged.
	ackedSeq int64
	// active is set while a live stream owns the session.
	active bool
	// lastActive is the time at which a live stream last released the session.
	lastActive time.Time
}

// run the writeFSM until a terminal state is reached.
func (w *writeFSM) run() {
	w.onResolve()

	for w.state == stateWriteStreaming {
		w.onBatch(w.stream.Recv())
	}
	if w.session != nil {
		w.session.mu.Lock()
		w.session.active = false
		w.session.lastActive = time.Now()
		w.session.mu.Unlock()
	}
	if w.err != nil {
		metrics.WriteStreamClosedTotal.WithLabelValues(pb.StatusOf(w.err).String()).Inc()
	} else {
		metrics.WriteStreamClosedTotal.WithLabelValues(metrics.Ok).Inc()
	}
}

// onResolve consumes the first request of the stream, which establishes a
// new session (empty StreamID) or resumes a prior one (StreamID plus the
// last persisted StreamToken), and must carry no writes.
func (w *writeFSM) onResolve() {
	w.mustState(stateWriteResolve)

	var req, err = w.stream.Recv()
	if err != nil {
		w.fail(err)
		return
	} else if err = req.Validate(); err != nil {
		w.fail(pb.NewStatusError(pb.StatusInvalidArgument, "%s", err))
		return
	} else if req.Database == "" {
		w.fail(pb.NewStatusError(pb.StatusInvalidArgument,
			"the first request of a Write stream must name the database"))
		return
	} else if err = w.svc.checkDatabase(req.Database); err != nil {
		w.fail(err)
		return
	} else if len(req.Writes) != 0 {
		w.fail(pb.NewStatusError(pb.StatusInvalidArgument,
			"the first request of a Write stream must not carry writes"))
		return
	}

	if req.StreamID == "" && len(req.StreamToken) == 0 {
		w.session = w.svc.createWriteStream()
	} else if w.session, err = w.svc.resumeWriteStream(req.StreamID, req.StreamToken); err != nil {
		w.fail(err)
		return
	}

	// Labels are accepted for diagnostics but not interpreted.
	if len(req.Labels) != 0 {
		log.WithFields(log.Fields{"stream": w.session.id, "labels": req.Labels}).
			Info("write stream established with labels")
	}

	w.session.mu.Lock()
	var seq = w.session.seq
	w.session.mu.Unlock()

	err = w.stream.Send(&pb.WriteResponse{
		StreamID:    w.session.id,
		StreamToken: encodeToken(streamToken{StreamID: w.session.id, Seq: seq}),
	})
	if err != nil {
		w.fail(err)
		return
	}
	w.state = stateWriteStreaming
}

// onBatch consumes one subsequent request of the stream: an acknowledgement,
// a write batch, or both. Batches apply atomically and strictly in stream
// order.
func (w *writeFSM) onBatch(req *pb.WriteRequest, err error) {
	w.mustState(stateWriteStreaming)

	if err == io.EOF {
		w.state = stateWriteFinished
		return
	} else if err != nil {
		w.fail(err)
		return
	} else if err = req.Validate(); err != nil {
		w.fail(pb.NewStatusError(pb.StatusInvalidArgument, "%s", err))
		return
	} else if req.StreamID != "" && req.StreamID != w.session.id {
		w.fail(pb.NewStatusError(pb.StatusInvalidArgument,
			"request StreamID (%s) does not match the stream's (%s)", req.StreamID, w.session.id))
		return
	}

	w.session.mu.Lock()
	defer w.session.mu.Unlock()

	if len(req.StreamToken) != 0 {
		var tok streamToken
		if err = decodeToken(req.StreamToken, &tok); err == nil && tok.StreamID != w.session.id {
			err = pb.NewStatusError(pb.StatusInvalidArgument, "stream token is of another stream")
		} else if err == nil && tok.Seq > w.session.seq {
			err = pb.NewStatusError(pb.StatusInvalidArgument,
				"stream token acknowledges sequence %d, which has not been issued", tok.Seq)
		}
		if err != nil {
			w.fail(err)
			return
		}
		if tok.Seq > w.session.ackedSeq {
			w.session.ackedSeq = tok.Seq
		}
	}

	if len(req.Writes) == 0 {
		// A pure acknowledgement. Confirm with the current token.
		err = w.stream.Send(&pb.WriteResponse{
			StreamToken: encodeToken(streamToken{StreamID: w.session.id, Seq: w.session.seq}),
		})
		if err != nil {
			w.fail(err)
		}
		return
	}

	if w.session.seq-w.session.ackedSeq >= int64(w.svc.cfg.MaxUnackedResponses) {
		w.fail(pb.NewStatusError(pb.StatusResourceExhausted,
			"the stream has %d un-acknowledged responses; acknowledge stream tokens to proceed",
			w.session.seq-w.session.ackedSeq))
		return
	}

	resp, err := w.svc.store.Commit(req.Writes, nil)
	if err != nil {
		w.fail(err)
		return
	}
	w.session.seq++

	err = w.stream.Send(&pb.WriteResponse{
		StreamToken:  encodeToken(streamToken{StreamID: w.session.id, Seq: w.session.seq}),
		WriteResults: resp.WriteResults,
		CommitTime:   resp.CommitTime,
	})
	if err != nil {
		w.fail(err)
	}
}

func (w *writeFSM) fail(err error) {
	w.err = err
	w.state = stateWriteError
}

func (w *writeFSM) mustState(s writeState) {
	if w.state != s {
		log.WithFields(log.Fields{"expect": s, "actual": w.state}).Panic("invalid writeFSM state")
	}
}

func (w *writeFSM) streamID() string {
	if w.session != nil {
		return w.session.id
	}
	return ""
}

// createWriteStream registers a new Write session.
func (svc *Service) createWriteStream() *writeStream {
	var session = &writeStream{id: uuid.NewString(), active: true}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.pruneWriteStreams()
	svc.writeStreams[session.id] = session
	return session
}

// resumeWriteStream resolves and re-activates a disconnected Write session.
func (svc *Service) resumeWriteStream(id string, token []byte) (*writeStream, error) {
	if id == "" || len(token) == 0 {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument,
			"resuming a Write stream requires both StreamID and StreamToken")
	}
	var tok streamToken
	if err := decodeToken(token, &tok); err != nil {
		return nil, err
	} else if tok.StreamID != id {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument, "stream token is of another stream")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.pruneWriteStreams()
	var session, ok = svc.writeStreams[id]
	if !ok {
		return nil, pb.NewStatusError(pb.StatusNotFound, "no such stream (%s)", id)
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.active {
		return nil, pb.NewStatusError(pb.StatusFailedPrecondition,
			"stream %s is already active", id)
	} else if tok.Seq > session.seq {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument,
			"stream token acknowledges sequence %d, which has not been issued", tok.Seq)
	}
	session.active = true
	if tok.Seq > session.ackedSeq {
		session.ackedSeq = tok.Seq
	}
	metrics.WriteStreamResumesTotal.Inc()
	return session, nil
}

// pruneWriteStreams drops expired sessions. Called with svc.mu held.
func (svc *Service) pruneWriteStreams() {
	var horizon = time.Now().Add(-writeStreamExpiry)
	for id, session := range svc.writeStreams {
		session.mu.Lock()
		var expired = !session.active && session.lastActive.Before(horizon) &&
			!session.lastActive.IsZero()
		session.mu.Unlock()

		if expired {
			delete(svc.writeStreams, id)
		}
	}
}
