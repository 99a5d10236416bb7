package client

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	pb "go.scrivodb.dev/core/docstore/protocol"
)

// A Watcher is a local mirror of the results of a set of watch targets,
// which is kept in sync with the server via long-lived Listen streams.
// Watcher must be read-locked before access, to guard against concurrent
// updates.
type Watcher struct {
	// Targets indexes the mirrored state of each watched target.
	Targets map[int32]*TargetState
	// Observers called upon each snapshot boundary of a target. Observer
	// calls occur in-order, after the Watcher itself has been updated, and
	// while a write-lock over the Watcher is still held (which Observers
	// must not release).
	Observers []func()
	// OnFilterMismatch is invoked when a target's ExistenceFilter disagrees
	// with the local document count, in place of the default behavior of a
	// full target resync. It runs under the Watcher write-lock.
	OnFilterMismatch func(targetID int32)
	// Mu guards Targets and Observers. It must be locked before either is
	// accessed.
	Mu sync.RWMutex

	dc       pb.DocstoreClient
	database string
	specs    map[int32]pb.Target
	updateCh chan struct{}
}

// TargetState is the mirrored state of one watch target.
type TargetState struct {
	// Documents is the target's result set as of the last snapshot boundary.
	Documents map[string]pb.Document
	// Current is set once the server has reported the target CURRENT.
	Current bool
	// ReadTime of the last snapshot boundary.
	ReadTime time.Time
	// ResumeToken of the last snapshot boundary. Persist it to resume the
	// target across Watcher restarts.
	ResumeToken []byte
	// Removed is set with its cause when the server removed the target.
	Removed *pb.TargetCause

	// staged accumulates changes not yet sealed by a snapshot boundary.
	staged map[string]*pb.Document
	// resync requests that the target be re-added from scratch.
	resync bool
	// expectRemove marks a REMOVE acknowledgement of a deliberate resync,
	// which must not mark the target as removed.
	expectRemove bool
}

// NewWatcher returns a Watcher of |database| over client |dc|.
func NewWatcher(dc pb.DocstoreClient, database string) *Watcher {
	return &Watcher{
		Targets:  make(map[int32]*TargetState),
		dc:       dc,
		database: database,
		specs:    make(map[int32]pb.Target),
		updateCh: make(chan struct{}),
	}
}

// AddTarget registers a target to watch. It must be called before Watch.
// The target's TargetID must be set and unique within the Watcher. A
// ResumeToken persisted from a prior TargetState resumes the target rather
// than replaying its full initial state.
func (w *Watcher) AddTarget(spec pb.Target) error {
	if spec.TargetID == 0 {
		return errors.New("expected a non-zero TargetID")
	} else if _, ok := w.specs[spec.TargetID]; ok {
		return errors.Errorf("target %d was already added", spec.TargetID)
	}
	w.specs[spec.TargetID] = spec
	w.Targets[spec.TargetID] = &TargetState{
		Documents: make(map[string]pb.Document),
		staged:    make(map[string]*pb.Document),
	}
	return nil
}

// Update returns a channel which will signal (by closing) on the Watcher's
// next snapshot boundary. Callers must hold a lock over the Watcher.
func (w *Watcher) Update() <-chan struct{} {
	return w.updateCh
}

// Watch a Listen stream against the server, feeding the Watcher until |ctx|
// is cancelled or an unrecoverable error occurs. Stream breaks are retried
// with backoff, resuming each target from its last snapshot boundary.
func (w *Watcher) Watch(ctx context.Context) error {
	var attempt int
	for {
		var progressed, err = w.serveStream(ctx)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if progressed {
			// The stream was established and produced responses. Start the
			// next break's backoff from scratch.
			attempt = 0
		}
		log.WithFields(log.Fields{"err": err, "attempt": attempt}).
			Warn("listen stream failed (will retry)")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
			attempt++
		}
	}
}

// serveStream runs one Listen stream until it breaks. It returns whether the
// stream produced at least one response before breaking.
func (w *Watcher) serveStream(ctx context.Context) (progressed bool, _ error) {
	var stream, err = w.dc.Listen(ctx)
	if err != nil {
		return false, errors.WithMessage(err, "opening listen stream")
	}

	// Add every registered target, resuming from its last boundary.
	var database = w.database
	for id, spec := range w.specs {
		w.Mu.Lock()
		var state = w.Targets[id]
		if state.Removed != nil {
			w.Mu.Unlock()
			continue
		}
		if state.resync {
			state.resync = false
			state.Current = false
			state.ResumeToken = nil
			state.Documents = make(map[string]pb.Document)
			state.staged = make(map[string]*pb.Document)
		}
		spec.ResumeToken, spec.ReadTime = state.ResumeToken, nil
		w.Mu.Unlock()

		if err = stream.Send(&pb.ListenRequest{
			Database:  database,
			AddTarget: &spec,
		}); err != nil {
			return false, errors.WithMessage(err, "adding target")
		}
		database = "" // First request only.
	}

	for {
		var resp *pb.ListenResponse
		if resp, err = stream.Recv(); err != nil {
			return progressed, err
		}
		progressed = true

		var resync []int32
		if resync, err = w.fold(resp); err != nil {
			return progressed, err
		}
		// A resync re-admits the target with no resume position.
		for _, id := range resync {
			if err = stream.Send(&pb.ListenRequest{RemoveTarget: id}); err != nil {
				return progressed, err
			}
			var spec = w.specs[id]
			spec.ResumeToken, spec.ReadTime = nil, nil
			if err = stream.Send(&pb.ListenRequest{AddTarget: &spec}); err != nil {
				return progressed, err
			}
		}
	}
}

// fold applies one ListenResponse to the Watcher. It returns ids of targets
// which must be re-added to the stream for a full resync.
func (w *Watcher) fold(resp *pb.ListenResponse) ([]int32, error) {
	if err := resp.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid ListenResponse")
	}
	w.Mu.Lock()
	defer w.Mu.Unlock()

	switch {
	case resp.TargetChange != nil:
		return w.foldTargetChange(resp.TargetChange)

	case resp.DocumentChange != nil:
		var doc = resp.DocumentChange.Document
		for _, id := range resp.DocumentChange.TargetIDs {
			if state, ok := w.Targets[id]; ok {
				state.staged[doc.Name] = &doc
			}
		}
		for _, id := range resp.DocumentChange.RemovedTargetIDs {
			if state, ok := w.Targets[id]; ok {
				state.staged[doc.Name] = nil
			}
		}

	case resp.DocumentDelete != nil:
		for _, id := range resp.DocumentDelete.RemovedTargetIDs {
			if state, ok := w.Targets[id]; ok {
				state.staged[resp.DocumentDelete.Document] = nil
			}
		}

	case resp.DocumentRemove != nil:
		for _, id := range resp.DocumentRemove.RemovedTargetIDs {
			if state, ok := w.Targets[id]; ok {
				state.staged[resp.DocumentRemove.Document] = nil
			}
		}

	case resp.Filter != nil:
		var state, ok = w.Targets[resp.Filter.TargetID]
		if !ok {
			break
		}
		if int32(w.localCount(state)) != resp.Filter.Count {
			if w.OnFilterMismatch != nil {
				w.OnFilterMismatch(resp.Filter.TargetID)
			} else {
				// The accumulated diff cannot be trusted. Rebuild the target
				// from a fresh initial stream.
				w.resetLocked(state)
				state.expectRemove = true
				return []int32{resp.Filter.TargetID}, nil
			}
		}
	}
	return nil, nil
}

func (w *Watcher) foldTargetChange(tc *pb.TargetChange) ([]int32, error) {
	var affected = tc.TargetIDs
	if len(affected) == 0 {
		// An empty id set addresses every target of the stream.
		affected = make([]int32, 0, len(w.Targets))
		for id := range w.Targets {
			affected = append(affected, id)
		}
	}

	switch tc.Type {
	case pb.TargetAdd:
		// Acknowledgement only.

	case pb.TargetRemove:
		for _, id := range affected {
			if state, ok := w.Targets[id]; ok {
				if state.expectRemove && tc.Cause == nil {
					state.expectRemove = false
					continue
				}
				state.Removed = tc.Cause
				if state.Removed == nil {
					state.Removed = &pb.TargetCause{Status: pb.StatusOK}
				}
			}
		}
		w.signal()

	case pb.TargetReset:
		for _, id := range affected {
			if state, ok := w.Targets[id]; ok {
				w.resetLocked(state)
			}
		}

	case pb.TargetCurrent:
		for _, id := range affected {
			if state, ok := w.Targets[id]; ok {
				state.Current = true
			}
		}
		fallthrough

	case pb.TargetNoChange:
		// A change carrying a resume token is a snapshot boundary: staged
		// changes of affected targets are sealed and published.
		if len(tc.ResumeToken) == 0 {
			break
		}
		for _, id := range affected {
			var state, ok = w.Targets[id]
			if !ok {
				continue
			}
			for name, doc := range state.staged {
				if doc == nil {
					delete(state.Documents, name)
				} else {
					state.Documents[name] = *doc
				}
			}
			state.staged = make(map[string]*pb.Document)
			state.ReadTime = tc.ReadTime
			state.ResumeToken = tc.ResumeToken
		}
		w.signal()
	}
	return nil, nil
}

func (w *Watcher) resetLocked(state *TargetState) {
	state.Current = false
	state.ResumeToken = nil
	state.Documents = make(map[string]pb.Document)
	state.staged = make(map[string]*pb.Document)
}

// localCount is the target's document count with staged changes applied.
func (w *Watcher) localCount(state *TargetState) int {
	var n = len(state.Documents)
	for name, doc := range state.staged {
		var _, have = state.Documents[name]
		if doc != nil && !have {
			n++
		} else if doc == nil && have {
			n--
		}
	}
	return n
}

// signal wakes goroutines blocked on Update. Called with w.Mu held.
func (w *Watcher) signal() {
	for _, obs := range w.Observers {
		obs()
	}
	close(w.updateCh)
	w.updateCh = make(chan struct{})
}

func backoff(attempt int) time.Duration {
	switch attempt {
	case 0, 1:
		return 0
	case 2:
		return time.Millisecond * 5
	case 3, 4, 5:
		return time.Second * time.Duration(attempt-1)
	default:
		return 5 * time.Second
	}
}
