package docstore

import (
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	pb "go.scrivodb.dev/core/docstore/protocol"
	"go.scrivodb.dev/core/docstore/query"
	"go.scrivodb.dev/core/docstore/storage"
	"go.scrivodb.dev/core/metrics"
)

// Listen dispatches the DocstoreServer.Listen API.
func (svc *Service) Listen(stream pb.Docstore_ListenServer) (err error) {
	defer instrumentDocstoreRPC("Listen", &err)()

	var fsm = listenFSM{
		svc:     svc,
		stream:  stream,
		targets: make(map[int32]*listenTarget),
	}
	if err = fsm.run(); err != nil && err != io.EOF {
		log.WithFields(log.Fields{"err": err}).Warn("served Listen RPC failed")
		return err
	}
	return nil
}

// listenFSM multiplexes watch targets onto one Listen stream. A single
// goroutine folds stream requests, committed changes and timer ticks into
// the stream's ordered response sequence, so that emitted read times are
// monotonically non-decreasing.
type listenFSM struct {
	svc    *Service
	stream pb.Docstore_ListenServer

	targets map[int32]*listenTarget
	// nextID assigns server-side target ids, when the client leaves
	// TargetID zero.
	nextID int32
	// readTime is the largest read time emitted on the stream. Emitted read
	// times are clamped to it, keeping them monotonically non-decreasing.
	readTime time.Time
}

// listenTarget is the server-side state of one multiplexed target.
type listenTarget struct {
	id   int32
	spec pb.Target
	// query is the compiled query of a QueryTarget, and nil otherwise.
	query *query.Query
	// paths is the explicit document set of a DocumentsTarget.
	paths map[string]struct{}
	// docs is the set of documents currently matching the target.
	docs map[string]struct{}
	// pos is the target's read position: all commits at or before pos are
	// reflected in docs and have been emitted.
	pos time.Time
	// lastFilter is the time of the target's last ExistenceFilter.
	lastFilter time.Time
}

// matches returns whether an existing document |doc| is selected by the target.
func (t *listenTarget) matches(doc *pb.Document) bool {
	if t.query != nil {
		return t.query.Matches(doc)
	}
	var _, ok = t.paths[doc.Name]
	return ok
}

func (fsm *listenFSM) run() error {
	var (
		reqCh = make(chan *pb.ListenRequest)
		errCh = make(chan error, 1)
		done  = make(chan struct{})
	)
	defer close(done)

	go func() {
		for {
			var req, err = fsm.stream.Recv()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case reqCh <- req:
			case <-done:
				return
			}
		}
	}()

	var commits = newCommitQueue()
	defer fsm.svc.store.Watch(commits.push)()

	var heartbeat = time.NewTicker(fsm.svc.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	defer metrics.ListenTargets.Sub(float64(len(fsm.targets)))

	var sawFirst bool
	for {
		select {
		case err := <-errCh:
			return err

		case req := <-reqCh:
			// Drain pending commits first, so a target added by the request
			// does not synchronize ahead of un-emitted changes.
			for _, c := range commits.drain() {
				if err := fsm.onCommit(c); err != nil {
					return err
				}
			}
			if err := fsm.onRequest(req, &sawFirst); err != nil {
				return err
			}

		case <-commits.signal:
			for _, c := range commits.drain() {
				if err := fsm.onCommit(c); err != nil {
					return err
				}
			}

		case <-heartbeat.C:
			// Drain pending commits first, so the heartbeat's read time does
			// not outrun un-emitted changes.
			for _, c := range commits.drain() {
				if err := fsm.onCommit(c); err != nil {
					return err
				}
			}
			if err := fsm.onHeartbeat(); err != nil {
				return err
			}
		}
	}
}

func (fsm *listenFSM) onRequest(req *pb.ListenRequest, sawFirst *bool) error {
	if err := req.Validate(); err != nil {
		return pb.NewStatusError(pb.StatusInvalidArgument, "%s", err)
	}
	if !*sawFirst {
		if req.Database == "" {
			return pb.NewStatusError(pb.StatusInvalidArgument,
				"the first request of a Listen stream must name the database")
		} else if err := fsm.svc.checkDatabase(req.Database); err != nil {
			return err
		}
		// Labels are accepted for diagnostics but not interpreted.
		if len(req.Labels) != 0 {
			log.WithFields(log.Fields{"labels": req.Labels}).
				Info("listen stream established with labels")
		}
		*sawFirst = true
	} else if req.Database != "" {
		if err := fsm.svc.checkDatabase(req.Database); err != nil {
			return err
		}
	}

	if req.AddTarget != nil {
		return fsm.onAddTarget(req.AddTarget)
	}
	return fsm.onRemoveTarget(req.RemoveTarget)
}

// onAddTarget admits a target to the stream: it acknowledges with ADD,
// synthesizes the target's initial (or resumed) result set, and marks the
// target CURRENT. Target-scoped failures remove the target with a cause,
// and do not fail the stream.
func (fsm *listenFSM) onAddTarget(spec *pb.Target) error {
	var id = spec.TargetID
	if id == 0 {
		for id = fsm.nextID + 1; ; id++ {
			if _, ok := fsm.targets[id]; !ok {
				break
			}
		}
		fsm.nextID = id
	} else if _, ok := fsm.targets[id]; ok {
		return pb.NewStatusError(pb.StatusInvalidArgument,
			"target %d was already added to this stream", id)
	}

	if err := fsm.send(&pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type:      pb.TargetAdd,
		TargetIDs: []int32{id},
	}}); err != nil {
		return err
	}

	var target = &listenTarget{
		id:   id,
		spec: *spec,
		docs: make(map[string]struct{}),
	}
	if cause := fsm.initTarget(target); cause != nil {
		return fsm.send(&pb.ListenResponse{TargetChange: &pb.TargetChange{
			Type:      pb.TargetRemove,
			TargetIDs: []int32{id},
			Cause:     cause,
		}})
	}

	// Resolve the target's resume position, if any. An undecodable resume
	// token is a target-scoped failure: other targets of the stream survive.
	// A position which cannot be served incrementally forces RESET, and a
	// full re-synthesis.
	var resume time.Time
	switch {
	case len(spec.ResumeToken) != 0:
		var tok resumeToken
		if err := decodeToken(spec.ResumeToken, &tok); err != nil {
			return fsm.send(&pb.ListenResponse{TargetChange: &pb.TargetChange{
				Type:      pb.TargetRemove,
				TargetIDs: []int32{id},
				Cause:     &pb.TargetCause{Status: pb.StatusOf(err), Message: err.Error()},
			}})
		}
		resume = tok.ReadTime
	case spec.ReadTime != nil:
		resume = *spec.ReadTime
	}

	fsm.targets[id] = target
	metrics.ListenTargets.Inc()

	if !resume.IsZero() {
		if err := fsm.syncIncremental(target, resume); err == nil {
			return fsm.finishSync(target)
		} else if pb.StatusOf(err) != pb.StatusAborted {
			return err
		}
		if err := fsm.send(&pb.ListenResponse{TargetChange: &pb.TargetChange{
			Type:      pb.TargetReset,
			TargetIDs: []int32{id},
		}}); err != nil {
			return err
		}
		target.docs = make(map[string]struct{})
	}

	if err := fsm.syncFull(target); err != nil {
		return err
	}
	return fsm.finishSync(target)
}

// initTarget compiles and checks the target selector. A returned TargetCause
// is a target-scoped failure.
func (fsm *listenFSM) initTarget(target *listenTarget) *pb.TargetCause {
	switch sel := target.spec.Selector.(type) {
	case pb.QueryTarget:
		if err := fsm.svc.checkDatabase(pb.DatabaseOfPath(sel.Parent)); err != nil {
			return &pb.TargetCause{Status: pb.StatusOf(err), Message: err.Error()}
		}
		var q, err = query.Compile(sel.Parent, &sel.Query)
		if err != nil {
			return &pb.TargetCause{Status: pb.StatusOf(err), Message: err.Error()}
		}
		target.query = q
	case pb.DocumentsTarget:
		target.paths = make(map[string]struct{}, len(sel.Documents))
		for _, d := range sel.Documents {
			if err := fsm.svc.checkDatabase(pb.DatabaseOfPath(d)); err != nil {
				return &pb.TargetCause{Status: pb.StatusOf(err), Message: err.Error()}
			}
			target.paths[d] = struct{}{}
		}
	}
	return nil
}

// syncFull synthesizes the target's complete result set from a current
// snapshot.
func (fsm *listenFSM) syncFull(target *listenTarget) error {
	var snapshot = fsm.svc.store.ReadTime()

	var docs, err = fsm.targetDocsAt(target, snapshot)
	if err != nil {
		return err
	}
	for i := range docs {
		target.docs[docs[i].Name] = struct{}{}

		if err = fsm.send(&pb.ListenResponse{DocumentChange: &pb.DocumentChange{
			Document:  docs[i],
			TargetIDs: []int32{target.id},
		}}); err != nil {
			return err
		}
	}
	target.pos = snapshot
	return nil
}

// syncIncremental seeds the target's result set as of |resume| and replays
// retained commits to bring it to the present. An ABORTED return means the
// position cannot be served and the caller must RESET.
func (fsm *listenFSM) syncIncremental(target *listenTarget, resume time.Time) error {
	if err := fsm.svc.store.CheckReadTime(resume); err != nil {
		return pb.NewStatusError(pb.StatusAborted, "resume position is too old")
	}
	var commits, ok = fsm.svc.store.LogSince(resume)
	if !ok {
		return pb.NewStatusError(pb.StatusAborted, "resume position precedes the retained commit log")
	}

	var docs, err = fsm.targetDocsAt(target, resume)
	if err != nil {
		return err
	}
	for i := range docs {
		target.docs[docs[i].Name] = struct{}{}
	}
	target.pos = resume

	for _, c := range commits {
		if err = fsm.applyCommit(target, c); err != nil {
			return err
		}
	}
	return nil
}

// streamReadTime clamps |t| to the largest read time already emitted on the
// stream. A target position may trail the stream when it resumed from an
// older token; the stream's read times must still never regress.
func (fsm *listenFSM) streamReadTime(t time.Time) time.Time {
	if fsm.readTime.After(t) {
		return fsm.readTime
	}
	fsm.readTime = t
	return t
}

// finishSync emits CURRENT for a synced target, and removes it if it was a
// once target.
func (fsm *listenFSM) finishSync(target *listenTarget) error {
	target.pos = fsm.streamReadTime(target.pos)

	var err = fsm.send(&pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type:        pb.TargetCurrent,
		TargetIDs:   []int32{target.id},
		ResumeToken: encodeToken(resumeToken{ReadTime: target.pos}),
		ReadTime:    target.pos,
	}})
	if err != nil {
		return err
	}
	if target.spec.Once {
		return fsm.onRemoveTarget(target.id)
	}
	return nil
}

func (fsm *listenFSM) onRemoveTarget(id int32) error {
	if _, ok := fsm.targets[id]; !ok {
		return pb.NewStatusError(pb.StatusInvalidArgument,
			"target %d is not part of this stream", id)
	}
	delete(fsm.targets, id)
	metrics.ListenTargets.Dec()

	return fsm.send(&pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type:      pb.TargetRemove,
		TargetIDs: []int32{id},
	}})
}

// onCommit folds one committed change batch into every target, and emits a
// NO_CHANGE snapshot boundary carrying a resume token at the commit's time.
func (fsm *listenFSM) onCommit(c storage.Commit) error {
	for _, target := range fsm.targets {
		if err := fsm.applyCommit(target, c); err != nil {
			return err
		}
	}
	var readTime = fsm.streamReadTime(c.Time)
	return fsm.send(&pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type:        pb.TargetNoChange,
		ResumeToken: encodeToken(resumeToken{ReadTime: readTime}),
		ReadTime:    readTime,
	}})
}

// applyCommit diffs one commit against |target|'s result set, emitting
// DocumentChange, DocumentDelete and DocumentRemove events.
func (fsm *listenFSM) applyCommit(target *listenTarget, c storage.Commit) error {
	if !c.Time.After(target.pos) {
		return nil // Already reflected by the target's position.
	}
	target.pos = c.Time

	for _, change := range c.Changes {
		var _, was = target.docs[change.Path]
		var now = change.Doc != nil && target.matches(change.Doc)

		switch {
		case now:
			target.docs[change.Path] = struct{}{}
			if err := fsm.send(&pb.ListenResponse{DocumentChange: &pb.DocumentChange{
				Document:  *change.Doc,
				TargetIDs: []int32{target.id},
			}}); err != nil {
				return err
			}
		case was && change.Doc == nil:
			delete(target.docs, change.Path)
			if err := fsm.send(&pb.ListenResponse{DocumentDelete: &pb.DocumentDelete{
				Document:         change.Path,
				RemovedTargetIDs: []int32{target.id},
				ReadTime:         c.Time,
			}}); err != nil {
				return err
			}
		case was:
			// The document still exists, but fell out of the target's filter.
			delete(target.docs, change.Path)
			if err := fsm.send(&pb.ListenResponse{DocumentRemove: &pb.DocumentRemove{
				Document:         change.Path,
				RemovedTargetIDs: []int32{target.id},
				ReadTime:         c.Time,
			}}); err != nil {
				return err
			}
		}
	}
	return nil
}

// onHeartbeat emits a NO_CHANGE heartbeat with a fresh resume token, and
// periodic ExistenceFilters for long-lived query targets.
func (fsm *listenFSM) onHeartbeat() error {
	var now = fsm.streamReadTime(fsm.svc.store.ReadTime())

	for _, target := range fsm.targets {
		if now.After(target.pos) {
			target.pos = now
		}
		if target.query == nil {
			continue
		}
		if target.lastFilter.IsZero() {
			target.lastFilter = time.Now()
		} else if time.Since(target.lastFilter) >= fsm.svc.cfg.FilterInterval {
			target.lastFilter = time.Now()

			if err := fsm.send(&pb.ListenResponse{Filter: &pb.ExistenceFilter{
				TargetID: target.id,
				Count:    int32(len(target.docs)),
			}}); err != nil {
				return err
			}
		}
	}
	return fsm.send(&pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type:        pb.TargetNoChange,
		ResumeToken: encodeToken(resumeToken{ReadTime: now}),
		ReadTime:    now,
	}})
}

// targetDocsAt returns the documents matching |target| as of |readTime|.
func (fsm *listenFSM) targetDocsAt(target *listenTarget, readTime time.Time) ([]pb.Document, error) {
	if target.query != nil {
		var result, err = target.query.Evaluate(fsm.svc.store, readTime)
		if err != nil {
			return nil, err
		}
		return result.Documents, nil
	}

	var docs []pb.Document
	for path := range target.paths {
		var doc, err = fsm.svc.store.GetAt(path, readTime)
		if err != nil {
			return nil, err
		} else if doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

func (fsm *listenFSM) send(resp *pb.ListenResponse) error {
	switch {
	case resp.TargetChange != nil:
		metrics.ListenEventsTotal.WithLabelValues("target_change").Inc()
	case resp.DocumentChange != nil:
		metrics.ListenEventsTotal.WithLabelValues("document_change").Inc()
	case resp.DocumentDelete != nil:
		metrics.ListenEventsTotal.WithLabelValues("document_delete").Inc()
	case resp.DocumentRemove != nil:
		metrics.ListenEventsTotal.WithLabelValues("document_remove").Inc()
	case resp.Filter != nil:
		metrics.ListenEventsTotal.WithLabelValues("filter").Inc()
	}
	return fsm.stream.Send(resp)
}

// commitQueue decouples Store watch callbacks, which run under the Store
// commit lock, from the stream's send loop.
type commitQueue struct {
	mu      sync.Mutex
	commits []storage.Commit
	signal  chan struct{}
}

func newCommitQueue() *commitQueue {
	return &commitQueue{signal: make(chan struct{}, 1)}
}

func (q *commitQueue) push(c storage.Commit) {
	q.mu.Lock()
	q.commits = append(q.commits, c)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *commitQueue) drain() []storage.Commit {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out = q.commits
	q.commits = nil
	return out
}
