// Package storage implements the in-memory multiversion document store which
// the coordination core serves. Documents are indexed by path in a btree, and
// each path retains a bounded chain of revisions ordered on commit time, so
// that reads may observe any sufficiently recent snapshot. Commits are
// serialized and atomic: a batch's preconditions are checked across the whole
// batch before any mutation applies. Each commit appends an entry to a
// bounded commit log which powers incremental Listen resume.
package storage

import (
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	pb "go.scrivodb.dev/core/docstore/protocol"
	"go.scrivodb.dev/core/metrics"
)

// DefaultLogHorizon is the number of commits retained for incremental
// Listen resume. Resume positions older than the horizon force a RESET.
const DefaultLogHorizon = 1024

// revisionHorizon bounds the per-document revision chain. Chains need cover
// only the read-staleness bound; older revisions are pruned on write.
const revisionHorizon = pb.MaxReadStaleness + 10*time.Second

// Store is a multiversion store of the documents of a single database.
type Store struct {
	mu sync.RWMutex
	// docs indexes *docEntry on ascending document path.
	docs *btree.BTreeG[*docEntry]
	// clock returns the current time. Overridable for tests.
	clock func() time.Time
	// lastCommit is the commit time of the most recent commit.
	lastCommit time.Time
	// issuedRead is the largest read time handed out by ReadTime. Commits
	// must land strictly after it, or issued snapshots would not be stable.
	issuedRead time.Time
	// log is the bounded commit log, ordered on ascending commit time.
	log []Commit
	// prunedThrough is the commit time through which log entries have been
	// pruned. Resume positions at or before it cannot be served incrementally.
	prunedThrough time.Time
	// horizon bounds len(log).
	horizon int
	// watchers are notified of each commit, in registration order, while the
	// Store write-lock is still held (watchers must not re-enter the Store).
	watchers    map[int64]func(Commit)
	nextWatcher int64
}

// docEntry is the retained revision chain of a single document path.
type docEntry struct {
	path string
	// revs are ordered on ascending update time. A revision with exists
	// false records a deletion.
	revs []revision
}

// revision is one committed state of a document.
type revision struct {
	fields     pb.MapValue
	createTime time.Time
	updateTime time.Time
	exists     bool
}

// Commit is one atomically applied write batch.
type Commit struct {
	// Time is the commit time: strictly greater than all prior commits.
	Time time.Time
	// Changes are the per-document state transitions of the commit, in
	// first-write order and deduplicated on path (last write wins).
	Changes []DocChange
}

// DocChange is a single document's state transition within a Commit.
type DocChange struct {
	// Path of the document.
	Path string
	// Doc is the document's state after the commit. Nil if it was deleted
	// (or still does not exist).
	Doc *pb.Document
	// Existed is whether the document existed before the commit.
	Existed bool
}

// ReadSet records the per-path document update times observed by a
// transaction's reads (a zero time records an observed absence). Commit
// validates a ReadSet against current state to detect conflicts.
type ReadSet map[string]time.Time

// NewStore returns an empty Store using the wall clock and default horizon.
func NewStore() *Store {
	return &Store{
		docs:     btree.NewG[*docEntry](16, func(a, b *docEntry) bool { return a.path < b.path }),
		clock:    time.Now,
		horizon:  DefaultLogHorizon,
		watchers: make(map[int64]func(Commit)),
	}
}

// ReadTime returns the current snapshot time of the Store: the time at which
// a new read observes all prior commits. The returned snapshot is stable:
// later commits land strictly after it.
func (s *Store) ReadTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t = s.clock().Truncate(time.Microsecond)
	if !t.After(s.lastCommit) {
		t = s.lastCommit
	}
	if !t.After(s.issuedRead) {
		t = s.issuedRead
	} else {
		s.issuedRead = t
	}
	return t
}

// CheckReadTime validates |readTime| against the staleness bound.
func (s *Store) CheckReadTime(readTime time.Time) error {
	if s.clock().Sub(readTime) > pb.MaxReadStaleness {
		return pb.NewStatusError(pb.StatusInvalidArgument,
			"read time %s is older than the staleness bound (%s)", readTime, pb.MaxReadStaleness)
	}
	return nil
}

// GetAt returns the document at |path| as of |readTime|.
// A document which does not exist at |readTime| is returned as (nil, nil).
func (s *Store) GetAt(path string, readTime time.Time) (*pb.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry, ok = s.docs.Get(&docEntry{path: path})
	if !ok {
		return nil, nil
	}
	var rev, found = entry.at(readTime)
	if !found || !rev.exists {
		return nil, nil
	}
	var doc = entry.document(rev)
	return &doc, nil
}

// Ascend iterates existing documents at |readTime| with path prefix
// |prefix|, in ascending path order, until |fn| returns false.
func (s *Store) Ascend(prefix string, readTime time.Time, fn func(doc pb.Document) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.docs.AscendGreaterOrEqual(&docEntry{path: prefix}, func(e *docEntry) bool {
		if !strings.HasPrefix(e.path, prefix) {
			return false
		}
		if rev, ok := e.at(readTime); ok && rev.exists {
			return fn(e.document(rev))
		}
		return true
	})
}

// AscendPaths iterates all known document paths with prefix |prefix| in
// ascending order, reporting whether each exists at |readTime|. Used to
// surface "missing" placeholder documents and collection ids.
func (s *Store) AscendPaths(prefix string, readTime time.Time, fn func(path string, exists bool) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.docs.AscendGreaterOrEqual(&docEntry{path: prefix}, func(e *docEntry) bool {
		if !strings.HasPrefix(e.path, prefix) {
			return false
		}
		var rev, ok = e.at(readTime)
		return fn(e.path, ok && rev.exists)
	})
}

// Watch registers |fn| to observe each future Commit, and returns a
// deregistration closure. |fn| runs under the Store's write lock: it must be
// fast and must not re-enter the Store.
func (s *Store) Watch(fn func(Commit)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id = s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// LogSince returns commits with Time > |since|, and whether the log still
// covers that position. A false return means commits after |since| may have
// been pruned: an incremental diff is not possible and the caller must
// resync from a fresh snapshot.
func (s *Store) LogSince(since time.Time) ([]Commit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.prunedThrough.After(since) {
		return nil, false
	}
	var out []Commit
	for _, c := range s.log {
		if c.Time.After(since) {
			out = append(out, c)
		}
	}
	return out, true
}

// Commit atomically applies |writes| in order. If |readSet| is non-nil it is
// first validated against current document state, failing with ABORTED on
// any mismatch (a concurrently committed modification of a read document).
// Preconditions of all writes are then checked against pre-commit state,
// failing with FAILED_PRECONDITION naming the offending write, before any
// mutation is applied. On success all watchers are notified of the Commit.
func (s *Store) Commit(writes []pb.Write, readSet ReadSet) (*pb.CommitResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, readTime := range readSet {
		if !s.headUpdateTime(path).Equal(readTime) {
			metrics.CommitsTotal.WithLabelValues(metrics.Aborted).Inc()
			return nil, pb.NewStatusError(pb.StatusAborted,
				"conflict: document %s was modified after the transaction snapshot", path)
		}
	}

	// Validate every precondition before applying any mutation.
	// Preconditions observe pre-commit state only: a write's effects are not
	// visible to preconditions of later writes in the same batch.
	for i := range writes {
		if err := s.checkPrecondition(&writes[i]); err != nil {
			metrics.CommitsTotal.WithLabelValues(metrics.Fail).Inc()
			return nil, err
		}
	}

	var commitTime = s.nextCommitTime()
	var batch = newStagedBatch(s, commitTime)

	var results = make([]pb.WriteResult, len(writes))
	for i := range writes {
		results[i] = batch.apply(&writes[i])
	}

	var commit = Commit{Time: commitTime}
	for _, path := range batch.order {
		var staged = batch.docs[path]
		var entry = s.entryOf(path)

		entry.revs = append(entry.revs, staged.rev)
		entry.pruneRevisions(commitTime)

		var change = DocChange{Path: path, Existed: staged.existedBefore}
		if staged.rev.exists {
			var doc = entry.document(staged.rev)
			change.Doc = &doc
		}
		commit.Changes = append(commit.Changes, change)
	}

	s.lastCommit = commitTime
	s.log = append(s.log, commit)
	if cut := len(s.log) - s.horizon; cut > 0 {
		s.prunedThrough = s.log[cut-1].Time
		s.log = append([]Commit(nil), s.log[cut:]...)
	}
	for _, fn := range s.watchers {
		fn(commit)
	}
	metrics.CommitsTotal.WithLabelValues(metrics.Ok).Inc()

	return &pb.CommitResponse{WriteResults: results, CommitTime: commitTime}, nil
}

// nextCommitTime returns a commit time strictly greater than all prior
// commits and all read times issued by ReadTime.
func (s *Store) nextCommitTime() time.Time {
	var floor = s.lastCommit
	if s.issuedRead.After(floor) {
		floor = s.issuedRead
	}
	var t = s.clock().Truncate(time.Microsecond)
	if !t.After(floor) {
		t = floor.Add(time.Microsecond)
	}
	return t
}

// headUpdateTime returns the current update time of |path|, or the zero time
// if it does not exist. Must be called with a lock held.
func (s *Store) headUpdateTime(path string) time.Time {
	if e, ok := s.docs.Get(&docEntry{path: path}); ok && len(e.revs) != 0 {
		if head := e.head(); head.exists {
			return head.updateTime
		}
	}
	return time.Time{}
}

func (s *Store) checkPrecondition(w *pb.Write) error {
	if w.CurrentDocument == nil {
		return nil
	}
	var path = w.Op.Document()
	var cur = s.headUpdateTime(path)

	if p := w.CurrentDocument; p.Exists != nil {
		if *p.Exists && cur.IsZero() {
			return pb.NewStatusError(pb.StatusFailedPrecondition,
				"precondition failure: document %s does not exist", path)
		} else if !*p.Exists && !cur.IsZero() {
			return pb.NewStatusError(pb.StatusFailedPrecondition,
				"precondition failure: document %s already exists", path)
		}
	} else if !cur.Equal(*p.UpdateTime) {
		return pb.NewStatusError(pb.StatusFailedPrecondition,
			"precondition failure: document %s update time %s does not match %s",
			path, cur, *p.UpdateTime)
	}
	return nil
}

// entryOf returns the docEntry of |path|, creating it if needed.
// Must be called with the write lock held.
func (s *Store) entryOf(path string) *docEntry {
	if e, ok := s.docs.Get(&docEntry{path: path}); ok {
		return e
	}
	var e = &docEntry{path: path}
	s.docs.ReplaceOrInsert(e)
	return e
}

// at returns the newest revision with updateTime <= |readTime|.
func (e *docEntry) at(readTime time.Time) (revision, bool) {
	for i := len(e.revs) - 1; i >= 0; i-- {
		if !e.revs[i].updateTime.After(readTime) {
			return e.revs[i], true
		}
	}
	return revision{}, false
}

// head returns the current revision. Callers must know revs is non-empty.
func (e *docEntry) head() revision { return e.revs[len(e.revs)-1] }

func (e *docEntry) document(rev revision) pb.Document {
	var d = pb.Document{
		Name:       e.path,
		Fields:     rev.fields,
		CreateTime: rev.createTime,
		UpdateTime: rev.updateTime,
	}
	return d.Copy()
}

// pruneRevisions drops revisions which can no longer be observed by any
// permitted read time.
func (e *docEntry) pruneRevisions(commitTime time.Time) {
	var bound = commitTime.Add(-revisionHorizon)
	for len(e.revs) > 1 && e.revs[1].updateTime.Before(bound) {
		e.revs = e.revs[1:]
	}
}
