package client

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	pb "go.scrivodb.dev/core/docstore/protocol"
	"google.golang.org/grpc"
)

const watchParent = "databases/db/documents"

func newFoldWatcher(t *testing.T) *Watcher {
	t.Helper()
	var w = NewWatcher(nil, "databases/db")
	require.NoError(t, w.AddTarget(pb.Target{
		TargetID: 1,
		Selector: pb.QueryTarget{
			Parent: watchParent,
			Query: pb.StructuredQuery{
				From: []pb.CollectionSelector{{CollectionID: "users"}},
			},
		},
	}))
	return w
}

func foldResponse(t *testing.T, w *Watcher, resp pb.ListenResponse) []int32 {
	t.Helper()
	var resync, err = w.fold(&resp)
	require.NoError(t, err)
	return resync
}

func boundary(readTime time.Time, token string) pb.ListenResponse {
	return pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type:        pb.TargetNoChange,
		ResumeToken: []byte(token),
		ReadTime:    readTime,
	}}
}

func watchDoc(id string, v int64) pb.Document {
	return pb.Document{
		Name:   watchParent + "/users/" + id,
		Fields: pb.MapValue{"v": pb.IntegerValue(v)},
	}
}

func TestWatcherAddTargetCases(t *testing.T) {
	var w = newFoldWatcher(t)

	require.EqualError(t, w.AddTarget(pb.Target{}), "expected a non-zero TargetID")
	require.EqualError(t, w.AddTarget(pb.Target{TargetID: 1}), "target 1 was already added")
}

func TestWatcherFoldsChangesAtBoundaries(t *testing.T) {
	var w = newFoldWatcher(t)
	var readTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	foldResponse(t, w, pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type: pb.TargetAdd, TargetIDs: []int32{1}}})

	// Changes stage without publishing until a snapshot boundary seals them.
	foldResponse(t, w, pb.ListenResponse{DocumentChange: &pb.DocumentChange{
		Document: watchDoc("alice", 1), TargetIDs: []int32{1}}})

	var state = w.Targets[1]
	require.Empty(t, state.Documents)
	require.False(t, state.Current)

	var updated = w.Update()
	foldResponse(t, w, pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type:        pb.TargetCurrent,
		TargetIDs:   []int32{1},
		ResumeToken: []byte("tok-1"),
		ReadTime:    readTime,
	}})

	require.True(t, state.Current)
	require.Equal(t, readTime, state.ReadTime)
	require.Equal(t, []byte("tok-1"), state.ResumeToken)
	require.Equal(t, watchDoc("alice", 1), state.Documents[watchDoc("alice", 1).Name])

	select {
	case <-updated:
	default:
		t.Fatal("expected the update channel to signal at the boundary")
	}

	// A later change of the same document supersedes its staged state, and an
	// empty target id set addresses every target.
	foldResponse(t, w, pb.ListenResponse{DocumentChange: &pb.DocumentChange{
		Document: watchDoc("alice", 2), TargetIDs: []int32{1}}})
	foldResponse(t, w, pb.ListenResponse{DocumentChange: &pb.DocumentChange{
		Document: watchDoc("bob", 1), TargetIDs: []int32{1}}})
	foldResponse(t, w, boundary(readTime.Add(time.Second), "tok-2"))

	require.Len(t, state.Documents, 2)
	require.Equal(t, watchDoc("alice", 2), state.Documents[watchDoc("alice", 1).Name])
	require.Equal(t, []byte("tok-2"), state.ResumeToken)

	// Deletes and removes both clear the document at the next boundary.
	foldResponse(t, w, pb.ListenResponse{DocumentDelete: &pb.DocumentDelete{
		Document: watchDoc("alice", 0).Name, RemovedTargetIDs: []int32{1}}})
	foldResponse(t, w, pb.ListenResponse{DocumentRemove: &pb.DocumentRemove{
		Document: watchDoc("bob", 0).Name, RemovedTargetIDs: []int32{1}}})
	foldResponse(t, w, boundary(readTime.Add(2*time.Second), "tok-3"))

	require.Empty(t, state.Documents)

	// A boundary without a resume token does not seal staged changes.
	foldResponse(t, w, pb.ListenResponse{DocumentChange: &pb.DocumentChange{
		Document: watchDoc("carol", 1), TargetIDs: []int32{1}}})
	foldResponse(t, w, pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type: pb.TargetNoChange}})
	require.Empty(t, state.Documents)
}

func TestWatcherObserversRunAtBoundaries(t *testing.T) {
	var w = newFoldWatcher(t)

	var observed int
	w.Observers = append(w.Observers, func() { observed++ })

	foldResponse(t, w, boundary(time.Now(), "tok"))
	foldResponse(t, w, boundary(time.Now(), "tok"))
	require.Equal(t, 2, observed)
}

func TestWatcherFoldReset(t *testing.T) {
	var w = newFoldWatcher(t)
	var state = w.Targets[1]

	foldResponse(t, w, pb.ListenResponse{DocumentChange: &pb.DocumentChange{
		Document: watchDoc("alice", 1), TargetIDs: []int32{1}}})
	foldResponse(t, w, pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type: pb.TargetCurrent, TargetIDs: []int32{1}, ResumeToken: []byte("tok")}})
	require.Len(t, state.Documents, 1)

	// RESET discards accumulated state. The target is no longer current and
	// carries no resume position.
	foldResponse(t, w, pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type: pb.TargetReset, TargetIDs: []int32{1}}})

	require.False(t, state.Current)
	require.Empty(t, state.Documents)
	require.Empty(t, state.ResumeToken)
}

func TestWatcherFoldTargetRemoval(t *testing.T) {
	var w = newFoldWatcher(t)
	var state = w.Targets[1]

	var cause = &pb.TargetCause{Status: pb.StatusInvalidArgument, Message: "bad query"}
	foldResponse(t, w, pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type: pb.TargetRemove, TargetIDs: []int32{1}, Cause: cause}})
	require.Equal(t, cause, state.Removed)

	// A removal without a cause is recorded as a clean removal.
	state.Removed = nil
	foldResponse(t, w, pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type: pb.TargetRemove, TargetIDs: []int32{1}}})
	require.Equal(t, &pb.TargetCause{Status: pb.StatusOK}, state.Removed)
}

func TestWatcherExistenceFilterMismatch(t *testing.T) {
	var w = newFoldWatcher(t)
	var state = w.Targets[1]

	foldResponse(t, w, pb.ListenResponse{DocumentChange: &pb.DocumentChange{
		Document: watchDoc("alice", 1), TargetIDs: []int32{1}}})
	foldResponse(t, w, boundary(time.Now(), "tok"))

	// A filter agreeing with the local count is a no-op.
	require.Empty(t, foldResponse(t, w, pb.ListenResponse{
		Filter: &pb.ExistenceFilter{TargetID: 1, Count: 1}}))
	require.Len(t, state.Documents, 1)

	// Staged changes count toward the comparison.
	foldResponse(t, w, pb.ListenResponse{DocumentDelete: &pb.DocumentDelete{
		Document: watchDoc("alice", 0).Name, RemovedTargetIDs: []int32{1}}})
	require.Empty(t, foldResponse(t, w, pb.ListenResponse{
		Filter: &pb.ExistenceFilter{TargetID: 1, Count: 0}}))
	foldResponse(t, w, boundary(time.Now(), "tok"))

	// A disagreement discards local state and asks for a full resync.
	foldResponse(t, w, pb.ListenResponse{DocumentChange: &pb.DocumentChange{
		Document: watchDoc("alice", 1), TargetIDs: []int32{1}}})
	foldResponse(t, w, boundary(time.Now(), "tok"))

	require.Equal(t, []int32{1}, foldResponse(t, w, pb.ListenResponse{
		Filter: &pb.ExistenceFilter{TargetID: 1, Count: 5}}))
	require.Empty(t, state.Documents)
	require.Empty(t, state.ResumeToken)

	// The REMOVE acknowledging the deliberate resync is not a removal.
	foldResponse(t, w, pb.ListenResponse{TargetChange: &pb.TargetChange{
		Type: pb.TargetRemove, TargetIDs: []int32{1}}})
	require.Nil(t, state.Removed)
}

func TestWatcherExistenceFilterOverride(t *testing.T) {
	var w = newFoldWatcher(t)

	var mismatched []int32
	w.OnFilterMismatch = func(targetID int32) { mismatched = append(mismatched, targetID) }

	foldResponse(t, w, pb.ListenResponse{DocumentChange: &pb.DocumentChange{
		Document: watchDoc("alice", 1), TargetIDs: []int32{1}}})
	foldResponse(t, w, boundary(time.Now(), "tok"))

	// The override observes the mismatch. No resync is requested, and local
	// state is retained.
	require.Empty(t, foldResponse(t, w, pb.ListenResponse{
		Filter: &pb.ExistenceFilter{TargetID: 1, Count: 3}}))
	require.Equal(t, []int32{1}, mismatched)
	require.Len(t, w.Targets[1].Documents, 1)
}

// scriptedDocstore stubs DocstoreClient with a scripted Listen stream.
type scriptedDocstore struct {
	pb.DocstoreClient
	stream *scriptedListenClient
}

func (d *scriptedDocstore) Listen(context.Context, ...grpc.CallOption) (pb.Docstore_ListenClient, error) {
	return d.stream, nil
}

type scriptedListenClient struct {
	grpc.ClientStream
	resps []*pb.ListenResponse
	err   error
}

func (s *scriptedListenClient) Send(*pb.ListenRequest) error { return nil }
func (s *scriptedListenClient) Recv() (*pb.ListenResponse, error) {
	if len(s.resps) == 0 {
		return nil, s.err
	}
	var r = s.resps[0]
	s.resps = s.resps[1:]
	return r, nil
}

func TestWatcherStreamProgressResetsBackoff(t *testing.T) {
	var errBroke = errors.New("stream broke")
	var stream = &scriptedListenClient{err: errBroke}

	var w = NewWatcher(&scriptedDocstore{stream: stream}, "databases/db")
	require.NoError(t, w.AddTarget(pb.Target{
		TargetID: 1,
		Selector: pb.QueryTarget{
			Parent: watchParent,
			Query: pb.StructuredQuery{
				From: []pb.CollectionSelector{{CollectionID: "users"}},
			},
		},
	}))

	// A stream which breaks before producing a response is not progress.
	var progressed, err = w.serveStream(context.Background())
	require.False(t, progressed)
	require.Equal(t, errBroke, err)

	// One which produced a response before breaking is. Its break restarts
	// retry backoff from scratch rather than deepening it.
	stream.resps = []*pb.ListenResponse{
		{TargetChange: &pb.TargetChange{Type: pb.TargetNoChange, ResumeToken: []byte("tok")}},
	}
	progressed, err = w.serveStream(context.Background())
	require.True(t, progressed)
	require.Equal(t, errBroke, err)
}
