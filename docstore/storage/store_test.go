package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pb "go.scrivodb.dev/core/docstore/protocol"
)

// testClock is a manually advanced clock for deterministic commit times.
type testClock struct{ now time.Time }

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time       { return c.now }
func (c *testClock) Tick(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore() (*Store, *testClock) {
	var clock = newTestClock()
	var store = NewStore()
	store.clock = clock.Now
	return store, clock
}

func docPath(id string) string { return "databases/db/documents/users/" + id }

func putDoc(t *testing.T, store *Store, path string, fields pb.MapValue) time.Time {
	t.Helper()
	var resp, err = store.Commit([]pb.Write{
		{Op: pb.WriteUpdate{Doc: pb.Document{Name: path, Fields: fields}}},
	}, nil)
	require.NoError(t, err)
	return resp.CommitTime
}

func TestStoreBasicWriteAndRead(t *testing.T) {
	var store, clock = newTestStore()

	var commitTime = putDoc(t, store, docPath("alice"),
		pb.MapValue{"name": pb.StringValue("alice")})
	clock.Tick(time.Second)

	var doc, err = store.GetAt(docPath("alice"), store.ReadTime())
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Equal(t, docPath("alice"), doc.Name)
	require.Equal(t, pb.StringValue("alice"), doc.Fields["name"])
	require.Equal(t, commitTime, doc.CreateTime)
	require.Equal(t, commitTime, doc.UpdateTime)

	// Reads predating the document observe its absence.
	doc, err = store.GetAt(docPath("alice"), commitTime.Add(-time.Microsecond))
	require.NoError(t, err)
	require.Nil(t, doc)

	// An unknown path is (nil, nil).
	doc, err = store.GetAt(docPath("nobody"), store.ReadTime())
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestStoreMultiversionReads(t *testing.T) {
	var store, clock = newTestStore()

	var t1 = putDoc(t, store, docPath("alice"), pb.MapValue{"v": pb.IntegerValue(1)})
	clock.Tick(time.Second)
	var t2 = putDoc(t, store, docPath("alice"), pb.MapValue{"v": pb.IntegerValue(2)})
	clock.Tick(time.Second)

	// Each snapshot observes the revision current at its read time.
	var doc, _ = store.GetAt(docPath("alice"), t1)
	require.Equal(t, pb.IntegerValue(1), doc.Fields["v"])
	doc, _ = store.GetAt(docPath("alice"), t2)
	require.Equal(t, pb.IntegerValue(2), doc.Fields["v"])

	// CreateTime is preserved across updates.
	require.Equal(t, t1, doc.CreateTime)
	require.Equal(t, t2, doc.UpdateTime)

	// A deletion is a tombstone revision: current reads miss, prior reads hit.
	_, err := store.Commit([]pb.Write{{Op: pb.WriteDelete{Name: docPath("alice")}}}, nil)
	require.NoError(t, err)

	doc, _ = store.GetAt(docPath("alice"), store.ReadTime())
	require.Nil(t, doc)
	doc, _ = store.GetAt(docPath("alice"), t2)
	require.NotNil(t, doc)
}

func TestStoreCommitTimesStrictlyIncrease(t *testing.T) {
	var store, _ = newTestStore()

	// Without clock ticks, commit times still strictly increase.
	var prior time.Time
	for i := 0; i != 5; i++ {
		var commitTime = putDoc(t, store, docPath("alice"),
			pb.MapValue{"i": pb.IntegerValue(int64(i))})
		require.True(t, commitTime.After(prior))
		prior = commitTime
	}
	require.False(t, store.ReadTime().Before(prior))
}

func TestStoreIssuedReadTimesAreStableSnapshots(t *testing.T) {
	var store, _ = newTestStore()

	// With a halted clock, a commit following an issued snapshot would land
	// in the same truncated microsecond. It must land strictly after.
	var snap = store.ReadTime()
	var commitTime = putDoc(t, store, docPath("alice"),
		pb.MapValue{"v": pb.IntegerValue(1)})
	require.True(t, commitTime.After(snap))

	// The snapshot stays fixed: it does not observe the commit, and the
	// commit log reports the commit as strictly after it.
	var doc, err = store.GetAt(docPath("alice"), snap)
	require.NoError(t, err)
	require.Nil(t, doc)

	var commits, ok = store.LogSince(snap)
	require.True(t, ok)
	require.Len(t, commits, 1)
	require.Equal(t, commitTime, commits[0].Time)

	// A snapshot issued after the commit observes it.
	doc, err = store.GetAt(docPath("alice"), store.ReadTime())
	require.NoError(t, err)
	require.NotNil(t, doc)
}

func TestStoreMaskedUpdate(t *testing.T) {
	var store, clock = newTestStore()

	putDoc(t, store, docPath("alice"), pb.MapValue{
		"name": pb.StringValue("alice"),
		"age":  pb.IntegerValue(30),
	})
	clock.Tick(time.Second)

	// The mask replaces named paths present in the update, and deletes named
	// paths which are absent. Unnamed fields are untouched.
	var _, err = store.Commit([]pb.Write{{
		Op: pb.WriteUpdate{
			Doc: pb.Document{Name: docPath("alice"), Fields: pb.MapValue{
				"age":   pb.IntegerValue(31),
				"other": pb.StringValue("ignored"),
			}},
			Mask: &pb.DocumentMask{FieldPaths: []string{"age", "nickname"}},
		},
	}}, nil)
	require.NoError(t, err)

	var doc, _ = store.GetAt(docPath("alice"), store.ReadTime())
	require.Equal(t, pb.MapValue{
		"name": pb.StringValue("alice"),
		"age":  pb.IntegerValue(31),
	}, doc.Fields)
}

func TestStoreTransforms(t *testing.T) {
	var store, _ = newTestStore()

	putDoc(t, store, docPath("alice"), pb.MapValue{
		"tags": pb.ArrayValue{pb.StringValue("a"), pb.StringValue("b")},
	})

	var resp, err = store.Commit([]pb.Write{{
		Op: pb.WriteTransform{
			Name: docPath("alice"),
			Transforms: []pb.FieldTransform{
				{FieldPath: "updatedAt", Op: pb.SetToServerValue(pb.ServerValueRequestTime)},
				// Union semantics: "b" is already present and is not duplicated.
				{FieldPath: "tags", Op: pb.AppendMissingElements{
					pb.StringValue("b"), pb.StringValue("c"), pb.StringValue("c")}},
				{FieldPath: "tags", Op: pb.RemoveAllFromArray{pb.StringValue("a")}},
			},
		},
	}}, nil)
	require.NoError(t, err)

	// Transform results arrive in transform order, reflecting sequential
	// application.
	require.Len(t, resp.WriteResults, 1)
	var results = resp.WriteResults[0].TransformResults
	require.Len(t, results, 3)
	require.Equal(t, pb.TimeValue(resp.CommitTime), results[0])
	require.Equal(t, pb.ArrayValue{
		pb.StringValue("a"), pb.StringValue("b"), pb.StringValue("c")}, results[1])
	require.Equal(t, pb.ArrayValue{
		pb.StringValue("b"), pb.StringValue("c")}, results[2])

	var doc, _ = store.GetAt(docPath("alice"), store.ReadTime())
	require.Equal(t, pb.ArrayValue{pb.StringValue("b"), pb.StringValue("c")}, doc.Fields["tags"])
	require.Equal(t, pb.TimeValue(resp.CommitTime), doc.Fields["updatedAt"])

	// A transform against a missing document creates it.
	resp, err = store.Commit([]pb.Write{{
		Op: pb.WriteTransform{
			Name: docPath("bob"),
			Transforms: []pb.FieldTransform{
				{FieldPath: "tags", Op: pb.AppendMissingElements{pb.StringValue("x")}},
			},
		},
	}}, nil)
	require.NoError(t, err)

	doc, _ = store.GetAt(docPath("bob"), store.ReadTime())
	require.NotNil(t, doc)
	require.Equal(t, resp.CommitTime, doc.CreateTime)
}

func TestStoreBatchIsOrderedAndAtomic(t *testing.T) {
	var store, _ = newTestStore()

	// Later writes of a batch observe the staged effects of earlier ones.
	var resp, err = store.Commit([]pb.Write{
		{Op: pb.WriteUpdate{Doc: pb.Document{Name: docPath("alice"), Fields: pb.MapValue{
			"n": pb.IntegerValue(1),
		}}}},
		{Op: pb.WriteTransform{Name: docPath("alice"), Transforms: []pb.FieldTransform{
			{FieldPath: "tags", Op: pb.AppendMissingElements{pb.StringValue("x")}},
		}}},
		{Op: pb.WriteDelete{Name: docPath("bob")}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, resp.WriteResults, 3)

	var doc, _ = store.GetAt(docPath("alice"), resp.CommitTime)
	require.Equal(t, pb.IntegerValue(1), doc.Fields["n"])
	require.Equal(t, pb.ArrayValue{pb.StringValue("x")}, doc.Fields["tags"])

	// All writes of the batch share one commit time.
	require.Equal(t, resp.CommitTime, doc.CreateTime)
	require.Equal(t, resp.CommitTime, resp.WriteResults[0].UpdateTime)
	require.Equal(t, resp.CommitTime, resp.WriteResults[2].UpdateTime)
}

func TestStorePreconditionsRejectWholeBatch(t *testing.T) {
	var store, clock = newTestStore()

	var updateTime = putDoc(t, store, docPath("alice"), pb.MapValue{"v": pb.IntegerValue(1)})
	clock.Tick(time.Second)

	// The second write's precondition fails: the first write must not apply.
	var exists = true
	var _, err = store.Commit([]pb.Write{
		{Op: pb.WriteUpdate{Doc: pb.Document{Name: docPath("alice"), Fields: pb.MapValue{
			"v": pb.IntegerValue(2),
		}}}},
		{
			Op:              pb.WriteDelete{Name: docPath("bob")},
			CurrentDocument: &pb.Precondition{Exists: &exists},
		},
	}, nil)
	require.Equal(t, pb.StatusFailedPrecondition, pb.StatusOf(err))

	var doc, _ = store.GetAt(docPath("alice"), store.ReadTime())
	require.Equal(t, pb.IntegerValue(1), doc.Fields["v"])

	// Exists preconditions.
	var notExists = false
	_, err = store.Commit([]pb.Write{{
		Op:              pb.WriteUpdate{Doc: pb.Document{Name: docPath("alice")}},
		CurrentDocument: &pb.Precondition{Exists: &notExists},
	}}, nil)
	require.Equal(t, pb.StatusFailedPrecondition, pb.StatusOf(err))

	// UpdateTime preconditions match exactly.
	var wrongTime = updateTime.Add(time.Microsecond)
	_, err = store.Commit([]pb.Write{{
		Op:              pb.WriteDelete{Name: docPath("alice")},
		CurrentDocument: &pb.Precondition{UpdateTime: &wrongTime},
	}}, nil)
	require.Equal(t, pb.StatusFailedPrecondition, pb.StatusOf(err))

	_, err = store.Commit([]pb.Write{{
		Op:              pb.WriteDelete{Name: docPath("alice")},
		CurrentDocument: &pb.Precondition{UpdateTime: &updateTime},
	}}, nil)
	require.NoError(t, err)
}

func TestStorePreconditionsObservePreCommitState(t *testing.T) {
	var store, _ = newTestStore()

	// A precondition of a later write is not satisfied by an earlier write of
	// the same batch.
	var exists = true
	var _, err = store.Commit([]pb.Write{
		{Op: pb.WriteUpdate{Doc: pb.Document{Name: docPath("alice")}}},
		{
			Op:              pb.WriteUpdate{Doc: pb.Document{Name: docPath("alice")}},
			CurrentDocument: &pb.Precondition{Exists: &exists},
		},
	}, nil)
	require.Equal(t, pb.StatusFailedPrecondition, pb.StatusOf(err))
}

func TestStoreReadSetConflicts(t *testing.T) {
	var store, clock = newTestStore()

	var readTime = putDoc(t, store, docPath("alice"), pb.MapValue{"v": pb.IntegerValue(1)})
	clock.Tick(time.Second)

	// A matching read set commits.
	var _, err = store.Commit([]pb.Write{
		{Op: pb.WriteUpdate{Doc: pb.Document{Name: docPath("alice"), Fields: pb.MapValue{
			"v": pb.IntegerValue(2),
		}}}},
	}, ReadSet{docPath("alice"): readTime})
	require.NoError(t, err)
	clock.Tick(time.Second)

	// The document moved: a read set pinned to the old update time aborts.
	_, err = store.Commit([]pb.Write{
		{Op: pb.WriteDelete{Name: docPath("alice")}},
	}, ReadSet{docPath("alice"): readTime})
	require.Equal(t, pb.StatusAborted, pb.StatusOf(err))

	// An observed absence conflicts with a since-created document.
	_, err = store.Commit([]pb.Write{
		{Op: pb.WriteDelete{Name: docPath("alice")}},
	}, ReadSet{docPath("alice"): {}})
	require.Equal(t, pb.StatusAborted, pb.StatusOf(err))

	// An observed absence of a still-absent document is consistent.
	_, err = store.Commit([]pb.Write{
		{Op: pb.WriteUpdate{Doc: pb.Document{Name: docPath("bob")}}},
	}, ReadSet{docPath("bob"): {}})
	require.NoError(t, err)
}

func TestStoreAscendAndAscendPaths(t *testing.T) {
	var store, _ = newTestStore()

	putDoc(t, store, docPath("alice"), pb.MapValue{})
	putDoc(t, store, docPath("bob"), pb.MapValue{})
	putDoc(t, store, docPath("alice")+"/posts/1", pb.MapValue{})
	_, err := store.Commit([]pb.Write{{Op: pb.WriteDelete{Name: docPath("bob")}}}, nil)
	require.NoError(t, err)

	var names []string
	store.Ascend("databases/db/documents/users/", store.ReadTime(), func(doc pb.Document) bool {
		names = append(names, doc.Name)
		return true
	})
	require.Equal(t, []string{docPath("alice"), docPath("alice") + "/posts/1"}, names)

	// AscendPaths additionally surfaces tombstoned paths.
	var paths = make(map[string]bool)
	store.AscendPaths("databases/db/documents/users/", store.ReadTime(), func(path string, exists bool) bool {
		paths[path] = exists
		return true
	})
	require.Equal(t, map[string]bool{
		docPath("alice"):               true,
		docPath("alice") + "/posts/1": true,
		docPath("bob"):                 false,
	}, paths)
}

func TestStoreWatchAndLogSince(t *testing.T) {
	var store, clock = newTestStore()

	var watched []Commit
	var cancel = store.Watch(func(c Commit) { watched = append(watched, c) })

	var t1 = putDoc(t, store, docPath("alice"), pb.MapValue{"v": pb.IntegerValue(1)})
	clock.Tick(time.Second)
	var t2 = putDoc(t, store, docPath("bob"), pb.MapValue{"v": pb.IntegerValue(2)})

	require.Len(t, watched, 2)
	require.Equal(t, t1, watched[0].Time)
	require.Equal(t, docPath("alice"), watched[0].Changes[0].Path)
	require.False(t, watched[0].Changes[0].Existed)
	require.NotNil(t, watched[0].Changes[0].Doc)

	cancel()
	putDoc(t, store, docPath("carol"), pb.MapValue{})
	require.Len(t, watched, 2)

	// LogSince returns commits strictly after the position.
	var commits, ok = store.LogSince(t1)
	require.True(t, ok)
	require.Len(t, commits, 2)
	require.Equal(t, t2, commits[0].Time)

	commits, ok = store.LogSince(store.ReadTime())
	require.True(t, ok)
	require.Empty(t, commits)
}

func TestStoreLogPruning(t *testing.T) {
	var store, clock = newTestStore()
	store.horizon = 4

	var first = putDoc(t, store, docPath("alice"), pb.MapValue{"i": pb.IntegerValue(0)})
	for i := 1; i != 10; i++ {
		clock.Tick(time.Millisecond)
		putDoc(t, store, docPath("alice"), pb.MapValue{"i": pb.IntegerValue(int64(i))})
	}

	// The pruned position can no longer be served incrementally.
	var _, ok = store.LogSince(first)
	require.False(t, ok)

	// A position within the retained log can.
	var commits, ok2 = store.LogSince(store.ReadTime().Add(-time.Millisecond))
	require.True(t, ok2)
	require.Len(t, commits, 1)
}

func TestStoreDeleteOfMissingDocumentIsNoChange(t *testing.T) {
	var store, _ = newTestStore()

	// The delete commits and logs a change of a still-missing document.
	var resp, err = store.Commit([]pb.Write{{Op: pb.WriteDelete{Name: docPath("ghost")}}}, nil)
	require.NoError(t, err)

	var commits, ok = store.LogSince(resp.CommitTime.Add(-time.Microsecond))
	require.True(t, ok)
	require.Len(t, commits, 1)
	require.Equal(t, DocChange{Path: docPath("ghost")}, commits[0].Changes[0])
}
