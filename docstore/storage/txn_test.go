package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pb "go.scrivodb.dev/core/docstore/protocol"
)

func TestTxnBeginModes(t *testing.T) {
	var store, clock = newTestStore()
	var txns = NewTransactions(store)

	// Default: read-write at the current snapshot.
	var txn, err = txns.Begin(nil)
	require.NoError(t, err)
	require.False(t, txn.ReadOnly())
	require.NotEmpty(t, txn.Token())
	require.False(t, txn.ReadTime().IsZero())

	// Read-only at the current snapshot.
	txn, err = txns.Begin(&pb.TransactionOptions{Mode: pb.ReadOnly{}})
	require.NoError(t, err)
	require.True(t, txn.ReadOnly())

	// Read-only at an explicit past read time.
	var past = clock.Now().Add(-time.Minute)
	txn, err = txns.Begin(&pb.TransactionOptions{Mode: pb.ReadOnly{ReadTime: &past}})
	require.NoError(t, err)
	require.Equal(t, past, txn.ReadTime())

	// An explicit read time beyond the staleness bound is rejected.
	var stale = clock.Now().Add(-pb.MaxReadStaleness - time.Minute)
	_, err = txns.Begin(&pb.TransactionOptions{Mode: pb.ReadOnly{ReadTime: &stale}})
	require.Equal(t, pb.StatusInvalidArgument, pb.StatusOf(err))

	// Each Begin issues a distinct token.
	var a, _ = txns.Begin(nil)
	var b, _ = txns.Begin(nil)
	require.NotEqual(t, a.Token(), b.Token())
}

func TestTxnTokensAreSingleTerminalUse(t *testing.T) {
	var store, _ = newTestStore()
	var txns = NewTransactions(store)

	var txn, _ = txns.Begin(nil)

	// The token resolves while active.
	var resolved, err = txns.Resolve(txn.Token())
	require.NoError(t, err)
	require.Equal(t, txn, resolved)

	// Commit terminates the token. Further uses are invalid-argument.
	_, err = txns.Commit(txn.Token(), nil)
	require.NoError(t, err)

	_, err = txns.Resolve(txn.Token())
	require.EqualError(t, err, "transaction has already been committed or rolled back")
	require.Equal(t, pb.StatusInvalidArgument, pb.StatusOf(err))

	err = txns.Rollback(txn.Token())
	require.EqualError(t, err, "transaction has already been committed or rolled back")

	// A token which was never issued is not-found.
	_, err = txns.Resolve([]byte("bogus"))
	require.EqualError(t, err, "no such transaction")
	require.Equal(t, pb.StatusNotFound, pb.StatusOf(err))

	// Rollback likewise terminates.
	txn, _ = txns.Begin(nil)
	require.NoError(t, txns.Rollback(txn.Token()))
	_, err = txns.Resolve(txn.Token())
	require.EqualError(t, err, "transaction has already been committed or rolled back")
}

func TestTxnReadOnlyRejectsWrites(t *testing.T) {
	var store, _ = newTestStore()
	var txns = NewTransactions(store)

	var txn, _ = txns.Begin(&pb.TransactionOptions{Mode: pb.ReadOnly{}})

	var _, err = txns.Commit(txn.Token(), []pb.Write{
		{Op: pb.WriteDelete{Name: docPath("alice")}},
	})
	require.EqualError(t, err, "cannot commit writes under a read-only transaction")
	require.Equal(t, pb.StatusInvalidArgument, pb.StatusOf(err))

	// The failed commit still terminated the token.
	_, err = txns.Resolve(txn.Token())
	require.EqualError(t, err, "transaction has already been committed or rolled back")

	// An empty commit of a read-only transaction succeeds.
	txn, _ = txns.Begin(&pb.TransactionOptions{Mode: pb.ReadOnly{}})
	var resp, err2 = txns.Commit(txn.Token(), nil)
	require.NoError(t, err2)
	require.False(t, resp.CommitTime.IsZero())
}

func TestTxnCommitValidatesReadSet(t *testing.T) {
	var store, clock = newTestStore()
	var txns = NewTransactions(store)

	var readTime = putDoc(t, store, docPath("alice"), pb.MapValue{"v": pb.IntegerValue(1)})
	clock.Tick(time.Second)

	var txn, _ = txns.Begin(nil)
	txn.RecordRead(docPath("alice"), readTime)

	// A concurrent commit moves the document out from under the transaction.
	putDoc(t, store, docPath("alice"), pb.MapValue{"v": pb.IntegerValue(2)})
	clock.Tick(time.Second)

	var _, err = txns.Commit(txn.Token(), []pb.Write{
		{Op: pb.WriteUpdate{Doc: pb.Document{Name: docPath("alice"), Fields: pb.MapValue{
			"v": pb.IntegerValue(3),
		}}}},
	})
	require.Equal(t, pb.StatusAborted, pb.StatusOf(err))

	// Retry: chain a new transaction from the aborted token, re-read, commit.
	txn, _ = txns.Begin(&pb.TransactionOptions{
		Mode: pb.ReadWrite{RetryTransaction: txn.Token()},
	})
	var doc, _ = store.GetAt(docPath("alice"), txn.ReadTime())
	txn.RecordRead(docPath("alice"), doc.UpdateTime)

	var resp, err2 = txns.Commit(txn.Token(), []pb.Write{
		{Op: pb.WriteUpdate{Doc: pb.Document{Name: docPath("alice"), Fields: pb.MapValue{
			"v": pb.IntegerValue(3),
		}}}},
	})
	require.NoError(t, err2)

	doc, _ = store.GetAt(docPath("alice"), resp.CommitTime)
	require.Equal(t, pb.IntegerValue(3), doc.Fields["v"])
}

func TestTxnRetryChainTerminatesPriorAttempt(t *testing.T) {
	var store, _ = newTestStore()
	var txns = NewTransactions(store)

	var prior, _ = txns.Begin(nil)
	var next, err = txns.Begin(&pb.TransactionOptions{
		Mode: pb.ReadWrite{RetryTransaction: prior.Token()},
	})
	require.NoError(t, err)

	// The prior attempt's token is terminal.
	_, err = txns.Resolve(prior.Token())
	require.EqualError(t, err, "transaction has already been committed or rolled back")

	// Chaining from an already-terminated token is not an error.
	var another, err2 = txns.Begin(&pb.TransactionOptions{
		Mode: pb.ReadWrite{RetryTransaction: prior.Token()},
	})
	require.NoError(t, err2)

	require.NoError(t, txns.Rollback(next.Token()))
	require.NoError(t, txns.Rollback(another.Token()))
}

func TestTxnRecordReadFirstObservationWins(t *testing.T) {
	var store, clock = newTestStore()
	var txns = NewTransactions(store)

	var readTime = putDoc(t, store, docPath("alice"), pb.MapValue{"v": pb.IntegerValue(1)})
	clock.Tick(time.Second)

	var txn, _ = txns.Begin(nil)
	txn.RecordRead(docPath("alice"), readTime)

	// A later, differing observation of the same path does not displace the
	// first: the commit below validates against |readTime| and succeeds.
	txn.RecordRead(docPath("alice"), readTime.Add(time.Hour))

	var _, err = txns.Commit(txn.Token(), []pb.Write{
		{Op: pb.WriteUpdate{Doc: pb.Document{Name: docPath("alice")}}},
	})
	require.NoError(t, err)
}

func TestTxnReadOnlyIgnoresRecordedReads(t *testing.T) {
	var store, _ = newTestStore()
	var txns = NewTransactions(store)

	var txn, _ = txns.Begin(&pb.TransactionOptions{Mode: pb.ReadOnly{}})
	txn.RecordRead(docPath("alice"), time.Time{})

	// Read-only transactions carry no read set and commit empty.
	var resp, err = txns.Commit(txn.Token(), nil)
	require.NoError(t, err)
	require.NotNil(t, resp)
}
