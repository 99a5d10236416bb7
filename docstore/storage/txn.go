package storage

import (
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	pb "go.scrivodb.dev/core/docstore/protocol"
	"go.scrivodb.dev/core/metrics"
)

// terminatedTokenCacheSize bounds the cache of recently terminated
// transaction tokens, which distinguishes reuse of a terminated token
// (invalid-argument) from a token never issued (not-found).
const terminatedTokenCacheSize = 4096

// Txn is an active transaction: a pinned snapshot read time, plus the set
// of documents read through it. A read-write Txn validates its read set at
// commit; a read-only Txn may not commit writes.
type Txn struct {
	token    []byte
	readTime time.Time
	readOnly bool

	mu    sync.Mutex
	reads ReadSet
}

// Token returns the opaque token which names the Txn.
func (t *Txn) Token() []byte { return t.token }

// ReadTime returns the Txn's snapshot read time.
func (t *Txn) ReadTime() time.Time { return t.readTime }

// ReadOnly returns whether the Txn may commit writes.
func (t *Txn) ReadOnly() bool { return t.readOnly }

// RecordRead notes that |path| was read through the Txn, observing
// |updateTime| (the zero time if the document did not exist). The first
// recorded observation of a path wins.
func (t *Txn) RecordRead(path string, updateTime time.Time) {
	if t.readOnly {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.reads[path]; !ok {
		t.reads[path] = updateTime
	}
}

// Transactions issues, resolves and terminates transaction tokens against
// a Store. Tokens are single terminal use: Commit and Rollback each
// terminate the token whether or not they succeed.
type Transactions struct {
	store *Store

	mu     sync.Mutex
	active map[string]*Txn
	// done caches tokens of recently terminated transactions.
	done *lru.Cache
}

// NewTransactions returns a Transactions coordinator over |store|.
func NewTransactions(store *Store) *Transactions {
	var done, err = lru.New(terminatedTokenCacheSize)
	if err != nil {
		panic(err) // Size is a positive constant.
	}
	return &Transactions{
		store:  store,
		active: make(map[string]*Txn),
		done:   done,
	}
}

// Begin starts a transaction under |opts| and returns it. A nil |opts|
// begins a read-write transaction at the current snapshot.
func (c *Transactions) Begin(opts *pb.TransactionOptions) (*Txn, error) {
	var txn = &Txn{
		token:    newTxnToken(),
		readTime: c.store.ReadTime(),
		reads:    make(ReadSet),
	}

	if opts != nil {
		switch m := opts.Mode.(type) {
		case pb.ReadOnly:
			txn.readOnly = true
			if m.ReadTime != nil {
				if err := c.store.CheckReadTime(*m.ReadTime); err != nil {
					return nil, err
				}
				txn.readTime = *m.ReadTime
			}
		case pb.ReadWrite:
			// A chained retry terminates its prior attempt. The prior token
			// may itself already be terminated; that is not an error.
			if len(m.RetryTransaction) != 0 {
				c.terminate(m.RetryTransaction)
			}
		}
	}

	c.mu.Lock()
	c.active[string(txn.token)] = txn
	c.mu.Unlock()

	metrics.TxnBegunTotal.Inc()
	return txn, nil
}

// Resolve maps |token| to its active Txn. A terminated token is
// invalid-argument; a token never issued is not-found.
func (c *Transactions) Resolve(token []byte) (*Txn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if txn, ok := c.active[string(token)]; ok {
		return txn, nil
	} else if _, ok = c.done.Get(string(token)); ok {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument,
			"transaction has already been committed or rolled back")
	}
	return nil, pb.NewStatusError(pb.StatusNotFound, "no such transaction")
}

// Commit terminates the transaction of |token| and atomically applies
// |writes|, validating the transaction's read set. The token is terminal
// after Commit returns, whether or not the commit succeeded.
func (c *Transactions) Commit(token []byte, writes []pb.Write) (*pb.CommitResponse, error) {
	var txn, err = c.Resolve(token)
	if err != nil {
		return nil, err
	}
	c.terminate(token)

	if txn.readOnly && len(writes) != 0 {
		return nil, pb.NewStatusError(pb.StatusInvalidArgument,
			"cannot commit writes under a read-only transaction")
	}
	if len(writes) == 0 {
		return &pb.CommitResponse{CommitTime: c.store.ReadTime()}, nil
	}

	txn.mu.Lock()
	var reads = txn.reads
	txn.mu.Unlock()

	return c.store.Commit(writes, reads)
}

// Rollback terminates the transaction of |token| without applying writes.
func (c *Transactions) Rollback(token []byte) error {
	var _, err = c.Resolve(token)
	if err != nil {
		return err
	}
	c.terminate(token)
	metrics.TxnRollbackTotal.Inc()
	return nil
}

func (c *Transactions) terminate(token []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[string(token)]; ok {
		delete(c.active, string(token))
		c.done.Add(string(token), struct{}{})
	}
}

func newTxnToken() []byte {
	var id = uuid.New()
	return id[:]
}
