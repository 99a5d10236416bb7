package docstore

import (
	"sync"
	"time"

	pb "go.scrivodb.dev/core/docstore/protocol"
	"go.scrivodb.dev/core/docstore/storage"
)

// Config configures tunable behaviors of a Service.
type Config struct {
	// HeartbeatInterval is the period between NO_CHANGE heartbeats of idle
	// Listen streams. Each heartbeat carries a fresh resume token, keeping
	// client resume positions inside the commit-log horizon.
	HeartbeatInterval time.Duration
	// FilterInterval is the period between ExistenceFilter emissions for
	// long-lived query targets.
	FilterInterval time.Duration
	// MaxUnackedResponses bounds the number of un-acknowledged responses a
	// Write stream may accumulate before it is closed with
	// RESOURCE_EXHAUSTED.
	MaxUnackedResponses int
	// DefaultPageSize is the page size of paginated list APIs when the
	// request leaves it unset.
	DefaultPageSize int32
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:   time.Second * 15,
		FilterInterval:      time.Minute,
		MaxUnackedResponses: 10,
		DefaultPageSize:     100,
	}
}

// Service is the top-level runtime concern of a Scrivo docstore process. It
// owns the multiversion document store and transaction coordinator of a
// single database, and is an implementation of protocol.DocstoreServer.
type Service struct {
	database string
	store    *storage.Store
	txns     *storage.Transactions
	cfg      Config

	// mu guards writeStreams.
	mu sync.Mutex
	// writeStreams indexes resumable Write stream sessions on stream id.
	writeStreams map[string]*writeStream
}

// NewService constructs a Service of database |database| over |store|.
func NewService(database string, store *storage.Store, cfg Config) *Service {
	return &Service{
		database:     database,
		store:        store,
		txns:         storage.NewTransactions(store),
		cfg:          cfg,
		writeStreams: make(map[string]*writeStream),
	}
}

// Store returns the Service's document store.
func (svc *Service) Store() *storage.Store { return svc.store }

// checkDatabase requires that |database| names the database this Service
// serves.
func (svc *Service) checkDatabase(database string) error {
	if database != svc.database {
		return pb.NewStatusError(pb.StatusNotFound,
			"no such database (%s; this process serves %s)", database, svc.database)
	}
	return nil
}

// resolveReadTime maps the mutually-exclusive consistency selectors of a
// read to its effective read time, and to its transaction (if any).
// Reads under a transaction are recorded into its read set by the caller.
func (svc *Service) resolveReadTime(txnToken []byte, readTime *time.Time) (time.Time, *storage.Txn, error) {
	switch {
	case len(txnToken) != 0:
		var txn, err = svc.txns.Resolve(txnToken)
		if err != nil {
			return time.Time{}, nil, err
		}
		return txn.ReadTime(), txn, nil
	case readTime != nil:
		if err := svc.store.CheckReadTime(*readTime); err != nil {
			return time.Time{}, nil, err
		}
		return *readTime, nil, nil
	default:
		return svc.store.ReadTime(), nil, nil
	}
}

func instrumentDocstoreRPC(op string, err *error) func() {
	docstoreServerStarted.WithLabelValues(op).Inc()

	return func() {
		var status = "ok"
		if *err != nil {
			status = pb.StatusOf(*err).String()
		}
		docstoreServerCompleted.WithLabelValues(op, status).Inc()
	}
}
