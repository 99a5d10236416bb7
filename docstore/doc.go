// Package docstore implements the document database runtime and
// protocol.DocstoreServer APIs (GetDocument, ListDocuments, CreateDocument,
// UpdateDocument, DeleteDocument, BatchGetDocuments, BeginTransaction,
// Commit, Rollback, RunQuery, Write, Listen, ListCollectionIds). Its
// `writeFSM` type manages the coordination of streaming write sessions, and
// `listenFSM` the multiplexing of watch targets onto Listen streams.
package docstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	docstoreServerStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrivo_docstore_server_started_totals",
		Help: "Total number of started DocstoreServer RPC invocations, by operation.",
	}, []string{"operation"})
	docstoreServerCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrivo_docstore_server_completed_totals",
		Help: "Total number of completed DocstoreServer RPC invocations, by operation & response status.",
	}, []string{"operation", "status"})
)
