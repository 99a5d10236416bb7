package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for scrivo metrics.
const (
	Fail    = "fail"
	Ok      = "ok"
	Aborted = "aborted"
)

// Collectors for the docstore coordination core.
var (
	CommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scrivo_commits_total",
		Help: "Cumulative number of commit attempts, by outcome.",
	}, []string{"status"})
	TxnBegunTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scrivo_txn_begun_total",
		Help: "Cumulative number of transactions begun.",
	})
	TxnRollbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scrivo_txn_rollback_total",
		Help: "Cumulative number of transactions rolled back.",
	})
	QueryDocumentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scrivo_query_documents_total",
		Help: "Cumulative number of documents streamed by queries.",
	})
	ListenTargets = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scrivo_listen_targets",
		Help: "Current number of live Listen targets across all streams.",
	})
	ListenEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scrivo_listen_events_total",
		Help: "Cumulative number of Listen stream events sent, by kind.",
	}, []string{"kind"})
	WriteStreamResumesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scrivo_write_stream_resumes_total",
		Help: "Cumulative number of Write streams resumed from a stream token.",
	})
	WriteStreamClosedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scrivo_write_stream_closed_total",
		Help: "Cumulative number of Write streams closed, by cause.",
	}, []string{"cause"})
)

// DocstoreCollectors returns the collectors of the docstore service.
func DocstoreCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		CommitsTotal,
		TxnBegunTotal,
		TxnRollbackTotal,
		QueryDocumentsTotal,
		ListenTargets,
		ListenEventsTotal,
		WriteStreamResumesTotal,
		WriteStreamClosedTotal,
	}
}
