package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed emails",
		},
	)

	RowsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_rows_skipped_total",
			Help: "Total dataset rows skipped for missing recipient email",
		},
	)

	BatchesDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_dispatched_total",
			Help: "Total bulk dispatch batches run to completion",
		},
	)
)

func Init() {
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailFailures)
	prometheus.MustRegister(RowsSkipped)
	prometheus.MustRegister(BatchesDispatched)
}
