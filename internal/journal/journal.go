// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package journal tracks the adaptor's own operational counters: push
// successes and failures by class, the wall-clock time of the last
// successful full push, and per-DocId content-serving latency. It is
// the library's single shared-state component explicitly designed for
// high-concurrency update from many goroutines at once, hence atomics
// throughout and a Prometheus histogram (itself internally sharded)
// rather than a hand-rolled striped bucket array.
package journal

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Journal accumulates counters and a latency histogram for one
// Controller instance. The zero value is not usable; construct with
// New.
type Journal struct {
	successCount           atomic.Int64
	recordsPushed          atomic.Int64
	transientFailureCount  atomic.Int64
	permanentFailureCount  atomic.Int64
	lastFullPush           atomic.Pointer[time.Time]

	serveLatency *prometheus.HistogramVec
}

// New constructs a Journal whose content-serve latency histogram is
// registered under reg (pass prometheus.DefaultRegisterer in
// production, a fresh prometheus.NewRegistry() in tests to avoid
// duplicate-registration panics across test runs).
func New(reg prometheus.Registerer) *Journal {
	j := &Journal{}
	j.serveLatency = promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adaptorlib_doc_serve_duration_seconds",
			Help:    "Time spent serving one document content request, by outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	return j
}

// RecordSuccess marks a successful push of n records and advances the
// last-full-push timestamp.
func (j *Journal) RecordSuccess(n int) {
	j.successCount.Add(1)
	j.recordsPushed.Add(int64(n))
	now := time.Now()
	j.lastFullPush.Store(&now)
}

// RecordTransientFailure marks a push attempt that failed with a
// retryable error.
func (j *Journal) RecordTransientFailure() {
	j.transientFailureCount.Add(1)
}

// RecordPermanentFailure marks a push attempt that failed with a
// non-retryable error.
func (j *Journal) RecordPermanentFailure() {
	j.permanentFailureCount.Add(1)
}

// ObserveServeLatency records how long a document content request took
// to serve, labeled by outcome ("ok", "not-modified", "denied",
// "error").
func (j *Journal) ObserveServeLatency(outcome string, d time.Duration) {
	j.serveLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// Snapshot is a point-in-time, consistent-enough-for-reporting copy of
// the Journal's counters.
type Snapshot struct {
	SuccessCount          int64
	RecordsPushed         int64
	TransientFailureCount int64
	PermanentFailureCount int64
	LastFullPush          *time.Time
}

// Snapshot returns the current counter values.
func (j *Journal) Snapshot() Snapshot {
	return Snapshot{
		SuccessCount:          j.successCount.Load(),
		RecordsPushed:         j.recordsPushed.Load(),
		TransientFailureCount: j.transientFailureCount.Load(),
		PermanentFailureCount: j.permanentFailureCount.Load(),
		LastFullPush:          j.lastFullPush.Load(),
	}
}
