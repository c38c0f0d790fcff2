// Package metrics exports series engine activity as Prometheus metrics.
//
// Observer implements api.Observer; wire it into an engine directly or
// combined with other observers through api.NewCompositeObserver. Metrics
// register on prometheus.DefaultRegisterer unless a custom registry is
// supplied, so serving them is the caller's usual promhttp setup.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opencom-org/series/pkg/api"
)

const namespace = "series"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Observer records engine callbacks as Prometheus metrics.
type Observer struct {
	enrollments    prometheus.Counter
	blocksExecuted *prometheus.CounterVec
	blockDuration  *prometheus.HistogramVec
	waitsScheduled prometheus.Counter
	retries        prometheus.Counter
	finished       *prometheus.CounterVec
}

var _ api.Observer = (*Observer)(nil)

// New creates an Observer registered on the default Prometheus registerer.
func New() *Observer {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates an Observer whose collectors are registered on
// reg. It panics when a collector with the same name is already
// registered, matching prometheus.MustRegister.
func NewWithRegistry(reg prometheus.Registerer) *Observer {
	o := &Observer{
		enrollments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Total number of visitors enrolled into a series",
		}),
		blocksExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_executed_total",
			Help:      "Total number of executed action blocks",
		}, []string{"type", "status"}),
		blockDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_duration_seconds",
			Help:      "Histogram of action block execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		waitsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waits_scheduled_total",
			Help:      "Total number of wait suspensions scheduled",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retries scheduled after recoverable block failures",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_finished_total",
			Help:      "Total number of progress rows reaching a terminal status",
		}, []string{"status"}),
	}
	reg.MustRegister(
		o.enrollments,
		o.blocksExecuted,
		o.blockDuration,
		o.waitsScheduled,
		o.retries,
		o.finished,
	)
	return o
}

func (o *Observer) OnEnrolled(ctx context.Context, prog *api.Progress) {
	o.enrollments.Inc()
}

func (o *Observer) OnBlockExecuted(ctx context.Context, prog *api.Progress, block *api.Block, err error, d time.Duration) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	o.blocksExecuted.WithLabelValues(string(block.Type), status).Inc()
	o.blockDuration.WithLabelValues(string(block.Type)).Observe(d.Seconds())
}

func (o *Observer) OnWaitScheduled(ctx context.Context, prog *api.Progress, block *api.Block) {
	o.waitsScheduled.Inc()
}

func (o *Observer) OnRetryScheduled(ctx context.Context, prog *api.Progress, block *api.Block, nextAt time.Time) {
	o.retries.Inc()
}

func (o *Observer) OnProgressFinished(ctx context.Context, prog *api.Progress) {
	o.finished.WithLabelValues(string(prog.Status)).Inc()
}
