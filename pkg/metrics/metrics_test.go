package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	series "github.com/opencom-org/series"
	"github.com/opencom-org/series/pkg/api"
)

func TestObserver_RecordsCallbacks(t *testing.T) {
	o := NewWithRegistry(prometheus.NewRegistry())

	ctx := context.Background()
	prog := &api.Progress{ID: "p-1", SeriesID: "s-1", VisitorID: "v-1"}
	chat := &api.Block{ID: "b-1", Type: api.BlockChat}
	email := &api.Block{ID: "b-2", Type: api.BlockEmail}

	o.OnEnrolled(ctx, prog)
	o.OnEnrolled(ctx, prog)

	o.OnBlockExecuted(ctx, prog, chat, nil, 3*time.Millisecond)
	o.OnBlockExecuted(ctx, prog, chat, nil, 5*time.Millisecond)
	o.OnBlockExecuted(ctx, prog, email, errors.New("smtp down"), time.Millisecond)

	o.OnWaitScheduled(ctx, prog, chat)
	o.OnRetryScheduled(ctx, prog, email, time.Now().Add(time.Minute))

	done := &api.Progress{ID: "p-1", Status: api.ProgressCompleted}
	failed := &api.Progress{ID: "p-2", Status: api.ProgressFailed}
	o.OnProgressFinished(ctx, done)
	o.OnProgressFinished(ctx, failed)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.enrollments))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.blocksExecuted.WithLabelValues("chat", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.blocksExecuted.WithLabelValues("email", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.waitsScheduled))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.finished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.finished.WithLabelValues("failed")))

	// One histogram series per block type seen.
	assert.Equal(t, 2, testutil.CollectAndCount(o.blockDuration))
}

func TestObserver_EngineIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	o := NewWithRegistry(prometheus.NewRegistry())
	eng := series.NewInMemoryEngineWithOptions(series.EngineOptions{
		Chat:     series.NewMemoryChatChannel(),
		Observer: o,
	})

	sr, err := series.NewBuilder("Metrics check", "ws-1").
		TriggeredByEvent("signup").
		Chat("hello").
		Chat("and welcome").
		Apply(ctx, eng)
	require.NoError(t, err)
	require.NoError(t, eng.ActivateSeries(ctx, sr.ID))

	res, err := eng.EvaluateEnrollmentForVisitor(ctx, "ws-1", "v-1", api.TriggerContext{
		Source:    api.TriggerSourceEvent,
		EventName: "signup",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Entered)

	assert.Equal(t, 1.0, testutil.ToFloat64(o.enrollments))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.blocksExecuted.WithLabelValues("chat", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.finished.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(o.retries))
}
