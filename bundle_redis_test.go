package series

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/opencom-org/series/pkg/api"
	workerpkg "github.com/opencom-org/series/pkg/worker"
)

// TestRedisBundle_SharedProgressAcrossBundles verifies that a Redis bundle
// drives queued visitor events to completion and that a second bundle sharing
// the same Redis sees the resulting progress rows, while series definitions
// stay per-process.
func TestRedisBundle_SharedProgressAcrossBundles(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = client.Close()
	})

	chat := NewMemoryChatChannel()
	bundle1 := NewRedisBundleWithOptions(client, workerpkg.Config{
		MaxAttempts: 3,
	}, EngineOptions{Chat: chat})

	sr := NewBuilder("redis-welcome", "ws-1").
		TriggeredByEvent("signed_up").
		Chat("Welcome aboard!").
		MustApply(ctx, bundle1.Engine)

	require.NoError(t, bundle1.Engine.ActivateSeries(ctx, sr.ID))

	// Enqueue a visitor event; progress appears only after processing.
	require.NoError(t, bundle1.Worker.EnqueueVisitorEvent(ctx, "ws-1", "v-1", "signed_up"))

	before, err := bundle1.Engine.ListProgress(ctx, ProgressListOptions{SeriesID: sr.ID})
	require.NoError(t, err)
	require.Len(t, before, 0, "no progress should exist before the worker processes the queue")

	processed, err := bundle1.Worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed, "expected one task to be processed")

	after, err := bundle1.Engine.ListProgress(ctx, ProgressListOptions{SeriesID: sr.ID})
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, ProgressCompleted, after[0].Status)
	require.Equal(t, "v-1", after[0].VisitorID)
	require.Len(t, chat.Sent(), 1)

	// A second bundle over the same Redis shares progress state but not
	// definitions: each process registers its own series on startup.
	bundle2 := NewRedisBundle(client, workerpkg.Config{
		MaxAttempts: 3,
	})

	shared, err := bundle2.Engine.ListProgress(ctx, ProgressListOptions{SeriesID: sr.ID})
	require.NoError(t, err)
	require.Len(t, shared, 1, "progress rows should be visible from the second bundle")
	require.Equal(t, after[0].ID, shared[0].ID)

	_, err = bundle2.Engine.GetSeries(ctx, sr.ID)
	require.ErrorIs(t, err, api.ErrSeriesNotFound)
}
