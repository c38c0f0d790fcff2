package series

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	workerpkg "github.com/opencom-org/series/pkg/worker"
	"github.com/stretchr/testify/require"
)

// TestSQLiteBundle_DurableAcrossRestart demonstrates that a queued visitor
// event remains durable across a simulated process restart, and that series
// definitions persisted in SQLite need no re-registration on startup.
func TestSQLiteBundle_DurableAcrossRestart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "series_bundle.db")
	dsn := "file:" + dbPath + "?_journal=WAL"

	// --- Phase 1: author the series and enqueue an event, no processing yet.

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	bundle1, err := NewSQLiteBundleWithOptions(db1, workerpkg.Config{
		MaxAttempts: 3,
	}, EngineOptions{Chat: NewMemoryChatChannel()})
	require.NoError(t, err)

	sr := NewBuilder("durable-welcome", "ws-1").
		TriggeredByEvent("signed_up").
		Chat("Welcome aboard!").
		MustApply(ctx, bundle1.Engine)

	require.NoError(t, bundle1.Engine.ActivateSeries(ctx, sr.ID))

	// Sanity: no progress rows yet.
	before, err := bundle1.Engine.ListProgress(ctx, ProgressListOptions{SeriesID: sr.ID})
	require.NoError(t, err)
	require.Len(t, before, 0)

	// Enqueue a visitor event; this should NOT create progress yet.
	err = bundle1.Worker.EnqueueVisitorEvent(ctx, "ws-1", "v-1", "signed_up")
	require.NoError(t, err)

	mid, err := bundle1.Engine.ListProgress(ctx, ProgressListOptions{SeriesID: sr.ID})
	require.NoError(t, err)
	require.Len(t, mid, 0, "no progress should exist before the worker processes the queue")

	// Simulate process crash by closing the DB and discarding bundle1.
	require.NoError(t, db1.Close())

	// --- Phase 2: "restart" with new DB handle and bundle.

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()

	chat := NewMemoryChatChannel()
	bundle2, err := NewSQLiteBundleWithOptions(db2, workerpkg.Config{
		MaxAttempts: 3,
	}, EngineOptions{Chat: chat})
	require.NoError(t, err)

	// Series definitions live in SQLite, so the restarted engine sees the
	// active series without any re-registration.
	restored, err := bundle2.Engine.GetSeries(ctx, sr.ID)
	require.NoError(t, err)
	require.Equal(t, SeriesActive, restored.Status)

	// Process one task from the durable queue; this should enroll the visitor
	// and drive the chat block to completion.
	processed, err := bundle2.Worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed, "expected one task to be processed")

	after, err := bundle2.Engine.ListProgress(ctx, ProgressListOptions{SeriesID: sr.ID})
	require.NoError(t, err)
	require.Len(t, after, 1, "expected a single progress row after processing")

	row := after[0]
	require.Equal(t, ProgressCompleted, row.Status)
	require.Equal(t, "v-1", row.VisitorID)

	sent := chat.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "Welcome aboard!", sent[0].Msg.Body)
}
