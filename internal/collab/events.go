package collab

import (
	"context"
	"sync"
	"time"

	"github.com/opencom-org/series/pkg/api"
)

type eventRecord struct {
	name string
	at   time.Time
}

// MemoryEventLog is a goroutine-safe EventCounter backed by an append-only
// per-visitor log. Record what happened, then let rule conditions count it.
type MemoryEventLog struct {
	mu     sync.RWMutex
	events map[string][]eventRecord // workspaceID+"/"+visitorID
}

// NewMemoryEventLog creates a new MemoryEventLog.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{
		events: make(map[string][]eventRecord),
	}
}

// Ensure MemoryEventLog implements EventCounter.
var _ api.EventCounter = (*MemoryEventLog)(nil)

// Record appends one occurrence of the named event. A zero at means now.
func (l *MemoryEventLog) Record(workspaceID, visitorID, eventName string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := visitorKey(workspaceID, visitorID)
	l.events[key] = append(l.events[key], eventRecord{name: eventName, at: at})
}

func (l *MemoryEventLog) CountEvents(ctx context.Context, workspaceID, visitorID, eventName string, withinDays int) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var cutoff time.Time
	if withinDays > 0 {
		cutoff = time.Now().Add(-time.Duration(withinDays) * 24 * time.Hour)
	}

	count := 0
	for _, ev := range l.events[visitorKey(workspaceID, visitorID)] {
		if ev.name != eventName {
			continue
		}
		if withinDays > 0 && ev.at.Before(cutoff) {
			continue
		}
		count++
	}

	return count, nil
}
