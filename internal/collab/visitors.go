// Package collab provides in-memory implementations of the engine's
// collaborator interfaces: visitor snapshots, event counting, and the
// chat/email delivery channels. They back the in-memory bundles, the
// examples, and the tests; production embeddings supply their own.
package collab

import (
	"context"
	"sync"

	"github.com/opencom-org/series/pkg/api"
)

type visitorRecord struct {
	attributes       map[string]any
	customAttributes map[string]any
}

// MemoryVisitorStore is a goroutine-safe VisitorStore backed by maps.
// Unknown visitors yield an empty snapshot, never an error.
type MemoryVisitorStore struct {
	// OnChange, when set, is called after every attribute write with the
	// workspace and visitor whose record changed. It runs outside the
	// store lock, so the listener may read the store again. Set it before
	// the store is shared between goroutines.
	OnChange func(workspaceID, visitorID string)

	mu       sync.RWMutex
	visitors map[string]*visitorRecord // workspaceID+"/"+visitorID
}

// NewMemoryVisitorStore creates a new MemoryVisitorStore.
func NewMemoryVisitorStore() *MemoryVisitorStore {
	return &MemoryVisitorStore{
		visitors: make(map[string]*visitorRecord),
	}
}

// Ensure MemoryVisitorStore implements VisitorStore.
var _ api.VisitorStore = (*MemoryVisitorStore)(nil)

func visitorKey(workspaceID, visitorID string) string {
	return workspaceID + "/" + visitorID
}

// SetAttribute sets one standard attribute (e.g. "email", "plan").
func (s *MemoryVisitorStore) SetAttribute(workspaceID, visitorID, key string, value any) {
	s.mu.Lock()
	s.record(workspaceID, visitorID).attributes[key] = value
	s.mu.Unlock()

	s.notify(workspaceID, visitorID)
}

// SetCustomAttribute sets one workspace-defined attribute.
func (s *MemoryVisitorStore) SetCustomAttribute(workspaceID, visitorID, key string, value any) {
	s.mu.Lock()
	s.record(workspaceID, visitorID).customAttributes[key] = value
	s.mu.Unlock()

	s.notify(workspaceID, visitorID)
}

func (s *MemoryVisitorStore) notify(workspaceID, visitorID string) {
	if s.OnChange != nil {
		s.OnChange(workspaceID, visitorID)
	}
}

func (s *MemoryVisitorStore) record(workspaceID, visitorID string) *visitorRecord {
	key := visitorKey(workspaceID, visitorID)
	rec, ok := s.visitors[key]
	if !ok {
		rec = &visitorRecord{
			attributes:       make(map[string]any),
			customAttributes: make(map[string]any),
		}
		s.visitors[key] = rec
	}
	return rec
}

func (s *MemoryVisitorStore) Snapshot(ctx context.Context, workspaceID, visitorID string) (api.VisitorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.visitors[visitorKey(workspaceID, visitorID)]
	if !ok {
		return api.VisitorSnapshot{
			Attributes:       map[string]any{},
			CustomAttributes: map[string]any{},
		}, nil
	}

	return api.VisitorSnapshot{
		Attributes:       copyAttrs(rec.attributes),
		CustomAttributes: copyAttrs(rec.customAttributes),
	}, nil
}

func copyAttrs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
