package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opencom-org/series/pkg/api"
)

// MemoryStore is a goroutine-safe implementation of GraphStore,
// ProgressStore and AuditStore backed by maps. Progress rows are copied
// on every read and write so revision checks always run against the
// stored state, never a caller-held pointer.
type MemoryStore struct {
	mu          sync.RWMutex
	series      map[string]*api.Series
	blocks      map[string][]*api.Block      // seriesID -> blocks in insertion order
	connections map[string][]*api.Connection // seriesID -> edges in insertion order
	progress    map[string]*api.Progress
	audit       map[string][]api.AuditEvent // progressID -> events in append order
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series:      make(map[string]*api.Series),
		blocks:      make(map[string][]*api.Block),
		connections: make(map[string][]*api.Connection),
		progress:    make(map[string]*api.Progress),
		audit:       make(map[string][]api.AuditEvent),
	}
}

// Ensure MemoryStore implements the interfaces.
var _ GraphStore = (*MemoryStore)(nil)

var _ ProgressStore = (*MemoryStore)(nil)

var _ AuditStore = (*MemoryStore)(nil)

func (s *MemoryStore) SaveSeries(ctx context.Context, sr *api.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *sr
	s.series[sr.ID] = &clone
	return nil
}

func (s *MemoryStore) GetSeries(ctx context.Context, id string) (*api.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[id]
	if !ok {
		return nil, api.ErrSeriesNotFound
	}

	clone := *sr
	return &clone, nil
}

func (s *MemoryStore) ListSeries(ctx context.Context, filter SeriesFilter) ([]*api.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Series

	for _, sr := range s.series {
		if filter.WorkspaceID != "" && sr.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if filter.Status != "" && sr.Status != filter.Status {
			continue
		}
		clone := *sr
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	return result, nil
}

func (s *MemoryStore) UpdateSeriesStatus(ctx context.Context, id string, status api.SeriesStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.series[id]
	if !ok {
		return api.ErrSeriesNotFound
	}

	sr.Status = status
	return nil
}

func (s *MemoryStore) SetStartBlock(ctx context.Context, seriesID, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.series[seriesID]
	if !ok {
		return api.ErrSeriesNotFound
	}

	sr.StartBlockID = blockID
	return nil
}

func (s *MemoryStore) SaveBlock(ctx context.Context, b *api.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.series[b.SeriesID]; !ok {
		return api.ErrSeriesNotFound
	}

	clone := *b
	blocks := s.blocks[b.SeriesID]
	for i, existing := range blocks {
		if existing.ID == b.ID {
			blocks[i] = &clone
			return nil
		}
	}

	s.blocks[b.SeriesID] = append(blocks, &clone)
	return nil
}

func (s *MemoryStore) GetBlock(ctx context.Context, seriesID, blockID string) (*api.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.blocks[seriesID] {
		if b.ID == blockID {
			clone := *b
			return &clone, nil
		}
	}

	return nil, api.ErrBlockNotFound
}

func (s *MemoryStore) ListBlocks(ctx context.Context, seriesID string) ([]*api.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := s.blocks[seriesID]
	result := make([]*api.Block, 0, len(blocks))
	for _, b := range blocks {
		clone := *b
		result = append(result, &clone)
	}

	return result, nil
}

func (s *MemoryStore) SaveConnection(ctx context.Context, c *api.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.series[c.SeriesID]; !ok {
		return api.ErrSeriesNotFound
	}

	clone := *c
	conns := s.connections[c.SeriesID]
	for i, existing := range conns {
		if existing.FromBlockID == c.FromBlockID && existing.Condition == c.Condition {
			conns[i] = &clone
			return nil
		}
	}

	s.connections[c.SeriesID] = append(conns, &clone)
	return nil
}

func (s *MemoryStore) ListConnections(ctx context.Context, seriesID string) ([]*api.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := s.connections[seriesID]
	result := make([]*api.Connection, 0, len(conns))
	for _, c := range conns {
		clone := *c
		result = append(result, &clone)
	}

	return result, nil
}

func (s *MemoryStore) ListConnectionsFrom(ctx context.Context, seriesID, fromBlockID string) ([]*api.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Connection
	for _, c := range s.connections[seriesID] {
		if c.FromBlockID == fromBlockID {
			clone := *c
			result = append(result, &clone)
		}
	}

	return result, nil
}

func (s *MemoryStore) CreateProgress(ctx context.Context, p *api.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.progress {
		if existing.VisitorID == p.VisitorID && existing.SeriesID == p.SeriesID &&
			existing.Status == api.ProgressWaiting {
			return ErrProgressExists
		}
	}

	s.progress[p.ID] = copyProgress(p)
	return nil
}

func (s *MemoryStore) GetProgress(ctx context.Context, id string) (*api.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[id]
	if !ok {
		return nil, api.ErrProgressNotFound
	}

	return copyProgress(p), nil
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, p *api.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.progress[p.ID]
	if !ok {
		return api.ErrProgressNotFound
	}
	if stored.Revision != p.Revision {
		return ErrProgressConflict
	}

	clone := copyProgress(p)
	clone.Revision++
	s.progress[p.ID] = clone
	p.Revision = clone.Revision
	return nil
}

func (s *MemoryStore) GetForVisitorSeries(ctx context.Context, visitorID, seriesID string) (*api.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *api.Progress
	for _, p := range s.progress {
		if p.VisitorID != visitorID || p.SeriesID != seriesID {
			continue
		}
		if best == nil || progressRank(p) > progressRank(best) ||
			(progressRank(p) == progressRank(best) && p.EnteredAt.After(best.EnteredAt)) {
			best = p
		}
	}

	if best == nil {
		return nil, api.ErrProgressNotFound
	}

	return copyProgress(best), nil
}

// progressRank orders rows for GetForVisitorSeries: the live waiting
// row outranks any terminal one.
func progressRank(p *api.Progress) int {
	if p.Status == api.ProgressWaiting {
		return 1
	}
	return 0
}

func (s *MemoryStore) ListProgress(ctx context.Context, filter ProgressFilter) ([]*api.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Progress

	for _, p := range s.progress {
		if filter.WorkspaceID != "" && p.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if filter.SeriesID != "" && p.SeriesID != filter.SeriesID {
			continue
		}
		if filter.VisitorID != "" && p.VisitorID != filter.VisitorID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		result = append(result, copyProgress(p))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].EnteredAt.Before(result[j].EnteredAt) })

	return result, nil
}

func (s *MemoryStore) ListWaitingForEvent(ctx context.Context, workspaceID, visitorID, eventName string) ([]*api.Progress, error) {
	if eventName == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Progress

	for _, p := range s.progress {
		if p.Status != api.ProgressWaiting || p.WaitEventName != eventName {
			continue
		}
		if p.WorkspaceID != workspaceID || p.VisitorID != visitorID {
			continue
		}
		result = append(result, copyProgress(p))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].EnteredAt.Before(result[j].EnteredAt) })

	return result, nil
}

func (s *MemoryStore) ListDueWaiting(ctx context.Context, seriesID string, now time.Time, limit int) ([]*api.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*api.Progress

	for _, p := range s.progress {
		if p.SeriesID != seriesID || p.Status != api.ProgressWaiting {
			continue
		}
		if p.WaitUntil == nil || p.WaitUntil.After(now) {
			continue
		}
		due = append(due, copyProgress(p))
	}

	sort.Slice(due, func(i, j int) bool { return due[i].WaitUntil.Before(*due[j].WaitUntil) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (s *MemoryStore) ListSeriesWithDueWaiting(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	earliest := make(map[string]time.Time)

	for _, p := range s.progress {
		if p.Status != api.ProgressWaiting || p.WaitUntil == nil || p.WaitUntil.After(now) {
			continue
		}
		if cur, ok := earliest[p.SeriesID]; !ok || p.WaitUntil.Before(cur) {
			earliest[p.SeriesID] = *p.WaitUntil
		}
	}

	ids := make([]string, 0, len(earliest))
	for id := range earliest {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		if !earliest[ids[i]].Equal(earliest[ids[j]]) {
			return earliest[ids[i]].Before(earliest[ids[j]])
		}
		return ids[i] < ids[j]
	})

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	return ids, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev api.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.audit[ev.ProgressID] = append(s.audit[ev.ProgressID], ev)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, progressID string) ([]api.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.audit[progressID]
	result := make([]api.AuditEvent, len(events))
	copy(result, events)

	return result, nil
}

// copyProgress duplicates a progress row, including its time pointers.
func copyProgress(p *api.Progress) *api.Progress {
	clone := *p
	clone.WaitUntil = copyTime(p.WaitUntil)
	clone.CompletedAt = copyTime(p.CompletedAt)
	clone.ExitedAt = copyTime(p.ExitedAt)
	clone.GoalReachedAt = copyTime(p.GoalReachedAt)
	clone.FailedAt = copyTime(p.FailedAt)
	return &clone
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
