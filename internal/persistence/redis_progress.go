package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opencom-org/series/pkg/api"
)

// RedisProgressStore is a ProgressStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>prog:<id>                        => JSON-encoded api.Progress
//	<prefix>waiting:<visitor>:<series>       => ID of the live waiting row (enrollment guard)
//	<prefix>idx:all                          => SET of all progress IDs
//	<prefix>idx:ws:<workspace>               => SET of progress IDs for a workspace
//	<prefix>idx:series:<series>              => SET of progress IDs for a series
//	<prefix>idx:visitor:<visitor>            => SET of progress IDs for a visitor
//	<prefix>idx:status:<status>              => SET of progress IDs for a status
//	<prefix>idx:event:<ws>:<visitor>:<name>  => SET of progress IDs awaiting an event
//	<prefix>due:<series>                     => ZSET of waiting IDs scored by wait deadline
//	<prefix>due:series                       => SET of series IDs that had due-capable rows
//
// Writes that back state transitions (CreateProgress, UpdateProgress) run
// under WATCH so concurrent writers lose cleanly instead of clobbering.
// The secondary indexes may retain stale members; every read re-filters
// against the payload, so staleness costs a fetch, never correctness.
type RedisProgressStore struct {
	client *redis.Client
	prefix string
}

var _ ProgressStore = (*RedisProgressStore)(nil)

// NewRedisProgressStore creates a RedisProgressStore.
// prefix is optional but recommended (e.g. "series:").
func NewRedisProgressStore(client *redis.Client, prefix string) *RedisProgressStore {
	if prefix == "" {
		prefix = "series:"
	}
	return &RedisProgressStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisProgressStore) keyProgress(id string) string {
	return s.prefix + "prog:" + id
}

func (s *RedisProgressStore) keyWaiting(visitorID, seriesID string) string {
	return s.prefix + "waiting:" + visitorID + ":" + seriesID
}

func (s *RedisProgressStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisProgressStore) keyWorkspace(id string) string {
	return s.prefix + "idx:ws:" + id
}

func (s *RedisProgressStore) keySeries(id string) string {
	return s.prefix + "idx:series:" + id
}

func (s *RedisProgressStore) keyVisitor(id string) string {
	return s.prefix + "idx:visitor:" + id
}

func (s *RedisProgressStore) keyStatus(status api.ProgressStatus) string {
	return s.prefix + "idx:status:" + string(status)
}

func (s *RedisProgressStore) keyEvent(workspaceID, visitorID, eventName string) string {
	return s.prefix + "idx:event:" + workspaceID + ":" + visitorID + ":" + eventName
}

func (s *RedisProgressStore) keyDue(seriesID string) string {
	return s.prefix + "due:" + seriesID
}

func (s *RedisProgressStore) keyDueSeries() string {
	return s.prefix + "due:series"
}

func (s *RedisProgressStore) CreateProgress(ctx context.Context, p *api.Progress) error {
	guard := s.keyWaiting(p.VisitorID, p.SeriesID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		holderID, err := tx.Get(ctx, guard).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			// The guard is held; honor it only while its row is still
			// waiting, so a leftover guard of a terminal row does not
			// block re-enrollment.
			data, gerr := tx.Get(ctx, s.keyProgress(holderID)).Bytes()
			if gerr != nil && !errors.Is(gerr, redis.Nil) {
				return gerr
			}
			if gerr == nil {
				var holder api.Progress
				if json.Unmarshal(data, &holder) == nil && holder.Status == api.ProgressWaiting {
					return ErrProgressExists
				}
			}
		}

		payload, err := json.Marshal(p)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, guard, p.ID, 0)
			pipe.Set(ctx, s.keyProgress(p.ID), payload, 0)
			s.indexAdd(ctx, pipe, p)
			return nil
		})
		return err
	}, guard)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrProgressExists
	}
	return err
}

func (s *RedisProgressStore) GetProgress(ctx context.Context, id string) (*api.Progress, error) {
	data, err := s.client.Get(ctx, s.keyProgress(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, api.ErrProgressNotFound
		}
		return nil, err
	}

	var p api.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisProgressStore) UpdateProgress(ctx context.Context, p *api.Progress) error {
	key := s.keyProgress(p.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return api.ErrProgressNotFound
		}
		if err != nil {
			return err
		}

		var stored api.Progress
		if err := json.Unmarshal(data, &stored); err != nil {
			return err
		}
		if stored.Revision != p.Revision {
			return ErrProgressConflict
		}

		next := *p
		next.Revision++
		payload, err := json.Marshal(&next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)

			if stored.Status != next.Status {
				pipe.SRem(ctx, s.keyStatus(stored.Status), p.ID)
				pipe.SAdd(ctx, s.keyStatus(next.Status), p.ID)
			}
			if stored.WaitUntil != nil && next.WaitUntil == nil {
				pipe.ZRem(ctx, s.keyDue(p.SeriesID), p.ID)
			}
			if next.WaitUntil != nil {
				pipe.ZAdd(ctx, s.keyDue(p.SeriesID), redis.Z{
					Score:  float64(next.WaitUntil.UnixNano()),
					Member: p.ID,
				})
				pipe.SAdd(ctx, s.keyDueSeries(), p.SeriesID)
			}
			if stored.WaitEventName != "" && stored.WaitEventName != next.WaitEventName {
				pipe.SRem(ctx, s.keyEvent(p.WorkspaceID, p.VisitorID, stored.WaitEventName), p.ID)
			}
			if next.WaitEventName != "" {
				pipe.SAdd(ctx, s.keyEvent(p.WorkspaceID, p.VisitorID, next.WaitEventName), p.ID)
			}
			if stored.Status == api.ProgressWaiting && next.Status != api.ProgressWaiting {
				pipe.Del(ctx, s.keyWaiting(p.VisitorID, p.SeriesID))
			}
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrProgressConflict
	}
	if err != nil {
		return err
	}

	p.Revision++
	return nil
}

func (s *RedisProgressStore) GetForVisitorSeries(ctx context.Context, visitorID, seriesID string) (*api.Progress, error) {
	ids, err := s.client.SMembers(ctx, s.keyVisitor(visitorID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	rows, err := s.fetchProgress(ctx, ids)
	if err != nil {
		return nil, err
	}

	var best *api.Progress
	for _, p := range rows {
		if p.SeriesID != seriesID {
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
	return best, nil
}

func (s *RedisProgressStore) ListProgress(ctx context.Context, filter ProgressFilter) ([]*api.Progress, error) {
	var keys []string
	if filter.WorkspaceID != "" {
		keys = append(keys, s.keyWorkspace(filter.WorkspaceID))
	}
	if filter.SeriesID != "" {
		keys = append(keys, s.keySeries(filter.SeriesID))
	}
	if filter.VisitorID != "" {
		keys = append(keys, s.keyVisitor(filter.VisitorID))
	}
	if filter.Status != "" {
		keys = append(keys, s.keyStatus(filter.Status))
	}

	var ids []string
	var err error
	switch len(keys) {
	case 0:
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	case 1:
		ids, err = s.client.SMembers(ctx, keys[0]).Result()
	default:
		ids, err = s.client.SInter(ctx, keys...).Result()
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	rows, err := s.fetchProgress(ctx, ids)
	if err != nil {
		return nil, err
	}

	var result []*api.Progress
	for _, p := range rows {
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
		result = append(result, p)
	}

	sortByEnteredAt(result)
	return result, nil
}

func (s *RedisProgressStore) ListWaitingForEvent(ctx context.Context, workspaceID, visitorID, eventName string) ([]*api.Progress, error) {
	if eventName == "" {
		return nil, nil
	}
	ids, err := s.client.SMembers(ctx, s.keyEvent(workspaceID, visitorID, eventName)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	rows, err := s.fetchProgress(ctx, ids)
	if err != nil {
		return nil, err
	}

	var result []*api.Progress
	for _, p := range rows {
		if p.Status != api.ProgressWaiting || p.WaitEventName != eventName {
			continue
		}
		if p.WorkspaceID != workspaceID || p.VisitorID != visitorID {
			continue
		}
		result = append(result, p)
	}

	sortByEnteredAt(result)
	return result, nil
}

func (s *RedisProgressStore) ListDueWaiting(ctx context.Context, seriesID string, now time.Time, limit int) ([]*api.Progress, error) {
	rng := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixNano(), 10),
	}
	if limit > 0 {
		rng.Count = int64(limit)
	}

	ids, err := s.client.ZRangeByScore(ctx, s.keyDue(seriesID), rng).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	rows, err := s.fetchProgress(ctx, ids)
	if err != nil {
		return nil, err
	}

	var due []*api.Progress
	for _, p := range rows {
		if p.Status != api.ProgressWaiting || p.WaitUntil == nil || p.WaitUntil.After(now) {
			continue
		}
		due = append(due, p)
	}

	sort.Slice(due, func(i, j int) bool { return due[i].WaitUntil.Before(*due[j].WaitUntil) })
	return due, nil
}

func (s *RedisProgressStore) ListSeriesWithDueWaiting(ctx context.Context, now time.Time, limit int) ([]string, error) {
	seriesIDs, err := s.client.SMembers(ctx, s.keyDueSeries()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(seriesIDs) == 0 {
		return nil, nil
	}

	maxScore := strconv.FormatInt(now.UnixNano(), 10)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.ZSliceCmd, len(seriesIDs))
	for i, id := range seriesIDs {
		cmds[i] = pipe.ZRangeByScoreWithScores(ctx, s.keyDue(id), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   maxScore,
			Count: 1,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	type dueSeries struct {
		id       string
		earliest float64
	}
	var due []dueSeries
	for i, cmd := range cmds {
		zs, err := cmd.Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		if len(zs) == 0 {
			continue
		}
		due = append(due, dueSeries{id: seriesIDs[i], earliest: zs[0].Score})
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].earliest != due[j].earliest {
			return due[i].earliest < due[j].earliest
		}
		return due[i].id < due[j].id
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	ids := make([]string, len(due))
	for i, d := range due {
		ids[i] = d.id
	}
	return ids, nil
}

// indexAdd queues the append-only index writes for a new row.
func (s *RedisProgressStore) indexAdd(ctx context.Context, pipe redis.Pipeliner, p *api.Progress) {
	pipe.SAdd(ctx, s.keyAll(), p.ID)
	pipe.SAdd(ctx, s.keyWorkspace(p.WorkspaceID), p.ID)
	pipe.SAdd(ctx, s.keySeries(p.SeriesID), p.ID)
	pipe.SAdd(ctx, s.keyVisitor(p.VisitorID), p.ID)
	pipe.SAdd(ctx, s.keyStatus(p.Status), p.ID)
	if p.WaitEventName != "" {
		pipe.SAdd(ctx, s.keyEvent(p.WorkspaceID, p.VisitorID, p.WaitEventName), p.ID)
	}
	if p.WaitUntil != nil {
		pipe.ZAdd(ctx, s.keyDue(p.SeriesID), redis.Z{
			Score:  float64(p.WaitUntil.UnixNano()),
			Member: p.ID,
		})
		pipe.SAdd(ctx, s.keyDueSeries(), p.SeriesID)
	}
}

// fetchProgress bulk-loads payloads, skipping IDs whose key is gone.
func (s *RedisProgressStore) fetchProgress(ctx context.Context, ids []string) ([]*api.Progress, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyProgress(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var rows []*api.Progress
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var p api.Progress
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		rows = append(rows, &p)
	}

	return rows, nil
}

func sortByEnteredAt(rows []*api.Progress) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].EnteredAt.Before(rows[j].EnteredAt) })
}
