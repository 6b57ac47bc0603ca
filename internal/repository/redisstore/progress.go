package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/service/listimport"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultProgressTTL is how long a job snapshot survives its last update.
	DefaultProgressTTL = 24 * time.Hour

	progressKeyPrefix = "import:progress:"
	progressIndexKey  = "import:progress:index"
)

// ProgressRepo implements listimport.ProgressStore on Redis. Snapshots are
// JSON values; a sorted set scored by start time indexes them for List.
type ProgressRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewProgressRepo creates a Redis progress store. ttl <= 0 uses
// DefaultProgressTTL.
func NewProgressRepo(rdb *redis.Client, ttl time.Duration) *ProgressRepo {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressRepo{rdb: rdb, ttl: ttl}
}

func (r *ProgressRepo) Save(ctx context.Context, snap domain.ProgressSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, progressKey(snap.JobID), data, r.ttl)
	pipe.ZAdd(ctx, progressIndexKey, redis.Z{
		Score:  float64(snap.StartedAt.UnixMilli()),
		Member: snap.JobID,
	})
	pipe.Expire(ctx, progressIndexKey, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save progress %s: %w", snap.JobID, err)
	}
	return nil
}

func (r *ProgressRepo) Get(ctx context.Context, jobID string) (*domain.ProgressSnapshot, error) {
	data, err := r.rdb.Get(ctx, progressKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, listimport.ErrUnknownJob.WithRef(jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get progress %s: %w", jobID, err)
	}
	var snap domain.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", jobID, err)
	}
	return &snap, nil
}

// List returns stored snapshots, newest first. Index entries whose snapshot
// has expired are dropped.
func (r *ProgressRepo) List(ctx context.Context) ([]domain.ProgressSnapshot, error) {
	ids, err := r.rdb.ZRevRange(ctx, progressIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list progress index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = progressKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	out := make([]domain.ProgressSnapshot, 0, len(vals))
	var stale []interface{}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var snap domain.ProgressSnapshot
		if err := json.Unmarshal([]byte(s), &snap); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, snap)
	}
	if len(stale) > 0 {
		r.rdb.ZRem(ctx, progressIndexKey, stale...)
	}
	return out, nil
}

func progressKey(id string) string {
	return progressKeyPrefix + id
}
