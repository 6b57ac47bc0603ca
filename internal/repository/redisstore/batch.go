// Package redisstore keeps batch metadata and job progress in Redis with a
// TTL, so any instance behind the load balancer can serve a batch or a poll.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/service/contactimport"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultBatchTTL is how long an uncommitted batch is kept.
	DefaultBatchTTL = 24 * time.Hour
	// CommittedBatchTTL is how long a batch is kept after commit.
	CommittedBatchTTL = time.Hour

	batchKeyPrefix = "import:batch:"
)

// BatchRepo implements contactimport.BatchStore on Redis.
type BatchRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBatchRepo creates a Redis batch store. ttl <= 0 uses DefaultBatchTTL.
func NewBatchRepo(rdb *redis.Client, ttl time.Duration) *BatchRepo {
	if ttl <= 0 {
		ttl = DefaultBatchTTL
	}
	return &BatchRepo{rdb: rdb, ttl: ttl}
}

func (r *BatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, batchKey(b.ID), data, r.ttlFor(b)).Result()
	if err != nil {
		return fmt.Errorf("create batch %s: %w", b.ID, err)
	}
	if !ok {
		return fmt.Errorf("create batch %s: already exists", b.ID)
	}
	return nil
}

func (r *BatchRepo) Get(ctx context.Context, id string) (*domain.Batch, error) {
	data, err := r.rdb.Get(ctx, batchKey(id)).Bytes()
	if err == redis.Nil {
		return nil, contactimport.ErrUnknownBatch.WithRef(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	var b domain.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", id, err)
	}
	return &b, nil
}

// Save overwrites an existing batch. A batch that has already expired is
// not resurrected.
func (r *BatchRepo) Save(ctx context.Context, b *domain.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	ok, err := r.rdb.SetXX(ctx, batchKey(b.ID), data, r.ttlFor(b)).Result()
	if err != nil {
		return fmt.Errorf("save batch %s: %w", b.ID, err)
	}
	if !ok {
		return contactimport.ErrUnknownBatch.WithRef(b.ID)
	}
	return nil
}

func (r *BatchRepo) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, batchKey(id)).Err(); err != nil {
		return fmt.Errorf("delete batch %s: %w", id, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *BatchRepo) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *BatchRepo) ttlFor(b *domain.Batch) time.Duration {
	if b.Phase == domain.PhaseCommitted {
		return CommittedBatchTTL
	}
	return r.ttl
}

func batchKey(id string) string {
	return batchKeyPrefix + id
}
