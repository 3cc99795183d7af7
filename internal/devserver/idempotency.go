package devserver

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// UploadIdempotencyStore deduplicates repeated uploads of the same file for
// the same client within a TTL window, returning the originally assigned
// document id instead of creating a second record.
type UploadIdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUploadIdempotencyStore(rdb *redis.Client, ttl time.Duration) *UploadIdempotencyStore {
	return &UploadIdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *UploadIdempotencyStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.rdb == nil {
		return "", false, nil
	}
	docID, err := s.rdb.Get(ctx, "upload:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return docID, true, nil
}

func (s *UploadIdempotencyStore) Remember(ctx context.Context, key, documentID string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.SetNX(ctx, "upload:"+key, documentID, s.ttl).Err()
}
