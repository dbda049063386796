package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"studentjobs/collector-service/internal/model"
)

// resultLogMax bounds each per-source result list; older entries fall off.
const resultLogMax = 500

// RedisResultLog is the append-only collection-run log: one Redis list per
// source, newest first, JSON payloads.
type RedisResultLog struct {
	client *redis.Client
	prefix string
}

// NewRedisResultLog constructs a ResultLog with the given key prefix
// (e.g. "collector:").
func NewRedisResultLog(client *redis.Client, prefix string) *RedisResultLog {
	return &RedisResultLog{client: client, prefix: prefix}
}

// Append pushes the result onto the source's list and trims it to
// resultLogMax entries.
func (l *RedisResultLog) Append(ctx context.Context, result model.CollectionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshal collection result")
	}
	key := fmt.Sprintf("%sresults:%s", l.prefix, result.SourceID)

	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, resultLogMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "append result for source %s", result.SourceID)
	}
	return nil
}

// Recent returns up to n most recent results for a source, newest first.
func (l *RedisResultLog) Recent(ctx context.Context, sourceID string, n int) ([]model.CollectionResult, error) {
	key := fmt.Sprintf("%sresults:%s", l.prefix, sourceID)
	raw, err := l.client.LRange(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "read results for source %s", sourceID)
	}
	results := make([]model.CollectionResult, 0, len(raw))
	for _, entry := range raw {
		var r model.CollectionResult
		if err := json.Unmarshal([]byte(entry), &r); err != nil {
			return nil, errors.Wrap(err, "unmarshal result entry")
		}
		results = append(results, r)
	}
	return results, nil
}

// RedisFingerprintStore persists structural fingerprints and raw page
// snapshots keyed by source+role. Snapshots are overwritten on each change,
// not versioned.
type RedisFingerprintStore struct {
	client *redis.Client
	prefix string
}

// NewRedisFingerprintStore constructs a FingerprintStore.
func NewRedisFingerprintStore(client *redis.Client, prefix string) *RedisFingerprintStore {
	return &RedisFingerprintStore{client: client, prefix: prefix}
}

// Get loads the fingerprint for source+role, or (nil, nil) when none exists.
func (s *RedisFingerprintStore) Get(ctx context.Context, sourceID, role string) (*model.StructuralFingerprint, error) {
	key := fmt.Sprintf("%sfingerprint:%s:%s", s.prefix, sourceID, role)
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read fingerprint %s:%s", sourceID, role)
	}
	var fp model.StructuralFingerprint
	if err := json.Unmarshal([]byte(raw), &fp); err != nil {
		return nil, errors.Wrap(err, "unmarshal fingerprint")
	}
	return &fp, nil
}

// Save writes the fingerprint record.
func (s *RedisFingerprintStore) Save(ctx context.Context, fp model.StructuralFingerprint) error {
	payload, err := json.Marshal(fp)
	if err != nil {
		return errors.Wrap(err, "marshal fingerprint")
	}
	key := fmt.Sprintf("%sfingerprint:%s:%s", s.prefix, fp.SourceID, fp.Role)
	return s.client.Set(ctx, key, payload, 0).Err()
}

// SaveSnapshot stores the raw page for later forensic diffing.
func (s *RedisFingerprintStore) SaveSnapshot(ctx context.Context, sourceID, role string, page []byte) error {
	key := fmt.Sprintf("%ssnapshot:%s:%s", s.prefix, sourceID, role)
	return s.client.Set(ctx, key, page, 0).Err()
}
