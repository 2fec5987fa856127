package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/kode4food/argyll/worker/internal/config"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

type (
	// RedisStepStore keeps step outputs in redis under
	// <prefix>:run:<runId>:step:<pathKey>:<stepName>, expiring after TTL
	RedisStepStore struct {
		redisStore
	}

	// RedisKeyValues keeps run-scoped values in one redis hash per run
	RedisKeyValues struct {
		redisStore
	}

	redisKeyValue struct {
		parent *RedisKeyValues
		key    string
	}

	redisStore struct {
		client     redis.UniversalClient
		prefix     string
		ttl        time.Duration
		maxRetries int
	}
)

const redisRetryInterval = 50 * time.Millisecond

var (
	_ StepStore      = (*RedisStepStore)(nil)
	_ KeyValues      = (*RedisKeyValues)(nil)
	_ piece.KeyValue = (*redisKeyValue)(nil)
)

// NewRedisStepStore creates a step store over an existing client
func NewRedisStepStore(
	client redis.UniversalClient, cfg config.StoreConfig,
) *RedisStepStore {
	return &RedisStepStore{redisStore: newRedisStore(client, cfg)}
}

// NewRedisKeyValues creates a key-value store over an existing client
func NewRedisKeyValues(
	client redis.UniversalClient, cfg config.StoreConfig,
) *RedisKeyValues {
	return &RedisKeyValues{redisStore: newRedisStore(client, cfg)}
}

func newRedisStore(
	client redis.UniversalClient, cfg config.StoreConfig,
) redisStore {
	return redisStore{
		client:     client,
		prefix:     cfg.Prefix,
		ttl:        cfg.TTL,
		maxRetries: cfg.MaxRetries,
	}
}

// Save encodes and stores a step output
func (s *RedisStepStore) Save(
	ctx context.Context, runID, stepName string, path api.StepExecutionPath,
	out *api.StepOutput,
) error {
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStepStore, err)
	}
	key := s.key(stepKey(runID, stepName, path))
	err = s.retry(ctx, func() error {
		return s.client.Set(ctx, key, b, s.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStepStore, err)
	}
	return nil
}

// Get loads and decodes a step output
func (s *RedisStepStore) Get(
	ctx context.Context, runID, stepName string, path api.StepExecutionPath,
) (*api.StepOutput, error) {
	key := s.key(stepKey(runID, stepName, path))
	var b []byte
	err := s.retry(ctx, func() error {
		var err error
		b, err = s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return backoff.Permanent(
				fmt.Errorf("%w: %s", ErrStepNotFound, stepName),
			)
		}
		return err
	})
	if errors.Is(err, ErrStepNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStepStore, err)
	}
	return decodeStep(b)
}

// ForRun returns the key-value view of one run
func (s *RedisKeyValues) ForRun(runID string) piece.KeyValue {
	return &redisKeyValue{parent: s, key: s.key("run:" + runID + ":kv")}
}

func (kv *redisKeyValue) Put(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyValue, err)
	}
	s := kv.parent
	err = s.retry(ctx, func() error {
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, kv.key, key, b)
			if s.ttl > 0 {
				p.Expire(ctx, kv.key, s.ttl)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyValue, err)
	}
	return nil
}

func (kv *redisKeyValue) Get(ctx context.Context, key string) (any, bool, error) {
	s := kv.parent
	var b []byte
	var found bool
	err := s.retry(ctx, func() error {
		var err error
		b, err = s.client.HGet(ctx, kv.key, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrKeyValue, err)
	}
	if !found {
		return nil, false, nil
	}
	return decodeValue(b)
}

func (kv *redisKeyValue) Delete(ctx context.Context, key string) error {
	s := kv.parent
	err := s.retry(ctx, func() error {
		return s.client.HDel(ctx, kv.key, key).Err()
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyValue, err)
	}
	return nil
}

func (s *redisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// retry runs op with exponential backoff, giving up after the configured
// number of retries or when ctx ends
func (s *redisStore) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = redisRetryInterval
	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(max(s.maxRetries, 0))), ctx,
	))
}
