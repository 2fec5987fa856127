// Package store persists step outputs and the run-scoped key-value data
// exposed to pieces. Flow contexts only carry references; payloads are read
// back from here when a template or the final report needs them
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/argyll/worker/internal/config"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

type (
	// StepStore saves and loads step outputs by run, step and path
	StepStore interface {
		Save(
			ctx context.Context, runID, stepName string,
			path api.StepExecutionPath, out *api.StepOutput,
		) error
		Get(
			ctx context.Context, runID, stepName string,
			path api.StepExecutionPath,
		) (*api.StepOutput, error)
	}

	// KeyValues hands out key-value stores scoped to a single run
	KeyValues interface {
		ForRun(runID string) piece.KeyValue
	}

	// Stores bundles the backends selected by configuration
	Stores struct {
		Steps     StepStore
		KeyValues KeyValues
		Ping      func(context.Context) error
		Close     func() error
	}
)

var (
	ErrStepStore    = errors.New("step store failure")
	ErrStepNotFound = errors.New("step output not found")
	ErrKeyValue     = errors.New("key-value store failure")
)

// New opens the stores selected by cfg
func New(cfg config.StoreConfig) (*Stores, error) {
	switch cfg.Type {
	case config.StoreMemory, "":
		return &Stores{
			Steps:     NewMemoryStepStore(),
			KeyValues: NewMemoryKeyValues(),
			Ping:      func(context.Context) error { return nil },
			Close:     func() error { return nil },
		}, nil
	case config.StoreRedis:
		client := NewRedisClient(cfg)
		return &Stores{
			Steps:     NewRedisStepStore(client, cfg),
			KeyValues: NewRedisKeyValues(client, cfg),
			Ping: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			Close: client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidStoreType, cfg.Type)
	}
}

// NewRedisClient creates the client shared by the redis-backed stores
func NewRedisClient(cfg config.StoreConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func stepKey(runID, stepName string, path api.StepExecutionPath) string {
	return fmt.Sprintf("run:%s:step:%s:%s", runID, path.Key(), stepName)
}
