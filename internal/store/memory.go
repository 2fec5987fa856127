package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

type (
	// MemoryStepStore keeps encoded step outputs in process. Outputs go
	// through JSON like any other backend so readers see the same shapes
	MemoryStepStore struct {
		data map[string][]byte
		mu   sync.RWMutex
	}

	// MemoryKeyValues keeps run-scoped values in process
	MemoryKeyValues struct {
		data map[string]map[string][]byte
		mu   sync.RWMutex
	}

	memoryKeyValue struct {
		parent *MemoryKeyValues
		runID  string
	}
)

var (
	_ StepStore      = (*MemoryStepStore)(nil)
	_ KeyValues      = (*MemoryKeyValues)(nil)
	_ piece.KeyValue = (*memoryKeyValue)(nil)
)

// NewMemoryStepStore creates an empty in-memory step store
func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{data: map[string][]byte{}}
}

// Save encodes and stores a step output
func (s *MemoryStepStore) Save(
	_ context.Context, runID, stepName string, path api.StepExecutionPath,
	out *api.StepOutput,
) error {
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStepStore, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[stepKey(runID, stepName, path)] = b
	return nil
}

// Get loads and decodes a step output
func (s *MemoryStepStore) Get(
	_ context.Context, runID, stepName string, path api.StepExecutionPath,
) (*api.StepOutput, error) {
	s.mu.RLock()
	b, ok := s.data[stepKey(runID, stepName, path)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, stepName)
	}
	return decodeStep(b)
}

// NewMemoryKeyValues creates an empty in-memory key-value store
func NewMemoryKeyValues() *MemoryKeyValues {
	return &MemoryKeyValues{data: map[string]map[string][]byte{}}
}

// ForRun returns the key-value view of one run
func (m *MemoryKeyValues) ForRun(runID string) piece.KeyValue {
	return &memoryKeyValue{parent: m, runID: runID}
}

func (kv *memoryKeyValue) Put(_ context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyValue, err)
	}
	m := kv.parent
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.data[kv.runID]
	if !ok {
		run = map[string][]byte{}
		m.data[kv.runID] = run
	}
	run[key] = b
	return nil
}

func (kv *memoryKeyValue) Get(_ context.Context, key string) (any, bool, error) {
	m := kv.parent
	m.mu.RLock()
	b, ok := m.data[kv.runID][key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return decodeValue(b)
}

func (kv *memoryKeyValue) Delete(_ context.Context, key string) error {
	m := kv.parent
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[kv.runID], key)
	return nil
}

func decodeStep(b []byte) (*api.StepOutput, error) {
	var res api.StepOutput
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStepStore, err)
	}
	return &res, nil
}

func decodeValue(b []byte) (any, bool, error) {
	var res any
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrKeyValue, err)
	}
	return res, true, nil
}
