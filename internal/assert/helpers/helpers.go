package helpers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/kode4food/argyll/worker/internal/config"
	"github.com/kode4food/argyll/worker/internal/engine"
	"github.com/kode4food/argyll/worker/internal/engine/sandbox"
	"github.com/kode4food/argyll/worker/internal/services"
	"github.com/kode4food/argyll/worker/internal/store"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

type (
	// TestEngineEnv holds an engine wired to a miniredis step store and
	// in-memory collaborators
	TestEngineEnv struct {
		Engine      *engine.Engine
		Redis       *miniredis.Miniredis
		Config      *config.Config
		Steps       store.StepStore
		KeyValues   store.KeyValues
		Code        *sandbox.Registry
		Pieces      *piece.Registry
		Connections *services.StaticConnections
		Progress    *ProgressRecorder
		Archive     *blob.Bucket
		Cleanup     func()
	}

	// ProgressRecorder is an engine.ProgressSink that keeps every update
	ProgressRecorder struct {
		updates []*api.ProgressUpdate
		mu      sync.Mutex
	}
)

const (
	// TestRunID is the run id used by NewBeginInput
	TestRunID = "test-run"

	// TestArchivePrefix is where finished runs land in the archive bucket
	TestArchivePrefix = "runs"

	testRetryInterval = time.Millisecond
	testDebounce      = 5 * time.Millisecond
)

// NewTestConfig creates a default configuration with debug logging, fast
// retries, and in-process code units
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.SandboxMode = config.SandboxDirect
	cfg.CodeTimeout = time.Second
	cfg.Retry.Interval = testRetryInterval
	cfg.ProgressDebounce = testDebounce
	return cfg
}

// NewTestEngine creates an engine over a miniredis step store, a static
// connection set, and empty code and piece registries
func NewTestEngine(t *testing.T) *TestEngineEnv {
	t.Helper()

	server, err := miniredis.Run()
	assert.NoError(t, err)

	cfg := NewTestConfig()
	cfg.CodeDirectory = t.TempDir()
	cfg.StepStore.Type = config.StoreRedis
	cfg.StepStore.Addr = server.Addr()
	cfg.StepStore.Prefix = "test-worker"

	stores, err := store.New(cfg.StepStore)
	assert.NoError(t, err)

	bucket := memblob.OpenBucket(nil)
	archive, err := services.NewRunArchive(bucket, TestArchivePrefix)
	assert.NoError(t, err)

	env := &TestEngineEnv{
		Redis:       server,
		Config:      cfg,
		Steps:       stores.Steps,
		KeyValues:   stores.KeyValues,
		Code:        sandbox.NewRegistry(),
		Pieces:      piece.NewRegistry(),
		Connections: services.NewStaticConnections(nil),
		Progress:    &ProgressRecorder{},
		Archive:     bucket,
		Cleanup: func() {
			_ = bucket.Close()
			_ = stores.Close()
			server.Close()
		},
	}
	env.Engine = engine.New(cfg, engine.Dependencies{
		Steps:       env.Steps,
		KeyValues:   env.KeyValues,
		Connections: env.Connections,
		Pieces:      env.Pieces,
		Code:        env.Code,
		Progress:    env.Progress,
		Archive:     archive,
	})
	return env
}

// WithTestEnv creates a test engine environment and passes it to fn
func WithTestEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	env := NewTestEngine(t)
	defer env.Cleanup()
	fn(env)
}

// WithEngine creates a test engine and passes it to fn
func WithEngine(t *testing.T, fn func(*engine.Engine)) {
	t.Helper()
	WithTestEnv(t, func(env *TestEngineEnv) {
		fn(env.Engine)
	})
}

// WriteCode writes a script code unit for a step into the code directory
func (e *TestEngineEnv) WriteCode(t *testing.T, step, file, src string) {
	t.Helper()
	dir := filepath.Join(e.Config.CodeDirectory, step)
	assert.NoError(t, os.MkdirAll(dir, 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(src), 0o644))
}

// RegisterCode binds an in-process code unit to a step name
func (e *TestEngineEnv) RegisterCode(name string, fn sandbox.Func) {
	e.Code.Register(name, fn)
}

// RegisterPiece adds a piece, failing the test if it is invalid
func (e *TestEngineEnv) RegisterPiece(t *testing.T, p *piece.Piece) {
	t.Helper()
	if err := e.Pieces.Register(p); err != nil {
		t.Fatal(err)
	}
}

// Run executes a flow from its trigger with the given payload
func (e *TestEngineEnv) Run(
	ctx context.Context, fv *api.FlowVersion, payload any,
) (*api.RunResult, error) {
	return e.Engine.ExecuteFlow(ctx, NewBeginInput(fv, payload))
}

// NewBeginInput creates the input of a fresh run
func NewBeginInput(fv *api.FlowVersion, payload any) *api.ExecuteFlowInput {
	return &api.ExecuteFlowInput{
		RunID:              TestRunID,
		FlowVersion:        *fv,
		ExecutionType:      api.ExecutionBegin,
		TriggerPayload:     payload,
		ProgressUpdateType: api.ProgressNone,
		ServerURL:          "http://localhost:8080/",
	}
}

// NewResumeInput creates the input resuming a paused run
func NewResumeInput(
	fv *api.FlowVersion, steps api.StepRefs, pauseRequestID string,
	payload *api.ResumePayload,
) *api.ExecuteFlowInput {
	return &api.ExecuteFlowInput{
		RunID:              TestRunID,
		FlowVersion:        *fv,
		ExecutionType:      api.ExecutionResume,
		ResumePayload:      payload,
		Steps:              steps,
		PauseRequestID:     pauseRequestID,
		ProgressUpdateType: api.ProgressNone,
		ServerURL:          "http://localhost:8080/",
	}
}

// SendProgress records an update
func (r *ProgressRecorder) SendProgress(
	_ context.Context, u *api.ProgressUpdate,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

// Updates returns the recorded updates in order
func (r *ProgressRecorder) Updates() []*api.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*api.ProgressUpdate, len(r.updates))
	copy(res, r.updates)
	return res
}

// settingsOf converts typed settings into the generic form flows carry
func settingsOf(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var res map[string]any
	if err := json.Unmarshal(b, &res); err != nil {
		panic(err)
	}
	return res
}
