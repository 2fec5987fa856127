package engine

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kode4food/argyll/worker/internal/config"
	"github.com/kode4food/argyll/worker/internal/engine/props"
	"github.com/kode4food/argyll/worker/internal/engine/sandbox"
	"github.com/kode4food/argyll/worker/internal/store"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

type (
	// Engine executes flow runs and piece operations
	Engine struct {
		id          string
		config      *config.Config
		steps       store.StepStore
		keyValues   store.KeyValues
		connections piece.Connections
		files       piece.Files
		pieces      *piece.Registry
		loader      *sandbox.Loader
		sandbox     sandbox.Sandbox
		resolver    *props.Resolver
		processor   *props.Processor
		progress    ProgressSink
		archive     RunArchiver
		now         func() time.Time
	}

	// Dependencies are the collaborators an Engine is built from. Nil
	// members are replaced by in-memory or default implementations
	Dependencies struct {
		Steps       store.StepStore
		KeyValues   store.KeyValues
		Connections piece.Connections
		Files       piece.Files
		Pieces      *piece.Registry
		Code        *sandbox.Registry
		Sandbox     sandbox.Sandbox
		FileLoader  props.FileLoader
		Expressions props.ExpressionSandbox
		Progress    ProgressSink
		Archive     RunArchiver
	}

	// RunArchiver keeps the results of finished runs
	RunArchiver interface {
		Archive(ctx context.Context, res *api.RunResult) error
	}

	// Constants are fixed for the duration of one operation
	Constants struct {
		RunID              string
		ProjectID          string
		ServerURL          string
		EngineToken        string
		CodeDirectory      string
		FlowVersion        *api.FlowVersion
		ExecutionType      api.ExecutionType
		ResumePayload      *api.ResumePayload
		ProgressUpdateType api.ProgressUpdateType
		TestSingleStep     bool
		StepNameToTest     string
		Progress           *Progress
	}
)

var (
	ErrUnimplementedActionType = errors.New("unimplemented action type")
	ErrStepNotInFlow           = errors.New("step not found in flow")
	ErrPauseTooLong            = piece.ErrPauseTooLong
	ErrItemsNotList = errors.New(
		"The items you have selected must be a list.",
	)
	ErrPropertyNoOptions = errors.New("property has no options")
)

// New creates an engine from cfg and deps
func New(cfg *config.Config, deps Dependencies) *Engine {
	if deps.Steps == nil {
		deps.Steps = store.NewMemoryStepStore()
	}
	if deps.KeyValues == nil {
		deps.KeyValues = store.NewMemoryKeyValues()
	}
	if deps.Pieces == nil {
		deps.Pieces = piece.NewRegistry()
	}
	if deps.Sandbox == nil {
		deps.Sandbox = sandbox.New(
			cfg.SandboxMode, deps.Code, sandbox.DefaultLimits(),
		)
	}
	if deps.Expressions == nil {
		deps.Expressions = expressionSandbox(cfg.Expressions)
	}
	if deps.FileLoader == nil {
		deps.FileLoader = props.NewHTTPFileLoader(
			http.DefaultClient, int64(cfg.MaxFileSize),
		)
	}
	return &Engine{
		id:          uuid.NewString(),
		config:      cfg,
		steps:       deps.Steps,
		keyValues:   deps.KeyValues,
		connections: deps.Connections,
		files:       deps.Files,
		pieces:      deps.Pieces,
		loader:      sandbox.NewLoader(deps.Code),
		sandbox:     deps.Sandbox,
		resolver:    props.NewResolver(deps.Expressions),
		processor:   props.NewProcessor(deps.FileLoader),
		progress:    deps.Progress,
		archive:     deps.Archive,
		now:         time.Now,
	}
}

func expressionSandbox(
	lang config.ExpressionLanguage,
) props.ExpressionSandbox {
	switch lang {
	case config.ExpressionJS:
		return props.NewJSSandbox(0)
	case config.ExpressionAle:
		return props.NewAleSandbox()
	default:
		return props.ExprSandbox{}
	}
}

// ID identifies this engine instance in progress updates
func (e *Engine) ID() string {
	return e.id
}

// Pieces returns the piece registry the engine dispatches to
func (e *Engine) Pieces() *piece.Registry {
	return e.pieces
}

// Steps returns the step store the engine records into
func (e *Engine) Steps() store.StepStore {
	return e.steps
}

// report pushes a progress snapshot if progress is enabled
func (c *Constants) report(ctx context.Context, fc *api.FlowContext) {
	if c.Progress != nil {
		c.Progress.Report(ctx, fc)
	}
}
