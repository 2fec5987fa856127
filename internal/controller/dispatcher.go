package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/log"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

type (
	// Executor is the engine surface that operations are routed to
	Executor interface {
		ExecuteFlow(
			context.Context, *api.ExecuteFlowInput,
		) (*api.RunResult, error)
		ExecuteStep(
			context.Context, *api.ExecuteStepInput,
		) (*api.StepOutput, error)
		ExecuteProperty(
			context.Context, *api.ExecutePropertyInput,
		) (*api.PropertyOptions, error)
		ExecuteTriggerHook(
			context.Context, *api.ExecuteTriggerInput,
		) (any, error)
		ExecuteTool(
			context.Context, *api.ExecuteToolInput,
		) (*api.ToolResult, error)
		ExecuteValidateAuth(
			context.Context, *api.ExecuteValidateAuthInput,
		) (*api.ValidateAuthResult, error)
		ExtractPieceMetadata(
			context.Context, *api.ExtractMetadataInput,
		) (*piece.Piece, error)
	}

	// Dispatcher decodes operation inputs and routes them to an Executor
	Dispatcher struct {
		exec     Executor
		validate *validator.Validate
		handlers map[api.OperationType]operationHandler
	}

	operationHandler func(context.Context, any) (any, error)
)

var (
	ErrUnknownOperation = errors.New("unknown operation type")
	ErrInvalidInput     = errors.New("invalid operation input")
)

// NewDispatcher creates a Dispatcher over exec
func NewDispatcher(exec Executor) *Dispatcher {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	d := &Dispatcher{
		exec:     exec,
		validate: v,
	}
	d.handlers = map[api.OperationType]operationHandler{
		api.OpExecuteFlow:          handle(d, exec.ExecuteFlow),
		api.OpExecuteStep:          handle(d, exec.ExecuteStep),
		api.OpExecuteProperty:      handle(d, exec.ExecuteProperty),
		api.OpExecuteTriggerHook:   handle(d, exec.ExecuteTriggerHook),
		api.OpExecuteTool:          handle(d, exec.ExecuteTool),
		api.OpExecuteValidateAuth:  handle(d, exec.ExecuteValidateAuth),
		api.OpExtractPieceMetadata: handle(d, exec.ExtractPieceMetadata),
	}
	return d
}

// Dispatch runs one operation. Failures of any kind are reported as an
// INTERNAL_ERROR result rather than returned
func (d *Dispatcher) Dispatch(
	ctx context.Context, op api.OperationType, input any,
) *api.OperationResult {
	h, ok := d.handlers[op]
	if !ok {
		return api.OperationFailed(
			fmt.Errorf("%w: %s", ErrUnknownOperation, op),
		)
	}

	start := time.Now()
	res, err := h(ctx, input)
	if err != nil {
		slog.Error("Operation failed",
			log.Operation(op),
			log.Error(err))
		return api.OperationFailed(err)
	}
	slog.Debug("Operation completed",
		log.Operation(op),
		slog.Duration("duration", time.Since(start)))
	return api.OperationSucceeded(res)
}

// Operations lists the operation types the Dispatcher understands
func (d *Dispatcher) Operations() []api.OperationType {
	res := make([]api.OperationType, 0, len(d.handlers))
	for op := range d.handlers {
		res = append(res, op)
	}
	return res
}

func handle[In, Out any](
	d *Dispatcher, fn func(context.Context, *In) (Out, error),
) operationHandler {
	return func(ctx context.Context, input any) (any, error) {
		var in In
		if err := d.decode(input, &in); err != nil {
			return nil, err
		}
		return fn(ctx, &in)
	}
}

func (d *Dispatcher) decode(input, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return err
	}
	if input != nil {
		if err := dec.Decode(input); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	if err := defaults.Set(target); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := d.validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, describe(err))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("field '%s' failed rule '%s'",
			fe.Field(), fe.Tag())
	}
	return strings.Join(msgs, ", ")
}
