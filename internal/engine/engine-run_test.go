package engine_test

import (
	"context"
	"testing"

	testify "github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/internal/assert"
	"github.com/kode4food/argyll/worker/internal/assert/helpers"
	"github.com/kode4food/argyll/worker/internal/engine"
	"github.com/kode4food/argyll/worker/internal/services"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

func TestExecuteFlowInvalid(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		fv := helpers.Flow(helpers.Chain(
			helpers.Code("same", nil),
			helpers.Code("same", nil),
		))
		_, err := env.Run(context.Background(), fv, nil)
		testify.ErrorIs(t, err, api.ErrDuplicateActionName)

		_, err = env.Run(context.Background(), &api.FlowVersion{}, nil)
		testify.ErrorIs(t, err, api.ErrTriggerRequired)
	})
}

func TestExecuteFlowNamedTrigger(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		env.RegisterCode("read", func(_ context.Context, in map[string]any) (
			any, error,
		) {
			return in["v"], nil
		})
		fv := helpers.Flow(helpers.Code("read", map[string]any{
			"v": "{{ webhook.body }}",
		}))
		fv.Trigger.Name = "webhook"

		res, err := env.Run(context.Background(), fv, map[string]any{
			"body": "hello",
		})
		as.NoError(err)
		as.Contains(res.Steps, "webhook")
		as.Equal("hello", res.Steps["read"].Output)
	})
}

func TestExecuteFlowArchived(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		ctx := context.Background()
		key := services.ArchiveKey(helpers.TestArchivePrefix, helpers.TestRunID)

		env.RegisterCode("finish", func(context.Context, map[string]any) (
			any, error,
		) {
			return "done", nil
		})
		fv := helpers.Flow(helpers.Code("finish", nil))

		res, err := env.Run(ctx, fv, nil)
		as.NoError(err)
		as.Equal(api.RunSucceeded, res.Status)

		ok, err := env.Archive.Exists(ctx, key)
		as.NoError(err)
		as.True(ok)
	})
}

func TestExecuteStepWithSamples(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		firstCalls := 0
		env.RegisterCode("first", func(context.Context, map[string]any) (
			any, error,
		) {
			firstCalls++
			return nil, nil
		})
		env.RegisterCode("second", double)
		fv := helpers.Flow(helpers.Chain(
			helpers.Code("first", nil),
			helpers.Code("second", map[string]any{"n": "{{ first.value }}"}),
			helpers.Code("third", nil),
		))

		out, err := env.Engine.ExecuteStep(context.Background(),
			&api.ExecuteStepInput{
				FlowVersion: *fv,
				StepName:    "second",
				SampleData: map[string]*api.StepOutput{
					"first": {
						Type:   api.ActionCode,
						Output: map[string]any{"value": 7},
					},
					"second": {Type: api.ActionCode, Output: "stale"},
				},
			},
		)
		as.NoError(err)
		as.Zero(firstCalls)
		if as.NotNil(out) {
			as.Equal(api.StepSucceeded, out.Status)
			as.Equal(14.0, out.Output)
			as.Equal(map[string]any{"n": 7.0}, out.Input)
		}
	})
}

func TestExecuteStepUsesTestFunction(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		env.RegisterPiece(t, piece.New("mail", "1.0.0").WithAction(
			piece.NewAction("send", nil,
				func(*piece.ActionContext) (any, error) {
					return "sent", nil
				},
			).WithTest(func(*piece.ActionContext) (any, error) {
				return "sample", nil
			}),
		))
		fv := helpers.Flow(helpers.Piece("send", "mail", "send", nil))

		out, err := env.Engine.ExecuteStep(context.Background(),
			&api.ExecuteStepInput{FlowVersion: *fv, StepName: "send"},
		)
		as.NoError(err)
		if as.NotNil(out) {
			as.Equal("sample", out.Output)
		}
	})
}

func TestExecuteStepLoopSetupOnly(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		calls := 0
		env.RegisterCode("body", func(context.Context, map[string]any) (
			any, error,
		) {
			calls++
			return nil, nil
		})
		fv := helpers.Flow(helpers.Loop("loop", "{{ trigger.items }}",
			helpers.Code("body", nil),
		))

		out, err := env.Engine.ExecuteStep(context.Background(),
			&api.ExecuteStepInput{
				FlowVersion: *fv,
				StepName:    "loop",
				SampleData: map[string]*api.StepOutput{
					"trigger": {
						Type:   api.ActionTrigger,
						Output: map[string]any{"items": []any{"x", "y"}},
					},
				},
			},
		)
		as.NoError(err)
		as.Zero(calls)
		if as.NotNil(out) {
			lo := loopOutput(as, out)
			as.Equal(1, lo.Index)
			as.Equal("x", lo.Item)
			as.Len(lo.Iterations, 1)
		}
	})
}

func TestExecuteStepNoRetry(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		calls := 0
		env.RegisterCode("flaky", failingTimes(100, &calls))
		fv := helpers.Flow(helpers.WithErrorHandling(
			helpers.Code("flaky", nil), true, true,
		))

		out, err := env.Engine.ExecuteStep(context.Background(),
			&api.ExecuteStepInput{FlowVersion: *fv, StepName: "flaky"},
		)
		as.NoError(err)
		as.Equal(1, calls)
		if as.NotNil(out) {
			as.Equal(api.StepFailed, out.Status)
			as.Equal(errFlaky.Error(), out.ErrorMessage)
		}
	})
}

func TestExecuteStepUnknown(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		fv := helpers.Flow(helpers.Code("only", nil))
		_, err := env.Engine.ExecuteStep(context.Background(),
			&api.ExecuteStepInput{FlowVersion: *fv, StepName: "other"},
		)
		testify.ErrorIs(t, err, engine.ErrStepNotInFlow)
	})
}
