package engine_test

import (
	"context"
	"testing"

	"github.com/kode4food/argyll/worker/internal/assert"
	"github.com/kode4food/argyll/worker/internal/assert/helpers"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

func noop(context.Context, map[string]any) (any, error) {
	return "done", nil
}

func registerNoops(env *helpers.TestEngineEnv, names ...string) {
	for _, name := range names {
		env.RegisterCode(name, noop)
	}
}

func registerPauser(t *testing.T, env *helpers.TestEngineEnv) {
	env.RegisterPiece(t, piece.New("pauser", "1.0.0").WithAction(
		piece.NewAction("pause", nil,
			func(ac *piece.ActionContext) (any, error) {
				ac.Pause(piece.WebhookPause(map[string]any{"waiting": true}))
				return nil, nil
			},
		),
	))
}

func TestBranchCaseSensitivity(t *testing.T) {
	tests := []struct {
		name          string
		caseSensitive bool
		taken         string
	}{
		{name: "insensitive", caseSensitive: false, taken: "yes"},
		{name: "sensitive", caseSensitive: true, taken: "no"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
				as := assert.New(t)
				registerNoops(env, "yes", "no")
				fv := helpers.Flow(helpers.Branch("check",
					[][]api.Condition{{{
						FirstValue:    "test",
						SecondValue:   "{{ trigger.value }}",
						Operator:      api.TextExactlyMatches,
						CaseSensitive: tt.caseSensitive,
					}}},
					helpers.Code("yes", nil),
					helpers.Code("no", nil),
				))

				res, err := env.Run(context.Background(), fv, map[string]any{
					"value": "TeSt",
				})
				as.NoError(err)
				as.Equal(api.RunSucceeded, res.Status)
				as.ElementsMatch(
					[]string{"trigger", "check", tt.taken}, keys(res.Steps),
				)
				as.Equal(map[string]any{
					"conditionResult": tt.taken == "yes",
				}, res.Steps["check"].Output)
			})
		})
	}
}

func TestBranchContinuesAfterSubtree(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		registerNoops(env, "inside", "after")
		branch := helpers.Branch("check",
			[][]api.Condition{helpers.IsTrue(true)},
			helpers.Code("inside", nil), nil,
		)
		fv := helpers.Flow(helpers.Chain(branch, helpers.Code("after", nil)))

		res, err := env.Run(context.Background(), fv, nil)
		as.NoError(err)
		as.Equal(api.RunSucceeded, res.Status)
		as.ElementsMatch(
			[]string{"trigger", "check", "inside", "after"}, keys(res.Steps),
		)
		as.Equal(3, res.StepsCount)
	})
}

func TestBranchInvalidSettings(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		fv := helpers.Flow(&api.FlowAction{
			Name:     "check",
			Type:     api.ActionBranch,
			Settings: map[string]any{"conditions": "nope"},
		})

		res, err := env.Run(context.Background(), fv, nil)
		as.NoError(err)
		as.Equal(api.RunFailed, res.Status)
		as.Equal(api.StepFailed, res.Steps["check"].Status)
		if as.NotNil(res.Error) {
			as.Equal("check", res.Error.Name)
		}
	})
}

func TestRouterFirstMatchFallback(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		registerNoops(env, "one", "two", "other")
		fv := helpers.Flow(helpers.Router("route",
			api.RouterExecuteFirstMatch,
			[]api.RouterBranch{
				helpers.When("first", helpers.IsTrue(false)),
				helpers.When("second", helpers.IsTrue("{{ trigger.flag }}")),
				helpers.Otherwise("fallback"),
			},
			helpers.Code("one", nil),
			helpers.Code("two", nil),
			helpers.Code("other", nil),
		))

		res, err := env.Run(context.Background(), fv, map[string]any{
			"flag": false,
		})
		as.NoError(err)
		as.Equal(api.RunSucceeded, res.Status)
		as.ElementsMatch(
			[]string{"trigger", "route", "other"}, keys(res.Steps),
		)
		as.Equal(map[string]any{
			"branches": []any{
				branchResult("first", 0, false),
				branchResult("second", 1, false),
				branchResult("fallback", 2, true),
			},
		}, res.Steps["route"].Output)
	})
}

func TestRouterFirstMatchStops(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		registerNoops(env, "one", "two", "other")
		fv := helpers.Flow(helpers.Router("route",
			api.RouterExecuteFirstMatch,
			[]api.RouterBranch{
				helpers.When("first", helpers.IsTrue(true)),
				helpers.When("second", helpers.IsTrue(true)),
				helpers.Otherwise("fallback"),
			},
			helpers.Code("one", nil),
			helpers.Code("two", nil),
			helpers.Code("other", nil),
		))

		res, err := env.Run(context.Background(), fv, nil)
		as.NoError(err)
		as.ElementsMatch([]string{"trigger", "route", "one"}, keys(res.Steps))
		as.Equal(map[string]any{
			"branches": []any{
				branchResult("first", 0, true),
				branchResult("second", 1, true),
				branchResult("fallback", 2, false),
			},
		}, res.Steps["route"].Output)
	})
}

func TestRouterAllMatch(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		registerNoops(env, "one", "two", "three", "other")
		fv := helpers.Flow(helpers.Router("route",
			api.RouterExecuteAllMatch,
			[]api.RouterBranch{
				helpers.When("first", helpers.IsTrue(true)),
				helpers.When("second", helpers.IsTrue(false)),
				helpers.When("third", helpers.IsTrue(true)),
				helpers.Otherwise("fallback"),
			},
			helpers.Code("one", nil),
			helpers.Code("two", nil),
			helpers.Code("three", nil),
			helpers.Code("other", nil),
		))

		res, err := env.Run(context.Background(), fv, nil)
		as.NoError(err)
		as.Equal(api.RunSucceeded, res.Status)
		as.ElementsMatch(
			[]string{"trigger", "route", "one", "three"}, keys(res.Steps),
		)
	})
}

func TestRouterAllMatchFallback(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		registerNoops(env, "one", "other")
		fv := helpers.Flow(helpers.Router("route",
			api.RouterExecuteAllMatch,
			[]api.RouterBranch{
				helpers.When("first", helpers.IsTrue(false)),
				helpers.Otherwise("fallback"),
			},
			helpers.Code("one", nil),
			helpers.Code("other", nil),
		))

		res, err := env.Run(context.Background(), fv, nil)
		as.NoError(err)
		as.ElementsMatch(
			[]string{"trigger", "route", "other"}, keys(res.Steps),
		)
	})
}

func TestRouterAllMatchPausesOnce(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		as := assert.New(t)
		registerPauser(t, env)
		fv := helpers.Flow(helpers.Router("route",
			api.RouterExecuteAllMatch,
			[]api.RouterBranch{
				helpers.When("first", helpers.IsTrue(true)),
				helpers.When("second", helpers.IsTrue(true)),
			},
			helpers.Piece("wait_one", "pauser", "pause", nil),
			helpers.Piece("wait_two", "pauser", "pause", nil),
		))

		res, err := env.Run(context.Background(), fv, nil)
		as.NoError(err)
		as.Equal(api.RunPaused, res.Status)
		as.ElementsMatch(
			[]string{"trigger", "route", "wait_one"}, keys(res.Steps),
		)
		as.Equal(api.StepPaused, res.Steps["wait_one"].Status)
		if as.NotNil(res.PauseMetadata) {
			as.Equal(api.PauseWebhook, res.PauseMetadata.Type)
			as.NotEmpty(res.PauseMetadata.RequestID)
			as.Equal(
				map[string]any{"waiting": true}, res.PauseMetadata.Response,
			)
		}
	})
}

func branchResult(name string, idx int, eval bool) map[string]any {
	return map[string]any{
		"branchName":  name,
		"branchIndex": float64(idx),
		"evaluation":  eval,
	}
}
