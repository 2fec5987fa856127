package helpers

import "github.com/kode4food/argyll/worker/pkg/api"

// Flow wraps a chain of actions in a flow version
func Flow(first *api.FlowAction) *api.FlowVersion {
	return &api.FlowVersion{
		ID: "test-flow",
		Trigger: &api.FlowTrigger{
			Name:       api.TriggerStepName,
			NextAction: first,
		},
	}
}

// Chain links actions through NextAction and returns the first
func Chain(actions ...*api.FlowAction) *api.FlowAction {
	for i := 0; i+1 < len(actions); i++ {
		actions[i].NextAction = actions[i+1]
	}
	if len(actions) == 0 {
		return nil
	}
	return actions[0]
}

// Code creates a CODE action
func Code(name string, input map[string]any) *api.FlowAction {
	return &api.FlowAction{
		Name: name,
		Type: api.ActionCode,
		Settings: settingsOf(&api.CodeSettings{
			Input: input,
		}),
	}
}

// Piece creates a PIECE action
func Piece(
	name, pieceName, actionName string, input map[string]any,
) *api.FlowAction {
	return &api.FlowAction{
		Name: name,
		Type: api.ActionPiece,
		Settings: settingsOf(&api.PieceSettings{
			PieceName:  pieceName,
			ActionName: actionName,
			Input:      input,
		}),
	}
}

// Branch creates a BRANCH action
func Branch(
	name string, conds [][]api.Condition, onSuccess, onFailure *api.FlowAction,
) *api.FlowAction {
	return &api.FlowAction{
		Name:            name,
		Type:            api.ActionBranch,
		Settings:        settingsOf(&api.BranchSettings{Conditions: conds}),
		OnSuccessAction: onSuccess,
		OnFailureAction: onFailure,
	}
}

// Router creates a ROUTER action whose children parallel its branches
func Router(
	name string, mode api.RouterExecutionType, branches []api.RouterBranch,
	children ...*api.FlowAction,
) *api.FlowAction {
	return &api.FlowAction{
		Name: name,
		Type: api.ActionRouter,
		Settings: settingsOf(&api.RouterSettings{
			ExecutionType: mode,
			Branches:      branches,
		}),
		Children: children,
	}
}

// Loop creates a LOOP_ON_ITEMS action
func Loop(name, items string, body *api.FlowAction) *api.FlowAction {
	return &api.FlowAction{
		Name:            name,
		Type:            api.ActionLoop,
		Settings:        settingsOf(&api.LoopSettings{Items: items}),
		FirstLoopAction: body,
	}
}

// Skipped marks an action as skipped
func Skipped(a *api.FlowAction) *api.FlowAction {
	a.Skip = true
	return a
}

// WithErrorHandling sets the retry and continue-on-failure options of a
// CODE or PIECE action
func WithErrorHandling(
	a *api.FlowAction, retry, continueOnFailure bool,
) *api.FlowAction {
	a.Settings["errorHandlingOptions"] = settingsOf(&api.ErrorHandlingOptions{
		RetryOnFailure:    api.BoolOption{Value: retry},
		ContinueOnFailure: api.BoolOption{Value: continueOnFailure},
	})
	return a
}

// When is a condition branch of a router
func When(name string, conds ...[]api.Condition) api.RouterBranch {
	return api.RouterBranch{
		BranchName: name,
		BranchType: api.RouterBranchCondition,
		Conditions: conds,
	}
}

// Otherwise is the fallback branch of a router
func Otherwise(name string) api.RouterBranch {
	return api.RouterBranch{
		BranchName: name,
		BranchType: api.RouterBranchFallback,
	}
}

// IsTrue is a single condition group that holds when v is truthy
func IsTrue(v any) []api.Condition {
	return []api.Condition{{FirstValue: v, Operator: api.BooleanIsTrue}}
}
