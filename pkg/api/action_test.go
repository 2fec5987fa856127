package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/pkg/api"
)

const yamlFlow = `
id: flow-1
displayName: Example
trigger:
  name: trigger
  nextAction:
    name: route
    type: ROUTER
    settings:
      executionType: EXECUTE_FIRST_MATCH
      branches:
        - branchName: big
          branchType: CONDITION
          conditions:
            - - firstValue: "{{ trigger.size }}"
                secondValue: 10
                operator: NUMBER_IS_GREATER_THAN
        - branchName: otherwise
          branchType: FALLBACK
    children:
      - name: shout
        type: CODE
        settings:
          input:
            size: "{{ trigger.size }}"
          errorHandlingOptions:
            retryOnFailure:
              value: true
      - null
    nextAction:
      name: each
      type: LOOP_ON_ITEMS
      settings:
        items: "{{ trigger.items }}"
      firstLoopAction:
        name: echo
        type: CODE
`

func TestParseFlowVersionYAML(t *testing.T) {
	fv, err := api.ParseFlowVersion([]byte(yamlFlow))
	if !assert.NoError(t, err) {
		return
	}

	route := fv.Trigger.NextAction
	assert.Equal(t, api.ActionRouter, route.Type)
	assert.Len(t, route.Children, 2)
	assert.Nil(t, route.Children[1])

	rs, err := route.RouterSettings()
	if assert.NoError(t, err) {
		assert.Equal(t, api.RouterExecuteFirstMatch, rs.ExecutionType)
		assert.Len(t, rs.Branches, 2)
		assert.True(t, rs.Branches[1].IsFallback())
		assert.Equal(t,
			api.NumberIsGreaterThan, rs.Branches[0].Conditions[0][0].Operator,
		)
	}

	cs, err := route.Children[0].CodeSettings()
	if assert.NoError(t, err) {
		assert.True(t, cs.ErrorHandling.RetryOnFailureEnabled())
		assert.False(t, cs.ErrorHandling.ContinueOnFailureEnabled())
		assert.Equal(t, "{{ trigger.size }}", cs.Input["size"])
	}

	loop := route.NextAction
	ls, err := loop.LoopSettings()
	if assert.NoError(t, err) {
		assert.Equal(t, "{{ trigger.items }}", ls.Items)
	}
	assert.Equal(t, "echo", loop.FirstLoopAction.Name)
}

func TestParseFlowVersionJSON(t *testing.T) {
	data := `{
		"id": "f",
		"trigger": {
			"name": "trigger",
			"nextAction": {"name": "step_1", "type": "CODE", "skip": true}
		}
	}`
	fv, err := api.ParseFlowVersion([]byte(data))
	if assert.NoError(t, err) {
		assert.True(t, fv.Trigger.NextAction.Skip)
		assert.Equal(t, "step_1", fv.Trigger.NextAction.Label())
	}
}

func TestFlowValidation(t *testing.T) {
	_, err := api.ParseFlowVersion([]byte(`{"id": "x"}`))
	assert.ErrorIs(t, err, api.ErrTriggerRequired)

	dup := &api.FlowAction{
		Name: "a", Type: api.ActionCode,
		NextAction: &api.FlowAction{
			Name: "b", Type: api.ActionLoop,
			FirstLoopAction: &api.FlowAction{Name: "a", Type: api.ActionCode},
		},
	}
	assert.ErrorIs(t, dup.Validate(), api.ErrDuplicateActionName)

	bad := &api.FlowAction{Name: "a", Type: "SCRIPT"}
	assert.ErrorIs(t, bad.Validate(), api.ErrInvalidActionType)

	empty := &api.FlowAction{Type: api.ActionCode}
	assert.ErrorIs(t, empty.Validate(), api.ErrActionNameEmpty)

	router := &api.FlowAction{
		Name: "r", Type: api.ActionRouter,
		Settings: map[string]any{
			"branches": []any{
				map[string]any{"branchName": "one"},
			},
		},
		Children: []*api.FlowAction{nil, nil},
	}
	assert.ErrorIs(t, router.Validate(), api.ErrRouterChildren)

	fv := &api.FlowVersion{
		Trigger: &api.FlowTrigger{
			Name:       "trigger",
			NextAction: &api.FlowAction{Name: "trigger", Type: api.ActionCode},
		},
	}
	assert.ErrorIs(t, fv.Validate(), api.ErrDuplicateActionName)
}

func TestDecodeSettingsError(t *testing.T) {
	a := &api.FlowAction{
		Name: "l", Type: api.ActionLoop,
		Settings: map[string]any{"items": []any{1, 2}},
	}
	_, err := a.LoopSettings()
	assert.ErrorIs(t, err, api.ErrInvalidSettings)
}

func TestStepOutputCopies(t *testing.T) {
	so := api.NewStepOutput(api.ActionCode, map[string]any{"a": 1})
	res := so.SetStatus(api.StepFailed).
		SetErrorMessage("nope").
		SetOutput(3).
		SetDuration(7)

	assert.Equal(t, api.StepRunning, so.Status)
	assert.Nil(t, so.Output)
	assert.Equal(t, api.StepFailed, res.Status)
	assert.Equal(t, "nope", res.ErrorMessage)
	assert.Equal(t, 3, res.Output)
	assert.Equal(t, int64(7), res.Duration)
}

func TestLoopSummary(t *testing.T) {
	typed := &api.StepOutput{Output: &api.LoopOutput{Index: 2, Item: "b"}}
	idx, item := typed.LoopSummary()
	assert.Equal(t, 2, idx)
	assert.Equal(t, "b", item)

	decoded := &api.StepOutput{
		Output: map[string]any{"index": float64(3), "item": 6.0},
	}
	idx, item = decoded.LoopSummary()
	assert.Equal(t, 3, idx)
	assert.Equal(t, 6.0, item)

	idx, item = (&api.StepOutput{}).LoopSummary()
	assert.Equal(t, 0, idx)
	assert.Nil(t, item)
}
