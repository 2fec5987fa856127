package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kode4food/argyll/worker/pkg/util"
)

type (
	// ActionType identifies the kind of a flow action node
	ActionType string

	// FlowAction is a node in the flow tree. Type-specific children are only
	// populated for the matching type
	FlowAction struct {
		Name            string         `json:"name"                      yaml:"name"`
		DisplayName     string         `json:"displayName,omitempty"     yaml:"displayName,omitempty"`
		Type            ActionType     `json:"type"                      yaml:"type"`
		Skip            bool           `json:"skip,omitempty"            yaml:"skip,omitempty"`
		Settings        map[string]any `json:"settings,omitempty"        yaml:"settings,omitempty"`
		NextAction      *FlowAction    `json:"nextAction,omitempty"      yaml:"nextAction,omitempty"`
		OnSuccessAction *FlowAction    `json:"onSuccessAction,omitempty" yaml:"onSuccessAction,omitempty"`
		OnFailureAction *FlowAction    `json:"onFailureAction,omitempty" yaml:"onFailureAction,omitempty"`
		Children        []*FlowAction  `json:"children,omitempty"        yaml:"children,omitempty"`
		FirstLoopAction *FlowAction    `json:"firstLoopAction,omitempty" yaml:"firstLoopAction,omitempty"`
	}

	// FlowTrigger is the root of a flow definition. Its output is the
	// trigger payload and execution begins at its NextAction
	FlowTrigger struct {
		Name        string         `json:"name"                  yaml:"name"`
		DisplayName string         `json:"displayName,omitempty" yaml:"displayName,omitempty"`
		Settings    map[string]any `json:"settings,omitempty"    yaml:"settings,omitempty"`
		NextAction  *FlowAction    `json:"nextAction,omitempty"  yaml:"nextAction,omitempty"`
	}

	// FlowVersion is a complete, serializable flow definition
	FlowVersion struct {
		ID          string       `json:"id"                    yaml:"id"`
		DisplayName string       `json:"displayName,omitempty" yaml:"displayName,omitempty"`
		Trigger     *FlowTrigger `json:"trigger"               yaml:"trigger"`
	}

	// ErrorHandlingOptions configures the retry and continue-on-failure
	// policy of code and piece actions
	ErrorHandlingOptions struct {
		ContinueOnFailure BoolOption `json:"continueOnFailure"`
		RetryOnFailure    BoolOption `json:"retryOnFailure"`
	}

	// BoolOption is a toggle wrapped in an object, as edited by the builder
	BoolOption struct {
		Value bool `json:"value"`
	}

	// CodeSettings configures a CODE action
	CodeSettings struct {
		Input         map[string]any        `json:"input"`
		ErrorHandling *ErrorHandlingOptions `json:"errorHandlingOptions"`
	}

	// PieceSettings configures a PIECE action
	PieceSettings struct {
		PieceName     string                `json:"pieceName"`
		PieceVersion  string                `json:"pieceVersion"`
		ActionName    string                `json:"actionName"`
		Input         map[string]any        `json:"input"`
		ErrorHandling *ErrorHandlingOptions `json:"errorHandlingOptions"`
	}

	// BranchSettings configures a BRANCH action
	BranchSettings struct {
		Conditions [][]Condition `json:"conditions"`
	}

	// LoopSettings configures a LOOP_ON_ITEMS action
	LoopSettings struct {
		Items string `json:"items"`
	}
)

const (
	ActionCode   ActionType = "CODE"
	ActionPiece  ActionType = "PIECE"
	ActionBranch ActionType = "BRANCH"
	ActionRouter ActionType = "ROUTER"
	ActionLoop   ActionType = "LOOP_ON_ITEMS"

	// ActionTrigger only appears as the type of the trigger's step output
	ActionTrigger ActionType = "TRIGGER"

	// TriggerStepName is the step name under which the trigger payload is
	// recorded
	TriggerStepName = "trigger"
)

var (
	ErrActionNameEmpty     = errors.New("action name empty")
	ErrDuplicateActionName = errors.New("duplicate action name")
	ErrInvalidActionType   = errors.New("invalid action type")
	ErrRouterChildren      = errors.New("router children must match branches")
	ErrInvalidSettings     = errors.New("invalid action settings")
	ErrTriggerRequired     = errors.New("flow trigger required")
	ErrInvalidPath         = errors.New("invalid step execution path")
)

var validActionTypes = util.SetOf(
	ActionCode, ActionPiece, ActionBranch, ActionRouter, ActionLoop,
)

// ParseFlowVersion decodes a flow definition from JSON or YAML
func ParseFlowVersion(data []byte) (*FlowVersion, error) {
	var fv FlowVersion
	if json.Valid(data) {
		if err := json.Unmarshal(data, &fv); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &fv); err != nil {
		return nil, err
	}
	if err := fv.Validate(); err != nil {
		return nil, err
	}
	return &fv, nil
}

// Validate checks the structure of the whole flow tree
func (fv *FlowVersion) Validate() error {
	if fv.Trigger == nil {
		return ErrTriggerRequired
	}
	names := util.SetOf(TriggerStepName)
	if fv.Trigger.Name != "" {
		names.Add(fv.Trigger.Name)
	}
	return fv.Trigger.NextAction.validate(names)
}

// Validate checks the structure of an action and everything reachable from
// it
func (a *FlowAction) Validate() error {
	return a.validate(util.Set[string]{})
}

func (a *FlowAction) validate(names util.Set[string]) error {
	for cur := a; cur != nil; cur = cur.NextAction {
		if err := cur.validateNode(names); err != nil {
			return err
		}
		for _, child := range cur.subtrees() {
			if err := child.validate(names); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *FlowAction) validateNode(names util.Set[string]) error {
	if a.Name == "" {
		return ErrActionNameEmpty
	}
	if names.Contains(a.Name) {
		return fmt.Errorf("%w: %s", ErrDuplicateActionName, a.Name)
	}
	names.Add(a.Name)

	if !validActionTypes.Contains(a.Type) {
		return fmt.Errorf("%w: %s", ErrInvalidActionType, a.Type)
	}
	if a.Type != ActionRouter {
		return nil
	}
	settings, err := a.RouterSettings()
	if err != nil {
		return err
	}
	if len(a.Children) != 0 && len(a.Children) != len(settings.Branches) {
		return fmt.Errorf("%w: %s", ErrRouterChildren, a.Name)
	}
	return nil
}

func (a *FlowAction) subtrees() []*FlowAction {
	var res []*FlowAction
	switch a.Type {
	case ActionBranch:
		res = append(res, a.OnSuccessAction, a.OnFailureAction)
	case ActionRouter:
		res = append(res, a.Children...)
	case ActionLoop:
		res = append(res, a.FirstLoopAction)
	}
	return res
}

// FindAction returns the action with the given name anywhere in the flow
func (fv *FlowVersion) FindAction(name string) (*FlowAction, bool) {
	if fv.Trigger == nil {
		return nil, false
	}
	return fv.Trigger.NextAction.find(name)
}

func (a *FlowAction) find(name string) (*FlowAction, bool) {
	for cur := a; cur != nil; cur = cur.NextAction {
		if cur.Name == name {
			return cur, true
		}
		for _, child := range cur.subtrees() {
			if res, ok := child.find(name); ok {
				return res, true
			}
		}
	}
	return nil, false
}

// StepName returns the name under which the trigger output is recorded
func (t *FlowTrigger) StepName() string {
	if t.Name != "" {
		return t.Name
	}
	return TriggerStepName
}

// Label returns the display name, falling back to the action name
func (a *FlowAction) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Name
}

// CodeSettings decodes the settings of a CODE action
func (a *FlowAction) CodeSettings() (*CodeSettings, error) {
	var res CodeSettings
	return &res, a.decodeSettings(&res)
}

// PieceSettings decodes the settings of a PIECE action
func (a *FlowAction) PieceSettings() (*PieceSettings, error) {
	var res PieceSettings
	return &res, a.decodeSettings(&res)
}

// BranchSettings decodes the settings of a BRANCH action
func (a *FlowAction) BranchSettings() (*BranchSettings, error) {
	var res BranchSettings
	return &res, a.decodeSettings(&res)
}

// RouterSettings decodes the settings of a ROUTER action
func (a *FlowAction) RouterSettings() (*RouterSettings, error) {
	var res RouterSettings
	return &res, a.decodeSettings(&res)
}

// LoopSettings decodes the settings of a LOOP_ON_ITEMS action
func (a *FlowAction) LoopSettings() (*LoopSettings, error) {
	var res LoopSettings
	return &res, a.decodeSettings(&res)
}

func (a *FlowAction) decodeSettings(out any) error {
	return DecodeSettings(a.Settings, out)
}

// DecodeSettings decodes a generic settings value (for example a resolved
// template tree) into a typed settings struct using its json tags
func DecodeSettings(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// ContinueOnFailureEnabled reports whether failures should be logged and
// skipped
func (o *ErrorHandlingOptions) ContinueOnFailureEnabled() bool {
	return o != nil && o.ContinueOnFailure.Value
}

// RetryOnFailureEnabled reports whether failures should be retried
func (o *ErrorHandlingOptions) RetryOnFailureEnabled() bool {
	return o != nil && o.RetryOnFailure.Value
}
