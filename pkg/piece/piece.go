package piece

import (
	"maps"

	"github.com/kode4food/argyll/worker/pkg/api"
)

type (
	// RunFunc implements an action. The returned value becomes the step
	// output unless a hook redirects the run
	RunFunc func(*ActionContext) (any, error)

	// TriggerFunc implements one trigger lifecycle hook
	TriggerFunc func(*TriggerContext) (any, error)

	// AuthValidateFunc checks a resolved authentication value
	AuthValidateFunc func(*AuthContext) error

	// Piece is a versioned connector
	Piece struct {
		Name        string              `json:"name"`
		DisplayName string              `json:"displayName"`
		Version     string              `json:"version"`
		Auth        *Property           `json:"auth,omitempty"`
		Actions     map[string]*Action  `json:"actions"`
		Triggers    map[string]*Trigger `json:"triggers"`
	}

	// Action is a named operation of a piece
	Action struct {
		Name        string     `json:"name"`
		DisplayName string     `json:"displayName"`
		Description string     `json:"description,omitempty"`
		Props       Properties `json:"props"`
		RequireAuth bool       `json:"requireAuth"`
		Run         RunFunc    `json:"-"`
		Test        RunFunc    `json:"-"`
	}

	// TriggerType describes how a trigger receives events
	TriggerType string

	// Trigger is a named event source of a piece
	Trigger struct {
		Name        string      `json:"name"`
		DisplayName string      `json:"displayName"`
		Description string      `json:"description,omitempty"`
		Type        TriggerType `json:"type"`
		Props       Properties  `json:"props"`
		OnEnable    TriggerFunc `json:"-"`
		OnDisable   TriggerFunc `json:"-"`
		Run         TriggerFunc `json:"-"`
		Test        TriggerFunc `json:"-"`
	}
)

const (
	TriggerPolling TriggerType = "POLLING"
	TriggerWebhook TriggerType = "WEBHOOK"
)

// New creates an empty piece definition
func New(name, version string) *Piece {
	return &Piece{
		Name:        name,
		DisplayName: name,
		Version:     version,
		Actions:     map[string]*Action{},
		Triggers:    map[string]*Trigger{},
	}
}

// WithDisplayName returns a copy of the piece with a display name
func (p *Piece) WithDisplayName(name string) *Piece {
	res := *p
	res.DisplayName = name
	return &res
}

// WithVersion returns a copy of the piece with a different version
func (p *Piece) WithVersion(version string) *Piece {
	res := *p
	res.Version = version
	return &res
}

// WithAuth returns a copy of the piece requiring the given authentication
// property
func (p *Piece) WithAuth(auth *Property) *Piece {
	res := *p
	res.Auth = auth
	return &res
}

// WithAction returns a copy of the piece with the action added
func (p *Piece) WithAction(a *Action) *Piece {
	res := *p
	res.Actions = maps.Clone(p.Actions)
	res.Actions[a.Name] = a
	return &res
}

// WithTrigger returns a copy of the piece with the trigger added
func (p *Piece) WithTrigger(t *Trigger) *Piece {
	res := *p
	res.Triggers = maps.Clone(p.Triggers)
	res.Triggers[t.Name] = t
	return &res
}

// NewAction creates an action that runs fn for both live and test runs
func NewAction(name string, props Properties, fn RunFunc) *Action {
	return &Action{
		Name:        name,
		DisplayName: name,
		Props:       props,
		Run:         fn,
		Test:        fn,
	}
}

// WithTest returns a copy of the action with a dedicated test function
func (a *Action) WithTest(fn RunFunc) *Action {
	res := *a
	res.Test = fn
	return &res
}

// WithAuthRequired returns a copy of the action that requires auth
func (a *Action) WithAuthRequired() *Action {
	res := *a
	res.RequireAuth = true
	return &res
}

// Runner returns the function to invoke for a live or test run
func (a *Action) Runner(test bool) RunFunc {
	if test && a.Test != nil {
		return a.Test
	}
	return a.Run
}

// Hook returns the trigger function for the named lifecycle hook
func (t *Trigger) Hook(typ api.TriggerHookType) TriggerFunc {
	switch typ {
	case api.HookOnEnable:
		return t.OnEnable
	case api.HookOnDisable:
		return t.OnDisable
	case api.HookRun:
		return t.Run
	case api.HookTest:
		if t.Test != nil {
			return t.Test
		}
		return t.Run
	default:
		return nil
	}
}

// Property returns the named action or auth property, searching the action
// properties first
func (p *Piece) Property(action *Action, name string) (*Property, bool) {
	if action != nil {
		if prop, ok := action.Props[name]; ok {
			return prop, true
		}
	}
	if p.Auth != nil && p.Auth.Name == name {
		return p.Auth, true
	}
	return nil, false
}
