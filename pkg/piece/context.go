package piece

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"time"

	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/util"
)

type (
	// KeyValue is a store scoped to a run, shared by its actions
	KeyValue interface {
		Put(ctx context.Context, key string, value any) error
		Get(ctx context.Context, key string) (any, bool, error)
		Delete(ctx context.Context, key string) error
	}

	// Connections resolves named connection secrets
	Connections interface {
		Obtain(ctx context.Context, name string) (any, error)
	}

	// Files uploads generated files and returns a URL for them
	Files interface {
		Write(ctx context.Context, name string, data []byte) (string, error)
	}

	// File is a resolved FILE property
	File struct {
		Filename  string `json:"filename"`
		Extension string `json:"extension,omitempty"`
		Data      []byte `json:"-"`
	}

	// Outcome is the slot written by the stop, pause and respond hooks. The
	// engine inspects it after the action returns. A non-zero PauseLimit is
	// the latest time a delay pause may resume at
	Outcome struct {
		Stopped      bool
		StopResponse any
		Pause        *api.PauseMetadata
		PauseLimit   time.Time
		Responded    bool
		Response     any
		Err          error
	}

	// ActionContext is handed to a running action
	ActionContext struct {
		context.Context

		RunID          string
		ServerURL      string
		PauseRequestID string
		ResumeURL      string
		ExecutionType  api.ExecutionType
		ResumePayload  *api.ResumePayload
		Auth           any
		Props          map[string]any
		Store          KeyValue
		Connections    Connections
		Files          Files
		Tags           *Tags
		Outcome        *Outcome
	}

	// TriggerContext is handed to a trigger lifecycle hook
	TriggerContext struct {
		context.Context

		Auth       any
		Props      map[string]any
		Store      KeyValue
		WebhookURL string
		Payload    any
	}

	// PropertyContext is handed to a dynamic options function
	PropertyContext struct {
		context.Context

		Auth        any
		Input       map[string]any
		SearchValue string
	}

	// AuthContext is handed to an auth validator
	AuthContext struct {
		context.Context

		Auth any
	}

	// Tags accumulates the tags an action attaches to its run
	Tags struct {
		values []string
	}
)

// Stop ends the run successfully after this action, replying with response
func (ac *ActionContext) Stop(response any) {
	ac.Outcome.Stopped = true
	ac.Outcome.StopResponse = response
}

// Pause suspends the run after this action until it is resumed. A delay
// resuming after the pause limit is refused, and the refusal is kept in the
// outcome even if the action drops the returned error
func (ac *ActionContext) Pause(meta api.PauseMetadata) error {
	o := ac.Outcome
	if meta.Type == api.PauseDelay && !o.PauseLimit.IsZero() &&
		meta.ResumeDateTime.After(o.PauseLimit) {
		o.Err = fmt.Errorf("%w: resume at %s is after %s", ErrPauseTooLong,
			meta.ResumeDateTime.Format(time.RFC3339),
			o.PauseLimit.Format(time.RFC3339),
		)
		return o.Err
	}
	o.Pause = &meta
	return nil
}

// Respond sets the synchronous reply of the run without affecting its
// control flow
func (ac *ActionContext) Respond(response any) {
	ac.Outcome.Responded = true
	ac.Outcome.Response = response
}

// IsResume reports whether the action is continuing after a pause
func (ac *ActionContext) IsResume() bool {
	return ac.ExecutionType == api.ExecutionResume
}

// DelayPause describes a pause that resumes at the given time
func DelayPause(at time.Time) api.PauseMetadata {
	return api.PauseMetadata{
		Type:           api.PauseDelay,
		ResumeDateTime: at,
	}
}

// WebhookPause describes a pause that resumes when its webhook is called.
// The engine assigns the request id
func WebhookPause(response any) api.PauseMetadata {
	return api.PauseMetadata{
		Type:     api.PauseWebhook,
		Response: response,
	}
}

// Add appends tags, ignoring any already present
func (t *Tags) Add(tags ...string) {
	t.values = util.AppendUnique(t.values, tags...)
}

// Values returns the accumulated tags in insertion order
func (t *Tags) Values() []string {
	return slices.Clone(t.values)
}

// Base64 returns the file contents encoded for JSON transport
func (f *File) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}
