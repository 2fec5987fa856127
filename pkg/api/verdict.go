package api

import "time"

type (
	// VerdictStatus classifies the in-progress or terminal outcome of a run
	VerdictStatus string

	// Verdict is a tagged union. Only the fields belonging to Status are set
	Verdict struct {
		Status        VerdictStatus  `json:"status"`
		PauseMetadata *PauseMetadata `json:"pauseMetadata,omitempty"`
		Stopped       bool           `json:"stopped,omitempty"`
		StopResponse  any            `json:"stopResponse,omitempty"`
		FailedStep    *FailedStep    `json:"failedStep,omitempty"`
		Message       string         `json:"message,omitempty"`
	}

	// FailedStep names the first step that failed a run
	FailedStep struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		Message     string `json:"message"`
	}

	// PauseType distinguishes delay pauses from webhook pauses
	PauseType string

	// PauseMetadata holds what is needed to resume a paused run
	PauseMetadata struct {
		Type           PauseType `json:"type"`
		ResumeDateTime time.Time `json:"resumeDateTime,omitzero"`
		RequestID      string    `json:"requestId,omitempty"`
		Response       any       `json:"response,omitempty"`
	}
)

const (
	VerdictRunning   VerdictStatus = "RUNNING"
	VerdictPaused    VerdictStatus = "PAUSED"
	VerdictSucceeded VerdictStatus = "SUCCEEDED"
	VerdictFailed    VerdictStatus = "FAILED"
	VerdictTimeout   VerdictStatus = "TIMEOUT"
	VerdictInternal  VerdictStatus = "INTERNAL_ERROR"
)

const (
	PauseDelay   PauseType = "DELAY"
	PauseWebhook PauseType = "WEBHOOK"
)

// Running returns the in-progress verdict
func Running() Verdict {
	return Verdict{Status: VerdictRunning}
}

// Paused returns a verdict carrying the metadata needed to resume
func Paused(meta *PauseMetadata) Verdict {
	return Verdict{Status: VerdictPaused, PauseMetadata: meta}
}

// Succeeded returns a terminal success verdict
func Succeeded() Verdict {
	return Verdict{Status: VerdictSucceeded}
}

// Stopped returns the success verdict of a run a connector stopped early.
// The response may be nil
func Stopped(response any) Verdict {
	return Verdict{
		Status:       VerdictSucceeded,
		Stopped:      true,
		StopResponse: response,
	}
}

// Failed returns a verdict naming the failing step
func Failed(step *FailedStep) Verdict {
	return Verdict{Status: VerdictFailed, FailedStep: step}
}

// TimedOut returns the verdict used when code execution exceeds its limit
func TimedOut(step *FailedStep) Verdict {
	return Verdict{
		Status:     VerdictTimeout,
		FailedStep: step,
		Message:    step.Message,
	}
}

// InternalError returns the verdict for engine-class failures
func InternalError(msg string) Verdict {
	return Verdict{Status: VerdictInternal, Message: msg}
}

// IsRunning reports whether execution may continue
func (v Verdict) IsRunning() bool {
	return v.Status == VerdictRunning
}
