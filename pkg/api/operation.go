package api

type (
	// OperationType names a unit of work requested by the controller
	OperationType string

	// OperationStatus is the outcome class of an operation
	OperationStatus string

	// OperationResult is returned to the controller for every operation
	OperationResult struct {
		Status   OperationStatus `json:"status"`
		Response any             `json:"response,omitempty"`
		Error    string          `json:"error,omitempty"`
	}

	// ExecutionType distinguishes a fresh run from a resumed one
	ExecutionType string

	// ProgressUpdateType selects how intermediate run state is published
	ProgressUpdateType string

	// ResumePayload is the request that resumed a paused run
	ResumePayload struct {
		Body        any               `json:"body,omitempty"`
		Headers     map[string]string `json:"headers,omitempty"`
		QueryParams map[string]string `json:"queryParams,omitempty"`
	}

	// ExecuteFlowInput requests a full flow run or the resumption of one
	ExecuteFlowInput struct {
		RunID              string             `json:"runId" validate:"required"`
		FlowVersion        FlowVersion        `json:"flowVersion"`
		ProjectID          string             `json:"projectId"`
		ServerURL          string             `json:"serverUrl"`
		EngineToken        string             `json:"engineToken"`
		ExecutionType      ExecutionType      `json:"executionType" validate:"required,oneof=BEGIN RESUME"`
		TriggerPayload     any                `json:"triggerPayload"`
		ResumePayload      *ResumePayload     `json:"resumePayload,omitempty"`
		Steps              StepRefs           `json:"steps,omitempty"`
		PauseRequestID     string             `json:"pauseRequestId,omitempty"`
		ProgressUpdateType ProgressUpdateType `json:"progressUpdateType" default:"NONE"`
		HTTPRequestID      string             `json:"httpRequestId,omitempty"`
	}

	// ExecuteStepInput requests a single step run in test mode against
	// sample outputs of the steps before it
	ExecuteStepInput struct {
		RunID       string                 `json:"runId"`
		FlowVersion FlowVersion            `json:"flowVersion"`
		StepName    string                 `json:"stepName" validate:"required"`
		SampleData  map[string]*StepOutput `json:"sampleData,omitempty"`
		ProjectID   string                 `json:"projectId"`
		ServerURL   string                 `json:"serverUrl"`
		EngineToken string                 `json:"engineToken"`
	}

	// PieceRef addresses a registered piece
	PieceRef struct {
		PieceName    string `json:"pieceName" validate:"required"`
		PieceVersion string `json:"pieceVersion"`
	}

	// ExecutePropertyInput requests the dynamic options of a property
	ExecutePropertyInput struct {
		PieceRef     `json:",squash"`
		ActionName   string         `json:"actionName,omitempty"`
		TriggerName  string         `json:"triggerName,omitempty"`
		PropertyName string         `json:"propertyName" validate:"required"`
		Input        map[string]any `json:"input"`
		SearchValue  string         `json:"searchValue,omitempty"`
	}

	// TriggerHookType names the trigger lifecycle hook to invoke
	TriggerHookType string

	// ExecuteTriggerInput requests one trigger lifecycle hook
	ExecuteTriggerInput struct {
		PieceRef       `json:",squash"`
		TriggerName    string          `json:"triggerName" validate:"required"`
		HookType       TriggerHookType `json:"hookType" validate:"required,oneof=ON_ENABLE ON_DISABLE RUN TEST"`
		Input          map[string]any  `json:"input"`
		TriggerPayload any             `json:"triggerPayload,omitempty"`
		WebhookURL     string          `json:"webhookUrl,omitempty"`
	}

	// ExecuteToolInput runs a piece action directly as a tool call
	ExecuteToolInput struct {
		PieceRef   `json:",squash"`
		ActionName string         `json:"actionName" validate:"required"`
		Input      map[string]any `json:"input"`
	}

	// ExecuteValidateAuthInput checks a piece authentication value
	ExecuteValidateAuthInput struct {
		PieceRef `json:",squash"`
		Auth     any `json:"auth"`
	}

	// ExtractMetadataInput requests the metadata of a piece
	ExtractMetadataInput struct {
		PieceRef `json:",squash"`
	}

	// ToolResult is the outcome of running a piece action as a tool
	ToolResult struct {
		Success bool   `json:"success"`
		Output  any    `json:"output,omitempty"`
		Message string `json:"message,omitempty"`
	}

	// ValidateAuthResult reports whether a piece accepted an auth value
	ValidateAuthResult struct {
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	}

	// PropertyOptions is the outcome of a dynamic options lookup
	PropertyOptions struct {
		Options  any    `json:"options"`
		Disabled bool   `json:"disabled"`
		Message  string `json:"placeholder,omitempty"`
	}

	// RunStatus is the externally reported status of a run
	RunStatus string

	// RunResult is the serialized outcome of a run
	RunResult struct {
		RunID         string                 `json:"runId"`
		Status        RunStatus              `json:"status"`
		Duration      int64                  `json:"duration"`
		StepsCount    int                    `json:"stepsCount"`
		Steps         map[string]*StepOutput `json:"steps"`
		Error         *FailedStep            `json:"error,omitempty"`
		Message       string                 `json:"message,omitempty"`
		PauseMetadata *PauseMetadata         `json:"pauseMetadata,omitempty"`
		Response      any                    `json:"response,omitempty"`
		Tags          []string               `json:"tags"`
	}

	// ProgressUpdate is the one-way notification of intermediate run state
	ProgressUpdate struct {
		RunID      string    `json:"runId"`
		HandlerID  string    `json:"handlerId,omitempty"`
		RequestID  string    `json:"requestId,omitempty"`
		RunDetails RunResult `json:"runDetails"`
	}
)

const (
	OpExecuteFlow          OperationType = "EXECUTE_FLOW"
	OpExecuteStep          OperationType = "EXECUTE_STEP"
	OpExecuteProperty      OperationType = "EXECUTE_PROPERTY"
	OpExecuteTriggerHook   OperationType = "EXECUTE_TRIGGER_HOOK"
	OpExecuteTool          OperationType = "EXECUTE_TOOL"
	OpExecuteValidateAuth  OperationType = "EXECUTE_VALIDATE_AUTH"
	OpExtractPieceMetadata OperationType = "EXTRACT_PIECE_METADATA"
)

const (
	OperationOK            OperationStatus = "OK"
	OperationInternalError OperationStatus = "INTERNAL_ERROR"
)

const (
	ExecutionBegin  ExecutionType = "BEGIN"
	ExecutionResume ExecutionType = "RESUME"
)

const (
	ProgressNone            ProgressUpdateType = "NONE"
	ProgressWebhookResponse ProgressUpdateType = "WEBHOOK_RESPONSE"
	ProgressTestFlow        ProgressUpdateType = "TEST_FLOW"
)

const (
	HookOnEnable  TriggerHookType = "ON_ENABLE"
	HookOnDisable TriggerHookType = "ON_DISABLE"
	HookRun       TriggerHookType = "RUN"
	HookTest      TriggerHookType = "TEST"
)

const (
	RunRunning       RunStatus = "RUNNING"
	RunSucceeded     RunStatus = "SUCCEEDED"
	RunFailed        RunStatus = "FAILED"
	RunPaused        RunStatus = "PAUSED"
	RunTimeout       RunStatus = "TIMEOUT"
	RunStopped       RunStatus = "STOPPED"
	RunInternalError RunStatus = "INTERNAL_ERROR"
)

// OperationSucceeded wraps a response in an OK result
func OperationSucceeded(resp any) *OperationResult {
	return &OperationResult{Status: OperationOK, Response: resp}
}

// OperationFailed wraps an engine error in an INTERNAL_ERROR result
func OperationFailed(err error) *OperationResult {
	return &OperationResult{
		Status: OperationInternalError,
		Error:  err.Error(),
	}
}

// RunStatus derives the externally reported status from a verdict. A run
// that is still running when the executor returns has succeeded
func (v Verdict) RunStatus() RunStatus {
	switch v.Status {
	case VerdictRunning:
		return RunSucceeded
	case VerdictSucceeded:
		if v.Stopped {
			return RunStopped
		}
		return RunSucceeded
	case VerdictFailed:
		return RunFailed
	case VerdictPaused:
		return RunPaused
	case VerdictTimeout:
		return RunTimeout
	default:
		return RunInternalError
	}
}

// IsTerminal reports whether the run status ends the run
func (s RunStatus) IsTerminal() bool {
	return s != RunPaused && s != RunRunning
}
