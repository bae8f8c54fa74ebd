package harness

// TraceEvent records one executed step. Addresses appear as aliases.
type TraceEvent struct {
	// Index is the 1-based step number.
	Index int `json:"index"`

	Op  string `json:"op"`
	Ref string `json:"ref,omitempty"`
	As  string `json:"as,omitempty"`

	// Outcome is "ok" or the chain error code the step failed with.
	Outcome string `json:"outcome"`

	Result map[string]any `json:"result,omitempty"`
}

// OutcomeOK marks a step that returned no error.
const OutcomeOK = "ok"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult returns a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
