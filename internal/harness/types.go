package harness

// TraceEvent is the outcome of one row of one step, or the failure of a step.
type TraceEvent struct {
	Step        int    `json:"step"`
	Txn         string `json:"txn,omitempty"`
	Collection  string `json:"collection,omitempty"`
	ID          string `json:"id,omitempty"`
	Action      string `json:"action,omitempty"`
	ChangeCount int64  `json:"change_count,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the outcomes of all steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
