package harness

// Trace event types.
const (
	EventConnect = "connect"
	EventStep    = "step"
	EventDiff    = "diff"
	EventCommit  = "commit"
	EventRestore = "restore"
	EventError   = "error"
)

// TraceEvent is one stage of a scenario run.
type TraceEvent struct {
	Type    string         `json:"type"`
	Seq     int64          `json:"seq"`
	Details map[string]any `json:"details,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expected error (if any) occurred and all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every stage of the run in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	seq int64
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
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

// AddEvent appends an event with the next sequence number.
func (r *Result) AddEvent(eventType string, details map[string]any) {
	r.seq++
	r.Trace = append(r.Trace, TraceEvent{
		Type:    eventType,
		Seq:     r.seq,
		Details: details,
	})
}

// Events returns the events of the given type.
func (r *Result) Events(eventType string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
