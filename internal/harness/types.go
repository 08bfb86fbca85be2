package harness

import "github.com/roach88/orgadmin/internal/ir"

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
)

// OutcomeSuccess is the outcome of a step that returned no error.
const OutcomeSuccess = "Success"

// TraceEvent records one step invocation or its completion.
type TraceEvent struct {
	Type    string      `json:"type"` // "invocation" or "completion"
	Action  string      `json:"action,omitempty"`
	Args    ir.IRObject `json:"args,omitempty"`
	Outcome string      `json:"outcome,omitempty"`
	Result  ir.IRObject `json:"result,omitempty"`
	Seq     int64       `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every invocation and completion in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains the failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Ledger is the transfer records left in the store, ordered by id.
	Ledger []ir.IRObject `json:"ledger,omitempty"`
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

// AddInvocationTrace adds an invocation to the trace.
func (r *Result) AddInvocationTrace(action string, args ir.IRObject, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventInvocation,
		Action: action,
		Args:   args,
		Seq:    seq,
	})
}

// AddCompletionTrace adds a completion to the trace.
func (r *Result) AddCompletionTrace(action, outcome string, result ir.IRObject, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventCompletion,
		Action:  action,
		Outcome: outcome,
		Result:  result,
		Seq:     seq,
	})
}
