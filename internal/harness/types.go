package harness

// TraceEvent records one applied step.
type TraceEvent struct {
	Seq      int    `json:"seq"`
	Op       string `json:"op"`
	OK       bool   `json:"ok"`
	Changed  bool   `json:"changed"`
	Revision int64  `json:"revision"`
	Code     string `json:"code,omitempty"`
	Selected string `json:"selected,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// Source and Revision describe the document after the flow.
	Source   string `json:"-"`
	Revision int64  `json:"revision"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
