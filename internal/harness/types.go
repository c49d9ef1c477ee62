package harness

// Scenario is a YAML-defined end-to-end property test (§8's S1-S6),
// grounded on the teacher's harness.Scenario shape (name/description
// plus a parameter bag) but generalized from a fixed invoke/expect flow
// to a Kind-dispatched table: ReplayKit's six scenarios each exercise a
// different pair of core operations (record+replay, diff,
// redaction+replay, replay+network-guard, migrate, read+tamper) rather
// than one uniform action-invocation flow.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Kind        string         `yaml:"kind"`
	Params      map[string]any `yaml:"params"`
}

// Result is the outcome of running a Scenario — generalized from the
// teacher's Result (Pass/Trace/Errors/State) by dropping the
// IR-specific Trace/State fields (ReplayKit has no invocation/
// completion trace to replay) in favor of a free-form Details bag each
// scenario populates with whatever it needs to report.
type Result struct {
	Pass    bool           `yaml:"pass"`
	Errors  []string       `yaml:"errors,omitempty"`
	Details map[string]any `yaml:"details,omitempty"`
}

// NewResult starts from a passing result, as the teacher's
// harness.NewResult does.
func NewResult() *Result {
	return &Result{Pass: true, Details: map[string]any{}}
}

// AddError records a failure and flips Pass to false.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}
