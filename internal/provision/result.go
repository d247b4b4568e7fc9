package provision

// Step names in pipeline order.
const (
	StepInfra     = "infrastructure"
	StepBlueprint = "blueprint"
	StepEndpoint  = "endpoint"
)

// Status of one pipeline step.
type Status int

const (
	StatusSkipped Status = iota
	StatusOK
	StatusWarn
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarn:
		return "WARN"
	case StatusFailed:
		return "FAILED"
	default:
		return "SKIPPED"
	}
}

// StepResult is the outcome of a single pipeline step. Each step records its
// result exactly once.
type StepResult struct {
	Name   string
	Status Status
	// AlreadyExisted distinguishes "configured" from "created" in the
	// summary.
	AlreadyExisted bool
	Detail         string
	// Remedy is the command that re-runs only this step.
	Remedy string
}

// Result aggregates a full pipeline run. Created fresh per run; consumed at
// the end to render the summary and decide the exit code.
type Result struct {
	Steps    []StepResult
	Errors   []string
	Warnings []string
}

// Record appends a step outcome.
func (r *Result) Record(step StepResult) {
	r.Steps = append(r.Steps, step)
}

// AddError records a step-scoped error message.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddWarning records a non-fatal condition.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Failed reports whether the run should exit non-zero.
func (r *Result) Failed() bool {
	return len(r.Errors) > 0
}

// Step returns the recorded result for a step name, if present.
func (r *Result) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
