// Package flow handles parsing and representation of RPA flow files.
package flow

// StepErrorPolicy decides what a failing step does to the rest of the flow.
type StepErrorPolicy string

// StepErrorPolicy values
const (
	OnErrorSkip  StepErrorPolicy = "skip"
	OnErrorAbort StepErrorPolicy = "abort"
)

// CompletePolicy decides what happens to browser state after a run.
type CompletePolicy string

// CompletePolicy values
const (
	CompleteKeepState  CompletePolicy = "keepState"
	CompleteClearState CompletePolicy = "clearState"
)

// Flow is an ordered list of steps plus its run policies.
// Owned by the caller; read-only to the engine.
type Flow struct {
	SourcePath         string            `yaml:"-"`
	Name               string            `yaml:"name"`
	OnStepError        StepErrorPolicy   `yaml:"onStepError"`
	OnFlowComplete     CompletePolicy    `yaml:"onFlowComplete"`
	OnFlowCloseBrowser bool              `yaml:"onFlowCloseBrowser"`
	Variables          map[string]string `yaml:"variables"`
	Steps              []Step            `yaml:"steps"`
}

// AbortOnError reports whether a failing step stops the flow.
// Anything other than an explicit skip aborts.
func (f *Flow) AbortOnError() bool {
	return f.OnStepError != OnErrorSkip
}

// ClearStateOnComplete reports whether browser state is wiped after the run.
func (f *Flow) ClearStateOnComplete() bool {
	return f.OnFlowComplete == CompleteClearState
}
