// Package core provides the execution model types shared by the interpreter,
// the flow runner and the batch scheduler.
package core

// TaskStatus represents the lifecycle state of a batch task
type TaskStatus int

const (
	TaskQueued    TaskStatus = iota // Submitted, not started
	TaskRunning                     // At least one worker started
	TaskCompleted                   // Every environment has a result
	TaskCancelled                   // Cancellation requested and drained
	TaskFailed                      // Scheduler-level failure
)

// String returns the string representation of TaskStatus
func (s TaskStatus) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskCancelled, TaskFailed:
		return true
	default:
		return false
	}
}

// MarshalText encodes the status by name so reports stay readable.
func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrorKind classifies failures surfaced by the engine
type ErrorKind int

const (
	ErrKindNone               ErrorKind = iota // No error
	ErrKindInvalidRequest                      // Malformed batch submission
	ErrKindSessionUnavailable                  // Provider could not obtain a browser
	ErrKindElementNotFound                     // Selector/index resolution or every interaction strategy failed
	ErrKindUnsupportedStep                     // Unknown step kind
	ErrKindTimeout                             // Step exceeded its allotted time
	ErrKindFault                               // Unexpected failure during execution
	ErrKindInvalidParams                       // Step is missing a required parameter
	ErrKindCancelled                           // Run context ended between steps
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case ErrKindNone:
		return "none"
	case ErrKindInvalidRequest:
		return "invalid_request"
	case ErrKindSessionUnavailable:
		return "session_unavailable"
	case ErrKindElementNotFound:
		return "element_not_found"
	case ErrKindUnsupportedStep:
		return "unsupported_step"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindFault:
		return "fault"
	case ErrKindInvalidParams:
		return "invalid_params"
	case ErrKindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
