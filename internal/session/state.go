package session

// SubmitState is a step in the life of one submission.
type SubmitState int

const (
	StateIdle SubmitState = iota
	StateValidating
	StateDispatching
	StateSettled
)

func (s SubmitState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateDispatching:
		return "dispatching"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// NoticeKind classifies user-visible notices.
type NoticeKind int

const (
	NoticeValidation NoticeKind = iota
	NoticeDispatch
)

func (k NoticeKind) String() string {
	if k == NoticeDispatch {
		return "dispatch"
	}
	return "validation"
}

// Notice is a message the user must see after a refused or failed submit.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

// DispatchError wraps a failure returned by the backend call.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return "failed to send message: " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
