package flux

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can pick the right user action
// without string-matching messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindEndpoint
	KindConnectivity
	KindTimeout
	KindBackend
	KindModelsLoading
	KindNotFound
)

// Error is the typed failure surfaced by the transport and orchestration
// layers. Message is short and human-readable; Detail carries any
// backend-supplied explanation.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Message, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

// KindOf returns the kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// UserMessage resolves err to a short actionable sentence. Distinct
// failure classes demand distinct user actions, so the wording stays
// specific rather than generic.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if !errors.As(err, &fe) {
		return "Something went wrong: " + err.Error()
	}
	switch fe.Kind {
	case KindValidation:
		if fe.Detail != "" {
			return "Invalid parameters: " + fe.Detail
		}
		return "Invalid parameters. Check your prompt and settings."
	case KindEndpoint:
		return "Endpoint problem: " + fe.Message
	case KindConnectivity:
		return "Cannot reach the backend. Check the endpoint URL and your network."
	case KindTimeout:
		return "The request timed out. The backend may be overloaded."
	case KindModelsLoading:
		return "Models are still loading. Try again in a minute."
	case KindBackend:
		if fe.Detail != "" {
			return "Backend error: " + fe.Detail
		}
		return "The backend reported an internal error."
	case KindNotFound:
		return "The backend no longer knows this job."
	default:
		return "Something went wrong: " + fe.Message
	}
}
