package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindAuthExpired
	KindValidation
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthExpired:
		return "auth_expired"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Sentinels matched by *Error through errors.Is.
var (
	ErrAuthExpired = errors.New("authentication expired")
	ErrValidation  = errors.New("request rejected")
	ErrServer      = errors.New("server error")
	ErrNetwork     = errors.New("network failure")
)

// GenericMessage is shown when the backend gave no message.
const GenericMessage = "Operation failed"

// Error is returned by Gateway.Do for every unsuccessful call. Message is
// the backend's message payload, verbatim.
type Error struct {
	Kind    Kind
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindNetwork:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrAuthExpired:
		return e.Kind == KindAuthExpired
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrServer:
		return e.Kind == KindServer
	case ErrNetwork:
		return e.Kind == KindNetwork
	}
	return false
}

// Message returns the text to show a user for err: the backend's message
// when there is one, otherwise a generic line for the failure kind.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var gerr *Error
	if !errors.As(err, &gerr) {
		return GenericMessage
	}
	if gerr.Message != "" {
		return gerr.Message
	}
	switch gerr.Kind {
	case KindNetwork:
		return "Network error, please try again"
	case KindAuthExpired:
		return "Session expired, please sign in again"
	default:
		return GenericMessage
	}
}

func classify(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthExpired
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// extractMessage reads a failure payload: {"message": "..."}, a JSON
// string, or plain text.
func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Error
	}

	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	return trimmed
}
