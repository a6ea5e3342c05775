package askdb

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies pipeline failures.
type Kind int

const (
	KindInput Kind = iota + 1
	KindGeneration
	KindValidation
	KindExecution
	KindFormatting
	KindTimeout
	KindCancelled
)

// String returns the error code used in API error envelopes.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "INVALID_INPUT"
	case KindGeneration:
		return "GENERATION_FAILED"
	case KindValidation:
		return "INVALID_SQL"
	case KindExecution:
		return "EXECUTION_FAILED"
	case KindFormatting:
		return "FORMATTING_FAILED"
	case KindTimeout:
		return "TIMEOUT"
	case KindCancelled:
		return "CANCELLED"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is returned by AskDatabase for every failure. Msg carries the
// stage context ("Generated SQL is invalid: ...").
type Error struct {
	Kind  Kind
	Stage Stage
	Msg   string
	// SQL is the statement involved, if any: the rejected candidate for
	// validation failures, the limited statement for execution failures.
	SQL string
	Err error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

// StatusCode maps err to an HTTP status: 400 when the message mentions
// "invalid" or "required", 500 otherwise.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "invalid") || strings.Contains(msg, "required") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func inputError(msg string, err error) *Error {
	return &Error{Kind: KindInput, Stage: StageIdle, Msg: msg, Err: err}
}
