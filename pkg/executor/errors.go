package executor

import (
	"errors"
	"fmt"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/locator"
	"github.com/entrhq/pilot/pkg/workflow"
)

var (
	// ErrNoAvailableIdentifier is returned when every allocation candidate was rejected.
	ErrNoAvailableIdentifier = errors.New("no available identifier")
	// ErrCancelled marks runs stopped by Cancel or context end.
	ErrCancelled = errors.New("run cancelled")
	// ErrBranchUnresolved reports a conditioned slot without a matching or default branch.
	ErrBranchUnresolved = workflow.ErrBranchUnresolved
)

// Kind classifies step failures.
type Kind string

const (
	KindElementNotFound Kind = "element_not_found"
	KindActionTimeout   Kind = "action_timeout"
	KindActionFailed    Kind = "action_failed"
	KindActionRejected  Kind = "action_rejected"
	KindConfiguration   Kind = "configuration"
	KindCancelled       Kind = "cancelled"
	KindInternal        Kind = "internal"
)

// Retryable reports whether a failure of this kind is retried within a step.
func (k Kind) Retryable() bool {
	switch k {
	case KindElementNotFound, KindActionTimeout, KindActionFailed, KindActionRejected:
		return true
	}
	return false
}

// Error is a classified run or step failure.
type Error struct {
	Kind    Kind
	StepID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.StepID != "" {
		msg = fmt.Sprintf("step %s: %s", e.StepID, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, step *workflow.Step, message string, cause error) *Error {
	e := &Error{Kind: kind, Message: message, Cause: cause}
	if step != nil {
		e.StepID = step.ID
	}
	return e
}

// classify maps an action error from the browser layer or the definition layer to a
// step error.
func classify(step *workflow.Step, op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, workflow.ErrConfiguration), errors.Is(err, locator.ErrUnknownLocator):
		return newError(KindConfiguration, step, op, err)
	case browser.IsTimeout(err):
		return newError(KindActionTimeout, step, op, err)
	}
	return newError(KindActionFailed, step, op, err)
}
