package engine

import (
	"errors"
	"fmt"

	"github.com/ledgerline-ai/bulwark/internal/fieldpath"
)

// Kind classifies an evaluation error. All per-guardrail failures
// surface as an *EvalError with one of these kinds, so callers can
// handle them generically or switch on the specific kind.
type Kind uint8

const (
	KindUnspecified Kind = iota
	KindFieldPath        // path syntax, missing key, bad index, type mismatch
	KindCondition        // check logic failure not tied to a single path
	KindAction           // action could not be applied
	KindJudge            // external LLM judge failed or timed out
)

// String returns the lowercase kind name (used in audit entries).
func (k Kind) String() string {
	switch k {
	case KindFieldPath:
		return "field_path_resolution"
	case KindCondition:
		return "condition_evaluation"
	case KindAction:
		return "action_execution"
	case KindJudge:
		return "llm_judge"
	default:
		return "unspecified"
	}
}

// EvalError is the common evaluation-error type. It is always contained
// to one guardrail's result and never converted into a compliant
// outcome.
type EvalError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *EvalError) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
		}
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *EvalError) Unwrap() error { return e.Err }

var errJudgeNotConfigured = errors.New("no judge client configured")

func conditionError(format string, args ...any) *EvalError {
	return &EvalError{Kind: KindCondition, Msg: fmt.Sprintf(format, args...)}
}

func actionError(format string, args ...any) *EvalError {
	return &EvalError{Kind: KindAction, Msg: fmt.Sprintf(format, args...)}
}

func judgeError(err error) *EvalError {
	return &EvalError{Kind: KindJudge, Err: err}
}

// wrapEvalError classifies an arbitrary error from check evaluation.
// fieldpath resolution failures keep their own kind; anything already
// an *EvalError passes through.
func wrapEvalError(err error) *EvalError {
	var evalErr *EvalError
	if errors.As(err, &evalErr) {
		return evalErr
	}
	var resErr *fieldpath.ResolutionError
	if errors.As(err, &resErr) {
		return &EvalError{Kind: KindFieldPath, Err: err}
	}
	return &EvalError{Kind: KindCondition, Err: err}
}

// KindOf extracts the Kind from an error chain, or KindUnspecified.
func KindOf(err error) Kind {
	var evalErr *EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Kind
	}
	return KindUnspecified
}
