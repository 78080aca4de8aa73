package detection

import (
	stderrors "errors"
	"fmt"

	"ai-sentinel/internal/platform/errors"
)

// ErrAnalysisFailed matches every failure returned by Analyze via errors.Is.
var ErrAnalysisFailed = stderrors.New("analysis failed")

// ValidationError rejects a request before any network activity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RemoteError reports a non-success response from the inference endpoint.
type RemoteError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote endpoint returned %s", e.Status)
	}
	return fmt.Sprintf("remote endpoint returned %s: %s", e.Status, e.Body)
}

// NetworkError reports a transport level failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError reports a success response whose body does not match the schema.
type ParseError struct {
	Schema string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s response: %s: %v", e.Schema, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s response: %s", e.Schema, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// AnalysisError is the single failure outcome of Analyze.
type AnalysisError struct {
	Kind  errors.Kind
	Cause error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed (%s): %v", e.Kind, e.Cause)
}

func (e *AnalysisError) Unwrap() error { return e.Cause }

func (e *AnalysisError) Is(target error) bool { return target == ErrAnalysisFailed }

func failed(cause error) error {
	if cause == nil {
		return nil
	}
	var existing *AnalysisError
	if stderrors.As(cause, &existing) {
		return existing
	}
	return &AnalysisError{Kind: classify(cause), Cause: cause}
}

func classify(err error) errors.Kind {
	var (
		validation *ValidationError
		remote     *RemoteError
		network    *NetworkError
		parse      *ParseError
	)
	switch {
	case stderrors.As(err, &validation):
		return errors.KindValidation
	case stderrors.As(err, &remote):
		return errors.KindRemote
	case stderrors.As(err, &network):
		return errors.KindNetwork
	case stderrors.As(err, &parse):
		return errors.KindParse
	default:
		return errors.KindUnknown
	}
}

// FailureKind reports the kind of an Analyze failure, or KindUnknown.
func FailureKind(err error) errors.Kind {
	var analysis *AnalysisError
	if stderrors.As(err, &analysis) {
		return analysis.Kind
	}
	return classify(err)
}
