package diag

import (
	"fmt"
	"strings"
)

// Severity classifies a Diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Kind is a stable error-category code, in the spirit of the teacher's
// DevCmdError.Type constants, extended with the categories of §7.
type Kind string

const (
	KindTypeMismatch      Kind = "TYPE_MISMATCH"
	KindCoercionFailure   Kind = "COERCION_FAILURE"
	KindUnknownName       Kind = "UNKNOWN_NAME"
	KindUnknownNamespace  Kind = "UNKNOWN_NAMESPACE"
	KindRecursiveCall     Kind = "RECURSIVE_WORKFLOW_CALL"
	KindPathNotFound      Kind = "PATH_NOT_FOUND"
	KindBackendAdmission  Kind = "BACKEND_ADMISSION"
	KindBackendTransient  Kind = "BACKEND_TRANSIENT"
	KindBackendPermanent  Kind = "BACKEND_PERMANENT"
	KindTaskNonZeroExit   Kind = "TASK_NON_ZERO_EXIT"
	KindCancelled         Kind = "CANCELLED"
	KindDivisionByZero    Kind = "DIVISION_BY_ZERO"
	KindNumericOutOfRange Kind = "NUMERIC_OUT_OF_RANGE"
	KindIO                Kind = "IO_ERROR"
)

// LabelledSpan is a secondary span with an explanatory label, used to
// point at "the other side" of a type mismatch or an offending
// requirement.
type LabelledSpan struct {
	Span  Span
	Label string
}

// Frame is one entry of a cross-document call backtrace (§9): the
// location of the call keyword in the caller that led into the
// document where the diagnostic originated.
type Frame struct {
	Document string
	CallSpan Span
	CallName string
}

// Diagnostic is the engine's single error type. It implements error and
// Unwrap so it composes with fmt.Errorf("...: %w", ...) and errors.As.
type Diagnostic struct {
	Kind      Kind
	Severity  Severity
	Message   string
	Primary   Span
	Secondary []LabelledSpan
	Backtrace []Frame
	Cause     error
}

func New(kind Kind, primary Span, message string) *Diagnostic {
	return &Diagnostic{Kind: kind, Severity: SeverityError, Primary: primary, Message: message}
}

func Newf(kind Kind, primary Span, format string, args ...any) *Diagnostic {
	return New(kind, primary, fmt.Sprintf(format, args...))
}

func Wrap(kind Kind, primary Span, message string, cause error) *Diagnostic {
	d := New(kind, primary, message)
	d.Cause = cause
	return d
}

func (d *Diagnostic) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s: %s", d.Severity, d.Kind, d.Message)
	if !d.Primary.IsZero() {
		fmt.Fprintf(&b, " (%s)", d.Primary)
	}
	if d.Cause != nil {
		fmt.Fprintf(&b, ": %v", d.Cause)
	}
	for _, f := range d.Backtrace {
		fmt.Fprintf(&b, "\n  called from %s at %s (%s)", f.Document, f.CallSpan, f.CallName)
	}
	return b.String()
}

func (d *Diagnostic) Unwrap() error { return d.Cause }

// WithSecondary attaches a labelled secondary span and returns d for chaining.
func (d *Diagnostic) WithSecondary(span Span, label string) *Diagnostic {
	d.Secondary = append(d.Secondary, LabelledSpan{Span: span, Label: label})
	return d
}

// AsWarning downgrades the diagnostic's severity in place and returns d.
func (d *Diagnostic) AsWarning() *Diagnostic {
	d.Severity = SeverityWarning
	return d
}

// PropagateFrom records that this diagnostic (originating in a callee
// document) is surfacing through a call site in a caller document; the
// chain grows as failures propagate upward (§9).
func (d *Diagnostic) PropagateFrom(document string, callSpan Span, callName string) *Diagnostic {
	d.Backtrace = append(d.Backtrace, Frame{Document: document, CallSpan: callSpan, CallName: callName})
	return d
}

// Is supports errors.Is comparisons against a bare Kind sentinel pattern:
// errors.Is(err, diag.New(diag.KindCancelled, diag.Span{}, "")) compares Kind only.
func (d *Diagnostic) Is(target error) bool {
	other, ok := target.(*Diagnostic)
	if !ok {
		return false
	}
	return other.Kind == d.Kind
}

func IsKind(err error, kind Kind) bool {
	var d *Diagnostic
	for err != nil {
		if dd, ok := err.(*Diagnostic); ok {
			d = dd
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if d == nil {
		return false
	}
	return d.Kind == kind
}
