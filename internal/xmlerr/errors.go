package xmlerr

import "golang.org/x/xerrors"

// Kind classifies an error the way spec §7 groups them, so callers can
// react to a class of failure (e.g. retry I/O, but not re-parse
// invalid-data) without string-matching messages.
type Kind int

const (
	// KindInvalidData covers malformed XML, truncated silos, mismatched
	// sentinels, out-of-range string-table offsets, invalid opcodes,
	// unbalanced predicate brackets, a non-empty VM stack at the end of
	// evaluation, predicate nesting past the limit, and invalid integer
	// literals.
	KindInvalidData Kind = iota
	// KindNotSupported covers unknown function/operator names, unknown
	// predicate text tokens, unrecognized content types, and comparisons
	// between incompatible opcode kinds.
	KindNotSupported
	// KindNotFound covers empty query results, an XPath element absent
	// from the silo, and missing text/attribute values requested through
	// typed helpers.
	KindNotFound
	// KindInvalidArgument covers a parent axis with no parent, an unknown
	// indexed string under USE_INDEXES, a missing bound value, and a
	// predicate missing its closing bracket.
	KindInvalidArgument
	// KindIO covers read, write, mmap, and file-monitor setup failures.
	KindIO
	// KindCancelled covers cooperative cancellation.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidData:
		return "invalid-data"
	case KindNotSupported:
		return "not-supported"
	case KindNotFound:
		return "not-found"
	case KindInvalidArgument:
		return "invalid-argument"
	case KindIO:
		return "i/o failure"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned across package boundaries. It
// always carries a Kind and, where applicable, the offending XPath, element
// name/offset, or source GUID, per spec §7's "user-visible failure"
// requirement.
type Error struct {
	Kind    Kind
	Message string

	// XPath, Element and SourceGUID are populated when relevant and
	// appear in Error() so diagnostics are actionable without a debugger.
	XPath      string
	Element    string
	SourceGUID string

	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.XPath != "" {
		msg += " (xpath=" + e.XPath + ")"
	}
	if e.Element != "" {
		msg += " (element=" + e.Element + ")"
	}
	if e.SourceGUID != "" {
		msg += " (source=" + e.SourceGUID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, &xmlerr.Error{Kind: xmlerr.KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError constructs an *Error of the given kind wrapping err (which may
// be nil).
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
