package xmlsilo

import "github.com/xmlsilo/xmlsilo/internal/xmlerr"

// Kind classifies an error the way spec §7 groups errors into kinds, so
// callers can react to a class of failure without string-matching
// messages. It is an alias of the internal representation shared by every
// engine package.
type Kind = xmlerr.Kind

const (
	KindInvalidData     = xmlerr.KindInvalidData
	KindNotSupported    = xmlerr.KindNotSupported
	KindNotFound        = xmlerr.KindNotFound
	KindInvalidArgument = xmlerr.KindInvalidArgument
	KindIO              = xmlerr.KindIO
	KindCancelled       = xmlerr.KindCancelled
)

// Error is the concrete error type returned across this module's public
// API. See xmlerr.Error for field documentation.
type Error = xmlerr.Error

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) { return xmlerr.KindOf(err) }
