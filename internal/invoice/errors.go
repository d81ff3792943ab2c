package invoice

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a document could not be parsed
type ErrorKind string

const (
	KindMissingFooter      ErrorKind = "MissingFooter"
	KindInvalidDate        ErrorKind = "InvalidDate"
	KindMissingTableHeader ErrorKind = "MissingTableHeader"
	KindNoLineItems        ErrorKind = "NoLineItems"
	KindInvalidAmount      ErrorKind = "InvalidAmount"
	KindInvalidQuantity    ErrorKind = "InvalidQuantity"
)

// Sentinels matched by errors.Is against a *ParseError of the same kind
var (
	ErrMissingFooter      = errors.New("patient/due footer not found")
	ErrInvalidDate        = errors.New("invalid due date")
	ErrMissingTableHeader = errors.New("table header not found")
	ErrNoLineItems        = errors.New("no line items found")
	ErrInvalidAmount      = errors.New("invalid currency amount")
	ErrInvalidQuantity    = errors.New("invalid quantity")
)

var sentinelByKind = map[ErrorKind]error{
	KindMissingFooter:      ErrMissingFooter,
	KindInvalidDate:        ErrInvalidDate,
	KindMissingTableHeader: ErrMissingTableHeader,
	KindNoLineItems:        ErrNoLineItems,
	KindInvalidAmount:      ErrInvalidAmount,
	KindInvalidQuantity:    ErrInvalidQuantity,
}

// ParseError is the terminal failure for one document.
// Offset is a byte offset into the parsed text, Line is 1-based; either is
// zero when the failure has no single location (e.g. a pattern is absent).
type ParseError struct {
	Kind    ErrorKind
	Offset  int
	Line    int
	Context string
}

func (e *ParseError) Error() string {
	msg := string(e.Kind)
	if s, ok := sentinelByKind[e.Kind]; ok {
		msg = s.Error()
	}
	switch {
	case e.Line > 0 && e.Context != "":
		return fmt.Sprintf("%s at line %d: %q", msg, e.Line, e.Context)
	case e.Context != "":
		return fmt.Sprintf("%s: %s", msg, e.Context)
	default:
		return msg
	}
}

// Is reports whether target is the sentinel for this error's kind
func (e *ParseError) Is(target error) bool {
	return sentinelByKind[e.Kind] == target
}

// Structural reports whether the document does not look like this invoice
// format at all, as opposed to a present but malformed field.
func (e *ParseError) Structural() bool {
	switch e.Kind {
	case KindMissingFooter, KindMissingTableHeader, KindNoLineItems:
		return true
	}
	return false
}

// KindOf returns the kind of a parse failure, or "" for other errors
func KindOf(err error) ErrorKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func newParseError(kind ErrorKind, context string) *ParseError {
	return &ParseError{Kind: kind, Context: context}
}
