package latexocr

import "errors"

// Kind classifies a request failure. The HTTP layer currently maps every
// kind to status 500.
type Kind int

const (
	KindMalformedRequest Kind = iota + 1
	KindDecode
	KindRecognition
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "malformed_request"
	case KindDecode:
		return "decode_failure"
	case KindRecognition:
		return "recognition_failure"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against a Kind.
var (
	ErrMalformedRequest = &Error{Kind: KindMalformedRequest}
	ErrDecode           = &Error{Kind: KindDecode}
	ErrRecognition      = &Error{Kind: KindRecognition}
)

// Error is a failure anywhere on the request path. Its message is the
// message of the wrapped error so clients see the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrDecode) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// Malformed wraps err as a malformed-request failure
func Malformed(err error) error {
	return &Error{Kind: KindMalformedRequest, Err: err}
}

// KindOf reports the Kind of err, or KindRecognition for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRecognition
}
