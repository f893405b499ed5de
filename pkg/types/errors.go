package types

import (
	"errors"
	"fmt"
)

// Kind classifies failures of a capture cycle.
type Kind int

const (
	KindUnknown Kind = iota
	KindDeviceUnavailable
	KindNoFeed
	KindDecodeError
	KindNetworkError
	KindServerError
	KindEmptyResponse
)

var kindNames = [...]string{
	"unknown",
	"device_unavailable",
	"no_feed",
	"decode_error",
	"network_error",
	"server_error",
	"empty_response",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// MarshalText lets kinds appear by name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Sentinel errors, one per kind. Match them with errors.Is.
var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrNoFeed            = errors.New("no active device feed")
	ErrDecodeError       = errors.New("image could not be decoded")
	ErrNetworkError      = errors.New("analysis service unreachable")
	ErrServerError       = errors.New("analysis service returned an error")
	ErrEmptyResponse     = errors.New("analysis service returned no usable result")
)

var sentinels = map[Kind]error{
	KindDeviceUnavailable: ErrDeviceUnavailable,
	KindNoFeed:            ErrNoFeed,
	KindDecodeError:       ErrDecodeError,
	KindNetworkError:      ErrNetworkError,
	KindServerError:       ErrServerError,
	KindEmptyResponse:     ErrEmptyResponse,
}

// Error carries a failure kind together with the operation that hit it.
type Error struct {
	Kind Kind
	Op   string

	// StatusCode is set for ServerError.
	StatusCode int

	Err error
}

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := sentinels[e.Kind]
	if base == nil {
		base = errors.New(e.Kind.String())
	}
	msg := base.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}

// Notice returns a short message suitable for showing to the user.
func Notice(err error) string {
	switch KindOf(err) {
	case KindDeviceUnavailable:
		return "Camera is not available. Check permissions or upload a photo instead."
	case KindNoFeed:
		return "The camera is not running. Reset to start it again."
	case KindDecodeError:
		return "That file is not an image we can read."
	case KindNetworkError:
		return "Could not reach the analysis service."
	case KindServerError:
		return "The analysis service reported an error."
	case KindEmptyResponse:
		return "The analysis service did not return a result."
	default:
		if err == nil {
			return ""
		}
		return "Something went wrong."
	}
}
