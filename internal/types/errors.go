package types

import "errors"

var (
	// ErrType indicates an argument of the wrong shape or a value outside its
	// defined set.
	ErrType = errors.New("type error")
	// ErrMismatch indicates a state or action that does not match the declared
	// dimensions.
	ErrMismatch = errors.New("mismatch error")
	// ErrMode indicates an operation that is not allowed in the current mode.
	ErrMode = errors.New("mode error")
	// ErrRange indicates a numeric setting outside its required open interval.
	ErrRange = errors.New("range error")
)

// Kind tags an error with the agent error category it belongs to.
type Kind string

const (
	KindNone     Kind = ""
	KindType     Kind = "type"
	KindMismatch Kind = "mismatch"
	KindMode     Kind = "mode"
	KindRange    Kind = "range"
)

// KindOf returns the category of err, or KindNone when err does not wrap one
// of the agent sentinels.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrType):
		return KindType
	case errors.Is(err, ErrMismatch):
		return KindMismatch
	case errors.Is(err, ErrMode):
		return KindMode
	case errors.Is(err, ErrRange):
		return KindRange
	default:
		return KindNone
	}
}
