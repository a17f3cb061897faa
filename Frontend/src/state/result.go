package state

import (
	"errors"
	"strings"
)

// GenericMessage replaces transport, decode and other unknown failures.
const GenericMessage = "Something went wrong. Please try again."

// Kind classifies a failed Result.
type Kind int

const (
	KindNone Kind = iota
	// KindValidation: the caller passed something the manager refuses to send.
	KindValidation
	// KindRemote: the remote store rejected the call; Message is the backend's.
	KindRemote
	// KindUnknown: network, decode or storage failure; Message is GenericMessage.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindRemote:
		return "remote"
	case KindUnknown:
		return "unknown"
	}
	return "kind(?)"
}

// Result is what every mutating operation returns. Mutations never return a
// bare error; presentation code decides whether to show Message.
type Result struct {
	OK      bool
	Kind    Kind
	Message string
	Err     error
}

// Displayer is implemented by remote errors that carry a message meant for the
// end user (see api.RemoteError).
type Displayer interface {
	DisplayMessage() string
}

var (
	errNoRemote   = errors.New("state: no remote store configured")
	errInvalidQty = errors.New("state: quantity must be at least 1")
	errInvalidID  = errors.New("state: book id must be positive")
)

// validationError is returned by a persistence strategy that refuses a
// mutation before touching storage.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return "state: " + e.msg }

var (
	errQtyTooLarge = &validationError{msg: "Quantity is too large."}
	errNotInCart   = &validationError{msg: "This book is not in your cart."}
)

func succeeded() Result { return Result{OK: true} }

func invalid(err error, msg string) Result {
	return Result{Kind: KindValidation, Message: msg, Err: err}
}

// Failed classifies err the way the managers do. Anything that does not carry
// a display message is reported with GenericMessage.
func Failed(err error) Result {
	var v *validationError
	if errors.As(err, &v) {
		return invalid(err, v.msg)
	}
	var d Displayer
	if errors.As(err, &d) {
		if msg := strings.TrimSpace(d.DisplayMessage()); msg != "" {
			return Result{Kind: KindRemote, Message: msg, Err: err}
		}
	}
	return Result{Kind: KindUnknown, Message: GenericMessage, Err: err}
}
