// Package serviceerr classifies failures of remote collaborators (transcription, sentiment,
// OCR, generative text) so callers can choose a policy per kind.
package serviceerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindTransport Kind = iota + 1
	KindRemoteService
	KindDecode
)

var (
	ErrTransport     = errors.New("transport error")
	ErrRemoteService = errors.New("remote service error")
	ErrDecode        = errors.New("decode error")
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRemoteService:
		return "remote_service"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindRemoteService:
		return ErrRemoteService
	case KindDecode:
		return ErrDecode
	default:
		return nil
	}
}

// Error is a classified collaborator failure. errors.Is matches it against the sentinel of its kind.
type Error struct {
	Kind    Kind
	Service string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Service, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Service, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func Transport(service, op string, err error) error {
	return &Error{Kind: KindTransport, Service: service, Op: op, Err: err}
}

func RemoteService(service, op string, err error) error {
	return &Error{Kind: KindRemoteService, Service: service, Op: op, Err: err}
}

func Decode(service, op string, err error) error {
	return &Error{Kind: KindDecode, Service: service, Op: op, Err: err}
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}
