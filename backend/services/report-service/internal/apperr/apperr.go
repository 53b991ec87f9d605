package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failed export for the caller.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindAuthentication Kind = "authentication"
	KindUpstream       Kind = "upstream"
	KindRender         Kind = "render"
	KindConfiguration  Kind = "configuration"
)

// Sentinels matching each kind, usable with errors.Is.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrAuthentication = errors.New("authentication failed")
	ErrUpstream       = errors.New("upstream request failed")
	ErrRender         = errors.New("report rendering failed")
	ErrConfiguration  = errors.New("invalid configuration")
)

var sentinels = map[Kind]error{
	KindInvalidRequest: ErrInvalidRequest,
	KindAuthentication: ErrAuthentication,
	KindUpstream:       ErrUpstream,
	KindRender:         ErrRender,
	KindConfiguration:  ErrConfiguration,
}

// Error is the single structured failure surfaced by an export.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the same kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// New builds an error of the given kind.
func New(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Authentication wraps err as an authentication failure.
func Authentication(detail string, err error) *Error {
	return New(KindAuthentication, detail, err)
}

// Upstream wraps err as an upstream failure.
func Upstream(detail string, err error) *Error {
	return New(KindUpstream, detail, err)
}

// Render wraps err as a rendering failure.
func Render(detail string, err error) *Error {
	return New(KindRender, detail, err)
}

// Configuration wraps err as a configuration failure.
func Configuration(detail string, err error) *Error {
	return New(KindConfiguration, detail, err)
}

// InvalidRequest reports a malformed inbound request.
func InvalidRequest(detail string) *Error {
	return New(KindInvalidRequest, detail, nil)
}

// KindOf returns the kind carried by err, or KindUpstream when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUpstream
}

// DetailOf returns the human readable detail of err.
func DetailOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
