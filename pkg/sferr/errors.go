// Package sferr defines the single error type sshvfs returns across its
// public surface, modeled on shellcn's pkg/errors.AppError.
package sferr

import "fmt"

// Kind classifies an Error so callers can branch on failure category
// without string matching.
type Kind string

const (
	KindAddressFormat    Kind = "address_format"
	KindConfiguration    Kind = "configuration"
	KindDNS              Kind = "dns"
	KindNetwork          Kind = "network"
	KindHandshake        Kind = "handshake"
	KindAuthentication   Kind = "authentication"
	KindResourceExhausted Kind = "resource_exhausted"
	KindRemoteIO         Kind = "remote_io"
	KindCommandExecution Kind = "command_execution"
	KindStalledWrite     Kind = "stalled_write"
	KindUploadAggregated Kind = "upload_aggregated"
)

// Error is the exported error type for every failure sshvfs surfaces.
type Error struct {
	Kind       Kind
	Message    string
	Endpoint   string // "principal@hostname:port", empty when not connection-scoped
	RemotePath string
	Internal   error
	// Aggregated holds the per-part errors folded into a KindUploadAggregated
	// error; nil for every other kind.
	Aggregated []error
}

func (e *Error) Error() string {
	switch {
	case e.Endpoint != "" && e.RemotePath != "":
		return fmt.Sprintf("%s: %s (endpoint=%s path=%s)", e.Kind, e.Message, e.Endpoint, e.RemotePath)
	case e.Endpoint != "":
		return fmt.Sprintf("%s: %s (endpoint=%s)", e.Kind, e.Message, e.Endpoint)
	case e.RemotePath != "":
		return fmt.Sprintf("%s: %s (path=%s)", e.Kind, e.Message, e.RemotePath)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Internal }

// WithInternal returns a copy of e carrying the underlying cause.
func (e *Error) WithInternal(err error) *Error {
	c := *e
	c.Internal = err
	return &c
}

// WithEndpoint returns a copy of e scoped to endpoint.
func (e *Error) WithEndpoint(endpoint string) *Error {
	c := *e
	c.Endpoint = endpoint
	return &c
}

// WithPath returns a copy of e scoped to a remote path.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.RemotePath = path
	return &c
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Internal: err}
}

// Aggregate builds a KindUploadAggregated error from the errors of several
// failed part uploads: the first one is its cause, and the full set is kept
// in Aggregated.
func Aggregate(errs []error) *Error {
	if len(errs) == 0 {
		return nil
	}
	return &Error{
		Kind:       KindUploadAggregated,
		Message:    fmt.Sprintf("%d part upload(s) failed, first: %v", len(errs), errs[0]),
		Internal:   errs[0],
		Aggregated: errs,
	}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if se, ok := err.(*Error); ok {
			e = se
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
