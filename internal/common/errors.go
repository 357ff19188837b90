package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures the hub surfaces to downstream clients
// and the admin API. It mirrors the taxonomy carried on every UpstreamError
// so a client can decide whether to retry, re-authenticate, or give up.
type ErrorKind string

const (
	KindConfig       ErrorKind = "config"
	KindNotFound     ErrorKind = "not-found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindTransport    ErrorKind = "transport"
	KindTimeout      ErrorKind = "timeout"
	KindUpstream     ErrorKind = "upstream"
	KindSchema       ErrorKind = "schema"
	KindInternal     ErrorKind = "internal"
)

// UpstreamError is the one error type every component hands back across a
// package boundary. Server is empty for errors that are not tied to any one
// connector (a registry lookup miss, a malformed settings document).
type UpstreamError struct {
	Kind    ErrorKind
	Server  string
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Server != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Server, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// NewUpstreamError builds an UpstreamError, wrapping an optional cause.
func NewUpstreamError(kind ErrorKind, server, message string, cause error) *UpstreamError {
	return &UpstreamError{Kind: kind, Server: server, Message: message, Cause: cause}
}

// AsUpstreamError extracts an *UpstreamError from err, constructing a
// KindInternal wrapper when err carries no taxonomy of its own. Callers at
// package boundaries (ingress handlers, admin API) use this to guarantee
// every response carries a kind.
func AsUpstreamError(err error) *UpstreamError {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	return &UpstreamError{Kind: KindInternal, Message: err.Error(), Cause: err}
}

var (
	// ErrAmbiguousTool is returned by the registry when a bare tool name
	// resolves to more than one server and no server prefix was given.
	ErrAmbiguousTool = errors.New("tool name is ambiguous across servers")
	// ErrNotConnected is returned by a connector when a call arrives before
	// the handshake has completed or after the connector has been closed.
	ErrNotConnected = errors.New("connector is not connected")
	// ErrNameCollision is returned by the settings store when a second
	// server or group is registered under a name already in use.
	ErrNameCollision = errors.New("name already in use")
)
