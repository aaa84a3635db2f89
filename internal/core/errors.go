package core

import (
	"errors"

	"timebridge.service/internal/adapters/transport"
)

// Error taxonomy. Callers classify failures with errors.Is.
var (
	// ErrConfiguration: missing host, credentials or URL. No remote call is made.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuthentication: bad credentials, rejected challenge, or non-200 on an auth step.
	ErrAuthentication = errors.New("authentication error")
	// ErrUnsupportedEncryption: the device asked for a digest this bridge cannot compute.
	ErrUnsupportedEncryption = errors.New("unsupported encryption method")
	// ErrTransport: timeout, refused connection, or open circuit breaker.
	ErrTransport = transport.ErrTransport
	// ErrProtocol: non-success application code or malformed response.
	ErrProtocol = errors.New("protocol error")
	// ErrData: an inbound record is missing a required field.
	ErrData = errors.New("data error")
	// ErrInvalidInput: an operator request failed validation.
	ErrInvalidInput = errors.New("invalid input")
)
