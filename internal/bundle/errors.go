package bundle

import "errors"

// Failure classes for dispatch units. Network-layer errors
// (ErrUpstreamUnavailable, ErrRelayUnreachable) are the only ones the retry
// wrapper treats as transient; application-level rejections and signing
// failures are deterministic and never retried.
var (
	ErrUpstreamUnavailable = errors.New("builder unavailable")
	ErrUpstreamRejected    = errors.New("builder rejected request")
	ErrMalformedResponse   = errors.New("unrecognized builder response")
	ErrRelayUnreachable    = errors.New("relay unreachable")
	ErrRelayRejected       = errors.New("relay rejected bundle")
	ErrSigning             = errors.New("transaction signing failed")
)
