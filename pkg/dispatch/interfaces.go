// Package dispatch contains the public interfaces and models for pushing
// notifications to registered devices.
package dispatch

import (
	"context"
	"errors"
)

var (
	// ErrNoTargets is returned when target resolution yields an empty set.
	ErrNoTargets = errors.New("no matching device tokens")
	// ErrUpstream wraps failures talking to the live registry API.
	ErrUpstream = errors.New("registry lookup failed")
)

// Outcome classifies one delivery attempt.
type Outcome string

const (
	// OutcomeAccepted means APNS accepted the notification for delivery.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeRejected means APNS answered with a non-success status.
	OutcomeRejected Outcome = "rejected"
	// OutcomeTransportError means the push never reached APNS (network
	// failure or per-call timeout).
	OutcomeTransportError Outcome = "transport_error"
)

// Result is the outcome of one delivery call for one device token.
type Result struct {
	Token   string
	Outcome Outcome
	// Reason is the APNS rejection reason, empty unless Outcome is rejected.
	Reason string
	// Invalid marks tokens APNS reports as dead (BadDeviceToken,
	// Unregistered, DeviceTokenNotForTopic); callers may clean these up.
	Invalid bool
	Err     error
}

// Sender delivers one payload to one device token. Implementations own the
// transport, credentials, and per-call timeout.
type Sender interface {
	Send(ctx context.Context, deviceToken string, p Payload) Result
}

// Source resolves the set of device tokens to push to for a bundle id.
type Source interface {
	Resolve(ctx context.Context, bundleID string) ([]string, error)
}
