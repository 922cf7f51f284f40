// Package apns provides the client for the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/magnolialogic/go-apns-server/pkg/dispatch"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Credentials selects the authentication scheme. A .p8 signing key (KeyPath,
// KeyID, TeamID) takes precedence; otherwise a .p12 certificate (CertPath,
// CertPassword) is used.
type Credentials struct {
	KeyPath string
	KeyID   string
	TeamID  string

	CertPath     string
	CertPassword string
}

// Sender pushes one payload to one device token over the APNs HTTP/2 API.
type Sender struct {
	client  APNSClient
	topic   string // The App Bundle ID (e.g. com.magnolialogic.demo)
	timeout time.Duration
	logger  *slog.Logger
}

// NewSender creates a configured APNs sender. Credentials are loaded and
// parsed immediately to fail fast on startup if they are bad.
func NewSender(creds Credentials, bundleID string, sandbox bool, timeout time.Duration, logger *slog.Logger) (*Sender, error) {
	var client *apns2.Client

	switch {
	case creds.KeyPath != "":
		authKey, err := token.AuthKeyFromFile(creds.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
		}
		client = apns2.NewTokenClient(&token.Token{
			AuthKey: authKey,
			KeyID:   creds.KeyID,
			TeamID:  creds.TeamID,
		})
	case creds.CertPath != "":
		cert, err := certificate.FromP12File(creds.CertPath, creds.CertPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
		}
		client = apns2.NewClient(cert)
	default:
		return nil, fmt.Errorf("no APNs credentials: need a .p8 key or a .p12 certificate")
	}

	if sandbox {
		client.Development()
	} else {
		client.Production()
	}

	return &Sender{
		client:  client,
		topic:   bundleID,
		timeout: timeout,
		logger:  logger.With("component", "APNSSender"),
	}, nil
}

// Send delivers the payload to a single device token and classifies the
// response. It never returns a transport error as a Go error; the outcome is
// encoded in the Result so callers can keep pushing to the remaining tokens.
func (s *Sender) Send(ctx context.Context, deviceToken string, p dispatch.Payload) dispatch.Result {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       s.topic,
		Payload:     buildPayload(p),
	}
	if p.Background() {
		notification.PushType = apns2.PushTypeBackground
		notification.Priority = apns2.PriorityLow
	}

	res, err := s.client.PushWithContext(ctx, notification)
	if err != nil {
		s.logger.Error("APNs transport failed", "token", deviceToken, "err", err)
		return dispatch.Result{
			Token:   deviceToken,
			Outcome: dispatch.OutcomeTransportError,
			Err:     err,
		}
	}

	if res.Sent() {
		return dispatch.Result{Token: deviceToken, Outcome: dispatch.OutcomeAccepted}
	}

	result := dispatch.Result{
		Token:   deviceToken,
		Outcome: dispatch.OutcomeRejected,
		Reason:  res.Reason,
	}
	// Map APNs error reasons to our "Invalid" concept
	// See: https://developer.apple.com/documentation/usernotifications/setting_up_a_remote_notification_server/handling_notification_responses_from_apns
	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		// Token is dead. Callers may purge it from the registry.
		result.Invalid = true
	default:
		// Other rejections (TopicDisallowed, PayloadEmpty) are logged but not
		// flagged invalid: the token might be fine while our configuration is wrong.
		s.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
	}
	return result
}

// buildPayload converts our platform-neutral payload into the apns2 builder
// form. Alerts carry title/body/badge and the default sound when requested;
// background payloads set content-available and attach the custom data.
func buildPayload(p dispatch.Payload) *payload.Payload {
	builder := payload.NewPayload()

	if p.Background() {
		builder.ContentAvailable()
		for k, v := range p.Data() {
			builder.Custom(k, v)
		}
		return builder
	}

	alert := p.Alert()
	if alert == nil {
		return builder
	}
	builder.AlertTitle(alert.Title).AlertBody(alert.Body).Badge(alert.Badge)
	if alert.PlaySound {
		builder.Sound("default")
	}
	return builder
}
