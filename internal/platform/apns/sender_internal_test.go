package apns

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magnolialogic/go-apns-server/pkg/dispatch"
)

type MockAPNSClient struct {
	mock.Mock
}

func (m *MockAPNSClient) PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apns2.Response), args.Error(1)
}

func newTestSender(client APNSClient) *Sender {
	return &Sender{
		client:  client,
		topic:   "com.test.app",
		timeout: time.Second,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	alert, err := dispatch.NewAlert("Hello iOS", "It works", true, 1)
	require.NoError(t, err)

	t.Run("Happy Path - Accepted", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		sender := newTestSender(mockClient)

		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "token-1" && n.Topic == "com.test.app"
		})).Return(&apns2.Response{StatusCode: http.StatusOK}, nil)

		result := sender.Send(ctx, "token-1", alert)

		assert.Equal(t, dispatch.OutcomeAccepted, result.Outcome)
		assert.False(t, result.Invalid)
		mockClient.AssertExpectations(t)
	})

	t.Run("Self-Healing - Bad Device Token", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		sender := newTestSender(mockClient)

		mockClient.On("PushWithContext", mock.Anything, mock.Anything).Return(&apns2.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     apns2.ReasonBadDeviceToken,
		}, nil)

		result := sender.Send(ctx, "bad-token", alert)

		assert.Equal(t, dispatch.OutcomeRejected, result.Outcome)
		assert.True(t, result.Invalid)
		assert.Equal(t, apns2.ReasonBadDeviceToken, result.Reason)
	})

	t.Run("Config Error - Not Invalid", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		sender := newTestSender(mockClient)

		mockClient.On("PushWithContext", mock.Anything, mock.Anything).Return(&apns2.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     apns2.ReasonTopicDisallowed,
		}, nil)

		result := sender.Send(ctx, "token-1", alert)

		assert.Equal(t, dispatch.OutcomeRejected, result.Outcome)
		assert.False(t, result.Invalid)
	})

	t.Run("Transport Failure - Retryable", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		sender := newTestSender(mockClient)

		mockClient.On("PushWithContext", mock.Anything, mock.Anything).
			Return(nil, errors.New("connection refused"))

		result := sender.Send(ctx, "token-1", alert)

		assert.Equal(t, dispatch.OutcomeTransportError, result.Outcome)
		assert.Error(t, result.Err)
		assert.False(t, result.Invalid)
	})
}

func TestBuildPayload(t *testing.T) {
	t.Run("Alert with sound and badge", func(t *testing.T) {
		p, err := dispatch.NewAlert("Title", "Body", true, 3)
		require.NoError(t, err)

		raw, err := json.Marshal(buildPayload(p))
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		aps := decoded["aps"].(map[string]any)
		alert := aps["alert"].(map[string]any)
		assert.Equal(t, "Title", alert["title"])
		assert.Equal(t, "Body", alert["body"])
		assert.Equal(t, float64(3), aps["badge"])
		assert.Equal(t, "default", aps["sound"])
	})

	t.Run("Silent alert has no sound key", func(t *testing.T) {
		p, err := dispatch.NewAlert("Title", "Body", false, 0)
		require.NoError(t, err)

		raw, err := json.Marshal(buildPayload(p))
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		aps := decoded["aps"].(map[string]any)
		assert.NotContains(t, aps, "sound")
	})

	t.Run("Background sets content-available and custom data", func(t *testing.T) {
		p, err := dispatch.NewBackground(map[string]any{"refresh": "inbox"})
		require.NoError(t, err)

		raw, err := json.Marshal(buildPayload(p))
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		aps := decoded["aps"].(map[string]any)
		assert.Equal(t, float64(1), aps["content-available"])
		assert.Equal(t, "inbox", decoded["refresh"])
	})
}
