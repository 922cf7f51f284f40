package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnolialogic/go-apns-server/pkg/dispatch"
)

func TestNewAlert(t *testing.T) {
	t.Run("Valid alert", func(t *testing.T) {
		p, err := dispatch.NewAlert("Title", "Body", true, 3)
		require.NoError(t, err)

		assert.False(t, p.Background())
		require.NotNil(t, p.Alert())
		assert.Equal(t, "Title", p.Alert().Title)
		assert.Equal(t, 3, p.Alert().Badge)
		assert.Nil(t, p.Data())
	})

	t.Run("Negative badge rejected", func(t *testing.T) {
		_, err := dispatch.NewAlert("Title", "Body", false, -1)
		assert.Error(t, err)
	})
}

func TestNewBackground(t *testing.T) {
	t.Run("Valid data", func(t *testing.T) {
		p, err := dispatch.NewBackground(map[string]any{"refresh": "inbox"})
		require.NoError(t, err)

		assert.True(t, p.Background())
		assert.Nil(t, p.Alert())
		assert.Equal(t, "inbox", p.Data()["refresh"])
	})

	t.Run("Empty data rejected", func(t *testing.T) {
		_, err := dispatch.NewBackground(nil)
		assert.Error(t, err)
	})
}
