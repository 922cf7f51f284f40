package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentDefaultsToSandbox(t *testing.T) {
	t.Run("No flags", func(t *testing.T) {
		cmd, flags := newRootCmd()
		require.NoError(t, cmd.ParseFlags(nil))

		assert.True(t, flags.sandbox())
	})

	t.Run("Production is an explicit opt-in", func(t *testing.T) {
		cmd, flags := newRootCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--prod"}))

		assert.False(t, flags.sandbox())
	})
}

func TestBuildPayload(t *testing.T) {
	t.Run("Alert by default", func(t *testing.T) {
		p, err := buildPayload(sendFlags{title: "Hello", body: "World", badge: 2})
		require.NoError(t, err)

		require.NotNil(t, p.Alert())
		assert.Equal(t, "Hello", p.Alert().Title)
		assert.Equal(t, 2, p.Alert().Badge)
		assert.True(t, p.Alert().PlaySound)
	})

	t.Run("Silent flag mutes the alert", func(t *testing.T) {
		p, err := buildPayload(sendFlags{title: "Hello", body: "World", silent: true})
		require.NoError(t, err)

		require.NotNil(t, p.Alert())
		assert.False(t, p.Alert().PlaySound)
	})

	t.Run("Background data wins over alert fields", func(t *testing.T) {
		p, err := buildPayload(sendFlags{title: "ignored", background: map[string]string{"refresh": "inbox"}})
		require.NoError(t, err)

		assert.True(t, p.Background())
		assert.Equal(t, "inbox", p.Data()["refresh"])
	})
}
