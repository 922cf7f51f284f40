//go:build integration

package firestore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fs "github.com/magnolialogic/go-apns-server/internal/storage/firestore"
	"github.com/magnolialogic/go-apns-server/pkg/registry"
)

// Requires a running Firestore emulator:
//
//	gcloud emulators firestore start --host-port=localhost:8790
//	FIRESTORE_EMULATOR_HOST=localhost:8790 go test -tags integration ./internal/storage/firestore/
func setupSuite(t *testing.T) (context.Context, *fs.Store) {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	client, err := firestore.NewClient(ctx, "test-token-registry")
	require.NoError(t, err)
	store := fs.NewStore(client)
	t.Cleanup(func() { _ = store.Close() })
	return ctx, store
}

func TestStore_Integration(t *testing.T) {
	ctx, store := setupSuite(t)

	t.Run("Registration lifecycle", func(t *testing.T) {
		err := store.CreateUser(ctx,
			registry.User{ID: "fs-u1", Name: "Alice"},
			registry.Token{ID: "fs-t1", BundleID: "com.app.demo", UserID: "fs-u1"})
		require.NoError(t, err)

		err = store.CreateUser(ctx,
			registry.User{ID: "fs-u1", Name: "Alice"},
			registry.Token{ID: "fs-t2", BundleID: "com.app.demo", UserID: "fs-u1"})
		assert.ErrorIs(t, err, registry.ErrConflict)

		record, err := store.GetUser(ctx, "fs-u1")
		require.NoError(t, err)
		assert.Equal(t, "Alice", record.Name)
		assert.Contains(t, record.TokenIDs, "fs-t1")

		tokens, err := store.ListTokensForBundle(ctx, "com.app.demo")
		require.NoError(t, err)
		assert.Contains(t, tokens, "fs-t1")
	})

	t.Run("Rename", func(t *testing.T) {
		assert.ErrorIs(t, store.RenameUser(ctx, "fs-u1", "Alice"), registry.ErrNotModified)
		require.NoError(t, store.RenameUser(ctx, "fs-u1", "Alicia"))

		record, err := store.GetUser(ctx, "fs-u1")
		require.NoError(t, err)
		assert.Equal(t, "Alicia", record.Name)
	})

	t.Run("Cascade delete", func(t *testing.T) {
		require.NoError(t, store.DeleteUser(ctx, "fs-u1"))

		_, err := store.GetToken(ctx, "fs-t1")
		assert.ErrorIs(t, err, registry.ErrNotFound)
		_, err = store.ListTokensForUser(ctx, "fs-u1")
		assert.ErrorIs(t, err, registry.ErrUserNotFound)
		assert.ErrorIs(t, store.DeleteUser(ctx, "fs-u1"), registry.ErrNotFound)
	})
}
