package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magnolialogic/go-apns-server/internal/storage/cache"
	"github.com/magnolialogic/go-apns-server/pkg/registry"
)

// --- Mocks ---

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockRealStore struct {
	mock.Mock
}

func (m *MockRealStore) ListTokensForBundle(ctx context.Context, bundleID string) ([]string, error) {
	args := m.Called(ctx, bundleID)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockRealStore) GetToken(ctx context.Context, id string) (registry.Token, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(registry.Token), args.Error(1)
}
func (m *MockRealStore) DeleteToken(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
func (m *MockRealStore) CreateUser(ctx context.Context, user registry.User, token registry.Token) error {
	return m.Called(ctx, user, token).Error(0)
}

// (Stub other methods as needed)
func (m *MockRealStore) ReplaceUser(context.Context, registry.User, registry.Token) (bool, error) {
	return false, nil
}
func (m *MockRealStore) RenameUser(context.Context, string, string) error { return nil }
func (m *MockRealStore) GetUser(context.Context, string) (registry.UserRecord, error) {
	return registry.UserRecord{}, nil
}
func (m *MockRealStore) DeleteUser(context.Context, string) error      { return nil }
func (m *MockRealStore) ListUserIDs(context.Context) ([]string, error) { return nil, nil }
func (m *MockRealStore) ListUsersForBundle(context.Context, string) ([]string, error) {
	return nil, nil
}
func (m *MockRealStore) ListTokenIDs(context.Context) ([]string, error) { return nil, nil }
func (m *MockRealStore) ListTokensForUser(context.Context, string) ([]string, error) {
	return nil, nil
}
func (m *MockRealStore) Close() error { return nil }

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	bundleKey := "registry:bundle:com.app.demo"

	t.Run("Cache miss falls back to store and refills", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		fresh := []string{"t1", "t2"}
		mockCache.On("Get", ctx, bundleKey, mock.Anything).Return(cache.ErrCacheMiss)
		mockDB.On("ListTokensForBundle", ctx, "com.app.demo").Return(fresh, nil)
		mockCache.On("Set", ctx, bundleKey, fresh, mock.Anything).Return(nil)

		tokens, err := store.ListTokensForBundle(ctx, "com.app.demo")

		require.NoError(t, err)
		assert.Equal(t, fresh, tokens)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Cache failure still falls back to store", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		fresh := []string{"t1"}
		mockCache.On("Get", ctx, bundleKey, mock.Anything).Return(assert.AnError)
		mockDB.On("ListTokensForBundle", ctx, "com.app.demo").Return(fresh, nil)
		mockCache.On("Set", ctx, bundleKey, fresh, mock.Anything).Return(nil)

		tokens, err := store.ListTokensForBundle(ctx, "com.app.demo")

		require.NoError(t, err)
		assert.Equal(t, fresh, tokens)
	})

	t.Run("Delete token invalidates its bundle immediately", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		mockDB.On("GetToken", ctx, "t1").
			Return(registry.Token{ID: "t1", BundleID: "com.app.demo", UserID: "u1"}, nil)
		mockDB.On("DeleteToken", ctx, "t1").Return(nil)
		mockCache.On("Del", ctx, bundleKey).Return(nil)

		err := store.DeleteToken(ctx, "t1")

		require.NoError(t, err)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Create invalidates old and new bundle of a reassigned token", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		user := registry.User{ID: "u2", Name: "Bob"}
		token := registry.Token{ID: "t1", BundleID: "com.app.demo", UserID: "u2"}

		// The token previously lived in another bundle.
		mockDB.On("GetToken", ctx, "t1").
			Return(registry.Token{ID: "t1", BundleID: "com.app.other", UserID: "u1"}, nil)
		mockDB.On("CreateUser", ctx, user, token).Return(nil)
		mockCache.On("Del", ctx, "registry:bundle:com.app.other").Return(nil)
		mockCache.On("Del", ctx, bundleKey).Return(nil)

		err := store.CreateUser(ctx, user, token)

		require.NoError(t, err)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Failed write leaves cache untouched", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStore(mockDB, mockCache, 1*time.Hour)

		mockDB.On("GetToken", ctx, "missing").
			Return(registry.Token{}, registry.ErrNotFound)
		mockDB.On("DeleteToken", ctx, "missing").Return(registry.ErrNotFound)

		err := store.DeleteToken(ctx, "missing")

		assert.ErrorIs(t, err, registry.ErrNotFound)
		mockCache.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
	})
}
