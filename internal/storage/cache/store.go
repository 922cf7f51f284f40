// Package cache adds a read-aside cache in front of any registry store. The
// cached read is the dispatcher's hot path: the per-bundle token list.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/magnolialogic/go-apns-server/pkg/registry"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get decodes the cached value into dest. Returns ErrCacheMiss when the
	// key is absent.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedStore is a decorator that caches ListTokensForBundle results and
// invalidates affected bundle keys on every write.
type CachedStore struct {
	realStore registry.Store
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedStore(realStore registry.Store, cache CacheClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedStore) ListTokensForBundle(ctx context.Context, bundleID string) ([]string, error) {
	key := s.bundleKey(bundleID)

	var cached []string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.ListTokensForBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization, not a transaction: if the cache is down we
	// just keep serving from the real store.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)
	return fresh, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedStore) CreateUser(ctx context.Context, user registry.User, token registry.Token) error {
	stale := s.bundlesForToken(ctx, token.ID)
	if err := s.realStore.CreateUser(ctx, user, token); err != nil {
		return err
	}
	return s.invalidate(ctx, append(stale, token.BundleID)...)
}

func (s *CachedStore) ReplaceUser(ctx context.Context, user registry.User, token registry.Token) (bool, error) {
	stale := s.bundlesForToken(ctx, token.ID)
	created, err := s.realStore.ReplaceUser(ctx, user, token)
	if err != nil {
		return false, err
	}
	return created, s.invalidate(ctx, append(stale, token.BundleID)...)
}

// RenameUser touches no token list, so nothing to invalidate.
func (s *CachedStore) RenameUser(ctx context.Context, id, name string) error {
	return s.realStore.RenameUser(ctx, id, name)
}

func (s *CachedStore) DeleteUser(ctx context.Context, id string) error {
	// Collect affected bundles before the cascade removes the tokens.
	stale := s.bundlesForUser(ctx, id)
	if err := s.realStore.DeleteUser(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, stale...)
}

func (s *CachedStore) DeleteToken(ctx context.Context, id string) error {
	stale := s.bundlesForToken(ctx, id)
	if err := s.realStore.DeleteToken(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, stale...)
}

// --- Pass-through reads ---

func (s *CachedStore) GetUser(ctx context.Context, id string) (registry.UserRecord, error) {
	return s.realStore.GetUser(ctx, id)
}

func (s *CachedStore) GetToken(ctx context.Context, id string) (registry.Token, error) {
	return s.realStore.GetToken(ctx, id)
}

func (s *CachedStore) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.realStore.ListUserIDs(ctx)
}

func (s *CachedStore) ListUsersForBundle(ctx context.Context, bundleID string) ([]string, error) {
	return s.realStore.ListUsersForBundle(ctx, bundleID)
}

func (s *CachedStore) ListTokenIDs(ctx context.Context) ([]string, error) {
	return s.realStore.ListTokenIDs(ctx)
}

func (s *CachedStore) ListTokensForUser(ctx context.Context, userID string) ([]string, error) {
	return s.realStore.ListTokensForUser(ctx, userID)
}

func (s *CachedStore) Close() error { return s.realStore.Close() }

// --- Helpers ---

func (s *CachedStore) invalidate(ctx context.Context, bundleIDs ...string) error {
	seen := make(map[string]bool, len(bundleIDs))
	var finalErr error
	for _, id := range bundleIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := s.cache.Del(ctx, s.bundleKey(id)); err != nil {
			finalErr = err
		}
	}
	return finalErr
}

// bundlesForToken looks up the token's current bundle before a write
// reassigns or removes it. A missing token just means nothing to invalidate.
func (s *CachedStore) bundlesForToken(ctx context.Context, tokenID string) []string {
	token, err := s.realStore.GetToken(ctx, tokenID)
	if err != nil {
		return nil
	}
	return []string{token.BundleID}
}

func (s *CachedStore) bundlesForUser(ctx context.Context, userID string) []string {
	tokenIDs, err := s.realStore.ListTokensForUser(ctx, userID)
	if err != nil {
		return nil
	}
	var bundles []string
	for _, id := range tokenIDs {
		bundles = append(bundles, s.bundlesForToken(ctx, id)...)
	}
	return bundles
}

func (s *CachedStore) bundleKey(bundleID string) string {
	return fmt.Sprintf("registry:bundle:%s", bundleID)
}
