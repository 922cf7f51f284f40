// Package yamlstore persists the registry as a single YAML document,
// rewriting the whole file on every mutation. Simple and durable, but each
// write costs O(total records): fine for the handful of test devices this
// service was built for, wrong for anything bigger (use the sqlite or
// firestore backend instead).
package yamlstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/magnolialogic/go-apns-server/pkg/registry"
)

// Document mirrors the on-disk snapshot layout.
type Document struct {
	Users  []registry.User  `yaml:"users"`
	Tokens []registry.Token `yaml:"tokens"`
}

// Store is a registry.Store backed by a whole-file YAML snapshot. One mutex
// guards every read-modify-rewrite sequence; without it two concurrent
// writers would overwrite each other's snapshot.
type Store struct {
	mu     sync.RWMutex
	path   string
	doc    Document
	logger *slog.Logger
}

// Open loads the snapshot at path, treating a missing file as an empty
// registry. A malformed file is an error: starting with silently discarded
// records would look like data loss later.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.With("component", "YAMLStore", "path", path),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("Snapshot file not found, starting with empty registry")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.doc); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	s.logger.Info("Snapshot loaded", "users", len(s.doc.Users), "tokens", len(s.doc.Tokens))
	return s, nil
}

// ReadDocument loads a snapshot without opening a live store. The dispatcher
// uses it for static-source target resolution.
func ReadDocument(path string) (Document, error) {
	var doc Document
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read snapshot: %w", err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return doc, nil
}

func (s *Store) Close() error { return nil }

// --- Mutations ---
// Each mutation works on a copy of the document and commits the copy only
// after the rewrite succeeded, so a failed write leaves both the in-memory
// and on-disk state at the previous snapshot.

func (s *Store) CreateUser(_ context.Context, user registry.User, token registry.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOfUser(s.doc.Users, user.ID) >= 0 {
		return fmt.Errorf("user %s: %w", user.ID, registry.ErrConflict)
	}

	next := s.copyDoc()
	next.Users = append(next.Users, user)
	upsertToken(&next, token)
	return s.commit(next)
}

func (s *Store) ReplaceUser(_ context.Context, user registry.User, token registry.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyDoc()
	created := false
	if i := indexOfUser(next.Users, user.ID); i >= 0 {
		next.Users[i] = user
	} else {
		next.Users = append(next.Users, user)
		created = true
	}
	upsertToken(&next, token)
	if err := s.commit(next); err != nil {
		return false, err
	}
	return created, nil
}

func (s *Store) RenameUser(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOfUser(s.doc.Users, id)
	if i < 0 {
		return fmt.Errorf("user %s: %w", id, registry.ErrNotFound)
	}
	if s.doc.Users[i].Name == name {
		return registry.ErrNotModified
	}

	next := s.copyDoc()
	next.Users[i].Name = name
	return s.commit(next)
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOfUser(s.doc.Users, id) < 0 {
		return fmt.Errorf("user %s: %w", id, registry.ErrNotFound)
	}

	next := Document{}
	for _, u := range s.doc.Users {
		if u.ID != id {
			next.Users = append(next.Users, u)
		}
	}
	for _, t := range s.doc.Tokens {
		if t.UserID != id {
			next.Tokens = append(next.Tokens, t)
		}
	}
	return s.commit(next)
}

func (s *Store) DeleteToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOfToken(s.doc.Tokens, id) < 0 {
		return fmt.Errorf("token %s: %w", id, registry.ErrNotFound)
	}

	next := s.copyDoc()
	next.Tokens = nil
	for _, t := range s.doc.Tokens {
		if t.ID != id {
			next.Tokens = append(next.Tokens, t)
		}
	}
	return s.commit(next)
}

// --- Reads ---

func (s *Store) GetUser(_ context.Context, id string) (registry.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := indexOfUser(s.doc.Users, id)
	if i < 0 {
		return registry.UserRecord{}, fmt.Errorf("user %s: %w", id, registry.ErrNotFound)
	}
	record := registry.UserRecord{User: s.doc.Users[i]}
	for _, t := range s.doc.Tokens {
		if t.UserID == id {
			record.TokenIDs = append(record.TokenIDs, t.ID)
		}
	}
	return record, nil
}

func (s *Store) GetToken(_ context.Context, id string) (registry.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := indexOfToken(s.doc.Tokens, id)
	if i < 0 {
		return registry.Token{}, fmt.Errorf("token %s: %w", id, registry.ErrNotFound)
	}
	return s.doc.Tokens[i], nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.doc.Users))
	for _, u := range s.doc.Users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func (s *Store) ListUsersForBundle(_ context.Context, bundleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, t := range s.doc.Tokens {
		if t.BundleID == bundleID && !seen[t.UserID] {
			seen[t.UserID] = true
			ids = append(ids, t.UserID)
		}
	}
	return ids, nil
}

func (s *Store) ListTokenIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.doc.Tokens))
	for _, t := range s.doc.Tokens {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (s *Store) ListTokensForBundle(_ context.Context, bundleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for _, t := range s.doc.Tokens {
		if t.BundleID == bundleID {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (s *Store) ListTokensForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if indexOfUser(s.doc.Users, userID) < 0 {
		return nil, fmt.Errorf("user %s: %w", userID, registry.ErrUserNotFound)
	}
	ids := make([]string, 0)
	for _, t := range s.doc.Tokens {
		if t.UserID == userID {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

// --- Helpers ---

func (s *Store) copyDoc() Document {
	next := Document{
		Users:  make([]registry.User, len(s.doc.Users)),
		Tokens: make([]registry.Token, len(s.doc.Tokens)),
	}
	copy(next.Users, s.doc.Users)
	copy(next.Tokens, s.doc.Tokens)
	return next
}

// commit rewrites the snapshot atomically (temp file + rename) and swaps the
// in-memory document only on success. Callers hold the write lock.
func (s *Store) commit(next Document) error {
	raw, err := yaml.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tokens-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}

	s.doc = next
	return nil
}

func indexOfUser(users []registry.User, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func indexOfToken(tokens []registry.Token, id string) int {
	for i, t := range tokens {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// upsertToken keeps token ids globally unique: an existing id is rewritten
// in place (preserving insertion order), a new one is appended.
func upsertToken(doc *Document, token registry.Token) {
	if i := indexOfToken(doc.Tokens, token.ID); i >= 0 {
		doc.Tokens[i] = token
		return
	}
	doc.Tokens = append(doc.Tokens, token)
}
