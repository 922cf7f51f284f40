// Package firestore implements the registry store on Google Cloud Firestore.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/magnolialogic/go-apns-server/pkg/registry"
)

const (
	usersCollection  = "users"
	tokensCollection = "tokens"
)

// Store keeps users and tokens in two flat collections keyed by their natural
// ids. Composite writes (user + token) and cascade deletes run inside
// transactions so concurrent duplicate requests cannot interleave.
type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error { return s.client.Close() }

type userDoc struct {
	Name  string `firestore:"name"`
	Admin bool   `firestore:"admin"`
}

type tokenDoc struct {
	BundleID string `firestore:"bundle-id"`
	UserID   string `firestore:"user-id"`
}

// --- Mutations ---

func (s *Store) CreateUser(ctx context.Context, user registry.User, token registry.Token) error {
	userRef := s.client.Collection(usersCollection).Doc(user.ID)
	tokenRef := s.client.Collection(tokensCollection).Doc(token.ID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(userRef)
		if err == nil {
			return fmt.Errorf("user %s: %w", user.ID, registry.ErrConflict)
		}
		if status.Code(err) != codes.NotFound {
			return fmt.Errorf("check user exists: %w", err)
		}
		if err := tx.Set(userRef, userDoc{Name: user.Name, Admin: user.Admin}); err != nil {
			return err
		}
		return tx.Set(tokenRef, tokenDoc{BundleID: token.BundleID, UserID: token.UserID})
	})
	return err
}

func (s *Store) ReplaceUser(ctx context.Context, user registry.User, token registry.Token) (bool, error) {
	userRef := s.client.Collection(usersCollection).Doc(user.ID)
	tokenRef := s.client.Collection(tokensCollection).Doc(token.ID)

	created := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(userRef)
		switch {
		case status.Code(err) == codes.NotFound:
			created = true
		case err != nil:
			return fmt.Errorf("check user exists: %w", err)
		}
		if err := tx.Set(userRef, userDoc{Name: user.Name, Admin: user.Admin}); err != nil {
			return err
		}
		return tx.Set(tokenRef, tokenDoc{BundleID: token.BundleID, UserID: token.UserID})
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *Store) RenameUser(ctx context.Context, id, name string) error {
	userRef := s.client.Collection(usersCollection).Doc(id)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(userRef)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("user %s: %w", id, registry.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read user: %w", err)
		}
		var doc userDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}
		if doc.Name == name {
			return registry.ErrNotModified
		}
		doc.Name = name
		return tx.Set(userRef, doc)
	})
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	userRef := s.client.Collection(usersCollection).Doc(id)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(userRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("user %s: %w", id, registry.ErrNotFound)
			}
			return fmt.Errorf("read user: %w", err)
		}

		// Reads must complete before the first write in a transaction.
		iter := tx.Documents(s.client.Collection(tokensCollection).Where("user-id", "==", id))
		var refs []*firestore.DocumentRef
		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return fmt.Errorf("list owned tokens: %w", err)
			}
			refs = append(refs, snap.Ref)
		}

		for _, ref := range refs {
			if err := tx.Delete(ref); err != nil {
				return err
			}
		}
		return tx.Delete(userRef)
	})
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	tokenRef := s.client.Collection(tokensCollection).Doc(id)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(tokenRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("token %s: %w", id, registry.ErrNotFound)
			}
			return fmt.Errorf("read token: %w", err)
		}
		return tx.Delete(tokenRef)
	})
}

// --- Reads ---

func (s *Store) GetUser(ctx context.Context, id string) (registry.UserRecord, error) {
	snap, err := s.client.Collection(usersCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return registry.UserRecord{}, fmt.Errorf("user %s: %w", id, registry.ErrNotFound)
	}
	if err != nil {
		return registry.UserRecord{}, fmt.Errorf("read user: %w", err)
	}

	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return registry.UserRecord{}, fmt.Errorf("decode user: %w", err)
	}

	tokens, err := s.tokenIDs(ctx, s.client.Collection(tokensCollection).Where("user-id", "==", id))
	if err != nil {
		return registry.UserRecord{}, err
	}
	return registry.UserRecord{
		User:     registry.User{ID: id, Name: doc.Name, Admin: doc.Admin},
		TokenIDs: tokens,
	}, nil
}

func (s *Store) GetToken(ctx context.Context, id string) (registry.Token, error) {
	snap, err := s.client.Collection(tokensCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return registry.Token{}, fmt.Errorf("token %s: %w", id, registry.ErrNotFound)
	}
	if err != nil {
		return registry.Token{}, fmt.Errorf("read token: %w", err)
	}
	var doc tokenDoc
	if err := snap.DataTo(&doc); err != nil {
		return registry.Token{}, fmt.Errorf("decode token: %w", err)
	}
	return registry.Token{ID: id, BundleID: doc.BundleID, UserID: doc.UserID}, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.docIDs(ctx, s.client.Collection(usersCollection).Query)
}

func (s *Store) ListUsersForBundle(ctx context.Context, bundleID string) ([]string, error) {
	iter := s.client.Collection(tokensCollection).Where("bundle-id", "==", bundleID).Documents(ctx)
	defer iter.Stop()

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list users for bundle: %w", err)
		}
		var doc tokenDoc
		if err := snap.DataTo(&doc); err != nil {
			continue
		}
		if !seen[doc.UserID] {
			seen[doc.UserID] = true
			ids = append(ids, doc.UserID)
		}
	}
	return ids, nil
}

func (s *Store) ListTokenIDs(ctx context.Context) ([]string, error) {
	return s.docIDs(ctx, s.client.Collection(tokensCollection).Query)
}

func (s *Store) ListTokensForBundle(ctx context.Context, bundleID string) ([]string, error) {
	return s.tokenIDs(ctx, s.client.Collection(tokensCollection).Where("bundle-id", "==", bundleID))
}

func (s *Store) ListTokensForUser(ctx context.Context, userID string) ([]string, error) {
	_, err := s.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("user %s: %w", userID, registry.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	return s.tokenIDs(ctx, s.client.Collection(tokensCollection).Where("user-id", "==", userID))
}

// --- Helpers ---

func (s *Store) tokenIDs(ctx context.Context, q firestore.Query) ([]string, error) {
	return s.docIDs(ctx, q)
}

func (s *Store) docIDs(ctx context.Context, q firestore.Query) ([]string, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	ids := make([]string, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}
