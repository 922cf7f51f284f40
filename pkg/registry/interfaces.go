package registry

import "context"

// Store is the persistence contract for the token registry. Implementations
// must make every mutation durable before returning success, and must leave
// the previously persisted state intact when a write fails.
//
// Mutations on a shared store are serialized by the implementation; callers
// may invoke methods from concurrent HTTP handlers without coordination.
type Store interface {
	// CreateUser inserts a new user together with its first device token.
	// Returns ErrConflict if the user id already exists. The token is always
	// upserted: an existing token id is reassigned to this user.
	CreateUser(ctx context.Context, user User, token Token) error

	// ReplaceUser creates or fully replaces a user and upserts the given
	// token. Reports whether the user was created (as opposed to replaced).
	ReplaceUser(ctx context.Context, user User, token Token) (created bool, err error)

	// RenameUser updates the user's name. Returns ErrNotModified when the
	// name is unchanged and ErrNotFound when the user does not exist.
	RenameUser(ctx context.Context, id, name string) error

	// GetUser returns the user and the ids of its owned tokens.
	GetUser(ctx context.Context, id string) (UserRecord, error)

	// DeleteUser removes the user and cascades to every token it owns.
	DeleteUser(ctx context.Context, id string) error

	ListUserIDs(ctx context.Context) ([]string, error)
	ListUsersForBundle(ctx context.Context, bundleID string) ([]string, error)

	GetToken(ctx context.Context, id string) (Token, error)

	// DeleteToken removes one token. Returns ErrNotFound when absent, so a
	// second delete of the same id reports not-found rather than failing.
	DeleteToken(ctx context.Context, id string) error

	ListTokenIDs(ctx context.Context) ([]string, error)
	ListTokensForBundle(ctx context.Context, bundleID string) ([]string, error)

	// ListTokensForUser returns ErrUserNotFound when the user is absent.
	ListTokensForUser(ctx context.Context, userID string) ([]string, error)

	Close() error
}
