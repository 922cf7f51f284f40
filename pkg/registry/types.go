// Package registry contains the public interfaces and domain models for the
// device-token registry.
package registry

// User owns zero or more device tokens. IDs are externally supplied
// (a username or UUID from the client app).
type User struct {
	ID    string `json:"user-id" yaml:"user-id"`
	Name  string `json:"name" yaml:"name"`
	Admin bool   `json:"admin" yaml:"admin"`
}

// Token is one registered APNS device token. The ID is the raw device-token
// hex string issued by the OS push service and is globally unique across all
// bundles: re-registering an existing token reassigns it rather than
// duplicating it.
type Token struct {
	ID       string `json:"id" yaml:"device-token"`
	BundleID string `json:"bundle-id" yaml:"bundle-id"`
	UserID   string `json:"user-id" yaml:"user-id"`
}

// UserRecord is the read model for a user: the user row plus the ids of the
// tokens it owns, in registration order.
type UserRecord struct {
	User     `yaml:",inline"`
	TokenIDs []string `json:"device-tokens" yaml:"device-tokens"`
}
