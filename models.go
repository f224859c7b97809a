package podauth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthProvider tells which signin path an identity can use
type AuthProvider string

const (
	// ProviderLocal identities signin with a password
	ProviderLocal AuthProvider = "local"
	// ProviderFederated identities signin through an external provider
	ProviderFederated AuthProvider = "federated"
)

// User is the user model. PasswordHash is stored as NULL for federated
// identities and never serialized.
type User struct {
	bun.BaseModel   `bun:"table:users,alias:usr"`
	ID              uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email           string       `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash    string       `bun:"password_hash,nullzero" json:"-"`
	AuthProvider    AuthProvider `bun:"auth_provider,notnull" json:"-"`
	Name            string       `bun:"name" json:"name,omitempty"`
	Img             string       `bun:"img" json:"img,omitempty"`
	EmailVerified   bool         `bun:"is_email_verified,notnull" json:"emailVerified"`
	EmailVerifiedAt *time.Time   `bun:"email_verified_at,nullzero" json:"-"`
	CreatedAt       *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt       *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updatedAt,omitempty"`
}

// IsFederated reports whether the identity signs in through a provider
func (u *User) IsFederated() bool {
	return u != nil && u.AuthProvider == ProviderFederated
}

// UserIdentity adapts a User into the Identity interface
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

// ID returns the user's ID as a string.
func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

// Email returns the user's email address.
func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

// RefreshToken is a persisted refresh token digest
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rft"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
