package datagate

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// CredentialStore resolves credentials with their descriptors and groups
// loaded. Missing credentials are reported with ErrNotFound.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*Credential, error)
	FindByID(ctx context.Context, id string) (*Credential, error)
}

// SessionStore persists sessions. EndSession must only end a session that
// has not ended yet and report ErrIdempotency otherwise.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	FindSession(ctx context.Context, token string) (*Session, error)
	EndSession(ctx context.Context, session *Session) error
}

// HolderKind selects the owner table of a descriptor or default bits.
type HolderKind uint8

const (
	HolderCredential HolderKind = iota
	HolderGroup
)

func (k HolderKind) String() string {
	if k == HolderGroup {
		return "group"
	}
	return "credential"
}

// Directory is the read/write store behind the Service.
type Directory interface {
	CredentialStore
	SessionStore

	CreateCredential(ctx context.Context, cred *Credential) error
	CreateGroup(ctx context.Context, group *Group) error
	FindGroup(ctx context.Context, name string) (*Group, error)
	AddMembership(ctx context.Context, credentialID, groupID string) error

	// UpdateContext loads the descriptor for contextID (zero when missing),
	// passes it to fn and stores the result.
	UpdateContext(ctx context.Context, kind HolderKind, ownerID, contextID string, fn func(*Descriptor)) error
	SetDefaults(ctx context.Context, kind HolderKind, ownerID string, granted, revoked Permission) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when
// cost is out of range.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{Cost: cost}
}

// Hash implements PasswordHasher.
func (h BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", NewError(ErrValidation, err.Error())
	}
	return string(hash), nil
}

// Verify implements PasswordHasher.
func (h BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
