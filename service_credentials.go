package datagate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ============================================================================
// CREDENTIALS AND GROUPS
// ============================================================================

type credentialInput struct {
	Username string `validate:"required,min=3,max=64"`
	Password string `validate:"required,min=8,max=72"`
}

type groupInput struct {
	Name string `validate:"required,min=2,max=64"`
}

type contextInput struct {
	OwnerID   string `validate:"required"`
	ContextID string `validate:"required,max=255"`
}

// RegisterCredential creates a credential with a bcrypt password hash and
// default permission bits.
//
// Example:
//
//	res := service.RegisterCredential(ctx, "alice", "correct horse", datagate.PermReadWrite, datagate.PermNone)
func (s *Service) RegisterCredential(ctx context.Context, username, password string, granted, revoked Permission) Result[*Credential] {
	if res := s.requireDirectory(); !res.Success() {
		return Recast[*Credential](res)
	}
	if err := s.validate.Struct(credentialInput{Username: username, Password: password}); err != nil {
		return validationFailure[*Credential](err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return FromError[*Credential](err)
	}

	cred := &Credential{
		Username:     username,
		PasswordHash: hash,
		Granted:      granted,
		Revoked:      revoked,
	}
	if err := s.directory.CreateCredential(ctx, cred); err != nil {
		return FromError[*Credential](err)
	}

	s.logger.Info("credential registered", zap.String("username", username), zap.String("id", cred.ID))
	return OkWith(cred)
}

// VerifyPassword resolves username and checks password. Unknown users,
// disabled credentials and wrong passwords all fail with Forbidden.
func (s *Service) VerifyPassword(ctx context.Context, username, password string) Result[*Credential] {
	if res := s.requireDirectory(); !res.Success() {
		return Recast[*Credential](res)
	}

	cred, err := s.directory.FindByUsername(ctx, username)
	if err != nil {
		if ReasonOf(err) == ReasonNotFound {
			return Fail[*Credential](ReasonForbidden, "invalid username or password")
		}
		return FromError[*Credential](err)
	}
	if cred.Disabled || !s.hasher.Verify(cred.PasswordHash, password) {
		return Fail[*Credential](ReasonForbidden, "invalid username or password")
	}
	return OkWith(cred)
}

// CreateGroup creates a group with default permission bits. Group default
// bits are stored but the access engine never consults them.
func (s *Service) CreateGroup(ctx context.Context, name string, granted, revoked Permission) Result[*Group] {
	if res := s.requireDirectory(); !res.Success() {
		return Recast[*Group](res)
	}
	if err := s.validate.Struct(groupInput{Name: name}); err != nil {
		return validationFailure[*Group](err)
	}

	group := &Group{Name: name, Granted: granted, Revoked: revoked}
	if err := s.directory.CreateGroup(ctx, group); err != nil {
		return FromError[*Group](err)
	}
	return OkWith(group)
}

// AddMembership appends groupID to the credential's memberships. Order of
// membership decides which group descriptor wins.
func (s *Service) AddMembership(ctx context.Context, credentialID, groupID string) Status {
	if res := s.requireDirectory(); !res.Success() {
		return res
	}
	if credentialID == "" || groupID == "" {
		return Fail[Empty](ReasonValidationError, "credential id and group id are required")
	}
	return FromError[Empty](s.directory.AddMembership(ctx, credentialID, groupID))
}

// GrantContext adds perm to the granted bits of the owner's descriptor for
// contextID and removes it from the revoked bits.
func (s *Service) GrantContext(ctx context.Context, kind HolderKind, ownerID, contextID string, perm Permission) Status {
	return s.updateContext(ctx, kind, ownerID, contextID, func(d *Descriptor) {
		d.Granted |= perm
		d.Revoked &^= perm
	})
}

// RevokeContext adds perm to the revoked bits of the owner's descriptor for
// contextID and removes it from the granted bits.
func (s *Service) RevokeContext(ctx context.Context, kind HolderKind, ownerID, contextID string, perm Permission) Status {
	return s.updateContext(ctx, kind, ownerID, contextID, func(d *Descriptor) {
		d.Revoked |= perm
		d.Granted &^= perm
	})
}

// ClearContext removes perm from both bit sets so the descriptor is silent
// on it again.
func (s *Service) ClearContext(ctx context.Context, kind HolderKind, ownerID, contextID string, perm Permission) Status {
	return s.updateContext(ctx, kind, ownerID, contextID, func(d *Descriptor) {
		d.Granted &^= perm
		d.Revoked &^= perm
	})
}

func (s *Service) updateContext(ctx context.Context, kind HolderKind, ownerID, contextID string, fn func(*Descriptor)) Status {
	if res := s.requireDirectory(); !res.Success() {
		return res
	}
	if err := s.validate.Struct(contextInput{OwnerID: ownerID, ContextID: contextID}); err != nil {
		return validationFailure[Empty](err)
	}
	if err := s.directory.UpdateContext(ctx, kind, ownerID, contextID, fn); err != nil {
		return FromError[Empty](err)
	}
	s.logger.Debug("context updated",
		zap.Stringer("kind", kind),
		zap.String("owner", ownerID),
		zap.String("context", contextID))
	return Ok[Empty]()
}

// SetDefaults replaces the default granted/revoked bits of a credential or
// group.
func (s *Service) SetDefaults(ctx context.Context, kind HolderKind, ownerID string, granted, revoked Permission) Status {
	if res := s.requireDirectory(); !res.Success() {
		return res
	}
	if ownerID == "" {
		return Fail[Empty](ReasonValidationError, "owner id is required")
	}
	return FromError[Empty](s.directory.SetDefaults(ctx, kind, ownerID, granted, revoked))
}

// ============================================================================
// PERMISSION CHECKING
// ============================================================================

// CheckAccess resolves access for holder in contextID.
func (s *Service) CheckAccess(ctx context.Context, holder PermissionHolder, contextID string, perm Permission) Result[Decision] {
	return s.access.CheckAccess(ctx, holder, contextID, perm)
}

// CheckAccessByName resolves username and checks access for it.
//
// Example:
//
//	res := service.CheckAccessByName(ctx, "alice", "Create:Invoice", datagate.PermCreate)
//	if granted, ok := res.Payload().Bool(); ok && granted {
//	    // explicitly granted
//	}
func (s *Service) CheckAccessByName(ctx context.Context, username, contextID string, perm Permission) Result[Decision] {
	return s.access.CheckAccessByName(ctx, username, contextID, perm)
}

// GetChecker creates a Checker for username.
func (s *Service) GetChecker(ctx context.Context, username string) Result[*Checker] {
	if res := s.requireDirectory(); !res.Success() {
		return Recast[*Checker](res)
	}
	cred, err := s.directory.FindByUsername(ctx, username)
	if err != nil {
		return FromError[*Checker](err)
	}
	return OkWith(NewChecker(cred, s.registry))
}

func (s *Service) requireDirectory() Status {
	if s.directory == nil {
		return Fail[Empty](ReasonServiceFailure, "no credential directory configured")
	}
	return Ok[Empty]()
}

// validationFailure turns validator errors into one readable message.
func validationFailure[T any](err error) Result[T] {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FromError[T](err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return failWith[T](ReasonValidationError, NewError(ErrValidation, strings.Join(parts, ", ")))
}
