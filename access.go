package datagate

import (
	"context"
	"fmt"
)

// Decision is the tri-state outcome of an access check.
type Decision uint8

const (
	// DecisionUndecided means no tier expressed an opinion. Callers apply
	// their own default, usually deny.
	DecisionUndecided Decision = iota
	// DecisionGranted means the permission was explicitly granted.
	DecisionGranted
	// DecisionRevoked means the permission was explicitly revoked.
	DecisionRevoked
)

func (d Decision) String() string {
	switch d {
	case DecisionGranted:
		return "granted"
	case DecisionRevoked:
		return "revoked"
	default:
		return "undecided"
	}
}

// Bool returns the decision as a nullable boolean: ok is false when undecided.
func (d Decision) Bool() (value, ok bool) {
	switch d {
	case DecisionGranted:
		return true, true
	case DecisionRevoked:
		return false, true
	default:
		return false, false
	}
}

// Allowed applies deny-by-default.
func (d Decision) Allowed() bool {
	return d == DecisionGranted
}

// CheckAccess resolves requested for holder in contextID.
//
// Resolution order, most specific first:
//  1. the holder's own descriptors for contextID;
//  2. the descriptors of each group the holder belongs to, in membership order;
//  3. the holder's own default granted/revoked bits.
//
// At every tier grant is tested before revoke, and a descriptor that is
// silent on the requested bits falls through to the next tier. Group default
// bits are never consulted.
func CheckAccess(holder PermissionHolder, contextID string, requested Permission) Decision {
	if isAbsent(holder) {
		return DecisionUndecided
	}

	if d := matchDescriptors(holder.Descriptors(), contextID, requested); d != DecisionUndecided {
		return d
	}

	if member, ok := holder.(MemberHolder); ok {
		for _, group := range member.Memberships() {
			if isAbsent(group) {
				continue
			}
			if d := matchDescriptors(group.Descriptors(), contextID, requested); d != DecisionUndecided {
				return d
			}
		}
	}

	return matchBits(holder.DefaultGranted(), holder.DefaultRevoked(), requested)
}

// matchDescriptors applies the first descriptor whose context id matches.
func matchDescriptors(descriptors []Descriptor, contextID string, requested Permission) Decision {
	for _, d := range descriptors {
		if d.ContextID != contextID {
			continue
		}
		return matchBits(d.Granted, d.Revoked, requested)
	}
	return DecisionUndecided
}

func matchBits(granted, revoked, requested Permission) Decision {
	if granted.Intersects(requested) {
		return DecisionGranted
	}
	if revoked.Intersects(requested) {
		return DecisionRevoked
	}
	return DecisionUndecided
}

// AccessService resolves access for holders and for usernames looked up in
// a CredentialStore.
type AccessService struct {
	store   CredentialStore
	metrics *Metrics
}

// NewAccessService creates an AccessService. metrics may be nil.
func NewAccessService(store CredentialStore, metrics *Metrics) *AccessService {
	return &AccessService{store: store, metrics: metrics}
}

// CheckAccess resolves access for holder. A nil holder is a tamper failure.
func (a *AccessService) CheckAccess(ctx context.Context, holder PermissionHolder, contextID string, requested Permission) Result[Decision] {
	if isAbsent(holder) {
		return Fail[Decision](ReasonTamper, "no identity to check access for")
	}
	d := CheckAccess(holder, contextID, requested)
	a.metrics.observeDecision(d)
	return OkWith(d)
}

// CheckAccessByName looks up username and resolves access for it.
func (a *AccessService) CheckAccessByName(ctx context.Context, username, contextID string, requested Permission) Result[Decision] {
	if a.store == nil {
		return Fail[Decision](ReasonServiceFailure, "no credential store configured")
	}
	cred, err := a.store.FindByUsername(ctx, username)
	if err != nil {
		if ReasonOf(err) == ReasonNotFound {
			return Fail[Decision](ReasonNotFound, fmt.Sprintf("credential %q not found", username))
		}
		return FromError[Decision](err)
	}
	return a.CheckAccess(ctx, cred, contextID, requested)
}
