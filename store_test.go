package datagate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// TestBcryptHasher tests hashing, verification and cost clamping
func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("correct horse")
	require.NoError(t, err)

	assert.True(t, h.Verify(hash, "correct horse"))
	assert.False(t, h.Verify(hash, "wrong horse"))
	assert.False(t, h.Verify("not-a-hash", "correct horse"))

	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).Cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).Cost)
}

// TestHolderKindString tests owner kind names
func TestHolderKindString(t *testing.T) {
	assert.Equal(t, "credential", HolderCredential.String())
	assert.Equal(t, "group", HolderGroup.String())
}

// TestMemoryStoreCredentials tests credential creation and lookup
func TestMemoryStoreCredentials(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cred := &Credential{Username: "alice"}
	require.NoError(t, store.CreateCredential(ctx, cred))
	assert.NotEmpty(t, cred.ID)
	assert.False(t, cred.CreatedAt.IsZero())

	assert.ErrorIs(t, store.CreateCredential(ctx, &Credential{Username: "alice"}), ErrDuplicate)

	byName, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Same(t, cred, byName)

	byID, err := store.FindByID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Same(t, cred, byID)

	_, err = store.FindByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestMemoryStorePut tests storing in-memory built credentials
func TestMemoryStorePut(t *testing.T) {
	store := NewMemoryStore()
	group := &Group{Name: "ops"}
	cred := (&Credential{Username: "alice"}).Join(group)

	require.NoError(t, store.Put(cred))
	assert.NotEmpty(t, cred.ID)
	assert.NotEmpty(t, group.ID)

	found, err := store.FindGroup(context.Background(), "ops")
	require.NoError(t, err)
	assert.Same(t, group, found)

	require.NoError(t, store.Put(cred), "replacing the same credential is fine")
	assert.ErrorIs(t, store.Put(&Credential{ID: "other", Username: "alice"}), ErrDuplicate)
	assert.ErrorIs(t, store.Put(nil), ErrNilActor)
	assert.ErrorIs(t, store.Put(&Credential{}), ErrValidation)
}

// TestMemoryStoreMemberships tests ordered memberships
func TestMemoryStoreMemberships(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cred := &Credential{Username: "alice"}
	require.NoError(t, store.CreateCredential(ctx, cred))
	first := &Group{Name: "first"}
	second := &Group{Name: "second"}
	require.NoError(t, store.CreateGroup(ctx, first))
	require.NoError(t, store.CreateGroup(ctx, second))
	assert.ErrorIs(t, store.CreateGroup(ctx, &Group{Name: "first"}), ErrDuplicate)

	require.NoError(t, store.AddMembership(ctx, cred.ID, second.ID))
	require.NoError(t, store.AddMembership(ctx, cred.ID, first.ID))
	assert.ErrorIs(t, store.AddMembership(ctx, cred.ID, first.ID), ErrDuplicate)
	assert.ErrorIs(t, store.AddMembership(ctx, "nobody", first.ID), ErrNotFound)
	assert.ErrorIs(t, store.AddMembership(ctx, cred.ID, "nogroup"), ErrNotFound)

	require.Len(t, cred.Groups, 2)
	assert.Equal(t, "second", cred.Groups[0].Name)
	assert.Equal(t, "first", cred.Groups[1].Name)
}

// TestMemoryStoreUpdateContext tests descriptor upserts
func TestMemoryStoreUpdateContext(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cred := &Credential{Username: "alice"}
	require.NoError(t, store.CreateCredential(ctx, cred))
	group := &Group{Name: "ops"}
	require.NoError(t, store.CreateGroup(ctx, group))

	grant := func(p Permission) func(*Descriptor) {
		return func(d *Descriptor) { d.Granted |= p }
	}

	require.NoError(t, store.UpdateContext(ctx, HolderCredential, cred.ID, "reports", grant(PermRead)))
	require.NoError(t, store.UpdateContext(ctx, HolderCredential, cred.ID, "reports", grant(PermExport)))
	require.NoError(t, store.UpdateContext(ctx, HolderCredential, cred.ID, "billing", grant(PermCreate)))

	d := cred.Descriptors()
	require.Len(t, d, 2)
	assert.Equal(t, "reports", d[0].ContextID)
	assert.Equal(t, PermRead|PermExport, d[0].Granted)
	assert.Equal(t, "billing", d[1].ContextID)

	require.NoError(t, store.UpdateContext(ctx, HolderGroup, group.ID, "reports", grant(PermLock)))
	assert.Equal(t, PermLock, group.Descriptors()[0].Granted)

	assert.ErrorIs(t, store.UpdateContext(ctx, HolderGroup, "nope", "x", grant(PermRead)), ErrNotFound)
	assert.ErrorIs(t, store.UpdateContext(ctx, HolderCredential, "nope", "x", grant(PermRead)), ErrNotFound)
}

// TestMemoryStoreSetDefaults tests default bit replacement
func TestMemoryStoreSetDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cred := &Credential{Username: "alice"}
	require.NoError(t, store.CreateCredential(ctx, cred))
	group := &Group{Name: "ops"}
	require.NoError(t, store.CreateGroup(ctx, group))

	require.NoError(t, store.SetDefaults(ctx, HolderCredential, cred.ID, PermReadWrite, PermDelete))
	assert.Equal(t, PermReadWrite, cred.Granted)
	assert.Equal(t, PermDelete, cred.Revoked)

	require.NoError(t, store.SetDefaults(ctx, HolderGroup, group.ID, PermRead, PermNone))
	assert.Equal(t, PermRead, group.Granted)

	assert.ErrorIs(t, store.SetDefaults(ctx, HolderGroup, "nope", PermRead, PermNone), ErrNotFound)
}

// TestMemoryStoreSessions tests session persistence
func TestMemoryStoreSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	session := &Session{Token: "tok", CredentialID: "u1", Timestamp: time.Now(), TTLSeconds: 60}
	require.NoError(t, store.CreateSession(ctx, session))
	assert.NotEmpty(t, session.ID)
	assert.ErrorIs(t, store.CreateSession(ctx, &Session{Token: "tok"}), ErrDuplicate)

	found, err := store.FindSession(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)

	now := time.Now()
	found.EndTimestamp = &now
	again, err := store.FindSession(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, again.Ended(), "returned sessions are copies")

	require.NoError(t, store.EndSession(ctx, found))
	again, err = store.FindSession(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, again.Ended())
	assert.ErrorIs(t, store.EndSession(ctx, found), ErrIdempotency)

	_, err = store.FindSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.EndSession(ctx, &Session{Token: "missing"}), ErrNotFound)
}

// TestSessionLifetime tests expiry and activity
func TestSessionLifetime(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{Timestamp: start, TTLSeconds: 60}

	assert.True(t, s.Active(start.Add(30*time.Second)))
	assert.True(t, s.Expired(start.Add(61*time.Second)))
	assert.False(t, s.Active(start.Add(61*time.Second)))

	forever := &Session{Timestamp: start}
	assert.False(t, forever.Expired(start.Add(1000*time.Hour)))

	end := start.Add(time.Second)
	s.EndTimestamp = &end
	assert.True(t, s.Ended())
	assert.False(t, s.Active(start.Add(2*time.Second)))
}
