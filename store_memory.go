package datagate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Directory used by tests, the sample app and
// embedded tools. Returned credentials and groups are the stored values, so
// later writes are visible through them.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*Credential // by username
	groups      map[string]*Group      // by name
	sessions    map[string]*Session    // by token
}

var _ Directory = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]*Credential),
		groups:      make(map[string]*Group),
		sessions:    make(map[string]*Session),
	}
}

// Put stores or replaces a credential built in memory. A missing ID is
// generated and the credential's groups are stored as well.
func (m *MemoryStore) Put(cred *Credential) error {
	if cred == nil {
		return ErrNilActor
	}
	if cred.Username == "" {
		return NewError(ErrValidation, "username is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.credentials[cred.Username]; ok && cred.ID != "" && existing.ID != cred.ID {
		return NewError(ErrDuplicate, fmt.Sprintf("username %q already exists", cred.Username)).WithUsername(cred.Username)
	}
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	for _, g := range cred.Groups {
		if g == nil {
			continue
		}
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		m.groups[g.Name] = g
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}
	cred.UpdatedAt = time.Now()
	m.credentials[cred.Username] = cred
	return nil
}

// FindByUsername implements CredentialStore.
func (m *MemoryStore) FindByUsername(_ context.Context, username string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, ok := m.credentials[username]
	if !ok {
		return nil, NewError(ErrNotFound, fmt.Sprintf("credential %q not found", username)).WithUsername(username)
	}
	return cred, nil
}

// FindByID implements CredentialStore.
func (m *MemoryStore) FindByID(_ context.Context, id string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if cred := m.credentialByIDLocked(id); cred != nil {
		return cred, nil
	}
	return nil, NewError(ErrNotFound, fmt.Sprintf("credential id %q not found", id))
}

func (m *MemoryStore) credentialByIDLocked(id string) *Credential {
	for _, cred := range m.credentials {
		if cred.ID == id {
			return cred
		}
	}
	return nil
}

func (m *MemoryStore) groupByIDLocked(id string) *Group {
	for _, g := range m.groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// CreateCredential implements Directory.
func (m *MemoryStore) CreateCredential(_ context.Context, cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.credentials[cred.Username]; ok {
		return NewError(ErrDuplicate, fmt.Sprintf("username %q already exists", cred.Username)).WithUsername(cred.Username)
	}
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	now := time.Now()
	cred.CreatedAt, cred.UpdatedAt = now, now
	m.credentials[cred.Username] = cred
	return nil
}

// CreateGroup implements Directory.
func (m *MemoryStore) CreateGroup(_ context.Context, group *Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[group.Name]; ok {
		return NewError(ErrDuplicate, fmt.Sprintf("group %q already exists", group.Name))
	}
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	group.CreatedAt = time.Now()
	m.groups[group.Name] = group
	return nil
}

// FindGroup implements Directory.
func (m *MemoryStore) FindGroup(_ context.Context, name string) (*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[name]
	if !ok {
		return nil, NewError(ErrNotFound, fmt.Sprintf("group %q not found", name))
	}
	return g, nil
}

// AddMembership implements Directory.
func (m *MemoryStore) AddMembership(_ context.Context, credentialID, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred := m.credentialByIDLocked(credentialID)
	if cred == nil {
		return NewError(ErrNotFound, fmt.Sprintf("credential id %q not found", credentialID))
	}
	group := m.groupByIDLocked(groupID)
	if group == nil {
		return NewError(ErrNotFound, fmt.Sprintf("group id %q not found", groupID))
	}
	for _, g := range cred.Groups {
		if g.ID == groupID {
			return NewError(ErrDuplicate, fmt.Sprintf("%s is already in %s", cred.Username, group.Name)).WithUsername(cred.Username)
		}
	}
	cred.Groups = append(cred.Groups, group)
	return nil
}

// UpdateContext implements Directory.
func (m *MemoryStore) UpdateContext(_ context.Context, kind HolderKind, ownerID, contextID string, fn func(*Descriptor)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case HolderGroup:
		g := m.groupByIDLocked(ownerID)
		if g == nil {
			return NewError(ErrNotFound, fmt.Sprintf("group id %q not found", ownerID))
		}
		for _, c := range g.Contexts {
			if c.ContextID == contextID {
				c.Granted, c.Revoked = updated(contextID, c.Granted, c.Revoked, fn)
				return nil
			}
		}
		granted, revoked := updated(contextID, PermNone, PermNone, fn)
		g.AddContext(contextID, granted, revoked)
	default:
		cred := m.credentialByIDLocked(ownerID)
		if cred == nil {
			return NewError(ErrNotFound, fmt.Sprintf("credential id %q not found", ownerID))
		}
		for _, c := range cred.Contexts {
			if c.ContextID == contextID {
				c.Granted, c.Revoked = updated(contextID, c.Granted, c.Revoked, fn)
				return nil
			}
		}
		granted, revoked := updated(contextID, PermNone, PermNone, fn)
		cred.AddContext(contextID, granted, revoked)
	}
	return nil
}

func updated(contextID string, granted, revoked Permission, fn func(*Descriptor)) (Permission, Permission) {
	d := Descriptor{ContextID: contextID, Granted: granted, Revoked: revoked}
	fn(&d)
	return d.Granted, d.Revoked
}

// SetDefaults implements Directory.
func (m *MemoryStore) SetDefaults(_ context.Context, kind HolderKind, ownerID string, granted, revoked Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case HolderGroup:
		g := m.groupByIDLocked(ownerID)
		if g == nil {
			return NewError(ErrNotFound, fmt.Sprintf("group id %q not found", ownerID))
		}
		g.Granted, g.Revoked = granted, revoked
	default:
		cred := m.credentialByIDLocked(ownerID)
		if cred == nil {
			return NewError(ErrNotFound, fmt.Sprintf("credential id %q not found", ownerID))
		}
		cred.Granted, cred.Revoked = granted, revoked
		cred.UpdatedAt = time.Now()
	}
	return nil
}

// CreateSession implements SessionStore.
func (m *MemoryStore) CreateSession(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.Token]; ok {
		return NewError(ErrDuplicate, "session token already exists")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	copied := *session
	m.sessions[session.Token] = &copied
	return nil
}

// FindSession implements SessionStore.
func (m *MemoryStore) FindSession(_ context.Context, token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[token]
	if !ok {
		return nil, NewError(ErrNotFound, "session not found")
	}
	copied := *session
	return &copied, nil
}

// EndSession implements SessionStore.
func (m *MemoryStore) EndSession(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[session.Token]
	if !ok {
		return NewError(ErrNotFound, "session not found")
	}
	if stored.Ended() {
		return NewError(ErrIdempotency, "session already ended")
	}
	stored.EndTimestamp = session.EndTimestamp
	return nil
}
