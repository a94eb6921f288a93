package datagate

// Descriptor overrides permission bits for one context id.
type Descriptor struct {
	ContextID string
	Granted   Permission
	Revoked   Permission
}

// PermissionHolder is the capability the access engine resolves against.
// Credentials and groups both implement it.
type PermissionHolder interface {
	HolderID() string
	DefaultGranted() Permission
	DefaultRevoked() Permission
	Descriptors() []Descriptor
}

// MemberHolder is a holder that belongs to groups, in membership order.
type MemberHolder interface {
	PermissionHolder
	Memberships() []PermissionHolder
}

var (
	_ MemberHolder     = (*Credential)(nil)
	_ PermissionHolder = (*Group)(nil)
)

// HolderID implements PermissionHolder.
func (c *Credential) HolderID() string { return c.ID }

// DefaultGranted implements PermissionHolder.
func (c *Credential) DefaultGranted() Permission { return c.Granted }

// DefaultRevoked implements PermissionHolder.
func (c *Credential) DefaultRevoked() Permission { return c.Revoked }

// Descriptors implements PermissionHolder.
func (c *Credential) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(c.Contexts))
	for _, ctx := range c.Contexts {
		if ctx == nil {
			continue
		}
		out = append(out, Descriptor{ContextID: ctx.ContextID, Granted: ctx.Granted, Revoked: ctx.Revoked})
	}
	return out
}

// Memberships implements MemberHolder.
func (c *Credential) Memberships() []PermissionHolder {
	out := make([]PermissionHolder, 0, len(c.Groups))
	for _, g := range c.Groups {
		if g != nil {
			out = append(out, g)
		}
	}
	return out
}

// HolderID implements PermissionHolder.
func (g *Group) HolderID() string { return g.ID }

// DefaultGranted implements PermissionHolder.
func (g *Group) DefaultGranted() Permission { return g.Granted }

// DefaultRevoked implements PermissionHolder.
func (g *Group) DefaultRevoked() Permission { return g.Revoked }

// Descriptors implements PermissionHolder.
func (g *Group) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(g.Contexts))
	for _, ctx := range g.Contexts {
		if ctx == nil {
			continue
		}
		out = append(out, Descriptor{ContextID: ctx.ContextID, Granted: ctx.Granted, Revoked: ctx.Revoked})
	}
	return out
}

// AddContext appends a descriptor to the credential in memory.
func (c *Credential) AddContext(contextID string, granted, revoked Permission) *Credential {
	c.Contexts = append(c.Contexts, &CredentialContext{
		OwnerID:   c.ID,
		ContextID: contextID,
		Granted:   granted,
		Revoked:   revoked,
		Position:  len(c.Contexts),
	})
	return c
}

// AddContext appends a descriptor to the group in memory.
func (g *Group) AddContext(contextID string, granted, revoked Permission) *Group {
	g.Contexts = append(g.Contexts, &GroupContext{
		OwnerID:   g.ID,
		ContextID: contextID,
		Granted:   granted,
		Revoked:   revoked,
		Position:  len(g.Contexts),
	})
	return g
}

// Join appends group to the credential memberships in memory.
func (c *Credential) Join(groups ...*Group) *Credential {
	c.Groups = append(c.Groups, groups...)
	return c
}
