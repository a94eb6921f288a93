package datagate

import (
	"time"

	"github.com/uptrace/bun"
)

// Credential is a login identity. It carries default permission bits,
// ordered contextual descriptors and ordered group memberships.
type Credential struct {
	bun.BaseModel `bun:"table:credentials,alias:cr"`

	ID           string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Username     string     `bun:"username,notnull,unique"`
	PasswordHash string     `bun:"password_hash,notnull"`
	Granted      Permission `bun:"granted,notnull,default:0"`
	Revoked      Permission `bun:"revoked,notnull,default:0"`
	Disabled     bool       `bun:"disabled,notnull,default:false"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`

	Contexts []*CredentialContext `bun:"rel:has-many,join:id=owner_id"`

	// Groups in membership order, loaded by the store.
	Groups []*Group `bun:"-"`
}

// Group is a named set of credentials sharing contextual descriptors.
type Group struct {
	bun.BaseModel `bun:"table:groups,alias:gr"`

	ID        string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name      string     `bun:"name,notnull,unique"`
	Granted   Permission `bun:"granted,notnull,default:0"`
	Revoked   Permission `bun:"revoked,notnull,default:0"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`

	Contexts []*GroupContext `bun:"rel:has-many,join:id=owner_id"`
}

// CredentialContext is a contextual descriptor owned by a credential.
type CredentialContext struct {
	bun.BaseModel `bun:"table:credential_contexts,alias:cc"`

	ID        string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	OwnerID   string     `bun:"owner_id,type:uuid,notnull"`
	ContextID string     `bun:"context_id,notnull"`
	Granted   Permission `bun:"granted,notnull,default:0"`
	Revoked   Permission `bun:"revoked,notnull,default:0"`
	Position  int        `bun:"position,notnull,default:0"`
}

// GroupContext is a contextual descriptor owned by a group.
type GroupContext struct {
	bun.BaseModel `bun:"table:group_contexts,alias:gc"`

	ID        string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	OwnerID   string     `bun:"owner_id,type:uuid,notnull"`
	ContextID string     `bun:"context_id,notnull"`
	Granted   Permission `bun:"granted,notnull,default:0"`
	Revoked   Permission `bun:"revoked,notnull,default:0"`
	Position  int        `bun:"position,notnull,default:0"`
}

// GroupMembership links one credential to one group.
type GroupMembership struct {
	bun.BaseModel `bun:"table:group_memberships,alias:gm"`

	ID           string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	CredentialID string    `bun:"credential_id,type:uuid,notnull"`
	GroupID      string    `bun:"group_id,type:uuid,notnull"`
	Position     int       `bun:"position,notnull,default:0"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Session is one authenticated login. It ends when EndTimestamp is set.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:se"`

	ID           string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Token        string     `bun:"token,notnull,unique"`
	CredentialID string     `bun:"credential_id,type:uuid,notnull"`
	Timestamp    time.Time  `bun:"timestamp,notnull,default:current_timestamp"`
	TTLSeconds   int64      `bun:"ttl_seconds,notnull"`
	EndTimestamp *time.Time `bun:"end_timestamp,nullzero"`
	IPAddress    string     `bun:"ip_address"`
	UserAgent    string     `bun:"user_agent"`
}

// AuditLog records one pipeline mutation for compliance and debugging.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_log,alias:al"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Timestamp time.Time `bun:"timestamp,notnull,default:current_timestamp"`

	// Who performed the action
	ActorID   string `bun:"actor_id,notnull"`
	ActorName string `bun:"actor_name,notnull"`
	Elevated  bool   `bun:"elevated,notnull,default:false"`

	// What was done
	Action     string `bun:"action,notnull"`
	ActionTag  int    `bun:"action_tag,notnull"`
	ChangeType string `bun:"change_type,notnull"`
	Model      string `bun:"model,notnull"`
	EntityKey  string `bun:"entity_key"`

	// Request metadata for forensics
	IPAddress string `bun:"ip_address"`
	UserAgent string `bun:"user_agent"`
	RequestID string `bun:"request_id"`

	Metadata map[string]any `bun:"metadata,type:jsonb"`
}

// ModelName implements Modeler.
func (c *Credential) ModelName() string { return "Credential" }

// EntityKey implements Keyed.
func (c *Credential) EntityKey() string { return c.ID }

// ModelName implements Modeler.
func (g *Group) ModelName() string { return "Group" }

// EntityKey implements Keyed.
func (g *Group) EntityKey() string { return g.ID }

// EntityKey implements Keyed.
func (s *Session) EntityKey() string { return s.ID }

// Expired reports whether the session outlived its TTL at now.
func (s *Session) Expired(now time.Time) bool {
	if s.TTLSeconds <= 0 {
		return false
	}
	return now.After(s.Timestamp.Add(time.Duration(s.TTLSeconds) * time.Second))
}

// Ended reports whether the session was explicitly ended.
func (s *Session) Ended() bool {
	return s.EndTimestamp != nil
}

// Active reports whether the session is neither ended nor expired.
func (s *Session) Active(now time.Time) bool {
	return !s.Ended() && !s.Expired(now)
}
