package datagate

import (
	"context"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// BunStore is the Directory backed by the datagate tables.
type BunStore struct {
	db dbkit.IDB
}

var _ Directory = (*BunStore)(nil)

// NewBunStore creates a store on db.
func NewBunStore(db dbkit.IDB) *BunStore {
	return &BunStore{db: db}
}

// FindByUsername implements CredentialStore. Descriptors and groups are
// loaded in position order within one read-only transaction.
func (s *BunStore) FindByUsername(ctx context.Context, username string) (*Credential, error) {
	return s.findCredential(ctx, "cr.username = ?", username)
}

// FindByID implements CredentialStore.
func (s *BunStore) FindByID(ctx context.Context, id string) (*Credential, error) {
	return s.findCredential(ctx, "cr.id = ?", id)
}

func (s *BunStore) findCredential(ctx context.Context, where string, arg any) (*Credential, error) {
	var cred Credential
	err := withReadOnlyTransaction(ctx, s.db, func(db dbkit.IDB) error {
		err := db.NewSelect().
			Model(&cred).
			Relation("Contexts", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Order("cc.position ASC")
			}).
			Where(where, arg).
			Limit(1).
			Scan(ctx)
		if err := dbkit.WithErr1(err, "FindCredential").Err(); err != nil {
			return err
		}

		groups, err := loadGroups(ctx, db, cred.ID)
		if err != nil {
			return err
		}
		cred.Groups = groups
		return nil
	})
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, fmt.Sprintf("credential %v not found", arg))
		}
		return nil, err
	}
	return &cred, nil
}

// loadGroups returns the groups of a credential in membership order, with
// their descriptors.
func loadGroups(ctx context.Context, db dbkit.IDB, credentialID string) ([]*Group, error) {
	var memberships []GroupMembership
	err := db.NewSelect().
		Model(&memberships).
		Where("credential_id = ?", credentialID).
		Order("position ASC").
		Scan(ctx)
	if err := dbkit.WithErr1(err, "LoadMemberships").Err(); err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, nil
	}

	ids := make([]string, len(memberships))
	for i, m := range memberships {
		ids[i] = m.GroupID
	}

	var groups []*Group
	err = db.NewSelect().
		Model(&groups).
		Relation("Contexts", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("gc.position ASC")
		}).
		Where("gr.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err := dbkit.WithErr1(err, "LoadGroups").Err(); err != nil {
		return nil, err
	}

	byID := make(map[string]*Group, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}
	ordered := make([]*Group, 0, len(memberships))
	for _, m := range memberships {
		if g, ok := byID[m.GroupID]; ok {
			ordered = append(ordered, g)
		}
	}
	return ordered, nil
}

// CreateCredential implements Directory.
func (s *BunStore) CreateCredential(ctx context.Context, cred *Credential) error {
	result, err := s.db.NewInsert().Model(cred).Returning("*").Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateCredential").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return NewError(ErrDuplicate, fmt.Sprintf("username %q already exists", cred.Username)).WithUsername(cred.Username)
		}
		return err
	}
	return nil
}

// CreateGroup implements Directory.
func (s *BunStore) CreateGroup(ctx context.Context, group *Group) error {
	result, err := s.db.NewInsert().Model(group).Returning("*").Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateGroup").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return NewError(ErrDuplicate, fmt.Sprintf("group %q already exists", group.Name))
		}
		return err
	}
	return nil
}

// FindGroup implements Directory.
func (s *BunStore) FindGroup(ctx context.Context, name string) (*Group, error) {
	var group Group
	err := s.db.NewSelect().
		Model(&group).
		Relation("Contexts", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("gc.position ASC")
		}).
		Where("gr.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err := dbkit.WithErr1(err, "FindGroup").Err(); err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, fmt.Sprintf("group %q not found", name))
		}
		return nil, err
	}
	return &group, nil
}

// AddMembership implements Directory. The new membership goes last.
func (s *BunStore) AddMembership(ctx context.Context, credentialID, groupID string) error {
	return withTransaction(ctx, s.db, func(db dbkit.IDB) error {
		exists, err := dbkit.Exists[GroupMembership](ctx, db, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("credential_id = ? AND group_id = ?", credentialID, groupID)
		})
		if err != nil {
			return err
		}
		if exists {
			return NewError(ErrDuplicate, "membership already exists")
		}

		count, err := dbkit.Count[GroupMembership](ctx, db, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("credential_id = ?", credentialID)
		})
		if err != nil {
			return err
		}

		membership := &GroupMembership{CredentialID: credentialID, GroupID: groupID, Position: count}
		result, err := db.NewInsert().Model(membership).Exec(ctx)
		return dbkit.WithErr(result, err, "AddMembership").Err()
	})
}

// UpdateContext implements Directory.
func (s *BunStore) UpdateContext(ctx context.Context, kind HolderKind, ownerID, contextID string, fn func(*Descriptor)) error {
	return withTransaction(ctx, s.db, func(db dbkit.IDB) error {
		if kind == HolderGroup {
			return updateGroupContext(ctx, db, ownerID, contextID, fn)
		}
		return updateCredentialContext(ctx, db, ownerID, contextID, fn)
	})
}

func updateCredentialContext(ctx context.Context, db dbkit.IDB, ownerID, contextID string, fn func(*Descriptor)) error {
	var row CredentialContext
	err := db.NewSelect().Model(&row).
		Where("owner_id = ? AND context_id = ?", ownerID, contextID).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	err = dbkit.WithErr1(err, "LoadCredentialContext").Err()
	switch {
	case err == nil:
		row.Granted, row.Revoked = updated(contextID, row.Granted, row.Revoked, fn)
		result, err := db.NewUpdate().Model(&row).Column("granted", "revoked").WherePK().Exec(ctx)
		return dbkit.WithErr(result, err, "UpdateCredentialContext").Err()
	case dbkit.IsNotFound(err):
		count, err := dbkit.Count[CredentialContext](ctx, db, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("owner_id = ?", ownerID)
		})
		if err != nil {
			return err
		}
		row = CredentialContext{OwnerID: ownerID, ContextID: contextID, Position: count}
		row.Granted, row.Revoked = updated(contextID, PermNone, PermNone, fn)
		result, err := db.NewInsert().Model(&row).Exec(ctx)
		return dbkit.WithErr(result, err, "InsertCredentialContext").Err()
	default:
		return err
	}
}

func updateGroupContext(ctx context.Context, db dbkit.IDB, ownerID, contextID string, fn func(*Descriptor)) error {
	var row GroupContext
	err := db.NewSelect().Model(&row).
		Where("owner_id = ? AND context_id = ?", ownerID, contextID).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	err = dbkit.WithErr1(err, "LoadGroupContext").Err()
	switch {
	case err == nil:
		row.Granted, row.Revoked = updated(contextID, row.Granted, row.Revoked, fn)
		result, err := db.NewUpdate().Model(&row).Column("granted", "revoked").WherePK().Exec(ctx)
		return dbkit.WithErr(result, err, "UpdateGroupContext").Err()
	case dbkit.IsNotFound(err):
		count, err := dbkit.Count[GroupContext](ctx, db, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("owner_id = ?", ownerID)
		})
		if err != nil {
			return err
		}
		row = GroupContext{OwnerID: ownerID, ContextID: contextID, Position: count}
		row.Granted, row.Revoked = updated(contextID, PermNone, PermNone, fn)
		result, err := db.NewInsert().Model(&row).Exec(ctx)
		return dbkit.WithErr(result, err, "InsertGroupContext").Err()
	default:
		return err
	}
}

// SetDefaults implements Directory.
func (s *BunStore) SetDefaults(ctx context.Context, kind HolderKind, ownerID string, granted, revoked Permission) error {
	var q *bun.UpdateQuery
	if kind == HolderGroup {
		q = s.db.NewUpdate().Model((*Group)(nil))
	} else {
		q = s.db.NewUpdate().Model((*Credential)(nil)).Set("updated_at = ?", time.Now())
	}
	result, err := q.
		Set("granted = ?", granted).
		Set("revoked = ?", revoked).
		Where("id = ?", ownerID).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "SetDefaults").Err(); err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewError(ErrNotFound, fmt.Sprintf("%s id %q not found", kind, ownerID))
	}
	return nil
}

// CreateSession implements SessionStore.
func (s *BunStore) CreateSession(ctx context.Context, session *Session) error {
	result, err := s.db.NewInsert().Model(session).Returning("*").Exec(ctx)
	return dbkit.WithErr(result, err, "CreateSession").Err()
}

// FindSession implements SessionStore.
func (s *BunStore) FindSession(ctx context.Context, token string) (*Session, error) {
	var session Session
	err := s.db.NewSelect().Model(&session).Where("token = ?", token).Limit(1).Scan(ctx)
	if err := dbkit.WithErr1(err, "FindSession").Err(); err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "session not found")
		}
		return nil, err
	}
	return &session, nil
}

// EndSession implements SessionStore. Only a session that has not ended
// yet is updated.
func (s *BunStore) EndSession(ctx context.Context, session *Session) error {
	result, err := s.db.NewUpdate().
		Model(session).
		Column("end_timestamp").
		Where("token = ?", session.Token).
		Where("end_timestamp IS NULL").
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "EndSession").Err(); err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := s.FindSession(ctx, session.Token); err != nil {
			return err
		}
		return NewError(ErrIdempotency, "session already ended")
	}
	return nil
}
