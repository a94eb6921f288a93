package datagate

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// MigrationService provides migration management functionality as an extension to Service
type MigrationService struct {
	*Service
}

// NewMigrationService creates a new migration service extension
func NewMigrationService(service *Service) *MigrationService {
	return &MigrationService{Service: service}
}

// RunMigrations applies every pending migration and returns how many ran.
func (ms *MigrationService) RunMigrations(ctx context.Context) (int, error) {
	db, ok := ms.db.(*dbkit.DBKit)
	if !ok {
		return 0, NewError(ErrServiceFailure, "migrations require a dbkit.DBKit instance")
	}
	result, err := db.Migrate(ctx, ms.Migrations())
	if err != nil {
		return 0, err
	}
	return len(result.Applied), nil
}

// Migrations returns all database migrations required by datagate.
// Use dbkit.Migrate(ctx, service.Migrations()) to run migrations.
func (ms *MigrationService) Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "datagate-001",
			Description: "Create credentials table",
			SQL: `
                CREATE TABLE IF NOT EXISTS credentials (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    username TEXT NOT NULL UNIQUE,
                    password_hash TEXT NOT NULL,
                    granted BIGINT NOT NULL DEFAULT 0,
                    revoked BIGINT NOT NULL DEFAULT 0,
                    disabled BOOLEAN NOT NULL DEFAULT FALSE,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "datagate-002",
			Description: "Create groups table",
			SQL: `
                CREATE TABLE IF NOT EXISTS groups (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name TEXT NOT NULL UNIQUE,
                    granted BIGINT NOT NULL DEFAULT 0,
                    revoked BIGINT NOT NULL DEFAULT 0,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "datagate-003",
			Description: "Create descriptor tables",
			SQL: `
                CREATE TABLE IF NOT EXISTS credential_contexts (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    owner_id UUID NOT NULL REFERENCES credentials(id) ON DELETE CASCADE,
                    context_id TEXT NOT NULL,
                    granted BIGINT NOT NULL DEFAULT 0,
                    revoked BIGINT NOT NULL DEFAULT 0,
                    position INTEGER NOT NULL DEFAULT 0,
                    UNIQUE (owner_id, context_id)
                );
                CREATE TABLE IF NOT EXISTS group_contexts (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    owner_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
                    context_id TEXT NOT NULL,
                    granted BIGINT NOT NULL DEFAULT 0,
                    revoked BIGINT NOT NULL DEFAULT 0,
                    position INTEGER NOT NULL DEFAULT 0,
                    UNIQUE (owner_id, context_id)
                )`,
		},
		{
			ID:          "datagate-004",
			Description: "Create group_memberships table",
			SQL: `
                CREATE TABLE IF NOT EXISTS group_memberships (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    credential_id UUID NOT NULL REFERENCES credentials(id) ON DELETE CASCADE,
                    group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
                    position INTEGER NOT NULL DEFAULT 0,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (credential_id, group_id)
                )`,
		},
		{
			ID:          "datagate-005",
			Description: "Create sessions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS sessions (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    token TEXT NOT NULL UNIQUE,
                    credential_id UUID NOT NULL REFERENCES credentials(id) ON DELETE CASCADE,
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    ttl_seconds BIGINT NOT NULL,
                    end_timestamp TIMESTAMPTZ,
                    ip_address TEXT,
                    user_agent TEXT
                )`,
		},
		{
			ID:          "datagate-006",
			Description: "Create audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS audit_log (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor_id TEXT NOT NULL,
                    actor_name TEXT NOT NULL,
                    elevated BOOLEAN NOT NULL DEFAULT FALSE,
                    action TEXT NOT NULL,
                    action_tag INTEGER NOT NULL,
                    change_type TEXT NOT NULL,
                    model TEXT NOT NULL,
                    entity_key TEXT,
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT,
                    metadata JSONB
                );
                CREATE INDEX IF NOT EXISTS audit_log_model_idx ON audit_log (model, entity_key);
                CREATE INDEX IF NOT EXISTS audit_log_timestamp_idx ON audit_log (timestamp DESC)`,
		},
	}
}
