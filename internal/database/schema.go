package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by Migrate. Statements are idempotent so the
// server and the offline tools can all call Migrate at start-up.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		username      VARCHAR(190) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          ENUM('SUPER_ADMIN','ADMIN','SUB_USER') NOT NULL,
		candidate_id  CHAR(36)     NULL,
		mfa_enabled   TINYINT(1)   NOT NULL DEFAULT 0,
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		created_at    DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at    DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_users_username (username),
		KEY idx_users_candidate (candidate_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id           CHAR(36)    NOT NULL PRIMARY KEY,
		user_id      CHAR(36)    NOT NULL,
		candidate_id CHAR(36)    NULL,
		token_hash   CHAR(64)    NOT NULL,
		expires_at   DATETIME(6) NOT NULL,
		revoked_at   DATETIME(6) NULL,
		created_at   DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_refresh_user_hash (user_id, token_hash),
		KEY idx_refresh_hash (token_hash),
		KEY idx_refresh_expires (expires_at),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS trusted_devices (
		id           CHAR(36)     NOT NULL PRIMARY KEY,
		user_id      CHAR(36)     NOT NULL,
		token_hash   CHAR(64)     NOT NULL,
		label        VARCHAR(190) NULL,
		expires_at   DATETIME(6)  NOT NULL,
		revoked_at   DATETIME(6)  NULL,
		last_used_at DATETIME(6)  NULL,
		created_at   DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_device_user_hash (user_id, token_hash),
		KEY idx_device_hash (token_hash),
		KEY idx_device_expires (expires_at),
		CONSTRAINT fk_device_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS security_events (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		actor_user_id CHAR(36)     NULL,
		action        VARCHAR(64)  NOT NULL,
		severity      ENUM('info','warning','critical') NOT NULL,
		entity_type   VARCHAR(64)  NOT NULL,
		entity_id     VARCHAR(64)  NULL,
		candidate_id  CHAR(36)     NULL,
		metadata      JSON         NULL,
		created_at    DATETIME(6)  NOT NULL,
		KEY idx_security_actor (actor_user_id, created_at),
		KEY idx_security_action (action, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reference_entities (
		id         CHAR(36)     NOT NULL PRIMARY KEY,
		kind       VARCHAR(64)  NOT NULL,
		code       VARCHAR(190) NOT NULL,
		name       VARCHAR(255) NOT NULL,
		parent_id  CHAR(36)     NULL,
		attributes JSON         NULL,
		created_at DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_reference_kind_code (kind, code),
		KEY idx_reference_parent (parent_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
