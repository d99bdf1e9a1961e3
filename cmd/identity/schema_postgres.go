package identity

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// postgresSchemaSQL returns idempotent DDL for the identity table in schema.
//
// Uniqueness lives in partial unique indexes restricted to non-deleted rows: a
// tombstoned identity frees its username/email/phone for re-registration, while an
// inactive-but-not-deleted identity keeps them reserved.
func postgresSchemaSQL(schema string) string {
	table := pgIdent(schema, "identities")

	return fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  username_norm TEXT NOT NULL,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  phone_number TEXT NULL,
  phone_norm TEXT NULL,
  credential_hash TEXT NOT NULL,

  first_name TEXT NULL,
  last_name TEXT NULL,
  profile_picture TEXT NULL,
  cover_picture TEXT NULL,
  birth_date DATE NULL,
  gender TEXT NULL,
  bio TEXT NULL,

  is_active BOOLEAN NOT NULL DEFAULT true,
  deleted_at TIMESTAMPTZ NULL,
  last_login_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_identities_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_identities_credential_hash_phc CHECK (credential_hash LIKE '$argon2id$%%'),
  CONSTRAINT chk_identities_deleted_inactive CHECK (deleted_at IS NULL OR is_active = false)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_identities_username_norm
  ON %s (username_norm) WHERE deleted_at IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS uq_identities_email_norm
  ON %s (email_norm) WHERE deleted_at IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS uq_identities_phone_norm
  ON %s (phone_norm) WHERE deleted_at IS NULL AND phone_norm IS NOT NULL;
`, pgx.Identifier{schema}.Sanitize(), table, table, table, table)
}
