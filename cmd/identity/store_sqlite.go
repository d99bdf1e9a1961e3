package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store on an embedded SQLite database (modernc.org/sqlite).
//
// Uniqueness uses the same partial unique indexes as the Postgres schema. Writers are
// additionally serialized with a mutex: the driver does not support concurrent writes
// and would otherwise surface SQLITE_BUSY under contention.
type SQLiteStore struct {
	db        *sql.DB
	writeLock *sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

const sqliteDateLayout = "2006-01-02"

// OpenSQLiteStore opens (or creates) the database at path and applies the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("identity: empty sqlite path")
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, writeLock: new(sync.Mutex)}, nil
}

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS identities (
	id              TEXT    PRIMARY KEY,
	username        TEXT    NOT NULL,
	username_norm   TEXT    NOT NULL,
	email           TEXT    NOT NULL,
	email_norm      TEXT    NOT NULL,
	phone_number    TEXT    NULL,
	phone_norm      TEXT    NULL,
	credential_hash TEXT    NOT NULL,
	first_name      TEXT    NULL,
	last_name       TEXT    NULL,
	profile_picture TEXT    NULL,
	cover_picture   TEXT    NULL,
	birth_date      TEXT    NULL,
	gender          TEXT    NULL,
	bio             TEXT    NULL,
	is_active       INTEGER NOT NULL DEFAULT 1,
	deleted_at      INTEGER NULL,
	last_login_at   INTEGER NULL,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_identities_username_norm
	ON identities (username_norm) WHERE deleted_at IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS uq_identities_email_norm
	ON identities (email_norm) WHERE deleted_at IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS uq_identities_phone_norm
	ON identities (phone_norm) WHERE deleted_at IS NULL AND phone_norm IS NOT NULL;
`

const sqliteIdentityColumns = `id, username, email, phone_number, credential_hash,
	first_name, last_name, profile_picture, cover_picture, birth_date, gender, bio,
	is_active, deleted_at, last_login_at, created_at, updated_at`

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// Ping checks that the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return sqliteStorageErr("identity.Ping", err)
	}
	return nil
}

// Create inserts a new identity; the partial unique indexes reject duplicates.
func (s *SQLiteStore) Create(ctx context.Context, in CreateInput) (Identity, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Identity{}, unavailable(op, err)
	}
	row, err := prepareCreate(op, in)
	if err != nil {
		return Identity{}, err
	}
	id := row.ident
	p := id.Profile

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO identities (
			id, username, username_norm, email, email_norm, phone_number, phone_norm,
			credential_hash, first_name, last_name, profile_picture, cover_picture,
			birth_date, gender, bio, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id.ID,
		id.Username,
		row.usernameNorm,
		id.Email,
		row.emailNorm,
		sqlStr(id.PhoneNumber),
		sqlStr(row.phoneNorm),
		id.CredentialHash,
		sqlStr(p.FirstName),
		sqlStr(p.LastName),
		sqlStr(p.ProfilePicture),
		sqlStr(p.CoverPicture),
		sqlDate(p.BirthDate),
		sqlStr(p.Gender),
		sqlStr(p.Bio),
		id.CreatedAt.UnixNano(),
		id.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if field, ok := sqliteClassifyUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, sqliteStorageErr(op, err)
	}
	return id, nil
}

// FindBy returns the visible identity whose field equals value (normalized).
func (s *SQLiteStore) FindBy(ctx context.Context, field Field, value string) (Identity, error) {
	const op = "identity.FindBy"

	if err := ctx.Err(); err != nil {
		return Identity{}, unavailable(op, err)
	}
	col, ok := lookupColumn(field)
	if !ok {
		return Identity{}, invalidInput(op, "unsupported lookup field")
	}
	v := normalizeField(field, value)
	if v == "" {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}

	out, err := scanSQLiteIdentity(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteIdentityColumns+`
		   FROM identities
		  WHERE `+col+` = ?
		    AND deleted_at IS NULL
		    AND is_active = 1`,
		v,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, sqliteStorageErr(op, err)
	}
	return out, nil
}

// GetByID is the unfiltered administrative read.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (Identity, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return Identity{}, unavailable(op, err)
	}
	out, err := scanSQLiteIdentity(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteIdentityColumns+` FROM identities WHERE id = ?`,
		strings.TrimSpace(id),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, sqliteStorageErr(op, err)
	}
	return out, nil
}

// List pages through visible identities ordered by id.
func (s *SQLiteStore) List(ctx context.Context, in ListInput) ([]Identity, error) {
	const op = "identity.List"

	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	in = in.Normalized()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteIdentityColumns+`
		   FROM identities
		  WHERE deleted_at IS NULL
		    AND is_active = 1
		  ORDER BY id
		  LIMIT ? OFFSET ?`,
		in.Limit, in.Offset,
	)
	if err != nil {
		return nil, sqliteStorageErr(op, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Identity, 0, in.Limit)
	for rows.Next() {
		ident, err := scanSQLiteIdentity(rows)
		if err != nil {
			return nil, sqliteStorageErr(op, err)
		}
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteStorageErr(op, err)
	}
	return out, nil
}

// UpdateProfile applies a COALESCE-style patch to a non-deleted identity.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (Identity, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return Identity{}, unavailable(op, err)
	}

	email := trimPtr(patch.Email)
	var emailNorm *string
	if email != nil {
		n := NormalizeEmail(*email)
		emailNorm = &n
	}
	phone := trimPtr(patch.PhoneNumber)
	phoneNorm := normPhonePtr(phone)
	if phone != nil && phoneNorm == nil {
		return Identity{}, invalidInput(op, "phone_number has no digits")
	}
	p := patch.Profile

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	out, err := scanSQLiteIdentity(s.db.QueryRowContext(ctx,
		`UPDATE identities
		    SET email           = COALESCE(?, email),
		        email_norm      = COALESCE(?, email_norm),
		        phone_number    = COALESCE(?, phone_number),
		        phone_norm      = COALESCE(?, phone_norm),
		        first_name      = COALESCE(?, first_name),
		        last_name       = COALESCE(?, last_name),
		        profile_picture = COALESCE(?, profile_picture),
		        cover_picture   = COALESCE(?, cover_picture),
		        birth_date      = COALESCE(?, birth_date),
		        gender          = COALESCE(?, gender),
		        bio             = COALESCE(?, bio),
		        updated_at      = ?
		  WHERE id = ?
		    AND deleted_at IS NULL
		RETURNING `+sqliteIdentityColumns,
		sqlStr(email),
		sqlStr(emailNorm),
		sqlStr(phone),
		sqlStr(phoneNorm),
		sqlStr(trimPtr(p.FirstName)),
		sqlStr(trimPtr(p.LastName)),
		sqlStr(trimPtr(p.ProfilePicture)),
		sqlStr(trimPtr(p.CoverPicture)),
		sqlDate(p.BirthDate),
		sqlStr(trimPtr(p.Gender)),
		sqlStr(trimPtr(p.Bio)),
		nowOr(patch.Now).UnixNano(),
		strings.TrimSpace(id),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		if field, ok := sqliteClassifyUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, sqliteStorageErr(op, err)
	}
	return out, nil
}

// UpdateLastLogin stamps last_login_at on a visible identity.
func (s *SQLiteStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const op = "identity.UpdateLastLogin"

	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE identities
		    SET last_login_at = ?
		  WHERE id = ?
		    AND deleted_at IS NULL
		    AND is_active = 1`,
		nowOr(at).UnixNano(), strings.TrimSpace(id),
	)
	return sqliteAffectedOne(op, res, err)
}

// SoftDelete sets deleted_at and clears is_active. Already-deleted rows are NotFound.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const op = "identity.SoftDelete"

	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	ts := nowOr(at).UnixNano()

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE identities
		    SET deleted_at = ?,
		        is_active  = 0,
		        updated_at = ?
		  WHERE id = ?
		    AND deleted_at IS NULL`,
		ts, ts, strings.TrimSpace(id),
	)
	return sqliteAffectedOne(op, res, err)
}

// ---- helpers ----

func sqliteAffectedOne(op string, res sql.Result, err error) error {
	if err != nil {
		return sqliteStorageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sqliteStorageErr(op, err)
	}
	if n == 0 {
		return NotFoundError{Op: op, Resource: "identity"}
	}
	return nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteIdentity(row sqlScanner) (Identity, error) {
	var (
		out                            Identity
		phone, first, last, pic, cover sql.NullString
		birth, gender, bio             sql.NullString
		active                         int64
		deletedAt, lastLoginAt         sql.NullInt64
		createdAt, updatedAt           int64
	)
	err := row.Scan(
		&out.ID,
		&out.Username,
		&out.Email,
		&phone,
		&out.CredentialHash,
		&first,
		&last,
		&pic,
		&cover,
		&birth,
		&gender,
		&bio,
		&active,
		&deletedAt,
		&lastLoginAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return Identity{}, err
	}

	out.PhoneNumber = fromNullString(phone)
	out.Profile = Profile{
		FirstName:      fromNullString(first),
		LastName:       fromNullString(last),
		ProfilePicture: fromNullString(pic),
		CoverPicture:   fromNullString(cover),
		Gender:         fromNullString(gender),
		Bio:            fromNullString(bio),
	}
	if birth.Valid {
		d, err := time.Parse(sqliteDateLayout, birth.String)
		if err != nil {
			return Identity{}, fmt.Errorf("parse birth_date: %w", err)
		}
		out.Profile.BirthDate = &d
	}
	out.IsActive = active != 0
	out.DeletedAt = fromNullUnixNano(deletedAt)
	out.LastLoginAt = fromNullUnixNano(lastLoginAt)
	out.CreatedAt = time.Unix(0, createdAt).UTC()
	out.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return out, nil
}

func sqlStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func sqlDate(p *time.Time) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.UTC().Format(sqliteDateLayout), Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func fromNullUnixNano(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func sqliteClassifyUniqueViolation(err error) (string, bool) {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return "", false
	}
	if liteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	// Message shape: "UNIQUE constraint failed: identities.email_norm".
	return classifyConstraintText(strings.ToLower(liteErr.Error())), true
}

func sqliteStorageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return unavailable(op, err)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL, sqlite3.SQLITE_CANTOPEN:
			return unavailable(op, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
