package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
//   - Uniqueness is carried by partial unique indexes (WHERE deleted_at IS NULL), so a
//     single INSERT is the whole uniqueness check; there is no read-before-write.
//   - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "idreg").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "idreg",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// Close is a no-op: the pool belongs to the caller.
func (s *PostgresStore) Close() error { return nil }

// Ping checks that a connection can be acquired.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return pgStorageErr("identity.Ping", err)
	}
	return nil
}

// Migrate creates the schema, table and partial unique indexes if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const op = "identity.Migrate"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrStorageUnavailable, Msg: "nil store"}
	}
	if _, err := s.pool.Exec(ctx, postgresSchemaSQL(s.schema)); err != nil {
		return pgStorageErr(op, err)
	}
	return nil
}

const pgIdentityColumns = `id, username, email, phone_number, credential_hash,
	first_name, last_name, profile_picture, cover_picture, birth_date, gender, bio,
	is_active, deleted_at, last_login_at, created_at, updated_at`

// Create inserts a new identity in a single statement.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Identity, error) {
	const op = "identity.Create"

	if s == nil || s.pool == nil {
		return Identity{}, OpError{Op: op, Kind: ErrStorageUnavailable, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, unavailable(op, err)
	}

	row, err := prepareCreate(op, in)
	if err != nil {
		return Identity{}, err
	}
	id := row.ident
	p := id.Profile

	table := pgIdent(s.schema, "identities")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+table+` (
		     id, username, username_norm, email, email_norm, phone_number, phone_norm,
		     credential_hash, first_name, last_name, profile_picture, cover_picture,
		     birth_date, gender, bio, is_active, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, true, $16, $16)`,
		id.ID,
		id.Username,
		row.usernameNorm,
		id.Email,
		row.emailNorm,
		id.PhoneNumber,
		row.phoneNorm,
		id.CredentialHash,
		p.FirstName,
		p.LastName,
		p.ProfilePicture,
		p.CoverPicture,
		p.BirthDate,
		p.Gender,
		p.Bio,
		id.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, pgStorageErr(op, err)
	}

	return id, nil
}

// FindBy returns the visible identity whose field equals value (normalized).
func (s *PostgresStore) FindBy(ctx context.Context, field Field, value string) (Identity, error) {
	const op = "identity.FindBy"

	if s == nil || s.pool == nil {
		return Identity{}, OpError{Op: op, Kind: ErrStorageUnavailable, Msg: "nil store"}
	}
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

	table := pgIdent(s.schema, "identities")
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgIdentityColumns+`
		   FROM `+table+`
		  WHERE `+col+` = $1
		    AND deleted_at IS NULL
		    AND is_active = true`,
		v,
	)
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, pgStorageErr(op, err)
	}
	return out, nil
}

// GetByID is the unfiltered administrative read.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Identity, error) {
	const op = "identity.GetByID"

	if s == nil || s.pool == nil {
		return Identity{}, OpError{Op: op, Kind: ErrStorageUnavailable, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, unavailable(op, err)
	}

	table := pgIdent(s.schema, "identities")
	out, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+pgIdentityColumns+` FROM `+table+` WHERE id = $1`,
		strings.TrimSpace(id),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, pgStorageErr(op, err)
	}
	return out, nil
}

// List pages through visible identities ordered by id.
func (s *PostgresStore) List(ctx context.Context, in ListInput) ([]Identity, error) {
	const op = "identity.List"

	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrStorageUnavailable, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	in = in.Normalized()

	table := pgIdent(s.schema, "identities")
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgIdentityColumns+`
		   FROM `+table+`
		  WHERE deleted_at IS NULL
		    AND is_active = true
		  ORDER BY id
		  LIMIT $1 OFFSET $2`,
		in.Limit, in.Offset,
	)
	if err != nil {
		return nil, pgStorageErr(op, err)
	}
	defer rows.Close()

	out := make([]Identity, 0, in.Limit)
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, pgStorageErr(op, err)
		}
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, pgStorageErr(op, err)
	}
	return out, nil
}

// UpdateProfile applies a COALESCE-style patch to a non-deleted identity.
// An email/phone collision fails the whole statement with ConflictError.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (Identity, error) {
	const op = "identity.UpdateProfile"

	if s == nil || s.pool == nil {
		return Identity{}, OpError{Op: op, Kind: ErrStorageUnavailable, Msg: "nil store"}
	}
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

	table := pgIdent(s.schema, "identities")
	out, err := scanIdentity(s.pool.QueryRow(ctx,
		`UPDATE `+table+`
		    SET email           = COALESCE($1, email),
		        email_norm      = COALESCE($2, email_norm),
		        phone_number    = COALESCE($3, phone_number),
		        phone_norm      = COALESCE($4, phone_norm),
		        first_name      = COALESCE($5, first_name),
		        last_name       = COALESCE($6, last_name),
		        profile_picture = COALESCE($7, profile_picture),
		        cover_picture   = COALESCE($8, cover_picture),
		        birth_date      = COALESCE($9, birth_date),
		        gender          = COALESCE($10, gender),
		        bio             = COALESCE($11, bio),
		        updated_at      = $12
		  WHERE id = $13
		    AND deleted_at IS NULL
		RETURNING `+pgIdentityColumns,
		email,
		emailNorm,
		phone,
		phoneNorm,
		trimPtr(p.FirstName),
		trimPtr(p.LastName),
		trimPtr(p.ProfilePicture),
		trimPtr(p.CoverPicture),
		p.BirthDate,
		trimPtr(p.Gender),
		trimPtr(p.Bio),
		nowOr(patch.Now),
		strings.TrimSpace(id),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, pgStorageErr(op, err)
	}
	return out, nil
}

// UpdateLastLogin stamps last_login_at on a visible identity.
func (s *PostgresStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const op = "identity.UpdateLastLogin"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrStorageUnavailable, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}

	table := pgIdent(s.schema, "identities")
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+table+`
		    SET last_login_at = $1
		  WHERE id = $2
		    AND deleted_at IS NULL
		    AND is_active = true`,
		nowOr(at), strings.TrimSpace(id),
	)
	if err != nil {
		return pgStorageErr(op, err)
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "identity"}
	}
	return nil
}

// SoftDelete sets deleted_at and clears is_active. Already-deleted rows are NotFound.
func (s *PostgresStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const op = "identity.SoftDelete"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrStorageUnavailable, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}

	table := pgIdent(s.schema, "identities")
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+table+`
		    SET deleted_at = $1,
		        is_active  = false,
		        updated_at = $1
		  WHERE id = $2
		    AND deleted_at IS NULL`,
		nowOr(at), strings.TrimSpace(id),
	)
	if err != nil {
		return pgStorageErr(op, err)
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "identity"}
	}
	return nil
}

// ---- helpers ----

func lookupColumn(field Field) (string, bool) {
	switch field {
	case FieldID:
		return "id", true
	case FieldEmail:
		return "email_norm", true
	case FieldUsername:
		return "username_norm", true
	case FieldPhoneNumber:
		return "phone_norm", true
	default:
		return "", false
	}
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var out Identity
	err := row.Scan(
		&out.ID,
		&out.Username,
		&out.Email,
		&out.PhoneNumber,
		&out.CredentialHash,
		&out.Profile.FirstName,
		&out.Profile.LastName,
		&out.Profile.ProfilePicture,
		&out.Profile.CoverPicture,
		&out.Profile.BirthDate,
		&out.Profile.Gender,
		&out.Profile.Bio,
		&out.IsActive,
		&out.DeletedAt,
		&out.LastLoginAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	return out, err
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// pgStorageErr maps transport-level failures to ErrStorageUnavailable.
// Anything else is returned wrapped with op; it indicates a programming/schema error.
func pgStorageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return unavailable(op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return unavailable(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return unavailable(op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection_exception
			return unavailable(op, err)
		case strings.HasPrefix(pgErr.Code, "53"): // insufficient_resources
			return unavailable(op, err)
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03": // shutdown / cannot_connect_now
			return unavailable(op, err)
		case pgErr.Code == "57014": // query_canceled (statement_timeout)
			return unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if pgconn.SafeToRetry(err) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable index names. Fall back to heuristic substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_identities_username_norm":
		return FieldNameUsername, true
	case "uq_identities_email_norm":
		return FieldNameEmail, true
	case "uq_identities_phone_norm":
		return FieldNamePhoneNumber, true
	default:
		return classifyConstraintText(c), true
	}
}

func classifyConstraintText(c string) string {
	switch {
	case strings.Contains(c, "username"):
		return FieldNameUsername
	case strings.Contains(c, "email"):
		return FieldNameEmail
	case strings.Contains(c, "phone"):
		return FieldNamePhoneNumber
	default:
		return "unique"
	}
}
