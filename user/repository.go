package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"marketplace/db"
)

var (
	// ErrNotFound signals that the user does not exist.
	ErrNotFound = errors.New("user: not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("user: email already exists")
	// ErrDuplicateExternalID signals that the identity subject is already linked.
	ErrDuplicateExternalID = errors.New("user: external id already exists")
)

// Repository handles data access for users. Every method takes the query
// surface so callers can compose writes inside one transaction.
type Repository interface {
	Create(ctx context.Context, q db.DBTX, params CreateParams) (User, error)
	GetByID(ctx context.Context, q db.DBTX, id string) (User, error)
	GetByExternalID(ctx context.Context, q db.DBTX, externalID string) (User, error)
	GetByEmail(ctx context.Context, q db.DBTX, email string) (User, error)
	FindByEmailOrPhone(ctx context.Context, q db.DBTX, email, phone string) (User, error)
	ListByType(ctx context.Context, q db.DBTX, t Type) ([]User, error)
	ListVendorsWithProfile(ctx context.Context, q db.DBTX) ([]User, error)
	UpdateStatus(ctx context.Context, q db.DBTX, id string, upd StatusUpdate) (User, error)
	UpdateVerification(ctx context.Context, q db.DBTX, id string, verified bool, verifiedAt *time.Time, updatedBy string) (User, error)
	UpdateProfile(ctx context.Context, q db.DBTX, id string, upd ProfileUpdate) (User, error)
	SetProfileUpdated(ctx context.Context, q db.DBTX, id string, updated bool, updatedBy string) error
	Delete(ctx context.Context, q db.DBTX, id string) error
}

const userColumns = `
	id, external_id, type, first_name, last_name, email, phone, post_code, country, city,
	is_verified, verified_at, is_profile_updated, is_profile_reverified, profile_reverified_at,
	status, created_by, updated_by, remarks, rejected_at, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct{}

// NewRepository creates a PostgreSQL-backed user repository.
func NewRepository() *PGRepository {
	return &PGRepository{}
}

// Create inserts a new user.
func (r *PGRepository) Create(ctx context.Context, q db.DBTX, params CreateParams) (User, error) {
	status := params.Status
	if status == "" {
		status = StatusPending
	}

	insertSQL := `
		INSERT INTO users (
			id, external_id, type, first_name, last_name, email, phone, post_code, country, city,
			is_verified, verified_at, is_profile_updated, status, created_by, updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING ` + userColumns

	u, err := scanUser(q.QueryRow(ctx, insertSQL,
		params.ID,
		params.ExternalID,
		params.Type,
		params.FirstName,
		params.LastName,
		params.Email,
		params.Phone,
		params.PostCode,
		params.Country,
		params.City,
		params.IsVerified,
		params.VerifiedAt,
		params.IsProfileUpdated,
		status,
		params.CreatedBy,
	))
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, "users_email_key"):
			return User{}, ErrDuplicateEmail
		case db.IsUniqueViolation(err, "users_external_id_key"):
			return User{}, ErrDuplicateExternalID
		case db.IsUniqueViolation(err, ""):
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("user: create: %w", err)
	}

	return u, nil
}

// GetByID retrieves a user by primary key.
func (r *PGRepository) GetByID(ctx context.Context, q db.DBTX, id string) (User, error) {
	return r.getOne(ctx, q, "get by id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByExternalID retrieves a user by identity-provider subject.
func (r *PGRepository) GetByExternalID(ctx context.Context, q db.DBTX, externalID string) (User, error) {
	return r.getOne(ctx, q, "get by external id", `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
}

// GetByEmail retrieves a user by email address.
func (r *PGRepository) GetByEmail(ctx context.Context, q db.DBTX, email string) (User, error) {
	return r.getOne(ctx, q, "get by email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByEmailOrPhone returns the oldest user matching either the email or the
// phone. Phone is not unique, so ties resolve to the earliest row.
func (r *PGRepository) FindByEmailOrPhone(ctx context.Context, q db.DBTX, email, phone string) (User, error) {
	const where = ` FROM users WHERE email = $1 OR ($2 <> '' AND phone = $2) ORDER BY created_at ASC LIMIT 1`
	return r.getOne(ctx, q, "find by email or phone", `SELECT `+userColumns+where, email, phone)
}

// ListByType returns users of the given type, newest first.
func (r *PGRepository) ListByType(ctx context.Context, q db.DBTX, t Type) ([]User, error) {
	return r.list(ctx, q, `SELECT `+userColumns+` FROM users WHERE type = $1 ORDER BY created_at DESC`, t)
}

// ListVendorsWithProfile returns vendor users that completed onboarding.
func (r *PGRepository) ListVendorsWithProfile(ctx context.Context, q db.DBTX) ([]User, error) {
	const query = `
		SELECT u.id, u.external_id, u.type, u.first_name, u.last_name, u.email, u.phone, u.post_code, u.country, u.city,
			u.is_verified, u.verified_at, u.is_profile_updated, u.is_profile_reverified, u.profile_reverified_at,
			u.status, u.created_by, u.updated_by, u.remarks, u.rejected_at, u.created_at, u.updated_at
		FROM users u
		JOIN vendor_profiles vp ON vp.user_id = u.id
		WHERE u.type = 'vendor'
		ORDER BY u.created_at DESC
	`
	return r.list(ctx, q, query)
}

// UpdateStatus applies a status transition. Nil optional fields are left as is.
func (r *PGRepository) UpdateStatus(ctx context.Context, q db.DBTX, id string, upd StatusUpdate) (User, error) {
	updateSQL := `
		UPDATE users
		SET status = $2,
			is_verified = COALESCE($3, is_verified),
			verified_at = COALESCE($4, verified_at),
			rejected_at = COALESCE($5, rejected_at),
			remarks = COALESCE($6, remarks),
			updated_by = $7,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.getOne(ctx, q, "update status", updateSQL,
		id, upd.Status, upd.IsVerified, upd.VerifiedAt, upd.RejectedAt, upd.Remarks, upd.UpdatedBy)
}

// UpdateVerification sets the verification flag and its timestamp.
func (r *PGRepository) UpdateVerification(ctx context.Context, q db.DBTX, id string, verified bool, verifiedAt *time.Time, updatedBy string) (User, error) {
	updateSQL := `
		UPDATE users
		SET is_verified = $2, verified_at = $3, updated_by = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.getOne(ctx, q, "update verification", updateSQL, id, verified, verifiedAt, updatedBy)
}

// UpdateProfile writes the provided profile fields. Names are NOT NULL, so
// only the optional columns can be cleared.
func (r *PGRepository) UpdateProfile(ctx context.Context, q db.DBTX, id string, upd ProfileUpdate) (User, error) {
	updateSQL := `
		UPDATE users
		SET first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			phone = CASE WHEN $4::text IS NULL THEN phone ELSE NULLIF($4::text, '') END,
			post_code = CASE WHEN $5::text IS NULL THEN post_code ELSE NULLIF($5::text, '') END,
			country = CASE WHEN $6::text IS NULL THEN country ELSE NULLIF($6::text, '') END,
			city = CASE WHEN $7::text IS NULL THEN city ELSE NULLIF($7::text, '') END,
			updated_by = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.getOne(ctx, q, "update profile", updateSQL,
		id, upd.FirstName, upd.LastName, upd.Phone, upd.PostCode, upd.Country, upd.City, upd.UpdatedBy)
}

// SetProfileUpdated flips the onboarding-complete flag.
func (r *PGRepository) SetProfileUpdated(ctx context.Context, q db.DBTX, id string, updated bool, updatedBy string) error {
	const updateSQL = `
		UPDATE users
		SET is_profile_updated = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, updateSQL, id, updated, updatedBy)
	if err != nil {
		return fmt.Errorf("user: set profile updated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete physically removes the user; vendor profiles cascade.
func (r *PGRepository) Delete(ctx context.Context, q db.DBTX, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("user: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) getOne(ctx context.Context, q db.DBTX, op, query string, args ...any) (User, error) {
	u, err := scanUser(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("user: %s: %w", op, err)
	}
	return u, nil
}

func (r *PGRepository) list(ctx context.Context, q db.DBTX, query string, args ...any) ([]User, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("user: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user: iterate: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Type,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.Phone,
		&u.PostCode,
		&u.Country,
		&u.City,
		&u.IsVerified,
		&u.VerifiedAt,
		&u.IsProfileUpdated,
		&u.IsProfileReverified,
		&u.ProfileReverifiedAt,
		&u.Status,
		&u.CreatedBy,
		&u.UpdatedBy,
		&u.Remarks,
		&u.RejectedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return u, nil
}
