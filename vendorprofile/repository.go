package vendorprofile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"marketplace/db"
)

var (
	// ErrNotFound signals the requested profile does not exist.
	ErrNotFound = errors.New("vendorprofile: not found")
	// ErrProfileExists signals the user already has a vendor profile.
	ErrProfileExists = errors.New("vendorprofile: profile already exists for user")
	// ErrUnknownUser signals the owning user row is missing.
	ErrUnknownUser = errors.New("vendorprofile: owning user not found")
	// ErrUnknownBusinessType signals business_type_id names no business type.
	ErrUnknownBusinessType = errors.New("vendorprofile: unknown business type")
)

const businessTypeFK = "vendor_profiles_business_type_id_fkey"

// Repository provides access to vendor profiles.
type Repository interface {
	Create(ctx context.Context, q db.DBTX, params CreateParams) (Profile, error)
	GetByID(ctx context.Context, q db.DBTX, id string) (Profile, error)
	GetByUserID(ctx context.Context, q db.DBTX, userID string) (Profile, error)
	UpdateFiles(ctx context.Context, q db.DBTX, id string, logo, certificate *string, updatedBy string) (Profile, error)
	UpdateBusiness(ctx context.Context, q db.DBTX, id string, b Business, updatedBy string) (Profile, error)
	Delete(ctx context.Context, q db.DBTX, id string) (Profile, error)
}

const profileColumns = `
	id, user_id, business_type, business_type_id, business_name, company_name, contact_person,
	designation, country, city, website, business_registration_certificate, gst_number, address,
	company_details, whatsapp_number, logo, working_days, employee_count, payment_mode,
	establishment, created_by, updated_by, created_at, updated_at`

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct{}

// NewRepository wires a PostgreSQL-backed repository.
func NewRepository() *PGRepository {
	return &PGRepository{}
}

// Create inserts a profile. The user_id unique constraint is the last line
// against concurrent onboarding of the same user.
func (r *PGRepository) Create(ctx context.Context, q db.DBTX, params CreateParams) (Profile, error) {
	b := params.Business
	insertSQL := `
		INSERT INTO vendor_profiles (
			id, user_id, business_type, business_type_id, business_name, company_name, contact_person,
			designation, country, city, website, business_registration_certificate, gst_number, address,
			company_details, whatsapp_number, logo, working_days, employee_count, payment_mode,
			establishment, created_by, updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $22)
		RETURNING ` + profileColumns

	p, err := scanProfile(q.QueryRow(ctx, insertSQL,
		params.ID,
		params.UserID,
		b.BusinessType,
		b.BusinessTypeID,
		b.BusinessName,
		b.CompanyName,
		b.ContactPerson,
		b.Designation,
		b.Country,
		b.City,
		b.Website,
		params.Certificate,
		b.GSTNumber,
		b.Address,
		b.CompanyDetails,
		b.WhatsAppNumber,
		params.Logo,
		b.WorkingDays,
		b.EmployeeCount,
		b.PaymentMode,
		b.Establishment,
		params.CreatedBy,
	))
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Profile{}, ErrProfileExists
		}
		if db.IsForeignKeyViolation(err, businessTypeFK) {
			return Profile{}, fmt.Errorf("%w: %v", ErrUnknownBusinessType, err)
		}
		if db.IsForeignKeyViolation(err, "") {
			return Profile{}, fmt.Errorf("%w: %v", ErrUnknownUser, err)
		}
		return Profile{}, fmt.Errorf("vendorprofile: create: %w", err)
	}
	return p, nil
}

// GetByID fetches a profile by its primary key.
func (r *PGRepository) GetByID(ctx context.Context, q db.DBTX, id string) (Profile, error) {
	return getOne(ctx, q, "get by id", `SELECT `+profileColumns+` FROM vendor_profiles WHERE id = $1`, id)
}

// GetByUserID fetches the profile owned by a user.
func (r *PGRepository) GetByUserID(ctx context.Context, q db.DBTX, userID string) (Profile, error) {
	return getOne(ctx, q, "get by user id", `SELECT `+profileColumns+` FROM vendor_profiles WHERE user_id = $1`, userID)
}

// UpdateFiles replaces the logo and/or certificate URLs; nil leaves a column as is.
func (r *PGRepository) UpdateFiles(ctx context.Context, q db.DBTX, id string, logo, certificate *string, updatedBy string) (Profile, error) {
	updateSQL := `
		UPDATE vendor_profiles
		SET logo = COALESCE($2, logo),
			business_registration_certificate = COALESCE($3, business_registration_certificate),
			updated_by = $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns
	return getOne(ctx, q, "update files", updateSQL, id, logo, certificate, updatedBy)
}

// UpdateBusiness writes the provided business fields; nil leaves a column as is.
func (r *PGRepository) UpdateBusiness(ctx context.Context, q db.DBTX, id string, b Business, updatedBy string) (Profile, error) {
	updateSQL := `
		UPDATE vendor_profiles
		SET business_type = COALESCE($2, business_type),
			business_type_id = COALESCE($3, business_type_id),
			business_name = COALESCE($4, business_name),
			company_name = COALESCE($5, company_name),
			contact_person = COALESCE($6, contact_person),
			designation = COALESCE($7, designation),
			country = COALESCE($8, country),
			city = COALESCE($9, city),
			website = COALESCE($10, website),
			gst_number = COALESCE($11, gst_number),
			address = COALESCE($12, address),
			company_details = COALESCE($13, company_details),
			whatsapp_number = COALESCE($14, whatsapp_number),
			working_days = COALESCE($15, working_days),
			employee_count = COALESCE($16, employee_count),
			payment_mode = COALESCE($17, payment_mode),
			establishment = COALESCE($18, establishment),
			updated_by = $19,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns

	p, err := getOne(ctx, q, "update business", updateSQL,
		id,
		b.BusinessType,
		b.BusinessTypeID,
		b.BusinessName,
		b.CompanyName,
		b.ContactPerson,
		b.Designation,
		b.Country,
		b.City,
		b.Website,
		b.GSTNumber,
		b.Address,
		b.CompanyDetails,
		b.WhatsAppNumber,
		b.WorkingDays,
		b.EmployeeCount,
		b.PaymentMode,
		b.Establishment,
		updatedBy,
	)
	if db.IsForeignKeyViolation(err, businessTypeFK) {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnknownBusinessType, err)
	}
	return p, err
}

// Delete removes the profile and returns the deleted row.
func (r *PGRepository) Delete(ctx context.Context, q db.DBTX, id string) (Profile, error) {
	return getOne(ctx, q, "delete", `DELETE FROM vendor_profiles WHERE id = $1 RETURNING `+profileColumns, id)
}

func getOne(ctx context.Context, q db.DBTX, op, query string, args ...any) (Profile, error) {
	p, err := scanProfile(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("vendorprofile: %s: %w", op, err)
	}
	return p, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.BusinessType,
		&p.BusinessTypeID,
		&p.BusinessName,
		&p.CompanyName,
		&p.ContactPerson,
		&p.Designation,
		&p.Country,
		&p.City,
		&p.Website,
		&p.BusinessRegistrationCertificate,
		&p.GSTNumber,
		&p.Address,
		&p.CompanyDetails,
		&p.WhatsAppNumber,
		&p.Logo,
		&p.WorkingDays,
		&p.EmployeeCount,
		&p.PaymentMode,
		&p.Establishment,
		&p.CreatedBy,
		&p.UpdatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}
