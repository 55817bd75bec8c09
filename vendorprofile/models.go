package vendorprofile

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidEstablishment is returned for an establishment year out of range.
	ErrInvalidEstablishment = errors.New("vendorprofile: invalid establishment year")
	// ErrInvalidEmployeeCount is returned for a negative employee count.
	ErrInvalidEmployeeCount = errors.New("vendorprofile: negative employee count")
)

const (
	minEstablishment = 1800
	maxEstablishment = 2100
)

// Profile mirrors the vendor_profiles table. A user has at most one.
type Profile struct {
	ID                              string
	UserID                          string
	BusinessType                    *string
	BusinessTypeID                  *int32
	BusinessName                    *string
	CompanyName                     *string
	ContactPerson                   *string
	Designation                     *string
	Country                         *string
	City                            *string
	Website                         *string
	BusinessRegistrationCertificate *string
	GSTNumber                       *string
	Address                         *string
	CompanyDetails                  *string
	WhatsAppNumber                  *string
	Logo                            *string
	WorkingDays                     *string
	EmployeeCount                   *int32
	PaymentMode                     *string
	Establishment                   *int32
	CreatedBy                       *string
	UpdatedBy                       *string
	CreatedAt                       time.Time
	UpdatedAt                       time.Time
}

// Business holds the caller-supplied business fields of a profile.
type Business struct {
	BusinessType   *string
	BusinessTypeID *int32
	BusinessName   *string
	CompanyName    *string
	ContactPerson  *string
	Designation    *string
	Country        *string
	City           *string
	Website        *string
	GSTNumber      *string
	Address        *string
	CompanyDetails *string
	WhatsAppNumber *string
	WorkingDays    *string
	EmployeeCount  *int32
	PaymentMode    *string
	Establishment  *int32
}

// Validate checks the numeric business fields that are set.
func (b Business) Validate() error {
	if b.Establishment != nil && (*b.Establishment < minEstablishment || *b.Establishment > maxEstablishment) {
		return fmt.Errorf("%w: %d", ErrInvalidEstablishment, *b.Establishment)
	}
	if b.EmployeeCount != nil && *b.EmployeeCount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEmployeeCount, *b.EmployeeCount)
	}
	return nil
}

// CreateParams contains write parameters for inserting a profile.
type CreateParams struct {
	ID          string
	UserID      string
	Business    Business
	Logo        *string
	Certificate *string
	CreatedBy   string
}
