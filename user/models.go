package user

import (
	"regexp"
	"time"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
)

// ValidEmail reports whether s has the shape of an email address.
func ValidEmail(s string) bool { return emailPattern.MatchString(s) }

// ValidPhone reports whether s is an E.164 number, with or without the
// leading '+'.
func ValidPhone(s string) bool { return phonePattern.MatchString(s) }

// Type classifies a user. It is fixed at creation.
type Type string

const (
	TypeVendor   Type = "vendor"
	TypeCustomer Type = "customer"
	TypeAdmin    Type = "admin"
)

// Valid reports whether t is a known user type.
func (t Type) Valid() bool {
	switch t {
	case TypeVendor, TypeCustomer, TypeAdmin:
		return true
	default:
		return false
	}
}

// Status is the account lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive, StatusSuspended:
		return true
	default:
		return false
	}
}

// SystemActor is recorded in audit columns for writes not attributable to a
// signed-in user.
const SystemActor = "system"

// User mirrors the users table.
type User struct {
	ID                  string
	ExternalID          *string
	Type                Type
	FirstName           string
	LastName            string
	Email               string
	Phone               *string
	PostCode            *string
	Country             *string
	City                *string
	IsVerified          bool
	VerifiedAt          *time.Time
	IsProfileUpdated    bool
	IsProfileReverified bool
	ProfileReverifiedAt *time.Time
	Status              Status
	CreatedBy           *string
	UpdatedBy           *string
	Remarks             *string
	RejectedAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CreateParams contains write parameters for inserting a user.
type CreateParams struct {
	ID               string
	ExternalID       *string
	Type             Type
	FirstName        string
	LastName         string
	Email            string
	Phone            *string
	PostCode         *string
	Country          *string
	City             *string
	IsVerified       bool
	VerifiedAt       *time.Time
	IsProfileUpdated bool
	Status           Status
	CreatedBy        string
}

// StatusUpdate describes a status transition and the fields it touches.
type StatusUpdate struct {
	Status     Status
	IsVerified *bool
	VerifiedAt *time.Time
	RejectedAt *time.Time
	Remarks    *string
	UpdatedBy  string
}

// ProfileUpdate carries the editable profile fields of a user. Nil fields are
// left as is; an empty optional field is cleared.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	PostCode  *string
	Country   *string
	City      *string
	UpdatedBy string
}
