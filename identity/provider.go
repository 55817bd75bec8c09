// Package identity talks to the remote identity provider: registration,
// confirmation, passwordless challenges, token checks and attribute lookups
// across the admin and general pools.
package identity

import (
	"context"
	"errors"
)

var (
	ErrIdentityExists   = errors.New("identity: user already exists")
	ErrInvalidPassword  = errors.New("identity: password does not meet policy")
	ErrInvalidParameter = errors.New("identity: invalid parameter")
	ErrCodeMismatch     = errors.New("identity: code mismatch")
	ErrCodeExpired      = errors.New("identity: code expired")
	ErrIdentityNotFound = errors.New("identity: user not found")
	ErrNotAuthorized    = errors.New("identity: not authorized")
	ErrNotConfirmed     = errors.New("identity: user not confirmed")
	ErrInvalidToken     = errors.New("identity: invalid token")
)

// Standard attribute names in the pools.
const (
	AttrEmail               = "email"
	AttrPhone               = "phone_number"
	AttrGivenName           = "given_name"
	AttrFamilyName          = "family_name"
	AttrUserType            = "custom:user_type"
	AttrEmailVerified       = "email_verified"
	AttrPhoneNumberVerified = "phone_number_verified"
	AttrSubject             = "sub"
)

// CodeDelivery describes where the provider sent a code.
type CodeDelivery struct {
	Destination   string `json:"destination,omitempty"`
	Medium        string `json:"deliveryMedium,omitempty"`
	AttributeName string `json:"attributeName,omitempty"`
}

// Registration is the provider's answer to a sign-up.
type Registration struct {
	Subject   string
	Confirmed bool
	Delivery  *CodeDelivery
}

// Challenge is an open passwordless session. It lives only at the provider.
type Challenge struct {
	Session string
	Name    string
}

// Tokens is the provider-issued token set.
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int32
}

// Identity is a provider user with its standard attributes resolved.
type Identity struct {
	Username   string
	Subject    string
	Email      string
	Phone      string
	FirstName  string
	LastName   string
	UserType   string
	Attributes map[string]string
}

// Provider is the identity provider contract. Every call names its tenant.
type Provider interface {
	Register(ctx context.Context, t Tenant, username, password string, attrs map[string]string) (Registration, error)
	ConfirmRegistration(ctx context.Context, t Tenant, username, code string) error
	AdminConfirm(ctx context.Context, t Tenant, username string) error
	MarkVerified(ctx context.Context, t Tenant, username, attribute string) error
	ResendCode(ctx context.Context, t Tenant, username string) (CodeDelivery, error)
	ResendCodeSMS(ctx context.Context, t Tenant, username string) error
	InitiateCustomAuth(ctx context.Context, t Tenant, username string) (Challenge, error)
	RespondToChallenge(ctx context.Context, t Tenant, username, session, answer string) (Tokens, error)
	PasswordAuth(ctx context.Context, t Tenant, username, password string) (Tokens, error)
	GetUserByToken(ctx context.Context, t Tenant, accessToken string) (Identity, error)
	// FindByPhone filters the whole pool by phone number; cost grows with
	// pool size, so callers should front it with PhoneResolver.
	FindByPhone(ctx context.Context, t Tenant, phone string) (Identity, error)
	GetUserAttributes(ctx context.Context, t Tenant, username string) (Identity, error)
	ForgotPassword(ctx context.Context, t Tenant, username string) (CodeDelivery, error)
	ConfirmForgotPassword(ctx context.Context, t Tenant, username, code, newPassword string) error
}

// ProviderError is a failed provider call. Err is one of the sentinels above
// when the provider code has a mapping, otherwise the raw SDK error. Message
// is the provider's own text and is safe to surface.
type ProviderError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return "identity: " + e.Op + ": " + e.Message
	}
	return "identity: " + e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Message returns the provider's text for err, or err's own text.
func Message(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}

// NewIdentity builds an Identity from a flat attribute map.
func NewIdentity(username string, attrs map[string]string) Identity {
	id := Identity{
		Username:   username,
		Subject:    attrs[AttrSubject],
		Email:      attrs[AttrEmail],
		Phone:      attrs[AttrPhone],
		FirstName:  attrs[AttrGivenName],
		LastName:   attrs[AttrFamilyName],
		UserType:   attrs[AttrUserType],
		Attributes: attrs,
	}
	if id.Subject == "" {
		id.Subject = username
	}
	return id
}
