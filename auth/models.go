package auth

import (
	"time"

	"marketplace/identity"
	"marketplace/user"
	"marketplace/vendorprofile"
)

// Method is the channel a verification code travels through.
type Method string

const (
	MethodEmail Method = "email"
	MethodPhone Method = "phone"
)

// SignUpRequest registers a new identity.
type SignUpRequest struct {
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	UserType  user.Type `json:"userType"`
	Password  string    `json:"password,omitempty"`
}

// SignUpResult is returned by SignUp. Admin sign-ups carry User; passwordless
// sign-ups carry the pending-verification fields.
type SignUpResult struct {
	Message              string                 `json:"message"`
	CognitoUserID        string                 `json:"cognitoUserId,omitempty"`
	VerificationRequired bool                   `json:"verificationRequired"`
	CodeDeliveryDetails  *identity.CodeDelivery `json:"codeDeliveryDetails,omitempty"`
	User                 *UserSummary           `json:"user,omitempty"`
}

// UserSummary is the public projection of a local user.
type UserSummary struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Type             user.Type `json:"type"`
	IsVerified       *bool     `json:"isVerified,omitempty"`
	IsProfileUpdated *bool     `json:"isProfileUpdated,omitempty"`
}

// CodeSent acknowledges a dispatched verification code.
type CodeSent struct {
	Message string `json:"message"`
	Method  Method `json:"method"`
}

// VerifyResult is returned once a code is accepted and the local user exists.
type VerifyResult struct {
	Message string      `json:"message"`
	User    UserSummary `json:"user"`
}

// SignInChallenge is the open passwordless session handed to the client.
type SignInChallenge struct {
	Message       string `json:"message"`
	Session       string `json:"session"`
	ChallengeName string `json:"challengeName"`
	Method        Method `json:"method"`
}

// TokenSet is the client-facing token triple.
type TokenSet struct {
	AccessToken  string `json:"accessToken"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
}

// SignInResult is returned by CompleteSignIn and AdminSignIn.
type SignInResult struct {
	Message string      `json:"message"`
	Tokens  TokenSet    `json:"tokens"`
	User    UserSummary `json:"user"`
}

// OnboardingRequest carries user-profile and vendor-business fields.
type OnboardingRequest struct {
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	Type             user.Type
	ExternalID       string
	PostCode         string
	Country          string
	City             string
	IsVerified       bool
	VerifiedAt       *time.Time
	IsProfileUpdated bool
	Business         vendorprofile.Business
}

// OnboardingFiles holds URLs of files already stored for the onboarding.
type OnboardingFiles struct {
	LogoURL        string
	CertificateURL string
}

// ProfileSummary is the public projection of a vendor profile.
type ProfileSummary struct {
	ID           string `json:"id"`
	BusinessName string `json:"businessName,omitempty"`
	CompanyName  string `json:"companyName,omitempty"`
	BusinessType string `json:"businessType,omitempty"`
	Website      string `json:"website,omitempty"`
}

// OnboardingResult is returned after a committed onboarding.
type OnboardingResult struct {
	Message       string         `json:"message"`
	User          UserSummary    `json:"user"`
	VendorProfile ProfileSummary `json:"vendorProfile"`
}

// PasswordResetStarted acknowledges an admin password reset request.
type PasswordResetStarted struct {
	Message             string                 `json:"message"`
	CodeDeliveryDetails *identity.CodeDelivery `json:"codeDeliveryDetails,omitempty"`
}

func summarize(u user.User) UserSummary {
	s := UserSummary{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Type:      u.Type,
	}
	if u.Phone != nil {
		s.Phone = *u.Phone
	}
	return s
}

func summarizeProfile(p vendorprofile.Profile) ProfileSummary {
	return ProfileSummary{
		ID:           p.ID,
		BusinessName: deref(p.BusinessName),
		CompanyName:  deref(p.CompanyName),
		BusinessType: deref(p.BusinessType),
		Website:      deref(p.Website),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
