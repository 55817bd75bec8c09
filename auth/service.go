// Package auth orchestrates passwordless sign-up, verification, sign-in and
// vendor onboarding across the identity provider and the local directory.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/db"
	"marketplace/identity"
	"marketplace/user"
	"marketplace/vendorprofile"
)

func isEmail(s string) bool { return user.ValidEmail(s) }
func isPhone(s string) bool { return user.ValidPhone(s) }

// PhoneResolver maps phone numbers to provider usernames.
type PhoneResolver interface {
	Resolve(ctx context.Context, t identity.Tenant, phone string) (string, error)
	Remember(ctx context.Context, t identity.Tenant, phone, username string)
	Forget(ctx context.Context, t identity.Tenant, phone string)
}

// TokenVerifier checks bearer tokens before any tenant decision.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (identity.Principal, error)
}

// ProfileCreator creates a vendor profile on a caller-owned transaction.
type ProfileCreator interface {
	Create(ctx context.Context, q db.DBTX, params vendorprofile.CreateParams) (vendorprofile.Profile, error)
}

// Deps are the collaborators of Service.
type Deps struct {
	Pool     db.Pool
	Users    user.Repository
	Profiles ProfileCreator
	Provider identity.Provider
	Phones   PhoneResolver
	Tokens   TokenVerifier
	Logger   *zap.Logger
}

// Service is the auth orchestrator.
type Service struct {
	pool     db.Pool
	users    user.Repository
	profiles ProfileCreator
	provider identity.Provider
	phones   PhoneResolver
	tokens   TokenVerifier
	logger   *zap.Logger

	idGenerator  func() string
	now          func() time.Time
	tempPassword func() (string, error)
}

// NewService wires the orchestrator.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		pool:         d.Pool,
		users:        d.Users,
		profiles:     d.Profiles,
		provider:     d.Provider,
		phones:       d.Phones,
		tokens:       d.Tokens,
		logger:       logger,
		idGenerator:  uuid.NewString,
		now:          time.Now,
		tempPassword: identity.TemporaryPassword,
	}
}

// resolveUsername turns an identifier into the provider username. Phone
// numbers are looked up in the general pool; an unresolved phone is used as is.
func (s *Service) resolveUsername(ctx context.Context, identifier string, method Method) string {
	if method != MethodPhone && !isPhone(identifier) {
		return identifier
	}
	username, err := s.phones.Resolve(ctx, identity.TenantGeneral, identifier)
	if err != nil {
		if !errors.Is(err, identity.ErrIdentityNotFound) {
			s.logger.Warn("phone lookup failed", zap.Error(err))
		}
		return identifier
	}
	return username
}

// findLocal looks up the local user by username (email) or phone.
func (s *Service) findLocal(ctx context.Context, username, identifier string) (user.User, bool, error) {
	phone := ""
	if isPhone(identifier) {
		phone = identity.NormalizePhone(identifier)
	}
	u, err := s.users.FindByEmailOrPhone(ctx, s.pool, username, phone)
	if errors.Is(err, user.ErrNotFound) {
		return user.User{}, false, nil
	}
	if err != nil {
		return user.User{}, false, err
	}
	return u, true, nil
}

func parseMethod(raw Method) (Method, error) {
	switch raw {
	case "":
		return MethodEmail, nil
	case MethodEmail, MethodPhone:
		return raw, nil
	default:
		return "", apperr.InvalidFormat("Verification method must be email or phone").
			WithField("verificationMethod", string(raw))
	}
}

// upstream classifies an unmapped provider failure, passing its text through.
func upstream(err error, status int) *apperr.Error {
	e := apperr.Upstream(identity.Message(err), err)
	if status != 0 {
		e = e.WithStatus(status)
	}
	return e
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrBool(b bool) *bool { return &b }
