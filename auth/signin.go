package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/identity"
	"marketplace/user"
)

// SignIn opens a passwordless challenge and sends the code. The channel is
// inferred from the identifier's shape.
func (s *Service) SignIn(ctx context.Context, identifier string, _ Method) (SignInChallenge, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		method   Method
		username string
	)
	switch {
	case isEmail(identifier):
		method, username = MethodEmail, identifier
	case isPhone(identifier):
		method = MethodPhone
		resolved, err := s.phones.Resolve(ctx, identity.TenantGeneral, identifier)
		if err != nil {
			return SignInChallenge{}, apperr.Wrap(apperr.KindUnauthorized, "User not found", err)
		}
		username = resolved
	default:
		return SignInChallenge{}, apperr.InvalidFormat("Identifier must be an email or phone number").
			WithField("emailOrPhone", identifier)
	}

	u, found, err := s.findLocal(ctx, username, identifier)
	if err != nil {
		return SignInChallenge{}, err
	}
	if !found {
		return SignInChallenge{}, apperr.Unauthorized("User not found")
	}
	if u.Type == user.TypeAdmin {
		return SignInChallenge{}, apperr.InvalidRequest("Admin users must use password authentication")
	}

	challenge, err := s.provider.InitiateCustomAuth(ctx, identity.TenantGeneral, username)
	if err != nil {
		if method == MethodPhone && errors.Is(err, identity.ErrIdentityNotFound) {
			s.phones.Forget(ctx, identity.TenantGeneral, identifier)
		}
		return SignInChallenge{}, apperr.Wrap(apperr.KindUnauthorized, identity.Message(err), err)
	}
	if _, err := s.SendVerificationCode(ctx, identifier, method); err != nil {
		msg := err.Error()
		if ae, ok := apperr.As(err); ok {
			msg = ae.Message
		}
		return SignInChallenge{}, apperr.Wrap(apperr.KindUnauthorized, msg, err)
	}

	return SignInChallenge{
		Message:       "Verification code sent to your " + string(method),
		Session:       challenge.Session,
		ChallengeName: challenge.Name,
		Method:        method,
	}, nil
}

// CompleteSignIn answers the open challenge with the code the user received.
func (s *Service) CompleteSignIn(ctx context.Context, identifier, code, session string) (SignInResult, error) {
	identifier = strings.TrimSpace(identifier)
	if code == "" || session == "" {
		return SignInResult{}, apperr.InvalidFormat("Code and session are required")
	}

	username := identifier
	if isPhone(identifier) {
		username = s.resolveUsername(ctx, identifier, MethodPhone)
	}

	u, found, err := s.findLocal(ctx, username, identifier)
	if err != nil {
		return SignInResult{}, err
	}
	if !found {
		return SignInResult{}, apperr.Unauthorized("User not found")
	}
	if u.Type == user.TypeAdmin {
		return SignInResult{}, apperr.InvalidRequest("Admin users use password authentication")
	}

	tokens, err := s.provider.RespondToChallenge(ctx, identity.TenantGeneral, username, session, code)
	if err != nil {
		return SignInResult{}, apperr.Wrap(apperr.KindUnauthorized, identity.Message(err), err)
	}

	s.logger.Info("user signed in", zap.String("user_id", u.ID))
	return SignInResult{
		Message: "Sign in successful",
		Tokens:  tokenSet(tokens),
		User:    summarize(u),
	}, nil
}

// AdminSignIn authenticates a local admin with a password in the admin pool.
func (s *Service) AdminSignIn(ctx context.Context, email, password string) (SignInResult, error) {
	email = strings.TrimSpace(email)

	u, err := s.users.GetByEmail(ctx, s.pool, email)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return SignInResult{}, err
	}
	if err != nil || u.Type != user.TypeAdmin {
		return SignInResult{}, apperr.Unauthorized("Invalid credentials or user is not an admin")
	}

	tokens, err := s.provider.PasswordAuth(ctx, identity.TenantAdmin, email, password)
	if err != nil {
		s.logger.Warn("admin sign in failed", zap.String("email", email), zap.Error(err))
		switch {
		case errors.Is(err, identity.ErrNotAuthorized):
			return SignInResult{}, apperr.Wrap(apperr.KindUnauthorized, "Incorrect email or password", err)
		case errors.Is(err, identity.ErrIdentityNotFound):
			return SignInResult{}, apperr.Wrap(apperr.KindUnauthorized, "User not found in identity provider", err)
		case errors.Is(err, identity.ErrNotConfirmed):
			return SignInResult{}, apperr.Wrap(apperr.KindUnauthorized, "User is not confirmed", err)
		default:
			return SignInResult{}, apperr.Wrap(apperr.KindUnauthorized, "Invalid credentials", err)
		}
	}

	summary := summarize(u)
	summary.Phone = ""
	return SignInResult{
		Message: "Admin sign in successful",
		Tokens:  tokenSet(tokens),
		User:    summary,
	}, nil
}

// AdminForgotPassword starts a password reset for a local admin.
func (s *Service) AdminForgotPassword(ctx context.Context, email string) (PasswordResetStarted, error) {
	email = strings.TrimSpace(email)
	if err := s.requireAdmin(ctx, email); err != nil {
		return PasswordResetStarted{}, err
	}

	delivery, err := s.provider.ForgotPassword(ctx, identity.TenantAdmin, email)
	if err != nil {
		return PasswordResetStarted{}, upstream(err, 0)
	}
	return PasswordResetStarted{
		Message:             "Password reset code sent",
		CodeDeliveryDetails: &delivery,
	}, nil
}

// AdminConfirmForgotPassword completes a password reset with the emailed code.
func (s *Service) AdminConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	email = strings.TrimSpace(email)
	if len(newPassword) < 8 {
		return apperr.InvalidFormat("Password must be at least 8 characters").WithField("newPassword", "")
	}
	if err := s.requireAdmin(ctx, email); err != nil {
		return err
	}

	err := s.provider.ConfirmForgotPassword(ctx, identity.TenantAdmin, email, code, newPassword)
	switch {
	case err == nil:
		s.logger.Info("admin password reset", zap.String("email", email))
		return nil
	case errors.Is(err, identity.ErrCodeMismatch), errors.Is(err, identity.ErrCodeExpired):
		return verifyError(err)
	case errors.Is(err, identity.ErrInvalidPassword):
		return apperr.Wrap(apperr.KindInvalidFormat, "Password does not meet requirements", err)
	default:
		return upstream(err, 0)
	}
}

func (s *Service) requireAdmin(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, s.pool, email)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return err
	}
	if err != nil || u.Type != user.TypeAdmin {
		return apperr.Unauthorized("Invalid credentials or user is not an admin")
	}
	return nil
}

func tokenSet(t identity.Tokens) TokenSet {
	return TokenSet{
		AccessToken:  t.AccessToken,
		IDToken:      t.IDToken,
		RefreshToken: t.RefreshToken,
	}
}
