package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/identity"
	"marketplace/user"
)

// SendVerificationCode (re)sends a confirmation code by email or SMS.
func (s *Service) SendVerificationCode(ctx context.Context, identifier string, method Method) (CodeSent, error) {
	identifier = strings.TrimSpace(identifier)
	method, err := parseMethod(method)
	if err != nil {
		return CodeSent{}, err
	}

	username := s.resolveUsername(ctx, identifier, method)
	if err := s.rejectAdmin(ctx, username, identifier, "Admin users use password authentication"); err != nil {
		return CodeSent{}, err
	}

	if method == MethodEmail {
		if _, err := s.provider.ResendCode(ctx, identity.TenantGeneral, username); err != nil {
			return CodeSent{}, upstream(err, http.StatusBadRequest)
		}
		return CodeSent{Message: "Verification code sent to email", Method: MethodEmail}, nil
	}

	if err := s.provider.ResendCodeSMS(ctx, identity.TenantGeneral, username); err != nil {
		return CodeSent{}, upstream(err, http.StatusBadRequest)
	}
	return CodeSent{Message: "Verification code sent to phone", Method: MethodPhone}, nil
}

// VerifyCode confirms a registration code and creates the local user from the
// provider's attributes. Nothing is written locally when confirmation fails.
func (s *Service) VerifyCode(ctx context.Context, identifier, code string, method Method) (VerifyResult, error) {
	identifier = strings.TrimSpace(identifier)
	method, err := parseMethod(method)
	if err != nil {
		return VerifyResult{}, err
	}
	if strings.TrimSpace(code) == "" {
		return VerifyResult{}, apperr.InvalidFormat("Verification code is required").WithField("verificationCode", "")
	}

	username := s.resolveUsername(ctx, identifier, method)
	if err := s.rejectAdmin(ctx, username, identifier, "Admin users use password authentication"); err != nil {
		return VerifyResult{}, err
	}

	if err := s.provider.ConfirmRegistration(ctx, identity.TenantGeneral, username, code); err != nil {
		return VerifyResult{}, verifyError(err)
	}
	if method == MethodPhone {
		if err := s.provider.MarkVerified(ctx, identity.TenantGeneral, username, identity.AttrPhoneNumberVerified); err != nil {
			return VerifyResult{}, verifyError(err)
		}
	}

	id, err := s.provider.GetUserAttributes(ctx, identity.TenantGeneral, username)
	if err != nil {
		return VerifyResult{}, apperr.Wrap(apperr.KindNotFound, "Error getting user from identity provider", err)
	}

	userType := user.Type(id.UserType)
	if !userType.Valid() || userType == user.TypeAdmin {
		userType = user.TypeCustomer
	}

	created, err := s.users.Create(ctx, s.pool, user.CreateParams{
		ID:         s.idGenerator(),
		ExternalID: optional(id.Subject),
		Type:       userType,
		FirstName:  id.FirstName,
		LastName:   id.LastName,
		Email:      id.Email,
		Phone:      optional(id.Phone),
		IsVerified: true,
		VerifiedAt: ptrTime(s.now().UTC()),
		Status:     user.StatusPending,
		CreatedBy:  user.SystemActor,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) || errors.Is(err, user.ErrDuplicateExternalID) {
			return VerifyResult{}, apperr.Conflict("User with this email already exists").WithField("email", id.Email)
		}
		return VerifyResult{}, err
	}

	if id.Phone != "" && id.Email != "" {
		s.phones.Remember(ctx, identity.TenantGeneral, id.Phone, id.Email)
	}
	s.logger.Info("user verified", zap.String("user_id", created.ID), zap.String("type", string(created.Type)))

	return VerifyResult{
		Message: "Verification successful. Account created.",
		User:    summarize(created),
	}, nil
}

// rejectAdmin refuses passwordless flows for local admin users.
func (s *Service) rejectAdmin(ctx context.Context, username, identifier, msg string) error {
	u, found, err := s.findLocal(ctx, username, identifier)
	if err != nil {
		return err
	}
	if found && u.Type == user.TypeAdmin {
		return apperr.InvalidRequest(msg)
	}
	return nil
}

func verifyError(err error) error {
	switch {
	case errors.Is(err, identity.ErrCodeMismatch):
		return apperr.Wrap(apperr.KindInvalidFormat, "Invalid verification code", err)
	case errors.Is(err, identity.ErrCodeExpired):
		return apperr.Wrap(apperr.KindInvalidFormat, "Verification code has expired", err)
	default:
		return upstream(err, http.StatusBadRequest)
	}
}
