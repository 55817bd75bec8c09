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

// SignUp registers an identity. Admins are created confirmed with their own
// password and stored locally at once; customers and vendors get a temporary
// password and are stored only after they verify a code.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (SignUpResult, error) {
	email := strings.TrimSpace(req.Email)
	rawPhone := strings.TrimSpace(req.Phone)
	phone := identity.NormalizePhone(rawPhone)

	if _, err := s.users.FindByEmailOrPhone(ctx, s.pool, email, phone); err == nil {
		return SignUpResult{}, apperr.Conflict("User with this email or phone already exists").
			WithField("email", email).
			WithField("phone", rawPhone)
	} else if !errors.Is(err, user.ErrNotFound) {
		return SignUpResult{}, err
	}

	if !isEmail(email) {
		return SignUpResult{}, apperr.InvalidFormat("Invalid email format").WithField("email", email)
	}
	if !isPhone(rawPhone) {
		return SignUpResult{}, apperr.InvalidFormat("Invalid phone number format").WithField("phone", rawPhone)
	}
	if !req.UserType.Valid() {
		return SignUpResult{}, apperr.InvalidFormat("Invalid user type").WithField("userType", string(req.UserType))
	}

	attrs := map[string]string{
		identity.AttrEmail:      email,
		identity.AttrPhone:      phone,
		identity.AttrGivenName:  req.FirstName,
		identity.AttrFamilyName: req.LastName,
		identity.AttrUserType:   string(req.UserType),
	}

	if req.UserType == user.TypeAdmin {
		return s.signUpAdmin(ctx, req, email, phone, attrs)
	}

	password, err := s.tempPassword()
	if err != nil {
		return SignUpResult{}, err
	}
	reg, err := s.provider.Register(ctx, identity.TenantGeneral, email, password, attrs)
	if err != nil {
		s.logger.Warn("sign up rejected by identity provider", zap.String("email", email), zap.Error(err))
		return SignUpResult{}, signUpError(err)
	}
	s.phones.Remember(ctx, identity.TenantGeneral, phone, email)

	return SignUpResult{
		Message:              "User registered successfully. Please verify your email.",
		CognitoUserID:        reg.Subject,
		VerificationRequired: true,
		CodeDeliveryDetails:  reg.Delivery,
	}, nil
}

func (s *Service) signUpAdmin(ctx context.Context, req SignUpRequest, email, phone string, attrs map[string]string) (SignUpResult, error) {
	if req.Password == "" {
		return SignUpResult{}, apperr.InvalidRequest("Password is required for admin users").WithField("password", "")
	}

	reg, err := s.provider.Register(ctx, identity.TenantAdmin, email, req.Password, attrs)
	if err != nil {
		s.logger.Warn("admin sign up rejected by identity provider", zap.String("email", email), zap.Error(err))
		return SignUpResult{}, signUpError(err)
	}
	if err := s.provider.AdminConfirm(ctx, identity.TenantAdmin, email); err != nil {
		return SignUpResult{}, signUpError(err)
	}
	if err := s.provider.MarkVerified(ctx, identity.TenantAdmin, email, identity.AttrEmailVerified); err != nil {
		return SignUpResult{}, signUpError(err)
	}

	subject := reg.Subject
	created, err := s.users.Create(ctx, s.pool, user.CreateParams{
		ID:         s.idGenerator(),
		ExternalID: optional(subject),
		Type:       user.TypeAdmin,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      email,
		Phone:      optional(phone),
		IsVerified: true,
		VerifiedAt: ptrTime(s.now().UTC()),
		Status:     user.StatusActive,
		CreatedBy:  user.SystemActor,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) || errors.Is(err, user.ErrDuplicateExternalID) {
			return SignUpResult{}, apperr.Conflict("User with this email already exists").WithField("email", email)
		}
		return SignUpResult{}, err
	}

	s.logger.Info("admin registered", zap.String("user_id", created.ID))
	summary := summarize(created)
	summary.Phone = ""
	return SignUpResult{
		Message: "Admin user registered successfully",
		User:    &summary,
	}, nil
}

func signUpError(err error) error {
	switch {
	case errors.Is(err, identity.ErrIdentityExists):
		return apperr.Wrap(apperr.KindConflict, "User with this email already exists", err)
	case errors.Is(err, identity.ErrInvalidPassword):
		return apperr.Wrap(apperr.KindInvalidFormat, "Password does not meet requirements", err)
	case errors.Is(err, identity.ErrInvalidParameter):
		return apperr.Wrap(apperr.KindInvalidFormat, "Invalid parameter: "+identity.Message(err), err)
	default:
		return upstream(err, http.StatusBadRequest)
	}
}
