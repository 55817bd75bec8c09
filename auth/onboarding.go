package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"marketplace/apperr"
	"marketplace/db"
	"marketplace/identity"
	"marketplace/user"
	"marketplace/vendorprofile"
)

// OnboardVendor creates (or reuses) the user and creates its vendor profile
// in one transaction. A second onboarding for the same user fails with a
// conflict, whether caught by the existence check or by the storage
// constraint when two requests race.
func (s *Service) OnboardVendor(ctx context.Context, req OnboardingRequest, files OnboardingFiles) (OnboardingResult, error) {
	if err := validateOnboarding(&req); err != nil {
		return OnboardingResult{}, err
	}

	res, err := s.onboard(ctx, req, files)
	if err != nil {
		if isAlreadyExists(err) {
			s.logger.Info("duplicate vendor onboarding",
				zap.String("email", req.Email),
				zap.String("external_id", req.ExternalID))
			return OnboardingResult{}, apperr.Wrap(apperr.KindConflict, "User or vendor profile already exists", err)
		}
		return OnboardingResult{}, err
	}
	return res, nil
}

func (s *Service) onboard(ctx context.Context, req OnboardingRequest, files OnboardingFiles) (OnboardingResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return OnboardingResult{}, fmt.Errorf("auth: begin onboarding: %w", err)
	}
	defer tx.Rollback(ctx)

	u, found, err := s.onboardingUser(ctx, tx, req)
	if err != nil {
		return OnboardingResult{}, err
	}
	if found && u.Type == user.TypeAdmin {
		return OnboardingResult{}, apperr.InvalidRequest("Admin users cannot be onboarded as vendors").WithField("email", req.Email)
	}
	if !found {
		u, err = s.users.Create(ctx, tx, user.CreateParams{
			ID:               s.idGenerator(),
			ExternalID:       optional(req.ExternalID),
			Type:             req.Type,
			FirstName:        req.FirstName,
			LastName:         req.LastName,
			Email:            req.Email,
			Phone:            optional(req.Phone),
			PostCode:         optional(req.PostCode),
			Country:          optional(req.Country),
			City:             optional(req.City),
			IsVerified:       req.IsVerified,
			VerifiedAt:       req.VerifiedAt,
			IsProfileUpdated: req.IsProfileUpdated,
			Status:           user.StatusPending,
			CreatedBy:        user.SystemActor,
		})
		if err != nil {
			return OnboardingResult{}, err
		}
	}

	business := req.Business
	if business.Country == nil {
		business.Country = optional(req.Country)
	}
	if business.City == nil {
		business.City = optional(req.City)
	}
	profile, err := s.profiles.Create(ctx, tx, vendorprofile.CreateParams{
		ID:          s.idGenerator(),
		UserID:      u.ID,
		Business:    business,
		Logo:        optional(files.LogoURL),
		Certificate: optional(files.CertificateURL),
		CreatedBy:   user.SystemActor,
	})
	if err != nil {
		return OnboardingResult{}, err
	}
	u.IsProfileUpdated = true

	if err := tx.Commit(ctx); err != nil {
		return OnboardingResult{}, fmt.Errorf("auth: commit onboarding: %w", err)
	}

	s.logger.Info("vendor onboarded",
		zap.String("user_id", u.ID),
		zap.String("profile_id", profile.ID),
		zap.Bool("new_user", !found))

	summary := summarize(u)
	summary.IsVerified = ptrBool(u.IsVerified)
	summary.IsProfileUpdated = ptrBool(u.IsProfileUpdated)
	return OnboardingResult{
		Message:       "Vendor onboarding completed successfully",
		User:          summary,
		VendorProfile: summarizeProfile(profile),
	}, nil
}

// onboardingUser resolves the user by external id first, then by email.
func (s *Service) onboardingUser(ctx context.Context, q db.DBTX, req OnboardingRequest) (user.User, bool, error) {
	if req.ExternalID != "" {
		u, err := s.users.GetByExternalID(ctx, q, req.ExternalID)
		if err == nil {
			return u, true, nil
		}
		if !errors.Is(err, user.ErrNotFound) {
			return user.User{}, false, err
		}
	}
	u, err := s.users.GetByEmail(ctx, q, req.Email)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return user.User{}, false, err
	}
	return user.User{}, false, nil
}

func validateOnboarding(req *OnboardingRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.ExternalID = strings.TrimSpace(req.ExternalID)

	if req.FirstName == "" {
		return apperr.InvalidFormat("First name is required").WithField("first_name", "")
	}
	if !isEmail(req.Email) {
		return apperr.InvalidFormat("Invalid email format").WithField("email", req.Email)
	}
	if req.Phone != "" {
		if !isPhone(req.Phone) {
			return apperr.InvalidFormat("Invalid phone number format").WithField("phone", req.Phone)
		}
		req.Phone = identity.NormalizePhone(req.Phone)
	}
	if req.Type == "" {
		req.Type = user.TypeVendor
	}
	if !req.Type.Valid() {
		return apperr.InvalidFormat("Invalid user type").WithField("type", string(req.Type))
	}
	if req.Type == user.TypeAdmin {
		return apperr.InvalidRequest("Admin users cannot be onboarded as vendors").WithField("type", string(req.Type))
	}
	switch err := req.Business.Validate(); {
	case errors.Is(err, vendorprofile.ErrInvalidEstablishment):
		return apperr.Wrap(apperr.KindInvalidFormat, "Invalid establishment year", err).
			WithField("establishment", fmt.Sprint(*req.Business.Establishment))
	case errors.Is(err, vendorprofile.ErrInvalidEmployeeCount):
		return apperr.Wrap(apperr.KindInvalidFormat, "Employee count must not be negative", err).
			WithField("employee_count", fmt.Sprint(*req.Business.EmployeeCount))
	case err != nil:
		return err
	}
	return nil
}

// isAlreadyExists recognises every shape a uniqueness failure takes on the
// onboarding path.
func isAlreadyExists(err error) bool {
	switch {
	case errors.Is(err, user.ErrDuplicateEmail),
		errors.Is(err, user.ErrDuplicateExternalID),
		errors.Is(err, vendorprofile.ErrProfileExists),
		db.IsUniqueViolation(err, ""):
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}
