package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketplace/db"
)

var (
	// ErrInvalidType is returned for an unknown user type.
	ErrInvalidType = errors.New("user: invalid type")
	// ErrInvalidStatus is returned for an unknown status.
	ErrInvalidStatus = errors.New("user: invalid status")
	// ErrInvalidEmail is returned for a malformed email address.
	ErrInvalidEmail = errors.New("user: invalid email")
	// ErrInvalidPhone is returned for a malformed phone number.
	ErrInvalidPhone = errors.New("user: invalid phone")
	// ErrFirstNameRequired is returned when the first name is blank.
	ErrFirstNameRequired = errors.New("user: first name is required")
)

// Service exposes administrative user operations.
type Service struct {
	q      db.DBTX
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewService builds a Service over the given query surface.
func NewService(q db.DBTX, repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		q:      q,
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.GetByID(ctx, s.q, id)
}

// Create inserts a user directly, outside the sign-up flow. Email and
// external id must both be unused; phone is expected in E.164 form.
func (s *Service) Create(ctx context.Context, params CreateParams) (User, error) {
	params.Email = strings.TrimSpace(params.Email)
	params.FirstName = strings.TrimSpace(params.FirstName)
	params.LastName = strings.TrimSpace(params.LastName)

	switch {
	case !params.Type.Valid():
		return User{}, fmt.Errorf("%w: %q", ErrInvalidType, params.Type)
	case !ValidEmail(params.Email):
		return User{}, fmt.Errorf("%w: %q", ErrInvalidEmail, params.Email)
	case params.FirstName == "":
		return User{}, ErrFirstNameRequired
	case params.Phone != nil && !ValidPhone(*params.Phone):
		return User{}, fmt.Errorf("%w: %q", ErrInvalidPhone, *params.Phone)
	}
	if params.Status == "" {
		params.Status = StatusPending
	}
	if !params.Status.Valid() {
		return User{}, fmt.Errorf("%w: %q", ErrInvalidStatus, params.Status)
	}
	if params.IsVerified && params.VerifiedAt == nil {
		now := s.now().UTC()
		params.VerifiedAt = &now
	}
	if params.ID == "" {
		params.ID = s.newID()
	}

	if _, err := s.repo.GetByEmail(ctx, s.q, params.Email); err == nil {
		return User{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	if params.ExternalID != nil {
		if _, err := s.repo.GetByExternalID(ctx, s.q, *params.ExternalID); err == nil {
			return User{}, ErrDuplicateExternalID
		} else if !errors.Is(err, ErrNotFound) {
			return User{}, err
		}
	}

	u, err := s.repo.Create(ctx, s.q, params)
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user created",
		zap.String("user_id", u.ID),
		zap.String("type", string(u.Type)),
		zap.String("created_by", params.CreatedBy))
	return u, nil
}

// Update changes the profile fields provided in upd.
func (s *Service) Update(ctx context.Context, id string, upd ProfileUpdate) (User, error) {
	upd.FirstName = trimmed(upd.FirstName)
	upd.LastName = trimmed(upd.LastName)
	upd.Phone = trimmed(upd.Phone)
	upd.PostCode = trimmed(upd.PostCode)
	upd.Country = trimmed(upd.Country)
	upd.City = trimmed(upd.City)

	if upd.FirstName != nil && *upd.FirstName == "" {
		return User{}, ErrFirstNameRequired
	}
	if upd.Phone != nil && *upd.Phone != "" && !ValidPhone(*upd.Phone) {
		return User{}, fmt.Errorf("%w: %q", ErrInvalidPhone, *upd.Phone)
	}
	return s.repo.UpdateProfile(ctx, s.q, id, upd)
}

// ListByType returns every user of type t.
func (s *Service) ListByType(ctx context.Context, t Type) ([]User, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	return s.repo.ListByType(ctx, s.q, t)
}

// ListVendors returns vendors that have a vendor profile.
func (s *Service) ListVendors(ctx context.Context) ([]User, error) {
	return s.repo.ListVendorsWithProfile(ctx, s.q)
}

// UpdateStatus moves the user to status. Activation also verifies the user;
// suspension revokes verification and records the rejection.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, updatedBy, remarks string) (User, error) {
	if !status.Valid() {
		return User{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	now := s.now().UTC()
	upd := StatusUpdate{Status: status, UpdatedBy: updatedBy}
	switch status {
	case StatusActive:
		verified := true
		upd.IsVerified = &verified
		upd.VerifiedAt = &now
	case StatusSuspended:
		verified := false
		upd.IsVerified = &verified
		upd.RejectedAt = &now
		if r := strings.TrimSpace(remarks); r != "" {
			upd.Remarks = &r
		}
	}

	u, err := s.repo.UpdateStatus(ctx, s.q, id, upd)
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user status updated",
		zap.String("user_id", id),
		zap.String("status", string(status)),
		zap.String("updated_by", updatedBy))
	return u, nil
}

// UpdateVerification sets or clears the verification flag.
func (s *Service) UpdateVerification(ctx context.Context, id string, verified bool, updatedBy string) (User, error) {
	var at *time.Time
	if verified {
		now := s.now().UTC()
		at = &now
	}
	return s.repo.UpdateVerification(ctx, s.q, id, verified, at, updatedBy)
}

// Remove deletes the user and, by cascade, its vendor profile.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, s.q, id); err != nil {
		return err
	}
	s.logger.Info("user removed", zap.String("user_id", id))
	return nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
