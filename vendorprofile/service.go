package vendorprofile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"marketplace/db"
)

// OwnerFlagger records whether a user has completed its vendor profile.
type OwnerFlagger interface {
	SetProfileUpdated(ctx context.Context, q db.DBTX, userID string, updated bool, updatedBy string) error
}

// Service exposes vendor profile operations.
type Service struct {
	pool   db.Pool
	repo   Repository
	owners OwnerFlagger
	logger *zap.Logger
}

// NewService builds a Service.
func NewService(pool db.Pool, repo Repository, owners OwnerFlagger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pool: pool, repo: repo, owners: owners, logger: logger}
}

// Create inserts the profile for params.UserID on q, which is normally a
// transaction owned by the caller. It refuses a second profile for the same
// user and marks the owner's profile as updated.
func (s *Service) Create(ctx context.Context, q db.DBTX, params CreateParams) (Profile, error) {
	_, err := s.repo.GetByUserID(ctx, q, params.UserID)
	switch {
	case err == nil:
		return Profile{}, ErrProfileExists
	case !errors.Is(err, ErrNotFound):
		return Profile{}, err
	}

	profile, err := s.repo.Create(ctx, q, params)
	if err != nil {
		return Profile{}, err
	}
	if err := s.owners.SetProfileUpdated(ctx, q, params.UserID, true, params.CreatedBy); err != nil {
		return Profile{}, fmt.Errorf("vendorprofile: flag owner: %w", err)
	}
	return profile, nil
}

// Get returns the profile with the given id.
func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	return s.repo.GetByID(ctx, s.pool, id)
}

// GetByUserID returns the profile owned by userID.
func (s *Service) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	return s.repo.GetByUserID(ctx, s.pool, userID)
}

// UpdateFiles changes only the file URLs that are provided.
func (s *Service) UpdateFiles(ctx context.Context, id string, logo, certificate *string, updatedBy string) (Profile, error) {
	if logo == nil && certificate == nil {
		return s.repo.GetByID(ctx, s.pool, id)
	}
	return s.repo.UpdateFiles(ctx, s.pool, id, logo, certificate, updatedBy)
}

// Update changes the business fields that are provided.
func (s *Service) Update(ctx context.Context, id string, b Business, updatedBy string) (Profile, error) {
	if err := b.Validate(); err != nil {
		return Profile{}, err
	}
	p, err := s.repo.UpdateBusiness(ctx, s.pool, id, b, updatedBy)
	if err != nil {
		return Profile{}, err
	}
	s.logger.Info("vendor profile updated",
		zap.String("profile_id", id),
		zap.String("updated_by", updatedBy))
	return p, nil
}

// Remove deletes the profile and clears the owner's profile flag atomically.
func (s *Service) Remove(ctx context.Context, id, removedBy string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("vendorprofile: begin remove: %w", err)
	}
	defer tx.Rollback(ctx)

	profile, err := s.repo.Delete(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := s.owners.SetProfileUpdated(ctx, tx, profile.UserID, false, removedBy); err != nil {
		return fmt.Errorf("vendorprofile: reset owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("vendorprofile: commit remove: %w", err)
	}
	s.logger.Info("vendor profile removed",
		zap.String("profile_id", id),
		zap.String("user_id", profile.UserID))
	return nil
}
