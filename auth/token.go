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

// Principal is an authenticated local user and the pool that vouched for it.
type Principal struct {
	User   user.User
	Tenant identity.Tenant
}

// Authenticate validates a bearer access token and loads the local user it
// belongs to. Signature, issuer and client are checked before the tenant is
// chosen; claims are only trusted after that.
func (s *Service) Authenticate(ctx context.Context, bearer string) (Principal, error) {
	raw := strings.TrimSpace(bearer)
	if raw == "" {
		return Principal{}, apperr.Unauthorized("Missing bearer token")
	}

	claims, err := s.tokens.Verify(ctx, raw)
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		return Principal{}, apperr.Wrap(apperr.KindUnauthorized, "Invalid token", err)
	}

	id, err := s.provider.GetUserByToken(ctx, claims.Tenant, raw)
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.KindUnauthorized, "Invalid token", err)
	}
	if claims.Subject != "" && id.Subject != claims.Subject {
		return Principal{}, apperr.Unauthorized("Invalid token")
	}

	u, err := s.users.GetByExternalID(ctx, s.pool, id.Subject)
	if errors.Is(err, user.ErrNotFound) {
		return Principal{}, apperr.Unauthorized("User not found in local directory")
	}
	if err != nil {
		return Principal{}, err
	}
	if identity.TenantFor(u.Type) != claims.Tenant {
		return Principal{}, apperr.Unauthorized("Invalid token")
	}

	return Principal{User: u, Tenant: claims.Tenant}, nil
}
