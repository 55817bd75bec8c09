package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketplace/cache"
)

const phoneIndexNamespace = "phone-index"

// PhoneIndex is the key/value store behind PhoneResolver.
type PhoneIndex interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Set(ctx context.Context, namespace, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
}

// NormalizePhone prefixes a bare digit string with '+'.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+" + phone
}

// PhoneResolver maps a phone number to the provider username (the email).
// It consults the index first and falls back to Provider.FindByPhone, which
// scans the pool, so every successful fallback is written back to the index.
type PhoneResolver struct {
	provider Provider
	index    PhoneIndex
	ttl      time.Duration
	logger   *zap.Logger
}

// NewPhoneResolver builds a resolver. A nil index disables caching.
func NewPhoneResolver(provider Provider, index PhoneIndex, ttl time.Duration, logger *zap.Logger) *PhoneResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhoneResolver{provider: provider, index: index, ttl: ttl, logger: logger}
}

// Resolve returns the username registered with phone in tenant t, or
// ErrIdentityNotFound.
func (r *PhoneResolver) Resolve(ctx context.Context, t Tenant, phone string) (string, error) {
	phone = NormalizePhone(phone)
	key := indexKey(t, phone)

	if r.index != nil {
		username, err := r.index.Get(ctx, phoneIndexNamespace, key)
		switch {
		case err == nil && username != "":
			return username, nil
		case err != nil && !errors.Is(err, cache.ErrMiss):
			r.logger.Warn("phone index read failed", zap.Error(err))
		}
	}

	id, err := r.provider.FindByPhone(ctx, t, phone)
	if err != nil {
		return "", err
	}
	username := id.Email
	if username == "" {
		username = id.Username
	}
	r.Remember(ctx, t, phone, username)
	return username, nil
}

// Remember records phone → username. Index failures are logged only.
func (r *PhoneResolver) Remember(ctx context.Context, t Tenant, phone, username string) {
	if r.index == nil || username == "" {
		return
	}
	if err := r.index.Set(ctx, phoneIndexNamespace, indexKey(t, NormalizePhone(phone)), username, r.ttl); err != nil {
		r.logger.Warn("phone index write failed", zap.Error(err))
	}
}

// Forget drops the index entry for phone, used once the provider no longer
// knows the username it points at. Index failures are logged only.
func (r *PhoneResolver) Forget(ctx context.Context, t Tenant, phone string) {
	if r.index == nil {
		return
	}
	if err := r.index.Delete(ctx, phoneIndexNamespace, indexKey(t, NormalizePhone(phone))); err != nil {
		r.logger.Warn("phone index delete failed", zap.Error(err))
	}
}

func indexKey(t Tenant, phone string) string {
	return t.String() + ":" + phone
}
