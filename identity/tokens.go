package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/errgroup"
)

// KeySource returns the JSON Web Key Set published at url.
type KeySource interface {
	KeySet(ctx context.Context, url string) (jwk.Set, error)
}

// JWKCache is a KeySource that keeps key sets in a refreshing jwk.Cache.
type JWKCache struct {
	cache   *jwk.Cache
	refresh time.Duration
}

// NewJWKCache starts a cache whose refresh loop lives as long as ctx.
func NewJWKCache(ctx context.Context, minRefresh time.Duration) *JWKCache {
	return &JWKCache{cache: jwk.NewCache(ctx), refresh: minRefresh}
}

// Register adds url to the cache.
func (c *JWKCache) Register(url string) error {
	if err := c.cache.Register(url, jwk.WithMinRefreshInterval(c.refresh)); err != nil {
		return fmt.Errorf("identity: register jwks %s: %w", url, err)
	}
	return nil
}

func (c *JWKCache) KeySet(ctx context.Context, url string) (jwk.Set, error) {
	set, err := c.cache.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("identity: fetch jwks %s: %w", url, err)
	}
	return set, nil
}

// Principal is what a verified access token proves.
type Principal struct {
	Tenant   Tenant
	Subject  string
	Username string
	ClientID string
}

type issuer struct {
	tenant   Tenant
	url      string
	jwksURL  string
	clientID string
}

type accessClaims struct {
	TokenUse string `json:"token_use"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenVerifier checks provider access tokens against the signing keys of
// every tenant. The tenant is derived from the key that verified the
// signature, never from unverified claims.
type TokenVerifier struct {
	keys    KeySource
	issuers []issuer
	now     func() time.Time
}

// IssuerURL is the token issuer for a pool.
func IssuerURL(region, poolID string) string {
	return "https://cognito-idp." + region + ".amazonaws.com/" + poolID
}

// JWKSURL is the key set location for a pool.
func JWKSURL(region, poolID string) string {
	return IssuerURL(region, poolID) + "/.well-known/jwks.json"
}

// NewTokenVerifier builds a verifier over both tenants of the table.
func NewTokenVerifier(region string, tenants Tenants, keys KeySource) *TokenVerifier {
	v := &TokenVerifier{keys: keys, now: time.Now}
	for _, t := range []Tenant{TenantGeneral, TenantAdmin} {
		tc, ok := tenants[t]
		if !ok || tc.PoolID == "" {
			continue
		}
		v.issuers = append(v.issuers, issuer{
			tenant:   t,
			url:      IssuerURL(region, tc.PoolID),
			jwksURL:  JWKSURL(region, tc.PoolID),
			clientID: tc.ClientID,
		})
	}
	return v
}

// JWKSURLs lists the key set locations the verifier reads.
func (v *TokenVerifier) JWKSURLs() []string {
	urls := make([]string, 0, len(v.issuers))
	for _, is := range v.issuers {
		urls = append(urls, is.jwksURL)
	}
	return urls
}

// Warm fetches every tenant's key set concurrently.
func (v *TokenVerifier) Warm(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, is := range v.issuers {
		url := is.jwksURL
		g.Go(func() error {
			_, err := v.keys.KeySet(gctx, url)
			return err
		})
	}
	return g.Wait()
}

// Verify checks signature, expiry, issuer, token use and client of an access
// token and returns the proven principal.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (Principal, error) {
	var matched *issuer
	claims := &accessClaims{}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	_, err := parser.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		kid, _ := tok.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		is, key, err := v.lookup(ctx, kid)
		if err != nil {
			return nil, err
		}
		matched = is
		return key, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Issuer != matched.url {
		return Principal{}, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if claims.TokenUse != "access" {
		return Principal{}, fmt.Errorf("%w: token_use %q", ErrInvalidToken, claims.TokenUse)
	}
	if claims.ClientID != matched.clientID {
		return Principal{}, fmt.Errorf("%w: client mismatch", ErrInvalidToken)
	}

	return Principal{
		Tenant:   matched.tenant,
		Subject:  claims.Subject,
		Username: claims.Username,
		ClientID: claims.ClientID,
	}, nil
}

func (v *TokenVerifier) lookup(ctx context.Context, kid string) (*issuer, *rsa.PublicKey, error) {
	var fetchErr error
	for i := range v.issuers {
		is := &v.issuers[i]
		set, err := v.keys.KeySet(ctx, is.jwksURL)
		if err != nil {
			fetchErr = err
			continue
		}
		key, ok := set.LookupKeyID(kid)
		if !ok {
			continue
		}
		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			return nil, nil, fmt.Errorf("decode key %s: %w", kid, err)
		}
		return is, &pub, nil
	}
	if fetchErr != nil {
		return nil, nil, fmt.Errorf("unknown kid %s: %w", kid, fetchErr)
	}
	return nil, nil, fmt.Errorf("unknown kid %s", kid)
}
