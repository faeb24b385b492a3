package security

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/logger"
)

// KeyFetcher loads the provider's published signing keys.
type KeyFetcher interface {
	FetchKeys(ctx context.Context, url string) (jwk.Set, error)
}

type httpKeyFetcher struct {
	client jwk.HTTPClient
}

// NewHTTPKeyFetcher fetches the key set over HTTP. The backend API serves
// its JWKS only to callers holding the secret key, so a non-empty
// secretKey is sent as a Bearer token.
func NewHTTPKeyFetcher(secretKey string, timeout time.Duration) KeyFetcher {
	base := &http.Client{Timeout: timeout}
	if secretKey == "" {
		return httpKeyFetcher{client: base}
	}
	return httpKeyFetcher{client: bearerClient{inner: base, token: secretKey}}
}

func (f httpKeyFetcher) FetchKeys(ctx context.Context, url string) (jwk.Set, error) {
	return jwk.Fetch(ctx, url, jwk.WithHTTPClient(f.client))
}

type bearerClient struct {
	inner *http.Client
	token string
}

func (c bearerClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.inner.Do(req)
}

// Get satisfies jwk.HTTPClient, which fetches via Get.
func (c bearerClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// SessionVerifier checks provider-issued RS256 session tokens against the
// cached JWKS.
type SessionVerifier struct {
	jwksURL  string
	issuer   string
	cacheTTL time.Duration
	fetcher  KeyFetcher
	now      func() time.Time

	mu        sync.RWMutex
	keySet    jwk.Set
	lastFetch time.Time
}

// NewSessionVerifier fetches keys from jwksURL, authenticating with
// secretKey when one is given.
func NewSessionVerifier(jwksURL, issuer, secretKey string, cacheTTL, timeout time.Duration) *SessionVerifier {
	return NewSessionVerifierWithFetcher(jwksURL, issuer, cacheTTL, NewHTTPKeyFetcher(secretKey, timeout))
}

func NewSessionVerifierWithFetcher(jwksURL, issuer string, cacheTTL time.Duration, f KeyFetcher) *SessionVerifier {
	return &SessionVerifier{
		jwksURL:  jwksURL,
		issuer:   issuer,
		cacheTTL: cacheTTL,
		fetcher:  f,
		now:      time.Now,
	}
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

func (v *SessionVerifier) Verify(ctx context.Context, token string) (domain.SessionClaims, error) {
	if token == "" {
		return domain.SessionClaims{}, domain.ErrTokenMissing()
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var keyErr error
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.publicKey(ctx, kid)
		if err != nil {
			keyErr = err
		}
		return key, err
	}, opts...)
	if err != nil {
		if keyErr != nil && domain.IsTransient(keyErr) {
			return domain.SessionClaims{}, keyErr
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.SessionClaims{}, domain.ErrTokenExpired()
		}
		return domain.SessionClaims{}, domain.ErrTokenInvalid()
	}

	c, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return domain.SessionClaims{}, domain.ErrTokenInvalid()
	}

	out := domain.SessionClaims{Subject: c.Subject, SessionID: c.SessionID}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}

// publicKey resolves kid, refreshing the set once when the kid is unknown
// so rotated keys are picked up before the cache expires.
func (v *SessionVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, domain.ErrTokenInvalid()
	}
	set, err := v.getKeySet(ctx, false)
	if err != nil {
		return nil, err
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		if set, err = v.getKeySet(ctx, true); err != nil {
			return nil, err
		}
		if key, ok = set.LookupKeyID(kid); !ok {
			return nil, domain.ErrTokenInvalid()
		}
	}

	var pub rsa.PublicKey
	if err := key.Raw(&pub); err != nil {
		return nil, fmt.Errorf("jwk %s is not an RSA public key: %w", kid, err)
	}
	return &pub, nil
}

func (v *SessionVerifier) getKeySet(ctx context.Context, force bool) (jwk.Set, error) {
	if !force {
		v.mu.RLock()
		if v.keySet != nil && v.now().Sub(v.lastFetch) < v.cacheTTL {
			defer v.mu.RUnlock()
			return v.keySet, nil
		}
		v.mu.RUnlock()
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !force && v.keySet != nil && v.now().Sub(v.lastFetch) < v.cacheTTL {
		return v.keySet, nil
	}

	set, err := v.fetcher.FetchKeys(ctx, v.jwksURL)
	if err != nil {
		if v.keySet != nil {
			logger.WithCtx(ctx).Warn().Err(err).Msg("jwks refresh failed, using cached keys")
			return v.keySet, nil
		}
		return nil, domain.ErrProviderUnavailable(fmt.Errorf("fetch jwks: %w", err))
	}

	v.keySet = set
	v.lastFetch = v.now()
	return set, nil
}

// InvalidateCache forces the next verification to refetch the key set.
func (v *SessionVerifier) InvalidateCache() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastFetch = time.Time{}
}
