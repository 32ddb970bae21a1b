// Package auth issues and validates the short-lived bearer tokens that gate
// every tool-facing endpoint.
//
// Tokens are symmetric HS256 JWTs carrying {sub, iat, exp, type=access}.
// They are capabilities for a single gateway deployment, not federation
// artifacts, so a shared signing secret is sufficient.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmolinaso/voxbridge/internal/fault"
)

// tokenType is the value of the "type" claim on all issued tokens.
const tokenType = "access"

// expiringSoonWindow is the threshold below which a token is reported as
// expiring soon by [Authenticator.Verify] consumers.
const expiringSoonWindow = 300 * time.Second

// Claims are the verified contents of a bearer token.
type Claims struct {
	// Subject is the user identifier the token was issued to.
	Subject string

	// IssuedAt and ExpiresAt are absolute wall-clock instants.
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TimeRemaining returns the duration until expiry, never negative.
func (c Claims) TimeRemaining(now time.Time) time.Duration {
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ExpiringSoon reports whether the token expires within the warning window.
func (c Claims) ExpiringSoon(now time.Time) bool {
	return c.TimeRemaining(now) < expiringSoonWindow
}

// jwtClaims is the wire shape of the token payload.
type jwtClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Authenticator validates API keys and mints bearer tokens.
// All methods are safe for concurrent use; the catalogs are fixed at
// construction time.
type Authenticator struct {
	secret         []byte
	apiKeys        map[string]string // api key -> user id
	serviceKeys    map[string]bool   // recognised external provider keys
	lifetime       time.Duration
	mobileLifetime time.Duration

	// now is swappable in tests.
	now func() time.Time
}

// Config holds the construction parameters for an [Authenticator].
type Config struct {
	// Secret signs all tokens. Must not be empty.
	Secret string

	// APIKeys maps static API keys to user identifiers.
	APIKeys map[string]string

	// ServiceKeys lists recognised external service keys (e.g. configured
	// AI provider keys). A matching key is accepted for token issuance with
	// a subject derived from the key digest.
	ServiceKeys []string

	// Lifetime is the default token validity. Defaults to 1h.
	Lifetime time.Duration

	// MobileLifetime applies when the client hint reports a mobile platform.
	// Defaults to 24h.
	MobileLifetime time.Duration
}

// New creates an [Authenticator]. It returns an error when Secret is empty.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth: signing secret must not be empty")
	}
	lifetime := cfg.Lifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	mobile := cfg.MobileLifetime
	if mobile <= 0 {
		mobile = 24 * time.Hour
	}

	keys := make(map[string]string, len(cfg.APIKeys))
	for k, v := range cfg.APIKeys {
		keys[k] = v
	}
	service := make(map[string]bool, len(cfg.ServiceKeys))
	for _, k := range cfg.ServiceKeys {
		if k != "" {
			service[k] = true
		}
	}

	return &Authenticator{
		secret:         []byte(cfg.Secret),
		apiKeys:        keys,
		serviceKeys:    service,
		lifetime:       lifetime,
		mobileLifetime: mobile,
		now:            time.Now,
	}, nil
}

// IsMobileHint reports whether a client hint identifies a mobile platform,
// which qualifies for the extended token lifetime.
func IsMobileHint(hint string) bool {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "ios", "android":
		return true
	}
	return false
}

// Issue validates apiKey and returns a signed token plus its lifetime.
// clientHint selects between the default and mobile lifetimes; it is a
// policy input, not an identity claim.
//
// Fails with [fault.KindInvalidCredentials] when the key matches neither the
// static catalog nor a recognised service key.
func (a *Authenticator) Issue(apiKey, clientHint string) (token string, lifetime time.Duration, err error) {
	subject, ok := a.apiKeys[apiKey]
	if !ok {
		if !a.serviceKeys[apiKey] {
			return "", 0, fault.New(fault.KindInvalidCredentials, "auth", "unknown api key")
		}
		subject = serviceSubject(apiKey)
	}

	lifetime = a.lifetime
	if IsMobileHint(clientHint) {
		lifetime = a.mobileLifetime
	}

	token, err = a.sign(subject, lifetime)
	if err != nil {
		return "", 0, err
	}
	return token, lifetime, nil
}

// Verify checks signature and expiry and returns the token's claims.
// Expired tokens fail [fault.KindExpiredCredentials]; all other parse
// failures fail [fault.KindInvalidCredentials], so the gateway can map both
// to the 401 family while clients can distinguish them.
func (a *Authenticator) Verify(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fault.New(fault.KindExpiredCredentials, "auth", "token has expired")
		}
		return Claims{}, fault.Wrap(fault.KindInvalidCredentials, "auth", "invalid token", err)
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return Claims{}, fault.New(fault.KindInvalidCredentials, "auth", "invalid token claims")
	}
	if claims.Subject == "" || claims.Type != tokenType {
		return Claims{}, fault.New(fault.KindInvalidCredentials, "auth", "invalid token claims")
	}

	out := Claims{Subject: claims.Subject}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Refresh reissues a token for the same subject with a fresh default
// lifetime. The caller must have verified the presented token first.
func (a *Authenticator) Refresh(claims Claims) (string, time.Duration, error) {
	if claims.Subject == "" {
		return "", 0, fault.New(fault.KindInvalidCredentials, "auth", "refresh requires a subject")
	}
	token, err := a.sign(claims.Subject, a.lifetime)
	if err != nil {
		return "", 0, err
	}
	return token, a.lifetime, nil
}

// sign mints a token for subject valid for lifetime.
func (a *Authenticator) sign(subject string, lifetime time.Duration) (string, error) {
	now := a.now()
	claims := jwtClaims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// serviceSubject derives a stable pseudo-user id for a recognised external
// service key without ever persisting or logging the key itself.
func serviceSubject(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "svc-" + hex.EncodeToString(sum[:])[:12]
}
