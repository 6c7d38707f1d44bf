// Package callertoken mints and verifies the short-lived HS256 tokens a
// print client presents when opening a spooler connection. The token names
// the calling application and user so the spooler can attribute jobs without
// a second round trip. Both sides share one symmetric secret; this is a
// local trust boundary between processes on the same machine, not a
// federated identity scheme.
package callertoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spoolworks/printspool-go/spooler"
)

// ErrUnauthorized indicates the token failed validation (signature, issuer,
// audience, exp) and the connection should be refused.
var ErrUnauthorized = errors.New("callertoken: unauthorized")

// Config controls minting and validation of caller tokens.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

// DefaultConfig returns a Config with the conventional issuer/audience pair
// and safe TTL and leeway defaults.
func DefaultConfig(secret []byte) *Config {
	return &Config{
		Secret:   secret,
		Issuer:   "printspool-client",
		Audience: "printspool-spooler",
		TTL:      5 * time.Minute,
		Leeway:   60 * time.Second,
	}
}

// Authority mints and verifies caller tokens for one shared secret.
type Authority struct {
	cfg *Config
}

// New validates cfg, fills defaulted fields, and returns an Authority.
func New(cfg *Config) (*Authority, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("secret is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "printspool-client"
	}
	if cfg.Audience == "" {
		cfg.Audience = "printspool-spooler"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}
	return &Authority{cfg: cfg}, nil
}

// Mint issues a token naming the caller. The user lands in sub and the
// application in a private "app" claim.
func (a *Authority) Mint(caller spooler.Caller) (string, error) {
	if caller.App == "" {
		return "", errors.New("caller app is required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": a.cfg.Issuer,
		"aud": a.cfg.Audience,
		"sub": caller.User,
		"app": caller.App,
		"iat": now.Unix(),
		"exp": now.Add(a.cfg.TTL).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(a.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign caller token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry, and returns the
// caller identity the token carries.
func (a *Authority) Verify(tok string) (spooler.Caller, error) {
	if tok == "" {
		return spooler.Caller{}, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithAudience(a.cfg.Audience),
		jwt.WithLeeway(a.cfg.Leeway),
	)
	parsed, err := parser.Parse(tok, func(t *jwt.Token) (any, error) {
		return a.cfg.Secret, nil
	})
	if err != nil {
		return spooler.Caller{}, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return spooler.Caller{}, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	app, _ := claims["app"].(string)
	if app == "" {
		return spooler.Caller{}, fmt.Errorf("%w: missing app claim", ErrUnauthorized)
	}
	user, _ := claims["sub"].(string)
	return spooler.Caller{App: app, User: user}, nil
}
