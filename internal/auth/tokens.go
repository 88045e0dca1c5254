package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pipewatch/internal/config"
)

// Domain selects which signing domain a token belongs to. The two domains use
// unrelated secrets so compromise of one never exposes the other.
type Domain string

const (
	DomainAccess  Domain = "access"
	DomainRefresh Domain = "refresh"
)

const (
	tokenIssuer   = "ai-water-system-admin"
	tokenAudience = "ai-water-system-admin-users"
)

// ErrInvalidToken is returned for every verification failure: bad signature,
// wrong domain, wrong issuer or audience, malformed input, or expiry.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the claim set carried by both token domains.
type Identity struct {
	UserID   int64
	Username string
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Service signs and verifies bearer tokens for both domains.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewService builds a token service from configuration.
func NewService(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if cfg.Auth.AccessSecret == "" || cfg.Auth.RefreshSecret == "" {
		return nil, errors.New("token secrets are not configured")
	}
	if cfg.Auth.AccessSecret == cfg.Auth.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	return &Service{
		accessSecret:  []byte(cfg.Auth.AccessSecret),
		refreshSecret: []byte(cfg.Auth.RefreshSecret),
		accessTTL:     cfg.AccessTTL(),
		refreshTTL:    cfg.RefreshTTL(),
		now:           time.Now,
	}, nil
}

// WithClock overrides the time source (used in tests to mint expired tokens).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueAccess signs a short-lived access token for the identity.
func (s *Service) IssueAccess(identity Identity) (string, error) {
	return s.issue(identity, DomainAccess)
}

// IssueRefresh signs a long-lived refresh token for the identity.
func (s *Service) IssueRefresh(identity Identity) (string, error) {
	return s.issue(identity, DomainRefresh)
}

func (s *Service) issue(identity Identity, domain Domain) (string, error) {
	secret, ttl, err := s.domainParams(domain)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.UserID, 10),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: identity.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", domain, err)
	}
	return signed, nil
}

// Verify checks a token against the given domain and returns the embedded
// identity. Any failure resolves to ErrInvalidToken without detail.
func (s *Service) Verify(tokenString string, domain Domain) (Identity, error) {
	secret, _, err := s.domainParams(domain)
	if err != nil {
		return Identity{}, err
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 || claims.Username == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: userID, Username: claims.Username}, nil
}

// Refresh verifies a refresh token and mints a new access token for the same
// identity. The refresh token itself is not rotated.
func (s *Service) Refresh(refreshToken string) (string, error) {
	identity, err := s.Verify(refreshToken, DomainRefresh)
	if err != nil {
		return "", err
	}
	return s.IssueAccess(identity)
}

func (s *Service) domainParams(domain Domain) ([]byte, time.Duration, error) {
	switch domain {
	case DomainAccess:
		return s.accessSecret, s.accessTTL, nil
	case DomainRefresh:
		return s.refreshSecret, s.refreshTTL, nil
	default:
		return nil, 0, fmt.Errorf("unknown token domain %q", domain)
	}
}
