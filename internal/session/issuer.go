package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sumire/stay/internal/domain"
	"github.com/sumire/stay/internal/metrics"
)

// Kind distinguishes access grants from refresh grants.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	// TokenVersion is stamped into every token; other versions are rejected.
	TokenVersion = 1

	MinKeyBytes = 32
)

// Claims is the payload carried by every session token.
type Claims struct {
	Kind    Kind   `json:"type"`
	Email   string `json:"email,omitempty"`
	Version int    `json:"ver"`
	jwt.RegisteredClaims
}

// MemberID parses the subject claim.
func (c *Claims) MemberID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject", domain.ErrMalformedToken)
	}
	return id, nil
}

// Config holds signing material and validities. Validities are in milliseconds.
type Config struct {
	SigningKey        []byte
	Issuer            string
	AccessValidityMs  int64
	RefreshValidityMs int64
}

// Issuer mints and verifies HS256 session tokens with one process-wide key.
type Issuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
	now        func() time.Time
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.SigningKey) < MinKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinKeyBytes, len(cfg.SigningKey))
	}
	if cfg.AccessValidityMs <= 0 || cfg.RefreshValidityMs <= 0 {
		return nil, errors.New("token validities must be positive")
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	s := &Issuer{
		key:        key,
		issuer:     cfg.Issuer,
		accessTTL:  time.Duration(cfg.AccessValidityMs) * time.Millisecond,
		refreshTTL: time.Duration(cfg.RefreshValidityMs) * time.Millisecond,
		now:        time.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// AccessValidity is the lifetime of access tokens.
func (s *Issuer) AccessValidity() time.Duration {
	return s.accessTTL
}

// IssueAccess mints an access token carrying the member's email.
func (s *Issuer) IssueAccess(memberID int64, email string) (string, error) {
	return s.issue(memberID, KindAccess, email, s.accessTTL)
}

// IssueRefresh mints a refresh token.
func (s *Issuer) IssueRefresh(memberID int64) (string, error) {
	return s.issue(memberID, KindRefresh, "", s.refreshTTL)
}

func (s *Issuer) issue(memberID int64, kind Kind, email string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Kind:    kind,
		Email:   email,
		Version: TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(memberID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		metrics.TokensIssuedTotal.WithLabelValues(string(kind), "error").Inc()
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(kind), "success").Inc()
	return signed, nil
}

// Validate verifies the signature and registered claims of token.
func (s *Issuer) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: alg %v", domain.ErrUnsupportedTokenVersion, t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, translate(err)
	}

	if claims.Version != TokenVersion {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnsupportedTokenVersion, claims.Version)
	}
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return nil, fmt.Errorf("%w: kind %q", domain.ErrUnsupportedTokenVersion, claims.Kind)
	}
	if _, err := claims.MemberID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateKind validates token and requires it to be of the given kind.
func (s *Issuer) ValidateKind(token string, kind Kind) (*Claims, error) {
	claims, err := s.Validate(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: want %s, got %s", domain.ErrWrongTokenKind, kind, claims.Kind)
	}
	return claims, nil
}

// KindOf returns the kind of a valid token.
func (s *Issuer) KindOf(token string) (Kind, error) {
	claims, err := s.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.Kind, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", domain.ErrUnsupportedTokenVersion, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}
}
