// Package jwt issues and verifies HS256 access/refresh token pairs.
package jwt

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type Config struct {
	SigningKey string        `env:"JWT_SIGNING_KEY,required"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"studykit"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"60m"`
	RefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`
}

// Claims is the token payload. Subject holds the user id.
type Claims struct {
	gojwt.RegisteredClaims
	Type  string `json:"typ"`
	Admin bool   `json:"adm,omitempty"`
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	key    []byte
	cfg    Config
	now    func() time.Time
	parser *gojwt.Parser
}

type Option func(*Service)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, ErrInvalidSigningKey
	}

	s := &Service{
		key: []byte(cfg.SigningKey),
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	parserOpts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithTimeFunc(s.now),
		gojwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, gojwt.WithIssuer(cfg.Issuer))
	}
	s.parser = gojwt.NewParser(parserOpts...)

	return s, nil
}

// IssuePair signs a fresh access and refresh token for subject.
func (s *Service) IssuePair(subject string, admin bool) (TokenPair, error) {
	now := s.now()

	access, accessExp, err := s.sign(subject, admin, TypeAccess, now, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.sign(subject, admin, TypeRefresh, now, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{Access: access, Refresh: refresh, ExpiresAt: accessExp}, nil
}

func (s *Service) sign(subject string, admin bool, typ string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(exp),
		},
		Type:  typ,
		Admin: admin,
	}

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, errors.Join(ErrSigningFailed, err)
	}
	return signed, exp, nil
}

// Parse verifies the token and checks that its type matches want.
func (s *Service) Parse(token, want string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, gojwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, errors.Join(ErrInvalidToken, err)
	}

	if claims.Type != want || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
