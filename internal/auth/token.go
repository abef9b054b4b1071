package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Mode string

const (
	// ModeTrusted accepts any non-empty caller identity as-is.
	ModeTrusted Mode = "trusted"
	// ModeSigned requires an HS256 bearer token whose subject is the identity.
	ModeSigned Mode = "signed"
)

const UserHeader = "x-user-id"

var (
	ErrMissingIdentity = errors.New("missing caller identity")
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("expired token")
)

type Claims struct {
	jwt.RegisteredClaims
}

// Resolver extracts the caller identity from a request.
type Resolver struct {
	mode   Mode
	secret []byte
	now    func() time.Time
}

func NewResolver(mode string, secret string) (*Resolver, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case "", ModeTrusted:
		return &Resolver{mode: ModeTrusted, now: time.Now}, nil
	case ModeSigned:
		if strings.TrimSpace(secret) == "" {
			return nil, errors.New("signed auth mode requires AUTH_JWT_SECRET")
		}
		return &Resolver{mode: ModeSigned, secret: []byte(secret), now: time.Now}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

func (r *Resolver) Mode() Mode {
	return r.mode
}

// Identify returns the caller identity: the bearer token, else the
// x-user-id header. In signed mode only a verified bearer is accepted.
func (r *Resolver) Identify(req *http.Request) (string, error) {
	token := BearerToken(req)
	if r.mode == ModeSigned {
		if token == "" {
			return "", ErrMissingIdentity
		}
		claims, err := ParseToken(r.secret, token, r.now())
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}
	if token != "" {
		return token, nil
	}
	if header := strings.TrimSpace(req.Header.Get(UserHeader)); header != "" {
		return header, nil
	}
	return "", ErrMissingIdentity
}

func IssueToken(secret []byte, subject string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, token string, now time.Time) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
