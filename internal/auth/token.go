package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/outlet-feedback/internal/domain"
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenManager builds a new manager. An empty issuer disables the issuer check.
func NewTokenManager(secret, issuer string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: time.Duration(ttlMinutes) * time.Minute}
}

// Claims describes JWT payload. The subject is the officer's username.
type Claims struct {
	Role       domain.Role `json:"role"`
	HomeOutlet string      `json:"home_outlet,omitempty"`
	City       string      `json:"city,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the acting principal.
func (c *Claims) Actor() domain.Actor {
	return domain.Actor{
		ID:         c.Subject,
		Role:       c.Role,
		HomeOutlet: strings.TrimSpace(c.HomeOutlet),
		City:       strings.TrimSpace(c.City),
	}
}

// GenerateToken builds and signs a JWT for the actor.
func (tm *TokenManager) GenerateToken(actor domain.Actor) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		Role:       actor.Role,
		HomeOutlet: actor.HomeOutlet,
		City:       actor.City,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    tm.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	if !claims.Role.Valid() {
		return nil, errors.New("token has unknown role")
	}
	return claims, nil
}
