// Package auth verifies handshake tokens and gates the admin role.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mcdev12/livescore/go/internal/session"
)

var (
	ErrNoToken      = errors.New("no token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the claims of a handshake token.
type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// JWT wraps a signing secret for issuing and verifying tokens.
type JWT struct {
	secret []byte
	issuer string
}

func New(secret, issuer string) *JWT {
	return &JWT{secret: []byte(secret), issuer: issuer}
}

// Verify checks a token and returns its claims.
func (j *JWT) Verify(tok string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	_, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no sub", ErrInvalidToken)
	}
	return claims, nil
}

// Sign creates a token for userID with the given TTL.
func (j *JWT) Sign(userID string, admin bool, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	now := time.Now()
	claims := Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Identify reads the bearer token of a handshake request. A request without
// a token is an anonymous, non-admin identity.
func (j *JWT) Identify(r *http.Request) (session.Identity, error) {
	tok := tokenFrom(r)
	if tok == "" {
		return session.Identity{}, nil
	}
	claims, err := j.Verify(tok)
	if err != nil {
		return session.Identity{}, err
	}
	return session.Identity{UserID: claims.Subject, Admin: claims.Admin}, nil
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	// Browsers cannot set headers on a websocket handshake.
	return r.URL.Query().Get("token")
}
