package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"torashaout/internal/models"
)

// Verifier turns a bearer token into the caller it was issued to.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (models.Caller, error)
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// HMACVerifier accepts HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
}

func NewHMACVerifier(secret, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (models.Caller, error) {
	if rawToken == "" {
		return models.Caller{}, errors.New("empty token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return models.Caller{}, fmt.Errorf("failed to parse token: %w", err)
	}

	return callerFromClaims(claims.Subject, claims.Role, claims.Email)
}

// IssueToken signs an HS256 token for caller. Used by local tooling and tests.
func (v *HMACVerifier) IssueToken(caller models.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:  string(caller.Role),
		Email: caller.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func callerFromClaims(sub, role, email string) (models.Caller, error) {
	if sub == "" {
		return models.Caller{}, errors.New("subject claim not found in token")
	}
	r, ok := models.ParseRole(strings.ToLower(role))
	if !ok {
		// accounts without an explicit role are fans
		r = models.RoleFan
	}
	return models.Caller{UserID: sub, Role: r, Email: email}, nil
}
