package services

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"parley-chat/config"
	parley_errors "parley-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret"})

	token, err := auth.IssueAccessToken(42, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := auth.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("user id = %d, want 42", claims.UserID)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret"})
	other := NewAuthService(&config.Config{JWTSecret: "other"})

	expired, _ := auth.IssueAccessToken(1, -time.Minute)
	foreign, _ := other.IssueAccessToken(1, time.Minute)
	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"expired":      expired,
		"wrong secret": foreign,
		"missing user": noUser,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := auth.ParseAccessToken(token)
			assertIs(t, err, parley_errors.ErrUnauthorized)
		})
	}
}

func TestSubjectOnlyToken(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret"})
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))

	claims, err := auth.ParseAccessToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != 7 {
		t.Errorf("user id = %d, want 7", claims.UserID)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: bad", parley_errors.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{parley_errors.ErrInvalidTransition, http.StatusBadRequest, "INVALID_INPUT"},
		{parley_errors.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{parley_errors.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("user 1: %w", parley_errors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{parley_errors.ErrConflict, http.StatusConflict, "CONFLICT"},
		{parley_errors.ErrAlreadyExists, http.StatusConflict, "CONFLICT"},
		{parley_errors.ErrInvariantViolation, http.StatusUnprocessableEntity, "INVARIANT_VIOLATION"},
		{parley_errors.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{parley_errors.ErrServiceUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.status {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.status)
			}
			if got := ErrorCode(tt.err); got != tt.code {
				t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.code)
			}
		})
	}
}

func TestUserContext(t *testing.T) {
	ctx := WithUserContext(context.Background(), 9)
	if id, ok := UserIDFromContext(ctx); !ok || id != 9 {
		t.Fatalf("got %d, %v", id, ok)
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("empty context should carry no user")
	}
}
