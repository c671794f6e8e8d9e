package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"parley-chat/config"
	parley_errors "parley-chat/pkg/errors"
	"parley-chat/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService verifies access tokens issued by the account service.
type AuthService struct {
	jwtSecret []byte
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{jwtSecret: []byte(cfg.JWTSecret)}
}

type AccessClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, parley_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, parley_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, parley_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, parley_errors.ErrUnauthorized
	}

	if claims.UserID <= 0 {
		// tokens minted with only a subject
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || id <= 0 {
			return AccessClaims{}, parley_errors.ErrUnauthorized
		}
		claims.UserID = id
	}

	return *claims, nil
}

// IssueAccessToken signs a token for userID. Used by the dev tooling and tests; production
// tokens come from the account service.
func (s *AuthService) IssueAccessToken(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, parley_errors.ErrInvalidInput), errors.Is(err, parley_errors.ErrInvalidTransition):
		return 400
	case errors.Is(err, parley_errors.ErrUnauthorized):
		return 401
	case errors.Is(err, parley_errors.ErrForbidden):
		return 403
	case errors.Is(err, parley_errors.ErrNotFound):
		return 404
	case errors.Is(err, parley_errors.ErrAlreadyExists), errors.Is(err, parley_errors.ErrConflict):
		return 409
	case errors.Is(err, parley_errors.ErrInvariantViolation):
		return 422
	case errors.Is(err, parley_errors.ErrRateLimited):
		return 429
	case errors.Is(err, parley_errors.ErrServiceUnavailable):
		return 503
	default:
		return 500
	}
}

// ErrorCode is the machine-readable code sent next to an error message.
func ErrorCode(err error) string {
	switch HTTPStatus(err) {
	case 400:
		return "INVALID_INPUT"
	case 401:
		return "UNAUTHORIZED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 409:
		return "CONFLICT"
	case 422:
		return "INVARIANT_VIOLATION"
	case 429:
		return "RATE_LIMITED"
	case 503:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

type ctxKey string

var userIDKey ctxKey = "user_id"

func WithUserContext(ctx context.Context, userID int64) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, logger.UserIdKey, userID)
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok && userID > 0
}
