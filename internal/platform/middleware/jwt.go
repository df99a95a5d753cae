package middleware

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"geekship/pkg/domain"
)

// HMACValidator validates HS256 tokens whose subject is the caller's user ID.
type HMACValidator struct {
	signingKey []byte
}

func NewHMACValidator(signingKey string) *HMACValidator {
	return &HMACValidator{signingKey: []byte(signingKey)}
}

func (v *HMACValidator) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}
	uid, err := domain.ParseUserID(subject)
	if err != nil {
		return nil, fmt.Errorf("token subject is not a user id: %w", err)
	}
	return &JWTClaims{UserID: uid}, nil
}

// SignToken mints a token for the given caller. Used by tests and local
// tooling; production deployments issue tokens from their own auth system.
func (v *HMACValidator) SignToken(uid domain.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uid.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(v.signingKey)
}
