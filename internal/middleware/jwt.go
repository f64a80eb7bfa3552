package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// PlatformClaims описывает полезную нагрузку токенов, которые выдаёт платформа.
type PlatformClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// JWTVerifier проверяет HS256-токены платформы, подписанные общим секретом JWT_SECRET.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier создаёт JWTVerifier. Токены без срока действия не принимаются.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// ResolveCaller проверяет подпись и срок действия токена и возвращает claim userId.
func (v *JWTVerifier) ResolveCaller(_ context.Context, token string) (string, error) {
	var claims PlatformClaims
	if _, err := v.parser.ParseWithClaims(token, &claims, v.key); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: token has no userId", ErrUnauthenticated)
	}

	return claims.UserID, nil
}

func (v *JWTVerifier) key(*jwt.Token) (any, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("jwt secret is not configured")
	}
	return v.secret, nil
}
