// Package auth выпускает и проверяет JWT операторов административного API.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Роли операторов
const (
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

const issuer = "shopzones"

var (
	ErrInvalidToken = errors.New("недействительный токен")
	ErrWeakSecret   = errors.New("секрет должен быть не короче 32 байт")
)

// Claims утверждения токена оператора
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin сообщает, разрешены ли изменяющие операции
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Tokens подписывает и проверяет токены общим HMAC-секретом
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens принимает секрет в base64
func NewTokens(secret string) (*Tokens, error) {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("секрет не в base64: %w", err)
	}
	if len(decoded) < 32 {
		return nil, ErrWeakSecret
	}
	return &Tokens{secret: decoded, now: time.Now}, nil
}

// Issue выпускает токен оператора с ролью и сроком жизни
func (t *Tokens) Issue(subject, role string, ttl time.Duration) (string, error) {
	if role != RoleAdmin && role != RoleViewer {
		return "", fmt.Errorf("неизвестная роль %q", role)
	}
	now := t.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate проверяет подпись, срок и издателя токена
func (t *Tokens) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
