package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid table token")

// IssueTableToken signs an HS256 token granting control of one table.
func IssueTableToken(secret, tableID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := jwt.MapClaims{
		"table_id": tableID,
		"iat":      time.Now().Unix(),
		"exp":      jwt.NewNumericDate(time.Now().Add(ttl)).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseTableToken validates a table token and returns the table id it grants.
func ParseTableToken(secret, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	tableID, ok := claims["table_id"].(string)
	if !ok || tableID == "" {
		return "", ErrInvalidToken
	}
	return tableID, nil
}
