package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the CLI shows about an access token.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
}

// Inspect decodes the claims of a JWT access token without verifying its
// signature. It is for display only and never used for authorization.
func Inspect(accessToken string) (*Claims, error) {
	var registered jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &registered); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}
	claims := &Claims{Subject: registered.Subject, Issuer: registered.Issuer}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}
