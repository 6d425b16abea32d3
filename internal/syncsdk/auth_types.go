package syncsdk

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type AuthTokenType string

const (
	AccessToken  AuthTokenType = "access"
	RefreshToken AuthTokenType = "refresh"
)

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AuthTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type AuthClaims struct {
	Type AuthTokenType `json:"type"`
	jwt.RegisteredClaims
}

// Validate checks that the token was issued for email.
func (c *AuthClaims) Validate(email string) error {
	if c.Subject != email {
		return fmt.Errorf("%w: token subject %q does not match %q", ErrInvalidToken, c.Subject, email)
	}
	return nil
}

func (c *AuthClaims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
