package syncsdk

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/imroc/req/v3"
)

const authRefresh = "/auth/refresh"

type AuthAPI struct {
	client *req.Client
}

func newAuthAPI(client *req.Client) *AuthAPI {
	return &AuthAPI{client: client}
}

// Refresh exchanges a refresh token for a new access/refresh token pair.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*AuthTokenResponse, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	var resp AuthTokenResponse
	res, err := a.client.R().
		SetContext(ctx).
		SetBody(&RefreshTokenRequest{RefreshToken: refreshToken}).
		SetSuccessResult(&resp).
		Post(authRefresh)

	if err := handleAPIError(res, err, "refresh token"); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ParseToken decodes the claims of a token issued by the server. The signature
// is verified by the server on every request, the client only reads the claims.
func ParseToken(token string, tokenType AuthTokenType) (*AuthClaims, error) {
	claims := &AuthClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Type != tokenType {
		return nil, fmt.Errorf("%w: invalid token type %q, expected %q", ErrInvalidToken, claims.Type, tokenType)
	}

	if exp := claims.Expiry(); !exp.IsZero() && time.Now().After(exp) {
		return nil, fmt.Errorf("%w: token expired at %s", ErrInvalidToken, exp.Format(time.RFC3339))
	}

	return claims, nil
}
