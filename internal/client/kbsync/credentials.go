package kbsync

import (
	"context"
	"errors"

	"github.com/openmined/kbsync/internal/client/sync"
	"github.com/openmined/kbsync/internal/syncsdk"
)

// Credentials adapts the sdk session manager to the scheduler.
type Credentials struct {
	sessions *syncsdk.SessionManager
}

func NewCredentials(sessions *syncsdk.SessionManager) *Credentials {
	return &Credentials{sessions: sessions}
}

func (c *Credentials) AcquireIdentity(ctx context.Context) (*sync.Identity, error) {
	session, err := c.sessions.Session(ctx)
	if err != nil {
		return nil, toAuthError(err)
	}
	return &sync.Identity{
		Token:          session.AccessToken,
		UserID:         session.UserID,
		KbGUID:         session.KbGUID,
		DatabaseServer: session.DatabaseServer,
		ExpiresAt:      session.ExpiresAt,
	}, nil
}

func (c *Credentials) ClearCachedIdentity() {
	c.sessions.Invalidate()
}

func toAuthError(err error) *sync.AuthError {
	var apiErr *syncsdk.APIError
	if errors.As(err, &apiErr) {
		return sync.NewAuthError(apiErr.Code, apiErr.Message, err)
	}
	return sync.NewAuthError(sync.CodeAuthFailed, err.Error(), err)
}

var _ sync.CredentialService = (*Credentials)(nil)
