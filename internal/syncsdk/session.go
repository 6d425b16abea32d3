package syncsdk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openmined/kbsync/internal/utils"
)

// sessions are renewed this long before the access token expires
const sessionExpiryMargin = 30 * time.Second

// Session is an authenticated view of the account: the access token plus where
// the user's own knowledge base lives.
type Session struct {
	AccessToken    string
	Email          string
	UserID         string
	KbGUID         string
	DatabaseServer string
	ExpiresAt      time.Time
}

// SessionManager turns the long lived refresh token into short lived sessions
// and caches the current one.
type SessionManager struct {
	sdk   *SDK
	email string
	now   func() time.Time

	// called when the server rotates the refresh token
	OnRefreshToken func(token string)

	mu           sync.Mutex
	refreshToken string
	session      *Session
}

func NewSessionManager(sdk *SDK, email, refreshToken string) (*SessionManager, error) {
	if err := utils.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEmail, err)
	}
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return &SessionManager{
		sdk:          sdk,
		email:        email,
		refreshToken: refreshToken,
		now:          time.Now,
	}, nil
}

// Session returns the cached session, or establishes a new one when there is
// none or it is about to expire.
func (m *SessionManager) Session(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.now().Before(m.session.ExpiresAt.Add(-sessionExpiryMargin)) {
		return m.session, nil
	}

	session, err := m.login(ctx)
	if err != nil {
		m.session = nil
		return nil, err
	}
	m.session = session
	return session, nil
}

// Invalidate drops the cached session.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
}

func (m *SessionManager) login(ctx context.Context) (*Session, error) {
	tokens, err := m.sdk.Auth.Refresh(ctx, m.refreshToken)
	if err != nil {
		return nil, err
	}

	claims, err := ParseToken(tokens.AccessToken, AccessToken)
	if err != nil {
		return nil, err
	}
	if err := claims.Validate(m.email); err != nil {
		return nil, err
	}

	if tokens.RefreshToken != "" && tokens.RefreshToken != m.refreshToken {
		m.refreshToken = tokens.RefreshToken
		if m.OnRefreshToken != nil {
			m.OnRefreshToken(tokens.RefreshToken)
		}
	}

	info, err := m.sdk.User.Info(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	expires := claims.Expiry()
	if expires.IsZero() {
		// tokens without an exp claim are treated as short lived
		expires = m.now().Add(15 * time.Minute)
	}

	slog.Debug("session established",
		"email", m.email,
		"kb", info.KbGUID,
		utils.SecretAttr("token", tokens.AccessToken),
		"expires", expires,
	)

	return &Session{
		AccessToken:    tokens.AccessToken,
		Email:          m.email,
		UserID:         info.UserID,
		KbGUID:         info.KbGUID,
		DatabaseServer: info.DatabaseServer,
		ExpiresAt:      expires,
	}, nil
}
