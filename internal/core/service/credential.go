package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
	"go.uber.org/zap"
)

const (
	CREDENTIAL_STATE_UNAUTHENTICATED = "unauthenticated"
	CREDENTIAL_STATE_ACTIVE          = "active"
)

// ProactiveRefreshThreshold is how long before expiry a credential is renewed.
const ProactiveRefreshThreshold = 30 * 24 * time.Hour

var ErrNoIdentity = errors.New("no cloud identity configured")

// CredentialManager owns the bearer credential used against the gateway. A
// static token is used as is; a cloud identity allows minting a new token and
// refreshing it.
type CredentialManager struct {
	mu       sync.RWMutex
	cred     domain.Credential
	state    string
	static   bool
	identity domain.CloudIdentity
	login    port.CloudLogin

	// serializes Obtain and Refresh
	refreshMu sync.Mutex

	now    func() time.Time
	logger *zap.Logger
}

func NewCredentialManager(staticToken string, identity domain.CloudIdentity, login port.CloudLogin, logger *zap.Logger) *CredentialManager {
	return &CredentialManager{
		cred:     domain.Credential{Token: staticToken},
		state:    CREDENTIAL_STATE_UNAUTHENTICATED,
		static:   staticToken != "",
		identity: identity,
		login:    login,
		now:      time.Now,
		logger:   logger,
	}
}

// Obtain makes the credential usable. A static token becomes active with an
// unknown expiry. Otherwise the cloud login is run. On failure the manager
// stays unauthenticated and the error is returned.
func (m *CredentialManager) Obtain(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if m.static {
		m.mu.Lock()
		m.state = CREDENTIAL_STATE_ACTIVE
		m.mu.Unlock()
		m.logger.Info("credential: using static token")
		return nil
	}
	if !m.HasIdentity() {
		return ErrNoIdentity
	}
	return m.doLogin(ctx)
}

// Refresh renews the token using the current session. Without a session it
// runs a new login. Concurrent calls are serialized.
func (m *CredentialManager) Refresh(ctx context.Context) error {
	if !m.HasIdentity() {
		return ErrNoIdentity
	}
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.RLock()
	current := domain.Session{
		Token:     m.cred.Token,
		SessionID: m.cred.SessionID,
		ExpiresAt: m.cred.ExpiresAt,
	}
	m.mu.RUnlock()

	if current.SessionID == "" {
		return m.doLogin(ctx)
	}

	session, err := m.login.Refresh(ctx, m.identity, current)
	if err != nil {
		m.logger.Warn("credential: refresh failed", zap.Error(err))
		return fmt.Errorf("credential refresh: %w", err)
	}
	m.apply(session)
	m.logger.Info("credential: token refreshed", zap.Time("expires_at", session.ExpiresAt))
	return nil
}

func (m *CredentialManager) doLogin(ctx context.Context) error {
	session, err := m.login.Login(ctx, m.identity)
	if err != nil {
		m.logger.Warn("credential: login failed", zap.Error(err))
		return fmt.Errorf("credential login: %w", err)
	}
	m.apply(session)
	m.logger.Info("credential: token obtained", zap.Time("expires_at", session.ExpiresAt))
	return nil
}

func (m *CredentialManager) apply(session *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred.Token = session.Token
	if session.SessionID != "" {
		m.cred.SessionID = session.SessionID
	}
	m.cred.ExpiresAt = session.ExpiresAt
	m.state = CREDENTIAL_STATE_ACTIVE
}

// Token returns the current bearer token, if any.
func (m *CredentialManager) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != CREDENTIAL_STATE_ACTIVE || !m.cred.HasToken() {
		return "", false
	}
	return m.cred.Token, true
}

func (m *CredentialManager) HasIdentity() bool {
	return m.identity.IsSet() && m.login != nil
}

func (m *CredentialManager) State() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *CredentialManager) Credential() domain.Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred
}

// NeedsProactiveRefresh reports whether the known expiry is closer than the
// refresh threshold. An unknown expiry never needs a refresh.
func (m *CredentialManager) NeedsProactiveRefresh(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.cred.HasExpiry() {
		return false
	}
	return m.cred.ExpiresAt.Sub(now) < ProactiveRefreshThreshold
}

// CheckExpiry runs the periodic credential check: a missing credential is
// obtained again and one close to expiry is refreshed. Failures are logged
// and returned; the next check or the next rejected request retries.
func (m *CredentialManager) CheckExpiry(ctx context.Context) error {
	if !m.HasIdentity() {
		return nil
	}
	if m.State() == CREDENTIAL_STATE_UNAUTHENTICATED {
		return m.Obtain(ctx)
	}
	if !m.NeedsProactiveRefresh(m.now()) {
		m.logger.Debug("credential: expiry check ok")
		return nil
	}
	m.logger.Info("credential: token expires soon, refreshing")
	return m.Refresh(ctx)
}

// ensure interface compliance
var _ port.CredentialSource = (*CredentialManager)(nil)
