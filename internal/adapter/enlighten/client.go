package enlighten

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	DefaultLoginURL = "https://enlighten.enphaseenergy.com/login/login.json"
	DefaultTokenURL = "https://entrez.enphaseenergy.com/tokens"

	requestTimeout = 30 * time.Second
)

var (
	ErrLoginRejected = errors.New("enlighten: login rejected")
	ErrEmptyToken    = errors.New("enlighten: empty token")
)

type LoginResponse struct {
	Message      string `json:"message"`
	SessionId    string `json:"session_id"`
	ManagerToken string `json:"manager_token"`
	IsConsumer   bool   `json:"is_consumer"`
}

type tokenRequest struct {
	SessionId string `json:"session_id"`
	Serial    string `json:"serial"`
	Username  string `json:"username"`
}

// Client mints gateway tokens through the Enlighten cloud.
type Client struct {
	loginURL string
	tokenURL string
	client   *http.Client
	logger   *zap.Logger
}

func NewClient(logger *zap.Logger) *Client {
	return NewClientWithURLs(DefaultLoginURL, DefaultTokenURL, logger)
}

func NewClientWithURLs(loginURL, tokenURL string, logger *zap.Logger) *Client {
	return &Client{
		loginURL: loginURL,
		tokenURL: tokenURL,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}
}

// Login opens a cloud session and requests a gateway token with it.
func (c *Client) Login(ctx context.Context, identity domain.CloudIdentity) (*domain.Session, error) {
	sessionID, err := c.openSession(ctx, identity)
	if err != nil {
		return nil, err
	}
	return c.requestToken(ctx, identity, sessionID)
}

// Refresh requests a new token with the existing session. A rejected session
// falls back to a full login.
func (c *Client) Refresh(ctx context.Context, identity domain.CloudIdentity, session domain.Session) (*domain.Session, error) {
	if session.SessionID != "" {
		s, err := c.requestToken(ctx, identity, session.SessionID)
		if err == nil {
			return s, nil
		}
		c.logger.Info("enlighten: session token request failed, logging in again", zap.Error(err))
	}
	return c.Login(ctx, identity)
}

func (c *Client) openSession(ctx context.Context, identity domain.CloudIdentity) (string, error) {
	form := url.Values{}
	form.Set("user[email]", identity.Username)
	form.Set("user[password]", identity.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("enlighten login: %w", err)
	}
	var resp LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("enlighten login: decode: %w", err)
	}
	if resp.SessionId == "" {
		return "", fmt.Errorf("%w: %s", ErrLoginRejected, resp.Message)
	}
	return resp.SessionId, nil
}

func (c *Client) requestToken(ctx context.Context, identity domain.CloudIdentity, sessionID string) (*domain.Session, error) {
	payload, err := json.Marshal(tokenRequest{
		SessionId: sessionID,
		Serial:    identity.Serial,
		Username:  identity.Username,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("enlighten token: %w", err)
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return nil, ErrEmptyToken
	}
	expiresAt, err := TokenExpiry(token)
	if err != nil {
		c.logger.Warn("enlighten: token expiry unknown", zap.Error(err))
	}
	return &domain.Session{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	}, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

// TokenExpiry reads the exp claim of a gateway token. The signature is not
// verified; the gateway does that.
func TokenExpiry(token string) (time.Time, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}

// ensure interface compliance
var _ port.CloudLogin = (*Client)(nil)
