package enlighten

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var identity = domain.CloudIdentity{Username: "user@example.com", Password: "secret", Serial: "122233445566"}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": identity.Serial,
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

type fakeCloud struct {
	logins       atomic.Int32
	tokens       atomic.Int32
	rejectLogin  bool
	rejectTokens bool
	token        string
	lastRequest  tokenRequest
}

func (f *fakeCloud) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/login.json", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		_ = r.ParseForm()
		if f.rejectLogin || r.PostForm.Get("user[email]") != identity.Username || r.PostForm.Get("user[password]") != identity.Password {
			_ = json.NewEncoder(w).Encode(LoginResponse{Message: "Login failed"})
			return
		}
		_ = json.NewEncoder(w).Encode(LoginResponse{Message: "success", SessionId: "session-42", IsConsumer: true})
	})
	mux.HandleFunc("/tokens", func(w http.ResponseWriter, r *http.Request) {
		f.tokens.Add(1)
		if f.rejectTokens {
			w.WriteHeader(http.StatusUnauthorized)
			f.rejectTokens = false
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.lastRequest)
		_, _ = w.Write([]byte(f.token))
	})
	return mux
}

func newTestClient(t *testing.T, cloud *fakeCloud) *Client {
	t.Helper()
	srv := httptest.NewServer(cloud.handler())
	t.Cleanup(srv.Close)
	return NewClientWithURLs(srv.URL+"/login/login.json", srv.URL+"/tokens", zap.NewNop())
}

func TestLogin(t *testing.T) {
	exp := time.Now().Add(365 * 24 * time.Hour).Truncate(time.Second)
	cloud := &fakeCloud{token: signedToken(t, exp)}
	client := newTestClient(t, cloud)

	session, err := client.Login(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, cloud.token, session.Token)
	assert.Equal(t, "session-42", session.SessionID)
	assert.True(t, exp.Equal(session.ExpiresAt))
	assert.Equal(t, tokenRequest{SessionId: "session-42", Serial: identity.Serial, Username: identity.Username}, cloud.lastRequest)
}

func TestLoginRejected(t *testing.T) {
	cloud := &fakeCloud{rejectLogin: true}
	client := newTestClient(t, cloud)

	_, err := client.Login(context.Background(), identity)
	assert.ErrorIs(t, err, ErrLoginRejected)
	assert.EqualValues(t, 0, cloud.tokens.Load())
}

func TestRefreshReusesSession(t *testing.T) {
	cloud := &fakeCloud{token: signedToken(t, time.Now().Add(time.Hour))}
	client := newTestClient(t, cloud)

	session, err := client.Refresh(context.Background(), identity, domain.Session{SessionID: "session-42"})
	require.NoError(t, err)
	assert.Equal(t, cloud.token, session.Token)
	assert.EqualValues(t, 0, cloud.logins.Load())
	assert.EqualValues(t, 1, cloud.tokens.Load())
}

func TestRefreshFallsBackToLogin(t *testing.T) {
	cloud := &fakeCloud{token: signedToken(t, time.Now().Add(time.Hour)), rejectTokens: true}
	client := newTestClient(t, cloud)

	session, err := client.Refresh(context.Background(), identity, domain.Session{SessionID: "expired"})
	require.NoError(t, err)
	assert.Equal(t, "session-42", session.SessionID)
	assert.EqualValues(t, 1, cloud.logins.Load())
	assert.EqualValues(t, 2, cloud.tokens.Load())
}

func TestTokenWithoutExpiry(t *testing.T) {
	cloud := &fakeCloud{token: "not-a-jwt"}
	client := newTestClient(t, cloud)

	session, err := client.Login(context.Background(), identity)
	require.NoError(t, err)
	assert.True(t, session.ExpiresAt.IsZero())
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	got, err := TokenExpiry(signedToken(t, exp))
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	_, err = TokenExpiry("garbage")
	assert.Error(t, err)
}
