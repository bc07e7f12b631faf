package domain

import (
	"errors"
	"time"
)

// CloudIdentity is the Enlighten account able to mint gateway tokens.
type CloudIdentity struct {
	Username string
	Password string
	Serial   string
}

func (c CloudIdentity) IsSet() bool {
	return c.Username != "" && c.Password != "" && c.Serial != ""
}

// Session is the result of a login or refresh.
type Session struct {
	Token     string
	SessionID string
	// zero when unknown
	ExpiresAt time.Time
}

// Credential is the bearer credential used against the gateway.
type Credential struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

func (c Credential) HasToken() bool {
	return c.Token != ""
}

func (c Credential) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// ErrNoCredential is returned by a poll cycle that has no usable token.
var ErrNoCredential = errors.New("no credential available")
