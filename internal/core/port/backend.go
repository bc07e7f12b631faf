package port

import (
	"context"

	"github.com/berfenger/meteremu/internal/core/domain"
)

// Backend produces meter snapshots from an upstream source.
type Backend interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) domain.ActorHealthResponse
}

// MeterSource runs one poll cycle against an upstream device.
type MeterSource interface {
	Poll(ctx context.Context) (*domain.MeterData, error)
	// Close releases any network resources held by the source.
	Close()
}

// SnapshotReader gives access to the latest published snapshot.
type SnapshotReader interface {
	Load() *domain.MeterData
}

// SnapshotWriter replaces the latest snapshot.
type SnapshotWriter interface {
	Publish(data *domain.MeterData)
}

// CredentialSource is read by a poller before each fetch.
type CredentialSource interface {
	Token() (string, bool)
	HasIdentity() bool
	Refresh(ctx context.Context) error
}

// CloudLogin mints and refreshes gateway tokens.
type CloudLogin interface {
	Login(ctx context.Context, identity domain.CloudIdentity) (*domain.Session, error)
	Refresh(ctx context.Context, identity domain.CloudIdentity, session domain.Session) (*domain.Session, error)
}
