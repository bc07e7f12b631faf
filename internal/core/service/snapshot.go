package service

import (
	"sync/atomic"
	"time"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
)

// SnapshotStore holds the latest meter snapshot. Readers always observe a
// complete snapshot, either the previous or the new one.
type SnapshotStore struct {
	current     atomic.Pointer[domain.MeterData]
	eventStream *eventstream.EventStream
}

// NewSnapshotStore returns a store seeded with an all-zero snapshot of the
// given shape. eventStream may be nil.
func NewSnapshotStore(eventStream *eventstream.EventStream, phases int) *SnapshotStore {
	store := &SnapshotStore{
		eventStream: eventStream,
	}
	store.current.Store(domain.ZeroMeterData(phases, time.Time{}))
	return store
}

func (s *SnapshotStore) Load() *domain.MeterData {
	return s.current.Load()
}

// Publish replaces the current snapshot. The snapshot must not be modified
// afterwards.
func (s *SnapshotStore) Publish(data *domain.MeterData) {
	if data == nil {
		return
	}
	s.current.Store(data)
	if s.eventStream != nil {
		s.eventStream.Publish(domain.SnapshotUpdatedEvent{Data: data})
	}
}

// ensure interface compliance
var _ port.SnapshotReader = (*SnapshotStore)(nil)
var _ port.SnapshotWriter = (*SnapshotStore)(nil)
