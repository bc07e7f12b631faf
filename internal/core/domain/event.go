package domain

// SnapshotUpdatedEvent is published on the event stream every time a new
// snapshot replaces the previous one.
type SnapshotUpdatedEvent struct {
	Data *MeterData
}
