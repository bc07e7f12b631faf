package service

import (
	"sync"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStoreInitialZero(t *testing.T) {
	store := NewSnapshotStore(nil, 3)
	data := store.Load()
	require.NotNil(t, data)
	assert.Len(t, data.Phases, 3)
	assert.Equal(t, 0.0, data.TotalActPower)
	assert.Equal(t, domain.NominalFrequencyHz, data.Phases[2].Freq)
}

func TestSnapshotStorePublish(t *testing.T) {
	es := &eventstream.EventStream{}
	received := make(chan domain.SnapshotUpdatedEvent, 1)
	sub := es.Subscribe(func(evt any) {
		if ev, ok := evt.(domain.SnapshotUpdatedEvent); ok {
			received <- ev
		}
	})
	defer es.Unsubscribe(sub)

	store := NewSnapshotStore(es, 1)
	data := domain.NewMeterData([]domain.PhaseData{{Voltage: 230, ActPower: 100}}, time.Now())
	store.Publish(data)

	assert.Same(t, data, store.Load())
	select {
	case ev := <-received:
		assert.Same(t, data, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("snapshot event not published")
	}

	// nil is ignored
	store.Publish(nil)
	assert.Same(t, data, store.Load())
}

func TestSnapshotStoreConcurrentReaders(t *testing.T) {
	store := NewSnapshotStore(nil, 3)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				data := store.Load()
				sum := 0.0
				for _, p := range data.Phases {
					sum += p.ActPower
				}
				assert.Equal(t, sum, data.TotalActPower)
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		v := float64(i)
		store.Publish(domain.NewMeterData([]domain.PhaseData{{ActPower: v}, {ActPower: v * 2}, {ActPower: -v}}, time.Now()))
	}
	close(stop)
	wg.Wait()
}
