package sunspec

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/berfenger/meteremu/internal/config"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/service"
	"github.com/berfenger/meteremu/pkg/sunspec_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReadingPadsMissingPhases(t *testing.T) {
	data := domain.NewMeterData([]domain.PhaseData{{
		Voltage: 231, Current: 2.3, ActPower: 520, AprtPower: 530, PF: 0.98, Freq: 50,
		TotalActEnergy: 35000, TotalActRetEnergy: 5000,
	}}, time.Now())

	reading := Reading(data)
	assert.InDelta(t, 50.0, reading.Frequency, 0.01)
	assert.Equal(t, 520.0, reading.Phases[0].ActivePower)
	assert.Equal(t, 35000.0, reading.Phases[0].ImportedWh)
	assert.Equal(t, 5000.0, reading.Phases[0].ExportedWh)
	assert.Equal(t, sunspec_modbus.ACMeterPhase{}, reading.Phases[1])
	assert.Equal(t, sunspec_modbus.ACMeterPhase{}, reading.Phases[2])
}

func TestFrontendServesSnapshot(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint(l.Addr().(*net.TCPAddr).Port)
	require.NoError(t, l.Close())

	store := service.NewSnapshotStore(nil, 1)
	cfg := config.SunSpecConfig{
		Host:         "127.0.0.1",
		Port:         port,
		Manufacturer: "Fronius",
		Model:        "Smart Meter TS 65A-3",
	}
	f := NewFrontend(cfg, domain.DeviceIdentity{MAC: "AABBCCDDEEFF"}, store, zap.NewNop())
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop(context.Background())

	reader, err := sunspec_modbus.CreateACMeterReader("127.0.0.1", port, 1, time.Second, "Fronius", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, reader.Open())
	defer reader.Close()

	info, err := reader.GetInfo()
	require.NoError(t, err)
	assert.Equal(t, "AABBCCDDEEFF", info.Serial)

	reading, err := reader.GetReading()
	require.NoError(t, err)
	assert.Equal(t, 0.0, reading.TotalActivePower())

	store.Publish(domain.NewMeterData([]domain.PhaseData{{Voltage: 230, ActPower: -1500, Freq: 50}}, time.Now()))

	reading, err = reader.GetReading()
	require.NoError(t, err)
	assert.Equal(t, -1500.0, reading.TotalActivePower())
	assert.InDelta(t, 230.0, reading.Phases[0].Voltage, 0.01)
	assert.InDelta(t, 50.0, reading.Frequency, 0.01)
}
