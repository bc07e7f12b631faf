package sunspec

import (
	"context"

	"github.com/berfenger/meteremu/internal/config"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
	"github.com/berfenger/meteremu/pkg/sunspec_modbus"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Frontend emulates a SunSpec smart meter over Modbus TCP.
type Frontend struct {
	config config.SunSpecConfig
	info   sunspec_modbus.ACMeterInfo
	store  port.SnapshotReader
	server *sunspec_modbus.ACMeterServer
	logger *zap.Logger
}

func NewFrontend(cfg config.SunSpecConfig, identity domain.DeviceIdentity, store port.SnapshotReader, logger *zap.Logger) *Frontend {
	serial := cfg.Serial
	if serial == "" {
		serial = identity.MAC
	}
	return &Frontend{
		config: cfg,
		info: sunspec_modbus.ACMeterInfo{
			Manufacturer: cfg.Manufacturer,
			Model:        cfg.Model,
			Version:      versioninfo.Short(),
			Serial:       serial,
		},
		store:  store,
		logger: logger.With(zap.String("frontend", config.FRONTEND_TYPE_SUNSPEC)),
	}
}

// RegisterRoutes adds nothing: the meter is only reachable over Modbus.
func (f *Frontend) RegisterRoutes(e *echo.Echo) {
}

// Registers renders the register map of the current snapshot.
func (f *Frontend) Registers() []uint16 {
	return sunspec_modbus.EncodeACMeter(f.info, Reading(f.store.Load()))
}

func (f *Frontend) Start(ctx context.Context) error {
	server, err := sunspec_modbus.CreateACMeterServer(f.config.Host, f.config.Port, f.Registers, f.logger)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	f.server = server
	f.logger.Info("sunspec: serving", zap.String("host", f.config.Host), zap.Uint("port", f.config.Port),
		zap.String("manufacturer", f.info.Manufacturer), zap.String("model", f.info.Model))
	return nil
}

func (f *Frontend) Stop(ctx context.Context) error {
	if f.server == nil {
		return nil
	}
	err := f.server.Stop()
	f.server = nil
	return err
}

// Reading maps a snapshot onto the three meter phases. Missing phases read
// as zero.
func Reading(data *domain.MeterData) sunspec_modbus.ACMeterReading {
	var reading sunspec_modbus.ACMeterReading
	for i := range reading.Phases {
		p := data.Phase(i)
		reading.Phases[i] = sunspec_modbus.ACMeterPhase{
			Voltage:       p.Voltage,
			Current:       p.Current,
			ActivePower:   p.ActPower,
			ApparentPower: p.AprtPower,
			PowerFactor:   p.PF,
			ImportedWh:    p.TotalActEnergy,
			ExportedWh:    p.TotalActRetEnergy,
		}
	}
	reading.Frequency = data.Phase(0).Freq
	return reading
}
