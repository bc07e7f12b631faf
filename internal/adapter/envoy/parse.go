package envoy

import (
	"math"
	"time"

	"github.com/berfenger/meteremu/internal/core/domain"
	"go.uber.org/zap"
)

func findMeasurement(list []Measurement, kind string) *Measurement {
	for i := range list {
		if list[i].Is(kind) {
			return &list[i]
		}
	}
	return nil
}

// ParseProductionResponse maps a gateway production document into a meter
// snapshot with the given number of phases (1 or 3). It never fails: absent
// or malformed data yields zero values.
func ParseProductionResponse(doc *ProductionResponse, phases int, logger *zap.Logger, now time.Time) *domain.MeterData {
	if doc == nil {
		doc = &ProductionResponse{}
	}
	totalConsumption := findMeasurement(doc.Consumption, MEASUREMENT_TOTAL_CONSUMPTION)
	netConsumption := findMeasurement(doc.Consumption, MEASUREMENT_NET_CONSUMPTION)
	inverters := findMeasurement(doc.Production, MEASUREMENT_INVERTERS)

	grid := netConsumption
	if grid == nil {
		grid = totalConsumption
	}
	if grid == nil {
		logger.Warn("envoy: no consumption data in production response")
		return domain.ZeroMeterData(phases, now)
	}

	if phases != 3 {
		phase := domain.PhaseData{
			Voltage:        float64(grid.RmsVoltage),
			Current:        float64(grid.RmsCurrent),
			ActPower:       float64(grid.WNow),
			AprtPower:      float64(grid.ApprntPwr),
			PF:             float64(grid.PwrFactor),
			Freq:           domain.NominalFrequencyHz,
			TotalActEnergy: float64(grid.WhLifetime),
			TotalActRetEnergy: returnedEnergy(
				lifetime(inverters),
				lifetime(totalConsumption),
				lifetime(netConsumption),
			),
		}
		return domain.NewMeterData([]domain.PhaseData{phase}, now)
	}

	slots := make([]domain.PhaseData, 3)
	for i := range slots {
		line, ok := lineAt(grid, i)
		if !ok {
			slots[i] = domain.ZeroPhase()
			continue
		}
		slots[i] = domain.PhaseData{
			Voltage:        float64(line.RmsVoltage),
			Current:        float64(line.RmsCurrent),
			ActPower:       float64(line.WNow),
			AprtPower:      float64(line.ApprntPwr),
			PF:             float64(line.PwrFactor),
			Freq:           domain.NominalFrequencyHz,
			TotalActEnergy: float64(line.WhLifetime),
			TotalActRetEnergy: returnedEnergy(
				lineLifetime(inverters, i),
				lineLifetime(totalConsumption, i),
				lineLifetime(netConsumption, i),
			),
		}
	}
	return domain.NewMeterData(slots, now)
}

// returnedEnergy derives exported energy from the lifetime counters:
// production - total consumption + net consumption, clamped at 0.
func returnedEnergy(production, totalConsumption, netConsumption float64) float64 {
	return math.Max(0, production-totalConsumption+netConsumption)
}

func lifetime(m *Measurement) float64 {
	if m == nil {
		return 0
	}
	return float64(m.WhLifetime)
}

func lineAt(m *Measurement, i int) (Line, bool) {
	if m == nil || i >= len(m.Lines) {
		return Line{}, false
	}
	return m.Lines[i], true
}

func lineLifetime(m *Measurement, i int) float64 {
	line, ok := lineAt(m, i)
	if !ok {
		return 0
	}
	return float64(line.WhLifetime)
}
