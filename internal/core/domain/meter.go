package domain

import "time"

// NominalFrequencyHz is reported for every phase. The gateway does not
// expose a grid frequency reading.
const NominalFrequencyHz = 50.0

// PhaseData holds the electrical measurements of a single phase.
type PhaseData struct {
	Voltage float64
	Current float64
	// Active power in W. Positive = import, negative = export
	ActPower float64
	// Apparent power in VA
	AprtPower float64
	PF        float64
	Freq      float64
	// Lifetime imported energy in Wh
	TotalActEnergy float64
	// Lifetime exported energy in Wh
	TotalActRetEnergy float64
}

// ZeroPhase returns an all-zero measurement at nominal frequency.
func ZeroPhase() PhaseData {
	return PhaseData{Freq: NominalFrequencyHz}
}

// MeterData is a complete, immutable measurement snapshot. Once published it
// must not be modified; build a new one with NewMeterData instead.
type MeterData struct {
	Phases            []PhaseData
	TotalActPower     float64
	TotalAprtPower    float64
	TotalCurrent      float64
	TotalActEnergy    float64
	TotalActRetEnergy float64
	UpdatedAt         time.Time
}

// NewMeterData builds a snapshot whose aggregates are the sum of the given
// phase slots.
func NewMeterData(phases []PhaseData, updatedAt time.Time) *MeterData {
	data := &MeterData{
		Phases:    append([]PhaseData(nil), phases...),
		UpdatedAt: updatedAt,
	}
	for _, p := range data.Phases {
		data.TotalActPower += p.ActPower
		data.TotalAprtPower += p.AprtPower
		data.TotalCurrent += p.Current
		data.TotalActEnergy += p.TotalActEnergy
		data.TotalActRetEnergy += p.TotalActRetEnergy
	}
	return data
}

// ZeroMeterData returns an all-zero snapshot with the given number of phase
// slots.
func ZeroMeterData(phases int, updatedAt time.Time) *MeterData {
	if phases < 1 {
		phases = 1
	}
	slots := make([]PhaseData, phases)
	for i := range slots {
		slots[i] = ZeroPhase()
	}
	return NewMeterData(slots, updatedAt)
}

// Phase returns the phase at index i, or a zero phase when the snapshot has
// fewer slots.
func (m *MeterData) Phase(i int) PhaseData {
	if m == nil || i < 0 || i >= len(m.Phases) {
		return PhaseData{}
	}
	return m.Phases[i]
}
