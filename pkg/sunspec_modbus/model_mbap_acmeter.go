package sunspec_modbus

type ACMeterInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
}

// ACMeterPhase is a single phase reading in SI units. Power factor is a
// ratio in [-1, 1].
type ACMeterPhase struct {
	Voltage       float64
	Current       float64
	ActivePower   float64
	ApparentPower float64
	PowerFactor   float64
	ImportedWh    float64
	ExportedWh    float64
}

type ACMeterReading struct {
	Frequency float64
	Phases    [3]ACMeterPhase
}

// TotalActivePower returns the sum of the phase active power. Positive =
// import, negative = export.
func (r ACMeterReading) TotalActivePower() float64 {
	var total float64
	for _, p := range r.Phases {
		total += p.ActivePower
	}
	return total
}

type ACMeterModbusReader interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*ACMeterInfo, error)
	GetReading() (*ACMeterReading, error)
}
