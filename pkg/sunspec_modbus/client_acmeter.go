package sunspec_modbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

var ErrNotSunSpec = errors.New("could not find a SunSpec smart meter")

// ACMeterReader reads a SunSpec integer + scale factor meter (models 201 to
// 204). The service only serves meters; the reader checks served maps from
// the client side in tests.
type ACMeterReader struct {
	ModbusClient
	common uint16
	meter  uint16
	// expected manufacturer, empty accepts any
	manufacturer string
}

func CreateACMeterReader(ip string, port uint, unitId uint8, timeout time.Duration,
	manufacturer string, logger *zap.Logger) (*ACMeterReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := client.SetUnitId(unitId); err != nil {
		return nil, err
	}
	return &ACMeterReader{
		ModbusClient: ModbusClient{
			client: client,
			logger: logger.With(zap.String("target", "acMeter"), zap.Uint8("unit", unitId)),
		},
		manufacturer: manufacturer,
	}, nil
}

func (reader *ACMeterReader) Open() error {
	if err := reader.client.Open(); err != nil {
		return err
	}
	return reader.survey()
}

func (reader *ACMeterReader) Close() error {
	return reader.client.Close()
}

func (reader *ACMeterReader) Validate() error {
	str, err := reader.readString(SUNSPEC_BASE_ADDR, 4)
	if err != nil {
		return err
	}
	if str != "SunS" {
		return ErrNotSunSpec
	}
	if reader.manufacturer == "" {
		return nil
	}
	str, err = reader.readString(SUNSPEC_BASE_ADDR+4, 32)
	if err != nil {
		return err
	}
	if str != reader.manufacturer {
		return fmt.Errorf("unexpected meter manufacturer %q", str)
	}
	return nil
}

func (reader *ACMeterReader) GetInfo() (*ACMeterInfo, error) {
	var info ACMeterInfo
	fields := []struct {
		offset uint16
		size   uint16
		dst    *string
	}{
		{2, 32, &info.Manufacturer},
		{18, 32, &info.Model},
		{42, 16, &info.Version},
		{50, 32, &info.Serial},
	}
	for _, f := range fields {
		str, err := reader.readString(reader.common+f.offset, f.size)
		if err != nil {
			return nil, err
		}
		*f.dst = str
	}
	return &info, nil
}

// GetReading decodes the per phase points and real energy counters in a
// single request.
func (reader *ACMeterReader) GetReading() (*ACMeterReading, error) {
	// A .. TotWh_SF
	regs, err := reader.readRegisters(reader.meter+2, 53)
	if err != nil {
		return nil, err
	}
	at := func(offset uint16) uint16 {
		return regs[offset-2]
	}
	var reading ACMeterReading
	reading.Frequency = applySFint16(at(16), at(17))
	for i := range reading.Phases {
		n := uint16(i)
		reading.Phases[i] = ACMeterPhase{
			Current:       applySFint16(at(3+n), at(6)),
			Voltage:       applySFint16(at(8+n), at(15)),
			ActivePower:   applySFint16(at(19+n), at(22)),
			ApparentPower: applySFint16(at(24+n), at(27)),
			PowerFactor:   applySFint16(at(34+n), at(37)) / 100,
			ExportedWh:    applySFacc32(at(40+2*n), at(41+2*n), at(54)),
			ImportedWh:    applySFacc32(at(48+2*n), at(49+2*n), at(54)),
		}
	}
	return &reading, nil
}

func (reader *ACMeterReader) survey() error {
	if err := reader.Validate(); err != nil {
		return err
	}
	baseAddr := SUNSPEC_BASE_ADDR + 2
	// bounded walk over the model chain
	for n := 0; n < 10; n++ {
		block, err := surveyModbusBlock(reader.client, baseAddr)
		if err != nil {
			return err
		}
		if block.isEndBlock() {
			break
		}
		if block.id == SUNSPEC_WK_COMMON {
			reader.common = block.baseAddr
		} else if block.id >= SUNSPEC_WK_AC_METER_MIN && block.id <= SUNSPEC_WK_AC_METER_MAX {
			reader.meter = block.baseAddr
		}
		if reader.common > 0 && reader.meter > 0 {
			return nil
		}
		baseAddr = baseAddr + block.length + 2
	}
	return errors.New("could not find all required sunspec blocks (common, ac_meter)")
}

// ensure interface compliance
var _ ACMeterModbusReader = (*ACMeterReader)(nil)
