package sunspec_modbus

import (
	"math"
	"slices"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// ModbusClient wraps a modbus client with SunSpec decoding helpers. Every
// read is timed at debug level.
type ModbusClient struct {
	client *modbus.ModbusClient
	logger *zap.Logger
}

func (reader ModbusClient) timed(name string) func() {
	if !reader.logger.Core().Enabled(zap.DebugLevel) {
		return func() {}
	}
	start := time.Now()
	return func() {
		reader.logger.Sugar().Debugf("modbus [%s]: %d millis", name, time.Since(start).Milliseconds())
	}
}

// readString reads size bytes and cuts them at the first NUL.
func (reader ModbusClient) readString(address uint16, size uint16) (string, error) {
	defer reader.timed("ReadRawBytes")()
	bytes, err := reader.client.ReadRawBytes(address, size, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", err
	}
	if f := slices.Index(bytes, 0x00); f >= 0 {
		return string(bytes[:f]), nil
	}
	return string(bytes), nil
}

func (reader ModbusClient) readRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	defer reader.timed("ReadRegisters")()
	return reader.client.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
}

func applySFint16(number uint16, sf uint16) float64 {
	return float64(int16(number)) * math.Pow(10, float64(int16(sf)))
}

func applySFacc32(hi, lo uint16, sf uint16) float64 {
	return float64(uint32(hi)<<16|uint32(lo)) * math.Pow(10, float64(int16(sf)))
}
