package sunspec_modbus

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// ACMeterRegisterSource renders the current register map on every request.
type ACMeterRegisterSource func() []uint16

// ACMeterServer answers holding register reads of an emulated SunSpec meter.
// Every unit id is served.
type ACMeterServer struct {
	server *modbus.ModbusServer
	source ACMeterRegisterSource
	logger *zap.Logger
}

func CreateACMeterServer(host string, port uint, source ACMeterRegisterSource, logger *zap.Logger) (*ACMeterServer, error) {
	srv := &ACMeterServer{
		source: source,
		logger: logger,
	}
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout:    30 * time.Second,
		MaxClients: 10,
	}, srv)
	if err != nil {
		return nil, err
	}
	srv.server = server
	return srv, nil
}

func (s *ACMeterServer) Start() error {
	return s.server.Start()
}

func (s *ACMeterServer) Stop() error {
	return s.server.Stop()
}

func (s *ACMeterServer) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *ACMeterServer) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *ACMeterServer) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *ACMeterServer) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		return nil, modbus.ErrIllegalFunction
	}
	regs := s.source()
	start := int(req.Addr) - int(SUNSPEC_BASE_ADDR)
	end := start + int(req.Quantity)
	if start < 0 || end > len(regs) || req.Quantity == 0 {
		s.logger.Debug("modbus: read out of map", zap.Uint16("addr", req.Addr), zap.Uint16("quantity", req.Quantity))
		return nil, modbus.ErrIllegalDataAddress
	}
	res := make([]uint16, req.Quantity)
	copy(res, regs[start:end])
	return res, nil
}
