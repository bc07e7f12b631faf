package sunspec_modbus

import (
	"github.com/simonvetter/modbus"
)

const (
	SUNSPEC_BASE_ADDR       uint16 = 40000
	SUNSPEC_WK_COMMON              = 1
	SUNSPEC_WK_AC_METER_MIN        = 201
	SUNSPEC_WK_AC_METER_MAX        = 204
	SUNSPEC_WK_AC_METER_WYE        = 203
	SUNSPEC_WK_END                 = 0xFFFF
)

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block *modbusBlock) isEndBlock() bool {
	return block.id == SUNSPEC_WK_END
}

func surveyModbusBlock(client *modbus.ModbusClient, baseAddr uint16) (*modbusBlock, error) {
	wellKnownValue, err := client.ReadRegister(baseAddr, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	length, err := client.ReadRegister(baseAddr+1, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &modbusBlock{
		id:       wellKnownValue,
		length:   length,
		baseAddr: baseAddr,
	}, nil
}
