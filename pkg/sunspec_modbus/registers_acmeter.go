package sunspec_modbus

import (
	"math"
)

// Register layout of a SunSpec wye-connected three phase meter (common model
// 1 followed by model 203 and the end marker).
const (
	COMMON_MODEL_ADDR  = SUNSPEC_BASE_ADDR + 2
	COMMON_MODEL_LEN   = 66
	AC_METER_ADDR      = COMMON_MODEL_ADDR + 2 + COMMON_MODEL_LEN
	AC_METER_MODEL_LEN = 105
	END_MODEL_ADDR     = AC_METER_ADDR + 2 + AC_METER_MODEL_LEN
	// registers from SUNSPEC_BASE_ADDR up to and including the end model
	METER_REGISTER_COUNT = END_MODEL_ADDR + 2 - SUNSPEC_BASE_ADDR

	SF_CURRENT   int16 = -2
	SF_VOLTAGE   int16 = -1
	SF_FREQUENCY int16 = -2
	SF_POWER     int16 = 0
	SF_PF        int16 = -1
	SF_ENERGY    int16 = 0

	// SunSpec marker for an unimplemented int16 point
	NOT_IMPLEMENTED_INT16 uint16 = 0x8000
)

type registerWriter struct {
	regs []uint16
}

func (w *registerWriter) at(addr uint16) int {
	return int(addr - SUNSPEC_BASE_ADDR)
}

func (w *registerWriter) putUint16(addr uint16, v uint16) {
	w.regs[w.at(addr)] = v
}

func (w *registerWriter) putInt16(addr uint16, v int16) {
	w.regs[w.at(addr)] = uint16(v)
}

// putAcc32 stores a 32 bit accumulator, high word first.
func (w *registerWriter) putAcc32(addr uint16, v uint32) {
	w.regs[w.at(addr)] = uint16(v >> 16)
	w.regs[w.at(addr)+1] = uint16(v)
}

// putString stores s as big endian byte pairs, zero padded to n registers.
func (w *registerWriter) putString(addr uint16, n int, s string) {
	b := []byte(s)
	if len(b) > n*2 {
		b = b[:n*2]
	}
	for i := 0; i < n; i++ {
		var hi, lo byte
		if 2*i < len(b) {
			hi = b[2*i]
		}
		if 2*i+1 < len(b) {
			lo = b[2*i+1]
		}
		w.regs[w.at(addr)+i] = uint16(hi)<<8 | uint16(lo)
	}
}

// scaled converts v to an int16 register value under scale factor sf,
// saturating at the int16 range.
func scaled(v float64, sf int16) int16 {
	r := math.Round(v / math.Pow(10, float64(sf)))
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < -math.MaxInt16 {
		return -math.MaxInt16
	}
	return int16(r)
}

func scaledAcc32(v float64, sf int16) uint32 {
	r := math.Round(v / math.Pow(10, float64(sf)))
	if r <= 0 {
		return 0
	}
	if r > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(r)
}

// EncodeACMeter renders the full meter register map, starting at
// SUNSPEC_BASE_ADDR. The result is a pure function of its inputs.
func EncodeACMeter(info ACMeterInfo, reading ACMeterReading) []uint16 {
	w := &registerWriter{regs: make([]uint16, METER_REGISTER_COUNT)}

	w.putString(SUNSPEC_BASE_ADDR, 2, "SunS")

	// common model
	w.putUint16(COMMON_MODEL_ADDR, SUNSPEC_WK_COMMON)
	w.putUint16(COMMON_MODEL_ADDR+1, COMMON_MODEL_LEN)
	w.putString(COMMON_MODEL_ADDR+2, 16, info.Manufacturer)
	w.putString(COMMON_MODEL_ADDR+18, 16, info.Model)
	w.putString(COMMON_MODEL_ADDR+34, 8, "")
	w.putString(COMMON_MODEL_ADDR+42, 8, info.Version)
	w.putString(COMMON_MODEL_ADDR+50, 16, info.Serial)
	w.putUint16(COMMON_MODEL_ADDR+66, 1)
	w.putUint16(COMMON_MODEL_ADDR+67, NOT_IMPLEMENTED_INT16)

	// meter model
	base := AC_METER_ADDR
	w.putUint16(base, SUNSPEC_WK_AC_METER_WYE)
	w.putUint16(base+1, AC_METER_MODEL_LEN)

	phases := reading.Phases
	var current, activePower, apparentPower, voltageSum, importedWh, exportedWh float64
	live := 0
	for _, p := range phases {
		current += p.Current
		activePower += p.ActivePower
		apparentPower += p.ApparentPower
		importedWh += p.ImportedWh
		exportedWh += p.ExportedWh
		if p.Voltage > 0 {
			voltageSum += p.Voltage
			live++
		}
	}
	voltage := 0.0
	if live > 0 {
		voltage = voltageSum / float64(live)
	}
	pf := 0.0
	if apparentPower != 0 {
		pf = activePower / apparentPower
	}

	// current
	w.putInt16(base+2, scaled(current, SF_CURRENT))
	for i, p := range phases {
		w.putInt16(base+3+uint16(i), scaled(p.Current, SF_CURRENT))
	}
	w.putInt16(base+6, SF_CURRENT)

	// voltage, line to line points are not measured
	w.putInt16(base+7, scaled(voltage, SF_VOLTAGE))
	for i, p := range phases {
		w.putInt16(base+8+uint16(i), scaled(p.Voltage, SF_VOLTAGE))
	}
	for i := uint16(0); i < 4; i++ {
		w.putUint16(base+11+i, NOT_IMPLEMENTED_INT16)
	}
	w.putInt16(base+15, SF_VOLTAGE)

	// frequency
	w.putInt16(base+16, scaled(reading.Frequency, SF_FREQUENCY))
	w.putInt16(base+17, SF_FREQUENCY)

	// active power
	w.putInt16(base+18, scaled(activePower, SF_POWER))
	for i, p := range phases {
		w.putInt16(base+19+uint16(i), scaled(p.ActivePower, SF_POWER))
	}
	w.putInt16(base+22, SF_POWER)

	// apparent power
	w.putInt16(base+23, scaled(apparentPower, SF_POWER))
	for i, p := range phases {
		w.putInt16(base+24+uint16(i), scaled(p.ApparentPower, SF_POWER))
	}
	w.putInt16(base+27, SF_POWER)

	// reactive power is not measured
	for i := uint16(0); i < 4; i++ {
		w.putUint16(base+28+i, NOT_IMPLEMENTED_INT16)
	}
	w.putInt16(base+32, SF_POWER)

	// power factor in percent
	w.putInt16(base+33, scaled(pf*100, SF_PF))
	for i, p := range phases {
		w.putInt16(base+34+uint16(i), scaled(p.PowerFactor*100, SF_PF))
	}
	w.putInt16(base+37, SF_PF)

	// real energy, exported then imported
	w.putAcc32(base+38, scaledAcc32(exportedWh, SF_ENERGY))
	for i, p := range phases {
		w.putAcc32(base+40+2*uint16(i), scaledAcc32(p.ExportedWh, SF_ENERGY))
	}
	w.putAcc32(base+46, scaledAcc32(importedWh, SF_ENERGY))
	for i, p := range phases {
		w.putAcc32(base+48+2*uint16(i), scaledAcc32(p.ImportedWh, SF_ENERGY))
	}
	w.putInt16(base+54, SF_ENERGY)

	// apparent and reactive energy counters stay zero, their scale factors
	// share the energy scale
	w.putInt16(base+71, SF_ENERGY)
	w.putInt16(base+104, SF_ENERGY)

	// events
	w.putUint16(base+105, 0)
	w.putUint16(base+106, 0)

	w.putUint16(END_MODEL_ADDR, SUNSPEC_WK_END)
	w.putUint16(END_MODEL_ADDR+1, 0)
	return w.regs
}
