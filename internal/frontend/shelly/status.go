package shelly

import (
	"math"
	"time"

	"github.com/berfenger/meteremu/internal/core/domain"
)

// phaseSlots is the fixed phase count of the emulated device. Snapshots with
// fewer phases are padded with zeros up to it.
const phaseSlots = 3

type EMStatus struct {
	Id int `json:"id"`

	ACurrent   float64 `json:"a_current"`
	AVoltage   float64 `json:"a_voltage"`
	AActPower  float64 `json:"a_act_power"`
	AAprtPower float64 `json:"a_aprt_power"`
	APF        float64 `json:"a_pf"`
	AFreq      float64 `json:"a_freq"`

	BCurrent   float64 `json:"b_current"`
	BVoltage   float64 `json:"b_voltage"`
	BActPower  float64 `json:"b_act_power"`
	BAprtPower float64 `json:"b_aprt_power"`
	BPF        float64 `json:"b_pf"`
	BFreq      float64 `json:"b_freq"`

	CCurrent   float64 `json:"c_current"`
	CVoltage   float64 `json:"c_voltage"`
	CActPower  float64 `json:"c_act_power"`
	CAprtPower float64 `json:"c_aprt_power"`
	CPF        float64 `json:"c_pf"`
	CFreq      float64 `json:"c_freq"`

	NCurrent            float64  `json:"n_current"`
	TotalCurrent        float64  `json:"total_current"`
	TotalActPower       float64  `json:"total_act_power"`
	TotalAprtPower      float64  `json:"total_aprt_power"`
	UserCalibratedPhase []string `json:"user_calibrated_phase"`
}

type EMDataStatus struct {
	Id int `json:"id"`

	ATotalActEnergy    float64 `json:"a_total_act_energy"`
	ATotalActRetEnergy float64 `json:"a_total_act_ret_energy"`
	BTotalActEnergy    float64 `json:"b_total_act_energy"`
	BTotalActRetEnergy float64 `json:"b_total_act_ret_energy"`
	CTotalActEnergy    float64 `json:"c_total_act_energy"`
	CTotalActRetEnergy float64 `json:"c_total_act_ret_energy"`

	TotalAct    float64 `json:"total_act"`
	TotalActRet float64 `json:"total_act_ret"`
}

type SysStatus struct {
	Mac              string         `json:"mac"`
	RestartRequired  bool           `json:"restart_required"`
	AvailableUpdates map[string]any `json:"available_updates"`
}

// SysFullStatus is answered by Sys.GetStatus.
type SysFullStatus struct {
	SysStatus
	Time     string `json:"time"`
	Unixtime int64  `json:"unixtime"`
	Uptime   int64  `json:"uptime"`
}

type DeviceStatus struct {
	Sys    SysStatus    `json:"sys"`
	EM     EMStatus     `json:"em:0"`
	EMData EMDataStatus `json:"emdata:0"`
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	r := math.Round(v*p) / p
	if r == 0 {
		// avoid -0
		return 0
	}
	return r
}

// NewEMStatus formats the real-time measurements of a snapshot.
func NewEMStatus(data *domain.MeterData) EMStatus {
	var phases [phaseSlots]domain.PhaseData
	for i := range phases {
		phases[i] = data.Phase(i)
	}
	a, b, c := phases[0], phases[1], phases[2]
	status := EMStatus{
		Id: 0,

		ACurrent:   round(a.Current, 3),
		AVoltage:   round(a.Voltage, 1),
		AActPower:  round(a.ActPower, 1),
		AAprtPower: round(a.AprtPower, 1),
		APF:        round(a.PF, 2),
		AFreq:      round(a.Freq, 1),

		BCurrent:   round(b.Current, 3),
		BVoltage:   round(b.Voltage, 1),
		BActPower:  round(b.ActPower, 1),
		BAprtPower: round(b.AprtPower, 1),
		BPF:        round(b.PF, 2),
		BFreq:      round(b.Freq, 1),

		CCurrent:   round(c.Current, 3),
		CVoltage:   round(c.Voltage, 1),
		CActPower:  round(c.ActPower, 1),
		CAprtPower: round(c.AprtPower, 1),
		CPF:        round(c.PF, 2),
		CFreq:      round(c.Freq, 1),

		NCurrent:            0,
		UserCalibratedPhase: []string{},
	}
	if data != nil {
		status.TotalCurrent = round(data.TotalCurrent, 3)
		status.TotalActPower = round(data.TotalActPower, 1)
		status.TotalAprtPower = round(data.TotalAprtPower, 1)
	}
	return status
}

// NewEMDataStatus formats the energy counters of a snapshot.
func NewEMDataStatus(data *domain.MeterData) EMDataStatus {
	a, b, c := data.Phase(0), data.Phase(1), data.Phase(2)
	status := EMDataStatus{
		Id:                 0,
		ATotalActEnergy:    round(a.TotalActEnergy, 2),
		ATotalActRetEnergy: round(a.TotalActRetEnergy, 2),
		BTotalActEnergy:    round(b.TotalActEnergy, 2),
		BTotalActRetEnergy: round(b.TotalActRetEnergy, 2),
		CTotalActEnergy:    round(c.TotalActEnergy, 2),
		CTotalActRetEnergy: round(c.TotalActRetEnergy, 2),
	}
	if data != nil {
		status.TotalAct = round(data.TotalActEnergy, 2)
		status.TotalActRet = round(data.TotalActRetEnergy, 2)
	}
	return status
}

func NewSysStatus(identity domain.DeviceIdentity) SysStatus {
	return SysStatus{
		Mac:              identity.MAC,
		RestartRequired:  false,
		AvailableUpdates: map[string]any{},
	}
}

func NewSysFullStatus(identity domain.DeviceIdentity, started, now time.Time) SysFullStatus {
	return SysFullStatus{
		SysStatus: NewSysStatus(identity),
		Time:      now.Format("15:04"),
		Unixtime:  now.Unix(),
		Uptime:    int64(now.Sub(started).Seconds()),
	}
}

func NewDeviceStatus(identity domain.DeviceIdentity, data *domain.MeterData) DeviceStatus {
	return DeviceStatus{
		Sys:    NewSysStatus(identity),
		EM:     NewEMStatus(data),
		EMData: NewEMDataStatus(data),
	}
}
