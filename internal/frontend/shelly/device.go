package shelly

import (
	"github.com/berfenger/meteremu/internal/core/domain"
)

// Identifiers of the emulated Shelly Pro 3EM.
const (
	MODEL       = "SPEM-003CEBEU"
	GEN         = 2
	APP         = "Pro3EM"
	FW_VER      = "1.4.4-g6d2a586"
	FW_ID       = "20241011-114455/1.4.4-g6d2a586"
	DEVICE_NAME = "Shelly Pro 3EM Emulator"
	PROFILE     = "triphase"
)

type DeviceInfo struct {
	Name       string  `json:"name"`
	Id         string  `json:"id"`
	Mac        string  `json:"mac"`
	Slot       int     `json:"slot"`
	Model      string  `json:"model"`
	Gen        int     `json:"gen"`
	FwId       string  `json:"fw_id"`
	Ver        string  `json:"ver"`
	App        string  `json:"app"`
	Profile    string  `json:"profile"`
	AuthEn     bool    `json:"auth_en"`
	AuthDomain *string `json:"auth_domain"`
}

func NewDeviceInfo(identity domain.DeviceIdentity) DeviceInfo {
	return DeviceInfo{
		Name:    DEVICE_NAME,
		Id:      identity.DeviceID(),
		Mac:     identity.MAC,
		Slot:    0,
		Model:   MODEL,
		Gen:     GEN,
		FwId:    FW_ID,
		Ver:     FW_VER,
		App:     APP,
		Profile: PROFILE,
		AuthEn:  false,
	}
}

type EMConfig struct {
	Id                   int            `json:"id"`
	Name                 *string        `json:"name"`
	BlinkModeSelector    string         `json:"blink_mode_selector"`
	CTType               string         `json:"ct_type"`
	MonitorPhaseSequence bool           `json:"monitor_phase_sequence"`
	PhaseSelector        string         `json:"phase_selector"`
	Reverse              map[string]any `json:"reverse"`
}

type SysDeviceConfig struct {
	Mac          string  `json:"mac"`
	Name         string  `json:"name"`
	FwId         string  `json:"fw_id"`
	Profile      string  `json:"profile"`
	Discoverable bool    `json:"discoverable"`
	EcoMode      bool    `json:"eco_mode"`
	AddonType    *string `json:"addon_type"`
}

type SysConfig struct {
	Device SysDeviceConfig `json:"device"`
}

type DeviceConfig struct {
	EM     EMConfig       `json:"em:0"`
	EMData map[string]any `json:"emdata:0"`
	Sys    SysConfig      `json:"sys"`
}

func NewEMConfig() EMConfig {
	return EMConfig{
		Id:                   0,
		BlinkModeSelector:    "active_energy",
		CTType:               "120A",
		MonitorPhaseSequence: false,
		PhaseSelector:        "all",
		Reverse:              map[string]any{},
	}
}

func NewDeviceConfig(identity domain.DeviceIdentity) DeviceConfig {
	return DeviceConfig{
		EM:     NewEMConfig(),
		EMData: map[string]any{},
		Sys: SysConfig{
			Device: SysDeviceConfig{
				Mac:          identity.MAC,
				Name:         DEVICE_NAME,
				FwId:         FW_ID,
				Profile:      PROFILE,
				Discoverable: true,
				EcoMode:      false,
			},
		},
	}
}

type Components struct {
	Components []any `json:"components"`
	CfgRev     int   `json:"cfg_rev"`
	Offset     int   `json:"offset"`
	Total      int   `json:"total"`
}

func NewComponents() Components {
	return Components{Components: []any{}}
}
