package envoy

import (
	"encoding/json"
)

const (
	MEASUREMENT_INVERTERS         = "inverters"
	MEASUREMENT_PRODUCTION        = "production"
	MEASUREMENT_TOTAL_CONSUMPTION = "total-consumption"
	MEASUREMENT_NET_CONSUMPTION   = "net-consumption"
)

// ProductionResponse is the document served at /production.json?details=1.
type ProductionResponse struct {
	Production  MeasurementList `json:"production"`
	Consumption MeasurementList `json:"consumption"`
}

type Measurement struct {
	Type            string    `json:"type"`
	MeasurementType string    `json:"measurementType,omitempty"`
	ActiveCount     int       `json:"activeCount"`
	ReadingTime     int64     `json:"readingTime"`
	WNow            FlexFloat `json:"wNow"`
	WhLifetime      FlexFloat `json:"whLifetime"`
	RmsCurrent      FlexFloat `json:"rmsCurrent,omitempty"`
	RmsVoltage      FlexFloat `json:"rmsVoltage,omitempty"`
	ReactPwr        FlexFloat `json:"reactPwr,omitempty"`
	ApprntPwr       FlexFloat `json:"apprntPwr,omitempty"`
	PwrFactor       FlexFloat `json:"pwrFactor,omitempty"`
	Lines           LineList  `json:"lines,omitempty"`
}

type Line struct {
	WNow       FlexFloat `json:"wNow"`
	WhLifetime FlexFloat `json:"whLifetime"`
	RmsCurrent FlexFloat `json:"rmsCurrent"`
	RmsVoltage FlexFloat `json:"rmsVoltage"`
	ReactPwr   FlexFloat `json:"reactPwr"`
	ApprntPwr  FlexFloat `json:"apprntPwr"`
	PwrFactor  FlexFloat `json:"pwrFactor"`
}

// Is reports whether the entry carries the given measurement type, either as
// measurementType or as type.
func (m Measurement) Is(kind string) bool {
	return m.MeasurementType == kind || m.Type == kind
}

// FlexFloat decodes any JSON number. Other values decode to 0.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*f = 0
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// MeasurementList decodes an array of measurements. Entries that are not
// objects decode to zero values so line positions are kept. A value that is
// not an array decodes to an empty list.
type MeasurementList []Measurement

func (l *MeasurementList) UnmarshalJSON(b []byte) error {
	*l = decodeObjects[Measurement](b)
	return nil
}

// LineList behaves like MeasurementList for per-phase lines.
type LineList []Line

func (l *LineList) UnmarshalJSON(b []byte) error {
	*l = decodeObjects[Line](b)
	return nil
}

func decodeObjects[T any](b []byte) []T {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		// a type mismatch leaves the offending field zero and keeps the rest
		var v T
		_ = json.Unmarshal(r, &v)
		out = append(out, v)
	}
	return out
}
