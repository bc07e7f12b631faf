package shelly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/berfenger/meteremu/internal/core/domain"
)

var ErrMalformedFrame = errors.New("malformed rpc frame")

// ParseRequest decodes an inbound request frame. A frame without a method is
// malformed.
func ParseRequest(frame []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return req, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if req.Method == "" {
		return req, fmt.Errorf("%w: missing method", ErrMalformedFrame)
	}
	return req, nil
}

// HandleFrame answers a raw request frame with an encoded response frame.
func (d *Dispatcher) HandleFrame(ctx context.Context, frame []byte) (string, []byte, error) {
	req, err := ParseRequest(frame)
	if err != nil {
		return "", nil, err
	}
	reply, err := json.Marshal(d.Handle(ctx, req))
	if err != nil {
		return "", nil, err
	}
	return req.Src, reply, nil
}

// ComponentStatus encodes the em:0 and emdata:0 status documents.
func (d *Dispatcher) ComponentStatus(data *domain.MeterData) (map[string][]byte, error) {
	em, err := json.Marshal(NewEMStatus(data))
	if err != nil {
		return nil, err
	}
	emdata, err := json.Marshal(NewEMDataStatus(data))
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		"em:0":     em,
		"emdata:0": emdata,
	}, nil
}
