package shelly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
)

const ERR_CODE_METHOD_NOT_FOUND = -114

var ErrMethodNotFound = errors.New("method not found")

// Request is an inbound RPC frame.
type Request struct {
	Id     json.RawMessage `json:"id,omitempty"`
	Src    string          `json:"src,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is an outbound RPC frame. Exactly one of Result and Error is set.
type Response struct {
	Id     json.RawMessage `json:"id"`
	Src    string          `json:"src"`
	Dst    string          `json:"dst"`
	Result any             `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// Notification is pushed to identified peers without a request.
type Notification struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type NotifyStatusParams struct {
	Ts     float64      `json:"ts"`
	EM     EMStatus     `json:"em:0"`
	EMData EMDataStatus `json:"emdata:0"`
}

type MethodList struct {
	Methods []string `json:"methods"`
}

func MethodNotFound(method string) *RPCError {
	return &RPCError{
		Code:    ERR_CODE_METHOD_NOT_FOUND,
		Message: fmt.Sprintf("Method %s failed: Method not found!", method),
	}
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher answers RPC methods from the latest snapshot. It is safe for
// concurrent use.
type Dispatcher struct {
	identity domain.DeviceIdentity
	store    port.SnapshotReader
	methods  map[string]handlerFunc
	started  time.Time
	now      func() time.Time
}

func NewDispatcher(identity domain.DeviceIdentity, store port.SnapshotReader) *Dispatcher {
	d := &Dispatcher{
		identity: identity,
		store:    store,
		started:  time.Now(),
		now:      time.Now,
	}
	d.methods = map[string]handlerFunc{
		"Shelly.GetDeviceInfo": func(context.Context, json.RawMessage) (any, error) {
			return NewDeviceInfo(d.identity), nil
		},
		"Shelly.GetStatus": func(context.Context, json.RawMessage) (any, error) {
			return NewDeviceStatus(d.identity, d.store.Load()), nil
		},
		"Shelly.GetConfig": func(context.Context, json.RawMessage) (any, error) {
			return NewDeviceConfig(d.identity), nil
		},
		"Shelly.GetComponents": func(context.Context, json.RawMessage) (any, error) {
			return NewComponents(), nil
		},
		"Shelly.ListMethods": func(context.Context, json.RawMessage) (any, error) {
			return MethodList{Methods: d.Methods()}, nil
		},
		"Sys.GetStatus": func(context.Context, json.RawMessage) (any, error) {
			return NewSysFullStatus(d.identity, d.started, d.now()), nil
		},
		"EM.GetStatus": func(context.Context, json.RawMessage) (any, error) {
			return NewEMStatus(d.store.Load()), nil
		},
		"EM.GetConfig": func(context.Context, json.RawMessage) (any, error) {
			return NewEMConfig(), nil
		},
		"EMData.GetStatus": func(context.Context, json.RawMessage) (any, error) {
			return NewEMDataStatus(d.store.Load()), nil
		},
	}
	return d
}

func (d *Dispatcher) DeviceID() string {
	return d.identity.DeviceID()
}

// Methods returns the supported method names in lexical order.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call runs a method and returns its bare result.
func (d *Dispatcher) Call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	fn, ok := d.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
	return fn(ctx, params)
}

// Handle answers a request frame with a response frame addressed to its
// source.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	resp := Response{
		Id:  req.Id,
		Src: d.DeviceID(),
		Dst: req.Src,
	}
	result, err := d.Call(ctx, req.Method, req.Params)
	if err != nil {
		if errors.Is(err, ErrMethodNotFound) {
			resp.Error = MethodNotFound(req.Method)
		} else {
			resp.Error = &RPCError{Code: -1, Message: err.Error()}
		}
		return resp
	}
	resp.Result = result
	return resp
}

// NotifyStatus builds the status notification for a peer.
func (d *Dispatcher) NotifyStatus(dst string, data *domain.MeterData) Notification {
	ts := d.now()
	if data != nil && !data.UpdatedAt.IsZero() {
		ts = data.UpdatedAt
	}
	return Notification{
		Src:    d.DeviceID(),
		Dst:    dst,
		Method: "NotifyStatus",
		Params: NotifyStatusParams{
			Ts:     round(float64(ts.UnixMilli())/1000, 2),
			EM:     NewEMStatus(data),
			EMData: NewEMDataStatus(data),
		},
	}
}
