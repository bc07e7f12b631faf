package port

import (
	"context"

	"github.com/berfenger/meteremu/internal/core/domain"
)

// RPCHandler answers device RPC frames for transports that carry raw JSON.
type RPCHandler interface {
	// HandleFrame answers one request frame. dst is the source id of the
	// requester and is empty when the request did not identify itself.
	HandleFrame(ctx context.Context, frame []byte) (dst string, reply []byte, err error)
	// ComponentStatus returns the JSON status document of each component,
	// keyed by component name.
	ComponentStatus(data *domain.MeterData) (map[string][]byte, error)
}
