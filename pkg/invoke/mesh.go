package invoke

import (
	"context"
	"errors"
)

type meshInvoker interface {
	Invoke(ctx context.Context, appID, method string, body []byte) error
}

// MeshTransport delegates to the service-mesh sidecar.
type MeshTransport struct {
	sidecar meshInvoker
}

func NewMeshTransport(s meshInvoker) (*MeshTransport, error) {
	if s == nil {
		return nil, errors.New("sidecar is required")
	}
	return &MeshTransport{sidecar: s}, nil
}

func (t *MeshTransport) Name() string { return "mesh" }

func (t *MeshTransport) Send(ctx context.Context, participantID, method string, payload []byte) error {
	return t.sidecar.Invoke(ctx, participantID, method, payload)
}
