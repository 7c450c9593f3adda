package server

import (
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/types"
)

// WorkerUpstream is the capability a registered worker calls to report
// itself alive. It is the server-side mirror of pkg/subworker.Upstream:
// a worker plays the same "report up to whoever registered me" role
// toward the server that a subworker plays toward its worker.
type WorkerUpstream struct {
	registry *Registry
	id       types.WorkerId
}

var _ rpc.Object = (*WorkerUpstream)(nil)

// NewWorkerUpstream builds the WorkerUpstream capability for a worker
// already recorded in registry under id.
func NewWorkerUpstream(registry *Registry, id types.WorkerId) *WorkerUpstream {
	return &WorkerUpstream{registry: registry, id: id}
}

// Dispatch implements rpc.Object.
func (u *WorkerUpstream) Dispatch(method string, payload []byte) ([]byte, error) {
	switch method {
	case "Heartbeat":
		u.registry.Heartbeat(u.id)
		return nil, nil

	default:
		return nil, rpc.NewError(rpc.KindUnknownMethod, "WorkerUpstream has no method %s", method)
	}
}
