package worker

import (
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

// Control is the WorkerControl capability: the commands surface the
// server (and, for worker-to-worker connections, a peer) holds to
// reach into a worker's State. Spec §6 marks the command set itself
// "out of core in detail"; this implements placing task and data-object
// definitions onto a worker (AddTask, AddDataObject), marking a data
// object Finished (FinishDataObject), and a heartbeat-style no-op
// (Ping) the bootstrap gate and peer endpoint can probe a connection
// with.
type Control struct {
	state *State
}

// NewControl builds the WorkerControl capability backed by state.
func NewControl(state *State) *Control {
	return &Control{state: state}
}

var _ rpc.Object = (*Control)(nil)

// Dispatch implements rpc.Object.
func (c *Control) Dispatch(method string, payload []byte) ([]byte, error) {
	switch method {
	case "Ping":
		return nil, nil

	case "AddTask":
		var req wire.AddTaskRequest
		if err := rpc.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		task, err := c.state.AddTask(req)
		if err != nil {
			return nil, asRPCError(err)
		}
		return rpc.EncodePayload(wire.AddTaskResponse{Status: task.Status})

	case "AddDataObject":
		var req wire.AddDataObjectRequest
		if err := rpc.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		if _, err := c.state.AddDataObject(req); err != nil {
			return nil, asRPCError(err)
		}
		return nil, nil

	case "FinishDataObject":
		var req wire.SetDataObjectFinishedRequest
		if err := rpc.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		if err := c.state.FinishDataObject(req.Id); err != nil {
			return nil, asRPCError(err)
		}
		return nil, nil

	default:
		return nil, rpc.NewError(rpc.KindUnknownMethod, "WorkerControl has no method %s", method)
	}
}

// asRPCError normalizes a graph-level error (which may be a plain
// error like graph.ErrUnknownDataObject, not always an *rpc.Error) into
// something Dispatch's caller renders as a proper RPC error reply.
func asRPCError(err error) error {
	if rerr, ok := err.(*rpc.Error); ok {
		return rerr
	}
	return rpc.Wrap(rpc.KindTransportError, err, "worker control")
}
