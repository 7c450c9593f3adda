package server

import (
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

// ClientService is the capability register_as_client hands back: the
// submission surface spec §4.6 describes for admitting new tasks and
// data objects into a worker's graph from outside the cluster. Spec
// §6 leaves placement policy out of core; this forwards every
// submission to whichever worker Registry.PlaceAny currently picks.
type ClientService struct {
	registry *Registry
}

var _ rpc.Object = (*ClientService)(nil)

// NewClientService builds the ClientService capability.
func NewClientService(registry *Registry) *ClientService {
	return &ClientService{registry: registry}
}

// Dispatch implements rpc.Object.
func (c *ClientService) Dispatch(method string, payload []byte) ([]byte, error) {
	switch method {
	case "SubmitDataObject":
		var req wire.SubmitDataObjectRequest
		if err := rpc.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		return c.submitDataObject(req)

	case "SubmitTask":
		var req wire.SubmitTaskRequest
		if err := rpc.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		return c.submitTask(req)

	default:
		return nil, rpc.NewError(rpc.KindUnknownMethod, "ClientService has no method %s", method)
	}
}

func (c *ClientService) submitDataObject(req wire.SubmitDataObjectRequest) ([]byte, error) {
	workerID, session, control, err := c.registry.PlaceAny()
	if err != nil {
		return nil, err
	}

	id := c.registry.NextDataObjectID()
	addReq := wire.AddDataObjectRequest{
		Id:    id,
		State: req.State,
		Type:  req.Type,
		Keep:  req.Keep,
		Size:  req.Size,
		Label: req.Label,
	}
	if err := session.Call(control, "AddDataObject", addReq, nil); err != nil {
		return nil, err
	}

	return rpc.EncodePayload(wire.SubmitDataObjectResponse{
		Id:     id,
		Worker: wire.NetworkEndpointFromWorkerId(workerID),
	})
}

func (c *ClientService) submitTask(req wire.SubmitTaskRequest) ([]byte, error) {
	workerID, session, control, err := c.registry.PlaceAny()
	if err != nil {
		return nil, err
	}

	id := c.registry.NextTaskID()
	addReq := wire.AddTaskRequest{
		Id:              id,
		Inputs:          req.Inputs,
		ProcedureKey:    req.ProcedureKey,
		ProcedureConfig: req.ProcedureConfig,
	}
	var addResp wire.AddTaskResponse
	if err := session.Call(control, "AddTask", addReq, &addResp); err != nil {
		return nil, err
	}

	return rpc.EncodePayload(wire.SubmitTaskResponse{
		Id:     id,
		Worker: wire.NetworkEndpointFromWorkerId(workerID),
	})
}
