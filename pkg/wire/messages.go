// Package wire defines the gob-encoded request/response payloads carried
// over pkg/rpc capability calls: the bootstrap registration messages,
// the worker-graph admission messages (add_task, add_dataobject,
// add_subworker...), and the NetworkEndpoint wire form workers advertise
// themselves with.
package wire

import (
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/types"
)

// Protocol version constants, compared bit-exact at registration.
const (
	ClientProtocolVersion uint32 = 1
	WorkerProtocolVersion uint32 = 1
)

// NetworkEndpoint is the wire form of a network address: a plain value
// type so that encoding it and decoding it back always yields a
// bit-identical result (spec invariant 7).
type NetworkEndpoint struct {
	Address string
	Port    uint16
}

// ToWorkerId converts the wire form into the domain WorkerId.
func (e NetworkEndpoint) ToWorkerId() types.WorkerId {
	return types.WorkerId{Address: e.Address, Port: e.Port}
}

// NetworkEndpointFromWorkerId converts a domain WorkerId into its wire
// form.
func NetworkEndpointFromWorkerId(w types.WorkerId) NetworkEndpoint {
	return NetworkEndpoint{Address: w.Address, Port: w.Port}
}

// RegisterAsClientRequest is the ServerBootstrap.register_as_client
// request payload.
type RegisterAsClientRequest struct {
	Version uint32
}

// RegisterAsClientResponse carries the minted ClientService capability.
type RegisterAsClientResponse struct {
	Service rpc.CapRef
}

// RegisterAsWorkerRequest is the ServerBootstrap.register_as_worker
// request payload. Control is the WorkerControl capability the worker
// exports in the same handshake (capability handoff in both
// directions).
type RegisterAsWorkerRequest struct {
	Version       uint32
	Control       rpc.CapRef
	ListenAddress NetworkEndpoint
}

// RegisterAsWorkerResponse carries the minted WorkerUpstream capability
// and the WorkerId the server assigned.
type RegisterAsWorkerResponse struct {
	Upstream rpc.CapRef
	WorkerId NetworkEndpoint
}

// InputRole distinguishes how a Task uses one of its input DataObjects.
// The core treats this opaquely; only the procedure collaborator
// interprets it.
type InputRole string

// Input pairs a DataObjectId with the role a Task uses it for.
type Input struct {
	DataObject types.DataObjectId
	Role       InputRole
}

// AddTaskRequest is the worker graph's add_task request payload.
type AddTaskRequest struct {
	Id              types.TaskId
	Inputs          []Input
	ProcedureKey    string
	ProcedureConfig []byte
}

// AddTaskResponse reports the task's status immediately after
// admission (Waiting or Ready, per the wait-set computation).
type AddTaskResponse struct {
	Status types.TaskStatus
}

// AddDataObjectRequest is the worker graph's add_dataobject request
// payload.
type AddDataObjectRequest struct {
	Id    types.DataObjectId
	State types.DataObjectState
	Type  types.DataObjectType
	Keep  types.KeepPolicy
	Size  *int64
	Label string
}

// AddSubworkerRequest is sent by a SubworkerUpstream on registration.
type AddSubworkerRequest struct {
	Id        types.SubworkerId
	Resources types.Resources
}

// SetDataObjectFinishedRequest reports a data object as Finished,
// sent by a subworker after it completes output materialization.
type SetDataObjectFinishedRequest struct {
	Id types.DataObjectId
}

// SubmitTaskRequest is the ClientService submission request. The
// client names its inputs by the DataObjectId the server previously
// minted for it in a SubmitDataObjectResponse; the server allocates
// the TaskId itself and forwards an AddTaskRequest to the placed
// worker.
type SubmitTaskRequest struct {
	Inputs          []Input
	ProcedureKey    string
	ProcedureConfig []byte
}

// SubmitTaskResponse reports the server-allocated TaskId and the
// placement worker accepted it onto.
type SubmitTaskResponse struct {
	Id     types.TaskId
	Worker NetworkEndpoint
}

// SubmitDataObjectRequest is the ClientService request to pre-declare a
// DataObject a subsequent SubmitTaskRequest can reference as an input.
type SubmitDataObjectRequest struct {
	State types.DataObjectState
	Type  types.DataObjectType
	Keep  types.KeepPolicy
	Size  *int64
	Label string
}

// SubmitDataObjectResponse reports the server-allocated DataObjectId
// and the worker it was placed on.
type SubmitDataObjectResponse struct {
	Id     types.DataObjectId
	Worker NetworkEndpoint
}
