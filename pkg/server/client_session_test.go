package server

import (
	"net"
	"testing"

	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/types"
	"github.com/taskgrid/taskgrid/pkg/worker"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

// newRegisteredWorker wires a real worker.State to a Registry over an
// in-memory pipe, bypassing the TCP handshake in worker.register so the
// test can drive ClientService against a genuinely placeable worker.
func newRegisteredWorker(t *testing.T) *Registry {
	t.Helper()
	a, b := net.Pipe()
	workerSession := rpc.NewSession(a)
	serverSession := rpc.NewSession(b)
	go workerSession.Serve()
	go serverSession.Serve()
	t.Cleanup(func() {
		workerSession.Close()
		serverSession.Close()
	})

	state := worker.New(t.TempDir(), types.Resources{NCpus: 1})
	control := worker.NewControl(state)
	controlRef := workerSession.Export(control)

	registry := NewRegistry()
	registry.RegisterWorker(types.WorkerId{Address: "127.0.0.1", Port: 9000}, serverSession, controlRef)
	return registry
}

func TestSubmitDataObjectAndTaskThroughClientService(t *testing.T) {
	registry := newRegisteredWorker(t)

	a, b := net.Pipe()
	client := rpc.NewSession(a)
	serverSide := rpc.NewSession(b)
	go client.Serve()
	go serverSide.Serve()
	t.Cleanup(func() {
		client.Close()
		serverSide.Close()
	})

	serviceRef := serverSide.Export(NewClientService(registry))

	var doResp wire.SubmitDataObjectResponse
	doReq := wire.SubmitDataObjectRequest{State: types.DataObjectFinished, Type: types.DataObjectBlob}
	if err := client.Call(serviceRef, "SubmitDataObject", doReq, &doResp); err != nil {
		t.Fatalf("submit data object: %v", err)
	}
	if doResp.Id == 0 {
		t.Fatal("expected a nonzero allocated DataObjectId")
	}

	var taskResp wire.SubmitTaskResponse
	taskReq := wire.SubmitTaskRequest{Inputs: []wire.Input{{DataObject: doResp.Id}}}
	if err := client.Call(serviceRef, "SubmitTask", taskReq, &taskResp); err != nil {
		t.Fatalf("submit task: %v", err)
	}
	if taskResp.Id == 0 {
		t.Fatal("expected a nonzero allocated TaskId")
	}
	if taskResp.Worker.Address != "127.0.0.1" || taskResp.Worker.Port != 9000 {
		t.Fatalf("expected placement to report the registered worker, got %+v", taskResp.Worker)
	}
}

func TestSubmitWithNoWorkersFails(t *testing.T) {
	registry := NewRegistry()

	a, b := net.Pipe()
	client := rpc.NewSession(a)
	serverSide := rpc.NewSession(b)
	go client.Serve()
	go serverSide.Serve()
	t.Cleanup(func() {
		client.Close()
		serverSide.Close()
	})

	serviceRef := serverSide.Export(NewClientService(registry))

	err := client.Call(serviceRef, "SubmitTask", wire.SubmitTaskRequest{}, nil)
	if err == nil {
		t.Fatal("expected submission to fail with no registered workers")
	}
}
