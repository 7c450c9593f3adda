package subworker

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/types"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

type fakeWorker struct {
	added    []wire.AddSubworkerRequest
	finished []types.DataObjectId
	failNext bool
}

func (f *fakeWorker) AddSubworker(req wire.AddSubworkerRequest) (*types.Subworker, error) {
	if f.failNext {
		return nil, rpc.NewError(rpc.KindDuplicateId, "subworker %d already registered", req.Id)
	}
	f.added = append(f.added, req)
	return &types.Subworker{Id: req.Id, Resources: req.Resources}, nil
}

func (f *fakeWorker) FinishDataObject(id types.DataObjectId) error {
	f.finished = append(f.finished, id)
	return nil
}

func (f *fakeWorker) RemoveDataObject(types.DataObjectId) error { return nil }

func newSubworkerPipe(t *testing.T, worker WorkerHandle, workDir string) *rpc.Session {
	t.Helper()
	a, b := net.Pipe()
	client := rpc.NewSession(a)
	go Serve(b, worker, workDir)
	go client.Serve()
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRegisterCreatesPerSubworkerLogFile(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "subworkers", "logs"), 0o755))

	worker := &fakeWorker{}
	client := newSubworkerPipe(t, worker, workDir)

	err := client.Call(rpc.BootstrapCapRef, "Register", wire.AddSubworkerRequest{
		Id:        3,
		Resources: types.Resources{NCpus: 1},
	}, nil)
	require.NoError(t, err)
	require.Len(t, worker.added, 1)
	assert.Equal(t, types.SubworkerId(3), worker.added[0].Id)

	entries, err := os.ReadDir(filepath.Join(workDir, "subworkers", "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "expected one disambiguated log file per registered subworker")
	assert.True(t, strings.HasPrefix(entries[0].Name(), "subworker-3-"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".out"))
}

func TestSetDataObjectFinishedBeforeRegisterFails(t *testing.T) {
	worker := &fakeWorker{}
	client := newSubworkerPipe(t, worker, t.TempDir())

	err := client.Call(rpc.BootstrapCapRef, "SetDataObjectFinished", wire.SetDataObjectFinishedRequest{Id: 1}, nil)
	require.Error(t, err)
	rerr, ok := err.(*rpc.Error)
	require.True(t, ok)
	assert.Equal(t, rpc.KindTransportError, rerr.Kind)
	assert.Empty(t, worker.finished)
}

func TestRegisterThenSetDataObjectFinished(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "subworkers", "logs"), 0o755))

	worker := &fakeWorker{}
	client := newSubworkerPipe(t, worker, workDir)

	require.NoError(t, client.Call(rpc.BootstrapCapRef, "Register", wire.AddSubworkerRequest{Id: 1}, nil))
	require.NoError(t, client.Call(rpc.BootstrapCapRef, "SetDataObjectFinished", wire.SetDataObjectFinishedRequest{Id: 42}, nil))

	require.Len(t, worker.finished, 1)
	assert.Equal(t, types.DataObjectId(42), worker.finished[0])
}
