package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgrid/taskgrid/pkg/notify"
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/types"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

func newTestGraph() *Graph {
	return New(notify.NewTable())
}

// TestReadyInvariant covers invariant 3: t.status = Ready iff every
// input is Finished.
func TestReadyInvariant(t *testing.T) {
	g := newTestGraph()
	mustAddDataObject(t, g, 1, types.DataObjectFinished)
	mustAddDataObject(t, g, 2, types.DataObjectUnfinished)

	task, err := g.AddTask(wire.AddTaskRequest{
		Id:     10,
		Inputs: []wire.Input{{DataObject: 1}, {DataObject: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.TaskWaiting, task.Status, "expected Waiting with an unfinished input")

	require.NoError(t, g.FinishDataObject(2))
	task, _ = g.Task(10)
	assert.Equal(t, types.TaskReady, task.Status, "expected Ready once all inputs finished")
	assert.True(t, task.Ready(), "Task.Ready() must agree with Status")
}

// TestAddTaskImmediateReady covers invariant 4 / scenario S5: a task
// whose inputs are all already Finished is Ready before AddTask returns.
func TestAddTaskImmediateReady(t *testing.T) {
	g := newTestGraph()
	mustAddDataObject(t, g, 1, types.DataObjectFinished)

	task, err := g.AddTask(wire.AddTaskRequest{Id: 1, Inputs: []wire.Input{{DataObject: 1}}})
	require.NoError(t, err)
	assert.Equal(t, types.TaskReady, task.Status, "expected immediate Ready")
}

// TestScenarioS4 exercises the worked scenario verbatim.
func TestScenarioS4(t *testing.T) {
	g := newTestGraph()
	invoked := 0
	g.SetScheduler(func() { invoked++ })

	mustAddDataObject(t, g, 1, types.DataObjectFinished)   // A
	mustAddDataObject(t, g, 2, types.DataObjectUnfinished) // B

	task, err := g.AddTask(wire.AddTaskRequest{Id: 1, Inputs: []wire.Input{{DataObject: 1}, {DataObject: 2}}})
	require.NoError(t, err)
	assert.Equal(t, types.TaskWaiting, task.Status, "expected Waiting after submit")

	require.NoError(t, g.FinishDataObject(2), "finish B")
	task, _ = g.Task(1)
	assert.Equal(t, types.TaskReady, task.Status, "expected Ready once B finishes")
	assert.NotZero(t, invoked, "plan_scheduling must be invoked when the ready set widens")
}

// TestMakeSubworkerIdMonotone covers invariant 5.
func TestMakeSubworkerIdMonotone(t *testing.T) {
	g := newTestGraph()
	var last types.SubworkerId
	for i := 0; i < 5; i++ {
		id := g.MakeSubworkerId()
		assert.Greater(t, id, last, "subworker ids must strictly increase")
		last = id
	}
}

// TestScenarioS6 covers the duplicate-subworker-id rejection.
func TestScenarioS6(t *testing.T) {
	g := newTestGraph()
	_, err := g.AddSubworker(wire.AddSubworkerRequest{Id: 7})
	require.NoError(t, err, "add subworker 7")
	_, err = g.AddSubworker(wire.AddSubworkerRequest{Id: 8})
	require.NoError(t, err, "add subworker 8")

	_, err = g.AddSubworker(wire.AddSubworkerRequest{Id: 7})
	require.Error(t, err, "expected duplicate subworker id to fail")
	rerr, ok := err.(*rpc.Error)
	require.True(t, ok, "expected *rpc.Error, got %T", err)
	assert.Equal(t, rpc.KindDuplicateId, rerr.Kind)

	_, ok = g.Subworker(7)
	assert.True(t, ok, "subworker 7 must still be present")
	_, ok = g.Subworker(8)
	assert.True(t, ok, "subworker 8 must still be present")
}

// TestAddDataObjectDuplicateId covers invariant 8: a repeat add for the
// same id fails and does not replace the original entry.
func TestAddDataObjectDuplicateId(t *testing.T) {
	g := newTestGraph()
	first := mustAddDataObject(t, g, 1, types.DataObjectUnfinished)

	_, err := g.AddDataObject(wire.AddDataObjectRequest{Id: 1, State: types.DataObjectFinished})
	require.Error(t, err, "expected duplicate add_dataobject to fail")
	rerr, ok := err.(*rpc.Error)
	require.True(t, ok, "expected *rpc.Error, got %T", err)
	assert.Equal(t, rpc.KindDuplicateId, rerr.Kind)

	got, ok := g.DataObject(1)
	require.True(t, ok, "original data object must still be present")
	assert.Same(t, first, got, "duplicate add must not replace the original entry")
	assert.Equal(t, types.DataObjectUnfinished, got.State)
}

func TestAddTaskUnknownInput(t *testing.T) {
	g := newTestGraph()
	_, err := g.AddTask(wire.AddTaskRequest{Id: 1, Inputs: []wire.Input{{DataObject: 99}}})
	assert.ErrorIs(t, err, ErrUnknownDataObject)
}

func mustAddDataObject(t *testing.T, g *Graph, id types.DataObjectId, state types.DataObjectState) *types.DataObject {
	t.Helper()
	obj, err := g.AddDataObject(wire.AddDataObjectRequest{Id: id, State: state})
	require.NoError(t, err, "add data object %d", id)
	return obj
}
