// Package graph implements the worker's in-memory entity store: tasks,
// data objects, and subworkers, plus the wait-set computation that
// decides when a task enters the ready set. Graph is plain data with no
// locking of its own; the single-threaded guarantee comes from
// pkg/worker.State, the only caller that ever touches a Graph.
package graph

import (
	"errors"
	"time"

	"github.com/taskgrid/taskgrid/pkg/metrics"
	"github.com/taskgrid/taskgrid/pkg/notify"
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/types"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

// ErrUnknownDataObject is returned when a task references an input
// DataObjectId that has not been added to the graph yet. The spec's
// no-cycles-by-construction invariant means this should never happen
// for a well-behaved client, but the graph still rejects it rather than
// assuming.
var ErrUnknownDataObject = errors.New("unknown data object")

// ErrUnknownTask is returned when an operation names a TaskId the
// graph has no record of.
var ErrUnknownTask = errors.New("unknown task")

// Graph owns tasks, data objects, and subworkers for a single worker
// process, plus the monotone subworker id counter.
type Graph struct {
	tasks       map[types.TaskId]*types.Task
	dataObjects map[types.DataObjectId]*types.DataObject
	subworkers  map[types.SubworkerId]*types.Subworker

	nextSubworkerId uint64

	notify    *notify.Table
	scheduler func()
}

// New creates an empty Graph. notifyTable may be shared with other
// worker components that want to observe task/data-object transitions.
func New(notifyTable *notify.Table) *Graph {
	return &Graph{
		tasks:       make(map[types.TaskId]*types.Task),
		dataObjects: make(map[types.DataObjectId]*types.DataObject),
		subworkers:  make(map[types.SubworkerId]*types.Subworker),
		notify:      notifyTable,
		scheduler:   func() {},
	}
}

// SetScheduler installs the plan_scheduling collaborator, invoked after
// every state change that could widen the ready set. The zero value is
// a no-op so a Graph can be constructed before the scheduler exists.
func (g *Graph) SetScheduler(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	g.scheduler = fn
}

func (g *Graph) planScheduling() {
	metrics.PlanSchedulingInvocations.Inc()
	g.scheduler()
}

// DataObject looks up a data object by id.
func (g *Graph) DataObject(id types.DataObjectId) (*types.DataObject, bool) {
	obj, ok := g.dataObjects[id]
	return obj, ok
}

// Task looks up a task by id.
func (g *Graph) Task(id types.TaskId) (*types.Task, bool) {
	task, ok := g.tasks[id]
	return task, ok
}

// Subworker looks up a subworker by id.
func (g *Graph) Subworker(id types.SubworkerId) (*types.Subworker, bool) {
	sub, ok := g.subworkers[id]
	return sub, ok
}

// AddDataObject inserts a new data object. The id must be fresh; a
// repeat is rejected with KindDuplicateId and the existing entry is
// left untouched.
func (g *Graph) AddDataObject(req wire.AddDataObjectRequest) (*types.DataObject, error) {
	if _, exists := g.dataObjects[req.Id]; exists {
		return nil, rpc.NewError(rpc.KindDuplicateId, "data object %d already exists", req.Id)
	}

	obj := &types.DataObject{
		Id:        req.Id,
		State:     req.State,
		Type:      req.Type,
		Keep:      req.Keep,
		Size:      req.Size,
		Label:     req.Label,
		CreatedAt: time.Now(),
	}
	g.dataObjects[req.Id] = obj
	metrics.DataObjectsTotal.WithLabelValues(string(obj.State)).Inc()
	return obj, nil
}

// AddTask inserts a new task, computing its wait-set from the finish
// state of its inputs. A task whose wait-set is already empty is
// immediately observed as Ready before this call returns (invariant 4),
// and the scheduler collaborator is invoked.
func (g *Graph) AddTask(req wire.AddTaskRequest) (*types.Task, error) {
	wait := make(map[types.DataObjectId]struct{})
	for _, in := range req.Inputs {
		obj, ok := g.dataObjects[in.DataObject]
		if !ok {
			return nil, ErrUnknownDataObject
		}
		if obj.State != types.DataObjectFinished {
			wait[in.DataObject] = struct{}{}
			g.notify.Register(in.DataObject, req.Id)
		}
	}

	inputs := make([]types.DataObjectId, len(req.Inputs))
	for i, in := range req.Inputs {
		inputs[i] = in.DataObject
	}

	status := types.TaskWaiting
	task := &types.Task{
		Id:              req.Id,
		Inputs:          inputs,
		Wait:            wait,
		ProcedureKey:    req.ProcedureKey,
		ProcedureConfig: req.ProcedureConfig,
		Status:          status,
		CreatedAt:       time.Now(),
	}
	g.tasks[req.Id] = task
	metrics.TasksTotal.WithLabelValues(string(status)).Inc()
	metrics.TasksAdmittedTotal.Inc()

	if len(wait) == 0 {
		g.markReady(task)
	}

	return task, nil
}

// AddSubworker inserts a new subworker, keyed by id. A repeat id fails
// with KindDuplicateId (spec scenario S6).
func (g *Graph) AddSubworker(req wire.AddSubworkerRequest) (*types.Subworker, error) {
	if _, exists := g.subworkers[req.Id]; exists {
		return nil, rpc.NewError(rpc.KindDuplicateId, "subworker %d already registered", req.Id)
	}
	sub := &types.Subworker{
		Id:           req.Id,
		Resources:    req.Resources,
		RegisteredAt: time.Now(),
	}
	g.subworkers[req.Id] = sub
	metrics.SubworkersTotal.Inc()
	return sub, nil
}

// MakeSubworkerId allocates the next subworker id from the graph's
// monotone counter. Ids are strictly increasing and never reused within
// the worker process's lifetime (invariant 5).
func (g *Graph) MakeSubworkerId() types.SubworkerId {
	g.nextSubworkerId++
	return types.SubworkerId(g.nextSubworkerId)
}

// SetTaskAsReady forces task into the Ready status and invokes the
// scheduler, independent of wait-set state. Used by callers that have
// already established the wait-set is empty through some other path.
func (g *Graph) SetTaskAsReady(id types.TaskId) error {
	task, ok := g.tasks[id]
	if !ok {
		return ErrUnknownTask
	}
	g.markReady(task)
	return nil
}

func (g *Graph) markReady(task *types.Task) {
	if task.Status != types.TaskWaiting {
		return
	}
	metrics.TasksTotal.WithLabelValues(string(task.Status)).Dec()
	task.Status = types.TaskReady
	metrics.TasksTotal.WithLabelValues(string(task.Status)).Inc()
	metrics.TasksReadyTotal.Inc()
	g.notify.PublishTaskEvent(notify.EventTaskReady, task.Id, "")
	g.planScheduling()
}

// FinishDataObject transitions obj to Finished and wakes every task
// waiting on it, admitting any whose wait-set becomes empty into the
// ready set (spec scenario S4).
func (g *Graph) FinishDataObject(id types.DataObjectId) error {
	obj, ok := g.dataObjects[id]
	if !ok {
		return ErrUnknownDataObject
	}
	if !obj.State.CanTransitionTo(types.DataObjectFinished) {
		return nil
	}

	metrics.DataObjectsTotal.WithLabelValues(string(obj.State)).Dec()
	obj.State = types.DataObjectFinished
	metrics.DataObjectsTotal.WithLabelValues(string(obj.State)).Inc()

	for _, taskID := range g.notify.Finish(id) {
		task, ok := g.tasks[taskID]
		if !ok {
			continue
		}
		delete(task.Wait, id)
		if len(task.Wait) == 0 {
			g.markReady(task)
		}
	}
	return nil
}

// RemoveDataObject transitions obj to the terminal Removed state and
// drops any remaining interest relation without waking waiters (a
// Removed object never satisfies a wait-set).
func (g *Graph) RemoveDataObject(id types.DataObjectId) error {
	obj, ok := g.dataObjects[id]
	if !ok {
		return ErrUnknownDataObject
	}
	if !obj.State.CanTransitionTo(types.DataObjectRemoved) {
		return rpc.NewError(rpc.KindTransportError, "data object %d already removed", id)
	}

	metrics.DataObjectsTotal.WithLabelValues(string(obj.State)).Dec()
	obj.State = types.DataObjectRemoved
	metrics.DataObjectsTotal.WithLabelValues(string(obj.State)).Inc()
	g.notify.Remove(id)
	return nil
}

// SetTaskFinished transitions task to Finished or Failed, stamping
// FinishedAt for the (external) keep-policy sweep to read later.
func (g *Graph) SetTaskFinished(id types.TaskId, failed bool) error {
	task, ok := g.tasks[id]
	if !ok {
		return ErrUnknownTask
	}
	next := types.TaskFinished
	if failed {
		next = types.TaskFailed
	}
	if !task.Status.CanTransitionTo(next) {
		return rpc.NewError(rpc.KindTransportError, "task %d cannot transition from %s to %s", id, task.Status, next)
	}

	metrics.TasksTotal.WithLabelValues(string(task.Status)).Dec()
	task.Status = next
	metrics.TasksTotal.WithLabelValues(string(task.Status)).Inc()
	now := time.Now()
	task.FinishedAt = &now

	evType := notify.EventTaskFinished
	if failed {
		evType = notify.EventTaskFailed
	}
	g.notify.PublishTaskEvent(evType, id, "")
	return nil
}
