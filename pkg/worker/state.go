// Package worker implements the worker lifecycle and the worker-side
// state machine: working-directory layout, the subworker and
// worker-to-worker listeners, the outbound registration handshake to
// the server, and the graph admission operations (add_task,
// add_dataobject, add_subworker, make_subworker_id, set_task_as_ready).
//
// State is single-threaded by construction: every public operation
// below takes State's own mutex with TryLock rather than Lock. A
// reentrant call — one handler invoking another while the first still
// holds the borrow — panics with ErrReentrantBorrow instead of
// deadlocking, matching the "exclusive borrow, fail fast on a second
// one" contract the worker state machine is specified to uphold.
package worker

import (
	"net"
	"sync"
	"time"

	"github.com/taskgrid/taskgrid/pkg/graph"
	"github.com/taskgrid/taskgrid/pkg/log"
	"github.com/taskgrid/taskgrid/pkg/notify"
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/timingwheel"
	"github.com/taskgrid/taskgrid/pkg/types"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

// ErrReentrantBorrow is the panic value raised when a second exclusive
// borrow of State is attempted while the first is still active.
type ErrReentrantBorrow struct{}

func (ErrReentrantBorrow) Error() string {
	return "worker: reentrant exclusive borrow of State"
}

// heartbeatPeriod is how often State pings WorkerUpstream once
// registered. Heartbeats carry no scheduling semantics; the server only
// refreshes the worker's last-seen time in its Registry.
const heartbeatPeriod = 2 * time.Second

// State owns everything described by spec §4.2: the Graph, the
// subworker registry (inside Graph), the three I/O endpoints, and the
// cooperative scheduling hooks.
type State struct {
	mu sync.Mutex

	workDir   string
	resources types.Resources

	graph  *graph.Graph
	notify *notify.Table
	wheel  *timingwheel.Wheel

	workerID       types.WorkerId
	serverSession  *rpc.Session
	upstream       rpc.CapRef
	registered     bool
	heartbeatTimer uint64

	subworkerListener net.Listener
	peerListener      net.Listener

	stopped bool
}

// New constructs a State with an empty Graph, an empty upstream
// capability, a timing wheel (tick ~100ms, 256 slots), and an empty
// WorkerId, per spec §4.2's construction contract.
func New(workDir string, resources types.Resources) *State {
	notifyTable := notify.NewTable()
	return &State{
		workDir:   workDir,
		resources: resources,
		graph:     graph.New(notifyTable),
		notify:    notifyTable,
		wheel:     timingwheel.New(100 * time.Millisecond),
	}
}

// borrow acquires State's exclusive borrow for the duration of one
// logical operation. The returned func releases it; call it with
// defer so a panic inside the operation still unlocks.
func (s *State) borrow() func() {
	if !s.mu.TryLock() {
		panic(ErrReentrantBorrow{})
	}
	return s.mu.Unlock
}

// WorkDir returns the worker's configured working directory.
func (s *State) WorkDir() string { return s.workDir }

// WorkerID returns the WorkerId assigned at registration, or the empty
// sentinel before registration completes.
func (s *State) WorkerID() types.WorkerId {
	defer s.borrow()()
	return s.workerID
}

// Registered reports whether the registration handshake with the
// server has completed and upstream/worker_id are committed.
func (s *State) Registered() bool {
	defer s.borrow()()
	return s.registered
}

// AddTask admits a new task into the graph (spec §4.2 add_task).
func (s *State) AddTask(req wire.AddTaskRequest) (*types.Task, error) {
	defer s.borrow()()
	return s.graph.AddTask(req)
}

// AddDataObject inserts a new data object into the graph.
func (s *State) AddDataObject(req wire.AddDataObjectRequest) (*types.DataObject, error) {
	defer s.borrow()()
	return s.graph.AddDataObject(req)
}

// FinishDataObject marks a data object Finished, widening the ready
// set of any task that was waiting on it.
func (s *State) FinishDataObject(id types.DataObjectId) error {
	defer s.borrow()()
	return s.graph.FinishDataObject(id)
}

// RemoveDataObject marks a data object Removed.
func (s *State) RemoveDataObject(id types.DataObjectId) error {
	defer s.borrow()()
	return s.graph.RemoveDataObject(id)
}

// AddSubworker registers a subworker that has completed its own
// registration handshake over the Unix socket.
//
// The source comment this is grounded on ("someone probably started
// subworker and he wants to be notified") is the open question recorded
// in DESIGN.md. No completion notification is published when a
// subworker registers: notify.Table has no subworker event type, and
// the only signal is the returned Subworker and error.
func (s *State) AddSubworker(req wire.AddSubworkerRequest) (*types.Subworker, error) {
	defer s.borrow()()
	return s.graph.AddSubworker(req)
}

// MakeSubworkerId allocates the next monotone subworker id.
func (s *State) MakeSubworkerId() types.SubworkerId {
	defer s.borrow()()
	return s.graph.MakeSubworkerId()
}

// SetTaskAsReady forces a task into the Ready status.
func (s *State) SetTaskAsReady(id types.TaskId) error {
	defer s.borrow()()
	return s.graph.SetTaskAsReady(id)
}

// SetTaskFinished transitions a task to Finished or Failed.
func (s *State) SetTaskFinished(id types.TaskId, failed bool) error {
	defer s.borrow()()
	return s.graph.SetTaskFinished(id, failed)
}

// Task looks up a task by id without mutating anything.
func (s *State) Task(id types.TaskId) (*types.Task, bool) {
	defer s.borrow()()
	return s.graph.Task(id)
}

// DataObject looks up a data object by id without mutating anything.
func (s *State) DataObject(id types.DataObjectId) (*types.DataObject, bool) {
	defer s.borrow()()
	return s.graph.DataObject(id)
}

// SetScheduler installs the plan_scheduling collaborator.
func (s *State) SetScheduler(fn func()) {
	defer s.borrow()()
	s.graph.SetScheduler(fn)
}

// Turn is a no-op per-tick entry point (spec §9) so a test harness can
// drive the state machine without a real event loop.
func (s *State) Turn() {
	defer s.borrow()()
}

func (s *State) setRegistered(workerID types.WorkerId, session *rpc.Session, upstream rpc.CapRef) {
	defer s.borrow()()
	s.workerID = workerID
	s.serverSession = session
	s.upstream = upstream
	s.registered = true
	s.heartbeatTimer = s.wheel.Every(heartbeatPeriod, s.sendHeartbeat)
}

func (s *State) sendHeartbeat() {
	s.mu.Lock()
	registered := s.registered
	session := s.serverSession
	up := s.upstream
	s.mu.Unlock()
	if !registered {
		return
	}
	if err := session.Call(up, "Heartbeat", nil, nil); err != nil {
		log.WithWorkerID(s.workerID.String()).Warn().Err(err).Msg("heartbeat failed")
	}
}

// Stop shuts down the listeners, the timing wheel, and the server
// session. Safe to call more than once.
func (s *State) Stop() {
	defer s.borrow()()
	if s.stopped {
		return
	}
	s.stopped = true
	s.wheel.Stop()
	if s.subworkerListener != nil {
		_ = s.subworkerListener.Close()
	}
	if s.peerListener != nil {
		_ = s.peerListener.Close()
	}
	if s.serverSession != nil {
		_ = s.serverSession.Close()
	}
}
