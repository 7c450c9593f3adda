package types

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// TaskId identifies a Task within a single worker's graph. The graph
// takes the id its add_task caller supplies; for client submissions the
// server's Registry allocates them monotonically. Ids are not required
// to be unique across restarts.
type TaskId uint64

// DataObjectId identifies a DataObject within a single worker's graph.
type DataObjectId uint64

// SubworkerId identifies a Subworker process registered with a worker.
type SubworkerId uint64

// SessionId identifies a single transport-level connection's capability
// session (one per client, worker, or subworker connection).
type SessionId uint64

// WorkerId is a worker's network endpoint, used both as its identity in
// the server's registry and as the dial target for worker-to-worker
// fetches. The zero value is the "empty" sentinel used before a worker
// completes registration.
type WorkerId struct {
	Address string
	Port    uint16
}

// Empty reports whether w is the pre-registration sentinel.
func (w WorkerId) Empty() bool {
	return w.Address == "" && w.Port == 0
}

func (w WorkerId) String() string {
	if w.Empty() {
		return "<unregistered>"
	}
	return net.JoinHostPort(w.Address, strconv.Itoa(int(w.Port)))
}

// DataObjectState tracks the lifecycle of a DataObject. Transitions are
// monotone: Unfinished -> Finished -> Removed. Removed is terminal.
type DataObjectState string

const (
	DataObjectUnfinished DataObjectState = "unfinished"
	DataObjectFinished   DataObjectState = "finished"
	DataObjectRemoved    DataObjectState = "removed"
)

// CanTransitionTo reports whether moving from s to next is a legal
// monotone transition.
func (s DataObjectState) CanTransitionTo(next DataObjectState) bool {
	switch s {
	case DataObjectUnfinished:
		return next == DataObjectFinished || next == DataObjectRemoved
	case DataObjectFinished:
		return next == DataObjectRemoved
	case DataObjectRemoved:
		return false
	default:
		return false
	}
}

// DataObjectType describes the shape of the bytes a DataObject holds.
// The worker graph never interprets the contents; the type only affects
// how a subworker is told to materialize or consume it.
type DataObjectType string

const (
	DataObjectBlob      DataObjectType = "blob"
	DataObjectStream    DataObjectType = "stream"
	DataObjectDirectory DataObjectType = "directory"
)

// KeepPolicy controls whether a finished DataObject survives past the
// tasks that consumed it. The sweep that acts on this is an external
// collaborator; the worker graph only stores and reports the policy.
type KeepPolicy string

const (
	// KeepEphemeral objects are eligible for removal once every
	// dependent task has finished.
	KeepEphemeral KeepPolicy = "ephemeral"
	// KeepPersistent objects are never removed by the sweep.
	KeepPersistent KeepPolicy = "persistent"
)

// TaskStatus is the worker-local lifecycle state of a Task.
type TaskStatus string

const (
	TaskWaiting  TaskStatus = "waiting"
	TaskReady    TaskStatus = "ready"
	TaskRunning  TaskStatus = "running"
	TaskFinished TaskStatus = "finished"
	TaskFailed   TaskStatus = "failed"
)

// CanTransitionTo reports whether moving from s to next is a legal
// monotone status transition for a Task.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskWaiting:
		return next == TaskReady || next == TaskFailed
	case TaskReady:
		return next == TaskRunning || next == TaskFailed
	case TaskRunning:
		return next == TaskFinished || next == TaskFailed
	case TaskFinished, TaskFailed:
		return false
	default:
		return false
	}
}

// Resources describes the compute capacity a worker or subworker
// advertises. Nothing in this repo computes a scheduling decision from
// it; it is surfaced for an external scheduler to read.
type Resources struct {
	NCpus uint32
}

// DataObject is a node in the worker graph representing a unit of data
// produced or consumed by Tasks.
type DataObject struct {
	Id        DataObjectId
	State     DataObjectState
	Type      DataObjectType
	Keep      KeepPolicy
	Size      *int64
	Label     string
	CreatedAt time.Time
}

// Task is a node in the worker graph representing a unit of work. Wait
// is the set of DataObjectIds the task is still waiting to see finish;
// the task becomes Ready exactly when Wait is empty and Status is
// Waiting.
type Task struct {
	Id              TaskId
	Inputs          []DataObjectId
	Outputs         []DataObjectId
	Wait            map[DataObjectId]struct{}
	ProcedureKey    string
	ProcedureConfig []byte
	Status          TaskStatus
	CreatedAt       time.Time
	FinishedAt      *time.Time
}

// Ready reports whether t belongs to the ready set: an empty wait-set
// and a status of Waiting (about to be admitted) or Ready.
func (t *Task) Ready() bool {
	return len(t.Wait) == 0 && (t.Status == TaskWaiting || t.Status == TaskReady)
}

// Subworker is a worker-managed process or connection that executes
// Tasks on the worker's behalf.
type Subworker struct {
	Id           SubworkerId
	Resources    Resources
	RegisteredAt time.Time
}

// ProtocolVersion is a bit-exact handshake version number. A mismatch
// between client/worker and server is always rejected.
type ProtocolVersion uint32

// Error returned by version-mismatch checks always contains this
// substring, per the external-interface contract.
const ProtocolMismatchSubstring = "Protocol mismatch"

// CheckVersion returns a non-nil error containing ProtocolMismatchSubstring
// when got != want.
func CheckVersion(want, got ProtocolVersion) error {
	if want != got {
		return fmt.Errorf("Protocol mismatch: server expects version %d, peer sent %d", want, got)
	}
	return nil
}
