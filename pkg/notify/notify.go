package notify

import (
	"sync"
	"time"

	"github.com/taskgrid/taskgrid/pkg/types"
)

// EventType identifies a kind of graph transition broadcast by a Table.
type EventType string

const (
	EventDataObjectFinished EventType = "dataobject.finished"
	EventDataObjectRemoved  EventType = "dataobject.removed"
	EventTaskReady          EventType = "task.ready"
	EventTaskFinished       EventType = "task.finished"
	EventTaskFailed         EventType = "task.failed"
)

// Event is a single graph transition, broadcast to every Subscriber.
type Event struct {
	Type         EventType
	Timestamp    time.Time
	TaskID       types.TaskId
	DataObjectID types.DataObjectId
	Message      string
}

// Subscriber is a channel that receives Events.
type Subscriber chan *Event

// Table is the DataObjectId -> set[TaskId] interest relation described
// by the worker's design notes: tasks register interest in the
// DataObjects they wait on, and Finish walks the interest set for a
// DataObject once, broadcasting a finish event for every interested
// task and then dropping the relation.
//
// Table also doubles as the fan-out broker for task-status transitions;
// nothing about the interest relation requires that, but both live on
// the same lock since callers touch them from the same worker turn.
type Table struct {
	mu          sync.RWMutex
	interest    map[types.DataObjectId]map[types.TaskId]struct{}
	subscribers map[Subscriber]bool
}

// NewTable creates an empty interest/broadcast table.
func NewTable() *Table {
	return &Table{
		interest:    make(map[types.DataObjectId]map[types.TaskId]struct{}),
		subscribers: make(map[Subscriber]bool),
	}
}

// Subscribe registers a new event listener.
func (t *Table) Subscribe() Subscriber {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := make(Subscriber, 64)
	t.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes a listener.
func (t *Table) Unsubscribe(sub Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.subscribers[sub] {
		delete(t.subscribers, sub)
		close(sub)
	}
}

// Register records that task depends on obj finishing. Safe to call
// more than once for the same pair.
func (t *Table) Register(obj types.DataObjectId, task types.TaskId) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.interest[obj]
	if set == nil {
		set = make(map[types.TaskId]struct{})
		t.interest[obj] = set
	}
	set[task] = struct{}{}
}

// Finish broadcasts EventDataObjectFinished to every task interested in
// obj and returns their ids so the caller can clear them from the
// corresponding wait-sets. The relation for obj is dropped afterward;
// a DataObject only finishes once.
func (t *Table) Finish(obj types.DataObjectId) []types.TaskId {
	t.mu.Lock()
	set := t.interest[obj]
	delete(t.interest, obj)
	t.mu.Unlock()

	if len(set) == 0 {
		return nil
	}

	waiters := make([]types.TaskId, 0, len(set))
	for task := range set {
		waiters = append(waiters, task)
		t.publish(&Event{
			Type:         EventDataObjectFinished,
			Timestamp:    time.Now(),
			TaskID:       task,
			DataObjectID: obj,
		})
	}
	return waiters
}

// Remove drops any remaining interest relation for obj without
// broadcasting a finish event, and announces EventDataObjectRemoved.
func (t *Table) Remove(obj types.DataObjectId) {
	t.mu.Lock()
	delete(t.interest, obj)
	t.mu.Unlock()

	t.publish(&Event{Type: EventDataObjectRemoved, Timestamp: time.Now(), DataObjectID: obj})
}

// PublishTaskEvent broadcasts a task-status transition (ready, finished,
// failed) to every subscriber. It does not touch the interest relation.
func (t *Table) PublishTaskEvent(typ EventType, task types.TaskId, message string) {
	t.publish(&Event{Type: typ, Timestamp: time.Now(), TaskID: task, Message: message})
}

func (t *Table) publish(ev *Event) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for sub := range t.subscribers {
		select {
		case sub <- ev:
		default:
		}
	}
}

// InterestCount returns how many tasks are currently waiting on obj,
// used by tests to assert the relation is cleared after Finish/Remove.
func (t *Table) InterestCount(obj types.DataObjectId) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.interest[obj])
}
