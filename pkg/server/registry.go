package server

import (
	"sync"
	"time"

	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/types"
)

// workerEntry is what the registry remembers about one registered
// worker: the session its WorkerControl capability lives on (capability
// ids are only meaningful within the session that minted them) and when
// it was last heard from.
type workerEntry struct {
	session  *rpc.Session
	control  rpc.CapRef
	lastSeen time.Time
}

// Registry is the server's single source of truth for which workers
// are registered and the monotonic id allocators a client submission
// needs. Unlike a worker's per-connection State, the registry is
// genuinely accessed concurrently by every connection's Serve loop, so
// it uses an ordinary mutex rather than the single-turn borrow guard.
type Registry struct {
	mu               sync.Mutex
	workers          map[types.WorkerId]*workerEntry
	nextTaskID       uint64
	nextDataObjectID uint64
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[types.WorkerId]*workerEntry)}
}

// RegisterWorker records a newly registered worker's control
// capability.
func (r *Registry) RegisterWorker(id types.WorkerId, session *rpc.Session, control rpc.CapRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[id] = &workerEntry{session: session, control: control, lastSeen: time.Now()}
}

// Unregister drops a worker. Nothing in this package calls it; a worker
// whose session closes stays in the registry.
func (r *Registry) Unregister(id types.WorkerId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}

// Heartbeat updates the last-seen time for a registered worker.
func (r *Registry) Heartbeat(id types.WorkerId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[id]; ok {
		w.lastSeen = time.Now()
	}
}

// Count reports how many workers are currently registered.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// ErrNoWorkers is returned by PlaceAny when no worker is registered to
// accept placement.
var ErrNoWorkers = rpc.NewError(rpc.KindTransportError, "no worker is registered to accept placement")

// PlaceAny picks a worker to place new work onto. Spec §4.6 leaves
// placement policy unspecified beyond "the server forwards the
// request to a worker"; with no scheduler wired in, the only workable
// policy with a single registered worker is to use it, so this picks
// an arbitrary registered worker. A real placement policy is an
// external collaborator.
func (r *Registry) PlaceAny() (types.WorkerId, *rpc.Session, rpc.CapRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, w := range r.workers {
		return id, w.session, w.control, nil
	}
	return types.WorkerId{}, nil, rpc.CapRef{}, ErrNoWorkers
}

// NextTaskID allocates the next server-assigned TaskId.
func (r *Registry) NextTaskID() types.TaskId {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextTaskID++
	return types.TaskId(r.nextTaskID)
}

// NextDataObjectID allocates the next server-assigned DataObjectId.
func (r *Registry) NextDataObjectID() types.DataObjectId {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextDataObjectID++
	return types.DataObjectId(r.nextDataObjectID)
}
