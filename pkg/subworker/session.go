// Package subworker implements the worker-side half of the subworker
// session: for each accepted Unix-domain connection, a SubworkerUpstream
// capability is seeded as the initial bootstrap of a fresh RPC session.
// No subworker appears in the owning worker's graph until it calls
// Register through that upstream; unregistered subworkers are anonymous
// and cannot be assigned work (spec §4.4).
package subworker

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskgrid/taskgrid/pkg/log"
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/types"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

// WorkerHandle is the slice of worker.State a subworker session needs.
// Defined here (rather than imported from pkg/worker) so pkg/worker can
// depend on pkg/subworker without a cycle; *worker.State satisfies this
// interface structurally.
type WorkerHandle interface {
	AddSubworker(req wire.AddSubworkerRequest) (*types.Subworker, error)
	FinishDataObject(id types.DataObjectId) error
	RemoveDataObject(id types.DataObjectId) error
}

// Upstream is the SubworkerUpstream capability: the surface a
// subworker process invokes to register itself, report data-object
// completions, and (eventually) fetch inputs.
type Upstream struct {
	worker     WorkerHandle
	workDir    string
	registered bool
	id         types.SubworkerId
	logger     zerolog.Logger
	logFile    *os.File
}

var _ rpc.Object = (*Upstream)(nil)

// Dispatch implements rpc.Object.
func (u *Upstream) Dispatch(method string, payload []byte) ([]byte, error) {
	switch method {
	case "Register":
		var req wire.AddSubworkerRequest
		if err := rpc.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		if _, err := u.worker.AddSubworker(req); err != nil {
			return nil, err
		}
		u.registered = true
		u.id = req.Id
		u.openLogFile(req.Id)
		return nil, nil

	case "SetDataObjectFinished":
		if !u.registered {
			return nil, rpc.NewError(rpc.KindTransportError, "subworker must register before reporting data objects")
		}
		var req wire.SetDataObjectFinishedRequest
		if err := rpc.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		if err := u.worker.FinishDataObject(req.Id); err != nil {
			return nil, err
		}
		u.logger.Debug().Uint64("dataobject_id", uint64(req.Id)).Msg("data object finished")
		return nil, nil

	default:
		return nil, rpc.NewError(rpc.KindUnknownMethod, "SubworkerUpstream has no method %s", method)
	}
}

// openLogFile switches the upstream's logger onto a dedicated per-subworker
// log file once the subworker's id is known. The filename embeds a fresh
// UUID rather than the id alone: ids are only unique within one worker
// process's lifetime, and a restarted subworker reusing an id would
// otherwise overwrite its predecessor's log.
func (u *Upstream) openLogFile(id types.SubworkerId) {
	name := fmt.Sprintf("subworker-%d-%s.out", id, uuid.NewString())
	path := filepath.Join(u.workDir, "subworkers", "logs", name)

	f, err := os.Create(path)
	if err != nil {
		u.logger.Warn().Err(err).Str("path", path).Msg("could not open subworker log file")
		return
	}
	u.logFile = f
	u.logger = zerolog.New(f).With().Timestamp().Uint64("subworker_id", uint64(id)).Logger()
}

// Serve runs one subworker session to completion. It is expected to be
// called in its own goroutine by the worker's accept loop. workDir is
// the owning worker's working directory, used to place per-subworker
// log files once a subworker registers.
func Serve(conn net.Conn, worker WorkerHandle, workDir string) {
	session := rpc.NewSession(conn)
	upstream := &Upstream{
		worker:  worker,
		workDir: workDir,
		logger:  log.WithComponent("subworker-session"),
	}
	session.Export(upstream)

	if err := session.Serve(); err != nil {
		upstream.logger.Debug().Err(err).Msg("subworker session ended")
	}
	if upstream.logFile != nil {
		upstream.logFile.Close()
	}
}
