package worker

import (
	"github.com/taskgrid/taskgrid/pkg/log"
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

// register runs the worker-side registration handshake described in
// spec §4.3. session already has Nagle disabled (rpc.NewSession does
// that for TCP connections) and no initially exported bootstrap of its
// own; the only thing the worker calls is the server's well-known
// bootstrap capability.
//
// On failure this returns an error rather than panicking/exiting
// directly — the spec's "panics/exits on registration failure" is
// rendered here as a fatal-shutdown error the caller (cmd/tgworker)
// turns into a non-zero process exit, preserving fail-fast semantics
// without aborting from inside an I/O callback (design note in spec §9).
func (s *State) register(session *rpc.Session, listenAddr wire.NetworkEndpoint) error {
	control := NewControl(s)
	controlRef := session.Export(control)

	req := wire.RegisterAsWorkerRequest{
		Version:       wire.WorkerProtocolVersion,
		Control:       controlRef,
		ListenAddress: listenAddr,
	}

	var resp wire.RegisterAsWorkerResponse
	if err := session.Call(rpc.BootstrapCapRef, "RegisterAsWorker", req, &resp); err != nil {
		return err
	}

	workerID := resp.WorkerId.ToWorkerId()
	s.setRegistered(workerID, session, resp.Upstream)
	log.WithWorkerID(workerID.String()).Info().Msg("worker registered with server")
	return nil
}
