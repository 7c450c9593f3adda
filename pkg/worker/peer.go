package worker

import (
	"net"

	"github.com/taskgrid/taskgrid/pkg/log"
	"github.com/taskgrid/taskgrid/pkg/rpc"
)

// PeerFetcher is the external collaborator spec §4.5 leaves
// unspecified: the actual protocol for fetching a finished data object
// from a peer worker. No production implementation is wired here; a
// worker that needs to pull from a peer would look up the peer's
// WorkerId in its own registry, dial it, and use the fetch methods a
// real PeerFetcher exposes.
type PeerFetcher interface {
	FetchDataObject(peer net.Addr, id uint64) ([]byte, error)
}

// servePeer accepts one worker-to-worker connection and places it under
// an RPC session whose initial bootstrap is the same WorkerControl
// surface the server holds — workers are symmetric peers with respect
// to one another (spec §4.5).
func (s *State) servePeer(conn net.Conn) {
	session := rpc.NewSession(conn)
	control := NewControl(s)
	session.Export(control)

	logger := log.WithComponent("worker-peer")
	if err := session.Serve(); err != nil {
		logger.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("peer session ended")
	}
}
