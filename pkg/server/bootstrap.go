package server

import (
	"net"
	"sync"

	"github.com/taskgrid/taskgrid/pkg/log"
	"github.com/taskgrid/taskgrid/pkg/metrics"
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

// Bootstrap is the ServerBootstrap capability: the single well-known
// object (rpc.BootstrapCapRef) a freshly accepted connection can call.
// It is a one-shot gate — exactly one of RegisterAsClient or
// RegisterAsWorker may succeed on it, ever (spec §4.1, scenario S1). A
// second attempt of either kind fails with AlreadyRegistered without
// touching any state, and a version mismatch on the first attempt
// leaves the gate open for a corrected retry.
type Bootstrap struct {
	mu         sync.Mutex
	registered bool

	session  *rpc.Session
	registry *Registry
}

var _ rpc.Object = (*Bootstrap)(nil)

// NewBootstrap builds the bootstrap gate for one accepted connection.
// session is the same Session the gate itself was exported on, needed
// so the gate can mint the ClientService or WorkerUpstream capability
// it hands back.
func NewBootstrap(session *rpc.Session, registry *Registry) *Bootstrap {
	return &Bootstrap{session: session, registry: registry}
}

// Dispatch implements rpc.Object.
func (b *Bootstrap) Dispatch(method string, payload []byte) ([]byte, error) {
	switch method {
	case "RegisterAsClient":
		var req wire.RegisterAsClientRequest
		if err := rpc.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		return b.registerAsClient(req)

	case "RegisterAsWorker":
		var req wire.RegisterAsWorkerRequest
		if err := rpc.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		return b.registerAsWorker(req)

	default:
		return nil, rpc.NewError(rpc.KindUnknownMethod, "ServerBootstrap has no method %s", method)
	}
}

func (b *Bootstrap) registerAsClient(req wire.RegisterAsClientRequest) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registered {
		metrics.RegistrationsTotal.WithLabelValues("client", "already_registered").Inc()
		return nil, rpc.NewError(rpc.KindAlreadyRegistered, "this connection has already completed registration")
	}
	if req.Version != wire.ClientProtocolVersion {
		metrics.RegistrationsTotal.WithLabelValues("client", "version_mismatch").Inc()
		return nil, rpc.VersionMismatch(wire.ClientProtocolVersion, req.Version)
	}

	b.registered = true
	service := NewClientService(b.registry)
	ref := b.session.Export(service)

	metrics.RegistrationsTotal.WithLabelValues("client", "ok").Inc()
	metrics.ClientsRegistered.Inc()
	log.WithComponent("bootstrap").Info().Msg("client registered")

	return rpc.EncodePayload(wire.RegisterAsClientResponse{Service: ref})
}

func (b *Bootstrap) registerAsWorker(req wire.RegisterAsWorkerRequest) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registered {
		metrics.RegistrationsTotal.WithLabelValues("worker", "already_registered").Inc()
		return nil, rpc.NewError(rpc.KindAlreadyRegistered, "this connection has already completed registration")
	}
	if req.Version != wire.WorkerProtocolVersion {
		metrics.RegistrationsTotal.WithLabelValues("worker", "version_mismatch").Inc()
		return nil, rpc.VersionMismatch(wire.WorkerProtocolVersion, req.Version)
	}

	// The advertised listen_address is authoritative for WorkerId
	// derivation (resolved open question, DESIGN.md): the server never
	// has a reliable way to recover the worker's listening port from
	// the accepted connection's remote address, since that address is
	// the worker's ephemeral outbound port, not the one peers dial. An
	// advertised IP literal whose address family (IPv4 vs IPv6) differs
	// from the TCP connection's remote address is rejected; hostnames and
	// non-TCP transports are not checked.
	if tcpAddr, ok := b.session.RemoteAddr().(*net.TCPAddr); ok {
		if adv := net.ParseIP(req.ListenAddress.Address); adv != nil && (adv.To4() == nil) != (tcpAddr.IP.To4() == nil) {
			metrics.RegistrationsTotal.WithLabelValues("worker", "address_family_mismatch").Inc()
			return nil, rpc.NewError(rpc.KindTransportError, "advertised listen address %s is not in the address family of the connection from %s", req.ListenAddress.Address, tcpAddr)
		}
	}
	workerID := req.ListenAddress.ToWorkerId()

	b.registered = true
	b.registry.RegisterWorker(workerID, b.session, req.Control)

	upstream := NewWorkerUpstream(b.registry, workerID)
	ref := b.session.Export(upstream)

	metrics.RegistrationsTotal.WithLabelValues("worker", "ok").Inc()
	metrics.WorkersRegistered.Inc()
	log.WithWorkerID(workerID.String()).Info().Msg("worker registered")

	return rpc.EncodePayload(wire.RegisterAsWorkerResponse{
		Upstream: ref,
		WorkerId: wire.NetworkEndpointFromWorkerId(workerID),
	})
}
