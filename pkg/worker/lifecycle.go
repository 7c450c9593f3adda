package worker

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/taskgrid/taskgrid/pkg/log"
	"github.com/taskgrid/taskgrid/pkg/metrics"
	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/subworker"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

const subworkerSocketName = "listen"

// Config bundles the inputs to Start: server_address, listen_address
// and the optional ready_file. work_dir and n_cpus are given to New.
type Config struct {
	ServerAddress string
	ListenAddress wire.NetworkEndpoint
	ReadyFile     string
}

// Start runs the full worker lifecycle sequence from spec §4.2: create
// the working-directory tree, bind the subworker and worker-to-worker
// listeners, dial the server and complete the registration handshake,
// then (only afterward) create the ready-file.
func (s *State) Start(cfg Config) error {
	if err := s.createWorkDirTree(); err != nil {
		return err
	}

	if err := s.startSubworkerListener(); err != nil {
		return err
	}

	listenAddr, err := s.startPeerListener(cfg.ListenAddress)
	if err != nil {
		return err
	}

	session, err := rpc.DialTimeout("tcp", cfg.ServerAddress, 10*time.Second)
	if err != nil {
		return rpc.Wrap(rpc.KindServerDialFailed, err, "dial server %s", cfg.ServerAddress)
	}
	go session.Serve()

	if err := s.register(session, listenAddr); err != nil {
		return err
	}

	if cfg.ReadyFile != "" {
		if err := s.createReadyFile(cfg.ReadyFile); err != nil {
			return err
		}
	}

	go s.wheel.Start()
	metrics.RegisterComponent("graph", true, "")
	return nil
}

func (s *State) createWorkDirTree() error {
	dirs := []string{
		filepath.Join(s.workDir, "data"),
		filepath.Join(s.workDir, "tasks"),
		filepath.Join(s.workDir, "subworkers"),
		filepath.Join(s.workDir, "subworkers", "logs"),
	}

	var result *multierror.Error
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result.ErrorOrNil() != nil {
		return rpc.Wrap(rpc.KindWorkdirCreateFailed, result.ErrorOrNil(), "create working directory tree under %s", s.workDir)
	}
	return nil
}

func (s *State) startSubworkerListener() error {
	path := filepath.Join(s.workDir, "subworkers", subworkerSocketName)

	if info, err := os.Stat(path); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return rpc.NewError(rpc.KindStaleSubworkerSocket, "stale non-socket file at %s", path)
		}
		// A stale socket file: start must fail rather than silently
		// unlink and rebind (spec §5: "if a stale socket exists, start
		// fails").
		return rpc.NewError(rpc.KindStaleSubworkerSocket, "stale subworker socket at %s", path)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return rpc.Wrap(rpc.KindStaleSubworkerSocket, err, "bind subworker listener at %s", path)
	}
	s.subworkerListener = ln

	go s.acceptSubworkers(ln)
	return nil
}

func (s *State) acceptSubworkers(ln net.Listener) {
	logger := log.WithComponent("subworker-listener")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isStopped() {
				return
			}
			logger.Warn().Err(err).Msg("accept failed")
			return
		}
		go subworker.Serve(conn, s, s.workDir)
	}
}

func (s *State) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// startPeerListener binds the worker-to-worker TCP listener. If the
// advertised port is 0, the OS-chosen port is substituted back into the
// returned NetworkEndpoint.
func (s *State) startPeerListener(addr wire.NetworkEndpoint) (wire.NetworkEndpoint, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(addr.Address, portString(addr.Port)))
	if err != nil {
		return addr, rpc.Wrap(rpc.KindTransportError, err, "bind worker-to-worker listener at %s:%d", addr.Address, addr.Port)
	}
	s.peerListener = ln

	if addr.Port == 0 {
		if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
			addr.Port = uint16(tcpAddr.Port)
		}
	}

	go s.acceptPeers(ln)
	return addr, nil
}

func (s *State) acceptPeers(ln net.Listener) {
	logger := log.WithComponent("peer-listener")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isStopped() {
				return
			}
			logger.Warn().Err(err).Msg("accept failed")
			return
		}
		go s.servePeer(conn)
	}
}

// createReadyFile atomically creates an empty regular file as a
// liveness signal for external supervisors. Ordering with registration
// is enforced by the caller: Start only reaches this line after
// register has committed upstream and worker_id to State.
func (s *State) createReadyFile(path string) error {
	if !s.Registered() {
		return rpc.NewError(rpc.KindTransportError, "ready-file requested before registration completed")
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return rpc.Wrap(rpc.KindTransportError, err, "create ready-file temp at %s", tmp)
	}
	if err := f.Close(); err != nil {
		return rpc.Wrap(rpc.KindTransportError, err, "close ready-file temp at %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return rpc.Wrap(rpc.KindTransportError, err, "rename ready-file into place at %s", path)
	}
	return nil
}

func portString(p uint16) string {
	return strconv.Itoa(int(p))
}
