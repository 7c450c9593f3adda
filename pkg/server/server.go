// Package server implements the cluster control plane's bootstrap
// gate: the single TCP listener that a client or worker dials to join
// the cluster. Every accepted connection gets its own RPC session and
// a fresh ServerBootstrap capability exported as that session's
// well-known bootstrap object, mirroring the worker-side accept loops
// in pkg/worker.
package server

import (
	"net"
	"sync"

	"github.com/taskgrid/taskgrid/pkg/log"
	"github.com/taskgrid/taskgrid/pkg/metrics"
	"github.com/taskgrid/taskgrid/pkg/rpc"
)

// Server listens for client and worker connections and hands each one
// a fresh Bootstrap gate.
type Server struct {
	registry *Registry

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

// NewServer builds an idle Server with an empty worker registry.
func NewServer() *Server {
	return &Server{registry: NewRegistry()}
}

// Registry exposes the server's worker/id registry, primarily for
// tests and for a metrics collector to read gauges from.
func (s *Server) Registry() *Registry { return s.registry }

// Start binds addr and begins accepting connections in the background.
// It returns once the listener is bound; Serve errors thereafter are
// logged, not returned, since a single bad connection must not bring
// the control plane down.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, rpc.Wrap(rpc.KindTransportError, err, "bind server listener at %s", addr)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go s.acceptLoop(ln)
	return ln.Addr(), nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	logger := log.WithComponent("server")
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return
			}
			logger.Warn().Err(err).Msg("accept failed")
			return
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	logger := log.WithComponent("server")
	session := rpc.NewSession(conn)
	bootstrap := NewBootstrap(session, s.registry)
	session.Export(bootstrap)

	if err := session.Serve(); err != nil {
		logger.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("connection session ended")
	}
}

// Stop closes the listener. In-flight sessions are left to drain on
// their own; Stop does not forcibly close worker or client
// connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	metrics.RegisterComponent("server", false, "stopped")
	return ln.Close()
}
