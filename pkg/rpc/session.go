// Package rpc implements a gob-framed capability transport: one
// net.Conn carries many independently addressable objects ("capabilities"),
// any call can return a fresh capability id as part of its result, and
// the callee of a capability can itself turn around and call back into
// the session (from outside Dispatch; see Serve). This is the shape the bootstrap gate, the worker
// registration handshake, and the worker-to-worker endpoint all need
// (an RPC result that is itself a further-callable remote object), which
// a compiled-schema unary RPC client cannot express without generated
// stubs.
package rpc

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/taskgrid/taskgrid/pkg/log"
	"github.com/taskgrid/taskgrid/pkg/metrics"
)

// CapRef is a capability reference transmitted on the wire. The zero
// value refers to no capability.
type CapRef struct {
	ID uint64
}

// BootstrapCapRef is the well-known capability id of the first object a
// Session exports. Session.Export mints ids starting at 1, so as long
// as each side's bootstrap object (ServerBootstrap, WorkerControl, or
// SubworkerUpstream) is the first thing exported on a freshly accepted
// connection, the peer can always reach it at this id without an
// out-of-band lookup.
var BootstrapCapRef = CapRef{ID: 1}

// Valid reports whether r refers to an exported capability.
func (r CapRef) Valid() bool { return r.ID != 0 }

// Object is anything a Session can export and dispatch calls against.
// Method implementations are responsible for gob-decoding req and
// gob-encoding their result.
type Object interface {
	Dispatch(method string, req []byte) (resp []byte, err error)
}

// envelope is the single wire message type; every call and every reply
// is one envelope.
type envelope struct {
	Seq     uint64
	Target  uint64
	Method  string
	Payload []byte
	IsReply bool
	ErrKind string
	ErrMsg  string
}

type pendingCall struct {
	resp chan envelope
}

// Session multiplexes capability calls over a single connection.
// Incoming calls are dispatched synchronously in the goroutine running
// Serve, so calls arriving on one connection are always processed in
// the order they were sent — there is no independent worker pool per
// session.
type Session struct {
	conn net.Conn
	enc  *gob.Encoder
	dec  *gob.Decoder

	mu       sync.Mutex
	writeMu  sync.Mutex
	exports  map[uint64]Object
	nextID   uint64
	pending  map[uint64]*pendingCall
	nextSeq  uint64
	closed   bool
	closeErr error
}

// NewSession wraps conn in a capability session. Call Serve (typically
// in its own goroutine) to start processing incoming envelopes.
func NewSession(conn net.Conn) *Session {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &Session{
		conn:    conn,
		enc:     gob.NewEncoder(conn),
		dec:     gob.NewDecoder(conn),
		exports: make(map[uint64]Object),
		pending: make(map[uint64]*pendingCall),
	}
}

// Export mints a new capability id bound to obj and returns a CapRef
// the peer can use to call it.
func (s *Session) Export(obj Object) CapRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.exports[id] = obj
	return CapRef{ID: id}
}

// Unexport removes a previously exported capability; calls against it
// afterward fail with KindUnknownCapability.
func (s *Session) Unexport(ref CapRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.exports, ref.ID)
}

// Call invokes method on target, gob-encoding req and decoding the
// result into resp (a pointer). resp may be nil for methods with no
// return payload.
func (s *Session) Call(target CapRef, method string, req, resp interface{}) error {
	var payload []byte
	if req != nil {
		buf := &bytes.Buffer{}
		if err := gob.NewEncoder(buf).Encode(req); err != nil {
			return Wrap(KindTransportError, err, "encode request for %s", method)
		}
		payload = buf.Bytes()
	}

	s.mu.Lock()
	if s.closed {
		err := s.closeErr
		s.mu.Unlock()
		if err == nil {
			err = NewError(KindTransportError, "session closed")
		}
		return err
	}
	s.nextSeq++
	seq := s.nextSeq
	call := &pendingCall{resp: make(chan envelope, 1)}
	s.pending[seq] = call
	s.mu.Unlock()

	timer := metrics.NewTimer()
	env := envelope{Seq: seq, Target: target.ID, Method: method, Payload: payload}

	s.writeMu.Lock()
	err := s.enc.Encode(&env)
	s.writeMu.Unlock()
	if err != nil {
		s.dropPending(seq)
		metrics.RPCCallsTotal.WithLabelValues(method, "transport_error").Inc()
		return Wrap(KindTransportError, err, "send call %s", method)
	}

	reply := <-call.resp
	timer.ObserveDurationVec(metrics.RPCCallDuration, method)

	if reply.ErrKind != "" {
		metrics.RPCCallsTotal.WithLabelValues(method, "error").Inc()
		return &Error{Kind: Kind(reply.ErrKind), Message: reply.ErrMsg}
	}
	metrics.RPCCallsTotal.WithLabelValues(method, "ok").Inc()

	if resp != nil && len(reply.Payload) > 0 {
		if err := gob.NewDecoder(bytes.NewReader(reply.Payload)).Decode(resp); err != nil {
			return Wrap(KindTransportError, err, "decode response for %s", method)
		}
	}
	return nil
}

func (s *Session) dropPending(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, seq)
}

// Serve runs the session's single read loop until the connection
// closes or an unrecoverable decode error occurs. It returns the
// terminating error, which is also returned to any Call blocked
// waiting for a reply.
//
// Incoming calls are dispatched synchronously, inline in this loop:
// spec §5 requires that RPCs on a single capability are delivered in
// order of issuance, and a goroutine-per-call dispatch would let two
// calls race past each other. A handler that itself calls back out
// over the same session (capability re-entry) from inside Dispatch
// deadlocks: the reply it waits for can only be read by this same,
// now blocked, loop. Exported objects are expected to be quick and to
// make any call back over their own session from another goroutine.
func (s *Session) Serve() error {
	for {
		var env envelope
		if err := s.dec.Decode(&env); err != nil {
			s.fail(Wrap(KindTransportError, err, "session closed"))
			return err
		}

		if env.IsReply {
			s.mu.Lock()
			call, ok := s.pending[env.Seq]
			if ok {
				delete(s.pending, env.Seq)
			}
			s.mu.Unlock()
			if ok {
				call.resp <- env
			}
			continue
		}

		s.handle(env)
	}
}

func (s *Session) handle(env envelope) {
	s.mu.Lock()
	obj, ok := s.exports[env.Target]
	s.mu.Unlock()

	reply := envelope{Seq: env.Seq, IsReply: true}
	if !ok {
		reply.ErrKind = string(KindUnknownCapability)
		reply.ErrMsg = fmt.Sprintf("no capability exported with id %d", env.Target)
	} else {
		resp, err := obj.Dispatch(env.Method, env.Payload)
		if err != nil {
			if rerr, ok := err.(*Error); ok {
				reply.ErrKind = string(rerr.Kind)
				reply.ErrMsg = rerr.Error()
			} else {
				reply.ErrKind = string(KindTransportError)
				reply.ErrMsg = err.Error()
			}
		} else {
			reply.Payload = resp
		}
	}

	s.writeMu.Lock()
	err := s.enc.Encode(&reply)
	s.writeMu.Unlock()
	if err != nil {
		log.WithComponent("rpc").Error().Err(err).Str("method", env.Method).Msg("failed to write rpc reply")
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closeErr = err
	for seq, call := range s.pending {
		delete(s.pending, seq)
		call.resp <- envelope{IsReply: true, ErrKind: string(KindTransportError), ErrMsg: err.Error()}
	}
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	s.fail(NewError(KindTransportError, "session closed locally"))
	return s.conn.Close()
}

// RemoteAddr returns the underlying connection's remote address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// DialTimeout dials addr and wraps the connection in a Session,
// returning KindServerDialFailed on failure.
func DialTimeout(network, addr string, timeout time.Duration) (*Session, error) {
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, Wrap(KindServerDialFailed, err, "dial %s", addr)
	}
	return NewSession(conn), nil
}

// EncodePayload gob-encodes v for use as a Dispatch request/response.
func EncodePayload(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		return nil, Wrap(KindTransportError, err, "encode payload")
	}
	return buf.Bytes(), nil
}

// DecodePayload gob-decodes payload into v (a pointer).
func DecodePayload(payload []byte, v interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return Wrap(KindTransportError, err, "decode payload")
	}
	return nil
}
