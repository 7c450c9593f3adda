package rpc

import (
	"net"
	"testing"
	"time"
)

type echoObject struct{}

func (echoObject) Dispatch(method string, req []byte) ([]byte, error) {
	switch method {
	case "Echo":
		var s string
		if err := DecodePayload(req, &s); err != nil {
			return nil, err
		}
		return EncodePayload(s + s)
	case "Fail":
		return nil, NewError(KindDuplicateId, "boom")
	default:
		return nil, NewError(KindUnknownMethod, "unknown method %s", method)
	}
}

// mintingObject hands back a fresh capability (a further-callable
// object) as the result of a call, exercising capability handoff.
type mintingObject struct {
	session *Session
}

func (m mintingObject) Dispatch(method string, req []byte) ([]byte, error) {
	if method != "Mint" {
		return nil, NewError(KindUnknownMethod, "unknown method %s", method)
	}
	ref := m.session.Export(echoObject{})
	return EncodePayload(ref)
}

// blockingObject holds every call until release is closed, so a call
// against it stays pending.
type blockingObject struct {
	release chan struct{}
}

func (b blockingObject) Dispatch(method string, req []byte) ([]byte, error) {
	<-b.release
	return nil, nil
}

func newPipeSessions(t *testing.T) (client, server *Session) {
	t.Helper()
	a, b := net.Pipe()
	client = NewSession(a)
	server = NewSession(b)
	go server.Serve()
	go client.Serve()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestSessionCallRoundTrip(t *testing.T) {
	client, server := newPipeSessions(t)
	ref := server.Export(echoObject{})

	var out string
	if err := client.Call(ref, "Echo", "hi", &out); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if out != "hihi" {
		t.Fatalf("expected hihi, got %q", out)
	}
}

func TestSessionCallError(t *testing.T) {
	client, server := newPipeSessions(t)
	ref := server.Export(echoObject{})

	err := client.Call(ref, "Fail", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	rerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if rerr.Kind != KindDuplicateId {
		t.Fatalf("expected KindDuplicateId, got %s", rerr.Kind)
	}
}

func TestSessionUnknownCapability(t *testing.T) {
	client, _ := newPipeSessions(t)

	err := client.Call(CapRef{ID: 999}, "Echo", "x", nil)
	if err == nil {
		t.Fatal("expected error calling unknown capability")
	}
	rerr, ok := err.(*Error)
	if !ok || rerr.Kind != KindUnknownCapability {
		t.Fatalf("expected KindUnknownCapability, got %v", err)
	}
}

func TestSessionCapabilityHandoff(t *testing.T) {
	client, server := newPipeSessions(t)
	minter := mintingObject{session: server}
	ref := server.Export(minter)

	var minted CapRef
	if err := client.Call(ref, "Mint", nil, &minted); err != nil {
		t.Fatalf("mint call failed: %v", err)
	}
	if !minted.Valid() {
		t.Fatal("expected a valid minted capability")
	}

	var out string
	if err := client.Call(minted, "Echo", "ab", &out); err != nil {
		t.Fatalf("call on minted capability failed: %v", err)
	}
	if out != "abab" {
		t.Fatalf("expected abab, got %q", out)
	}
}

func TestSessionCloseUnblocksPendingCalls(t *testing.T) {
	a, b := net.Pipe()
	client := NewSession(a)
	server := NewSession(b)
	go server.Serve()
	go client.Serve()

	// The server holds the call inside Dispatch, so it is still pending
	// when we close the connection mid-flight; Close must unblock it.
	release := make(chan struct{})
	defer close(release)
	ref := server.Export(blockingObject{release: release})
	done := make(chan error, 1)
	go func() {
		done <- client.Call(ref, "Echo", "slow", nil)
	}()

	time.Sleep(10 * time.Millisecond)
	client.Close()
	server.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("call did not unblock after session close")
	}
}
