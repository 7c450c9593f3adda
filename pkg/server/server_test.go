package server

import (
	"testing"
	"time"

	"github.com/taskgrid/taskgrid/pkg/rpc"
	"github.com/taskgrid/taskgrid/pkg/wire"
)

func TestServerAcceptsAndRegistersOverTCP(t *testing.T) {
	srv := NewServer()
	addr, err := srv.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	session, err := rpc.DialTimeout("tcp", addr.String(), time.Second)
	if err != nil {
		t.Fatalf("dial server: %v", err)
	}
	go session.Serve()
	t.Cleanup(func() { session.Close() })

	var resp wire.RegisterAsClientResponse
	if err := session.Call(rpc.BootstrapCapRef, "RegisterAsClient", wire.RegisterAsClientRequest{Version: wire.ClientProtocolVersion}, &resp); err != nil {
		t.Fatalf("register_as_client over tcp: %v", err)
	}
	if !resp.Service.Valid() {
		t.Fatal("expected a valid ClientService capability")
	}
}

func TestServerStopClosesListener(t *testing.T) {
	srv := NewServer()
	if _, err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start server: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("stop server: %v", err)
	}
}
