package wire

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/taskgrid/taskgrid/pkg/types"
)

func TestNetworkEndpointRoundTrip(t *testing.T) {
	original := NetworkEndpoint{Address: "10.1.2.3", Port: 7777}

	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(original); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded NetworkEndpoint
	if err := gob.NewDecoder(buf).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded != original {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestNetworkEndpointWorkerIdConversion(t *testing.T) {
	w := types.WorkerId{Address: "192.168.0.5", Port: 9001}
	e := NetworkEndpointFromWorkerId(w)
	if back := e.ToWorkerId(); back != w {
		t.Fatalf("conversion round-trip mismatch: got %+v, want %+v", back, w)
	}
}
