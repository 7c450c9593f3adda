package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeRegistry struct{ count int }

func (f fakeRegistry) Count() int { return f.count }

func TestCollectorSetsWorkersRegisteredGauge(t *testing.T) {
	c := NewCollector(fakeRegistry{count: 3})
	c.collect()

	if got := testutil.ToFloat64(WorkersRegistered); got != 3 {
		t.Fatalf("expected WorkersRegistered to be 3, got %v", got)
	}
}

func TestCollectorNilRegistryIsNoop(t *testing.T) {
	c := NewCollector(nil)
	c.collect()
}
