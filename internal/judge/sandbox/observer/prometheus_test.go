package observer

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	p.ObserveCompile(ctx, "cpp", false, 120, 2048)
	p.ObserveRun(ctx, "javascript", "TLE", 5000, 40960, 0)
	p.ObserveRun(ctx, "javascript", "OK", 40, 30000, 1)
	p.ObserveSlotWait("run", 2*time.Second, false)
	p.SetSlotsInUse(3)

	if got := testutil.ToFloat64(p.compileTotal.WithLabelValues("cpp", "false")); got != 1 {
		t.Fatalf("compile counter = %v", got)
	}
	if got := testutil.ToFloat64(p.runTotal.WithLabelValues("javascript", "TLE")); got != 1 {
		t.Fatalf("run counter = %v", got)
	}
	if got := testutil.ToFloat64(p.slotRejected.WithLabelValues("run")); got != 1 {
		t.Fatalf("rejected counter = %v", got)
	}
	if got := testutil.ToFloat64(p.slotsInUse); got != 3 {
		t.Fatalf("slots gauge = %v", got)
	}

	if _, err := NewPrometheus(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
