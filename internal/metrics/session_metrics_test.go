package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewSessionMetricsWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSessionMetricsWithRegisterer(reg)

	if m.operations == nil || m.rejections == nil || m.persistFailures == nil || m.corruptData == nil {
		t.Fatal("vector collectors should not be nil")
	}
	if m.mirrorEnqueued == nil || m.mirrorEnqueueFails == nil || m.guestMerges == nil || m.activeSessions == nil {
		t.Fatal("scalar collectors should not be nil")
	}
}

func TestNewSessionMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewSessionMetricsWithRegisterer(reg)
	second := NewSessionMetricsWithRegisterer(reg)

	first.RecordMirrorEnqueued()
	second.RecordMirrorEnqueued()

	if got := testutil.ToFloat64(first.mirrorEnqueued); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestSessionMetrics_Records(t *testing.T) {
	m := NewSessionMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOperation(StoreCart, "add")
	m.RecordOperation(StoreCart, "add")
	m.RecordRejection("limit_exceeded")
	m.RecordPersistFailure(StoreCompare, "set")
	m.RecordCorruptData(StoreRecentlyViewed)
	m.RecordMirrorEnqueueFailed()
	m.RecordGuestMerge()
	m.SetActiveSessions(3)

	if got := testutil.ToFloat64(m.operations.WithLabelValues(StoreCart, "add")); got != 2 {
		t.Errorf("expected 2 cart add operations, got %v", got)
	}
	if got := testutil.ToFloat64(m.rejections.WithLabelValues("limit_exceeded")); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
	if got := testutil.ToFloat64(m.persistFailures.WithLabelValues(StoreCompare, "set")); got != 1 {
		t.Errorf("expected 1 persist failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.corruptData.WithLabelValues(StoreRecentlyViewed)); got != 1 {
		t.Errorf("expected 1 corrupt data record, got %v", got)
	}
	if got := testutil.ToFloat64(m.mirrorEnqueueFails); got != 1 {
		t.Errorf("expected 1 enqueue failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.guestMerges); got != 1 {
		t.Errorf("expected 1 guest merge, got %v", got)
	}
	if got := testutil.ToFloat64(m.activeSessions); got != 3 {
		t.Errorf("expected 3 active sessions, got %v", got)
	}
}

func TestSessionMetrics_NilSafe(t *testing.T) {
	var m *SessionMetrics
	m.RecordOperation(StoreCart, "add")
	m.RecordRejection("already_present")
	m.RecordPersistFailure(StoreCart, "set")
	m.RecordCorruptData(StoreCart)
	m.RecordMirrorEnqueued()
	m.RecordMirrorEnqueueFailed()
	m.RecordGuestMerge()
	m.SetActiveSessions(1)
}
