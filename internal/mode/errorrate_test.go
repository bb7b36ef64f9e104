package mode

import (
	"path/filepath"
	"testing"

	"github.com/acbmem/agentmem/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestErrorRateTrackerRecordAndRate(t *testing.T) {
	s := openTestStore(t)
	tr := NewErrorRateTracker(s)

	for i := 0; i < 3; i++ {
		if err := tr.Record("tenant-1", ModeDebugging, false); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := tr.Record("tenant-1", ModeDebugging, true); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	rate, err := tr.Rate("tenant-1", ModeDebugging)
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if rate != 0.25 {
		t.Errorf("expected error rate 0.25 (1/4), got %f", rate)
	}
}

func TestErrorRateTrackerNoData(t *testing.T) {
	s := openTestStore(t)
	tr := NewErrorRateTracker(s)

	rate, err := tr.Rate("tenant-empty", ModeTask)
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if rate != 0 {
		t.Errorf("expected 0 rate with no data, got %f", rate)
	}
}

func TestErrorRateTrackerTenantIsolation(t *testing.T) {
	s := openTestStore(t)
	tr := NewErrorRateTracker(s)

	tr.Record("tenant-a", ModeTask, true)
	tr.Record("tenant-b", ModeTask, false)

	rateA, _ := tr.Rate("tenant-a", ModeTask)
	if rateA != 1.0 {
		t.Errorf("expected tenant-a rate 1.0, got %f", rateA)
	}
	rateB, _ := tr.Rate("tenant-b", ModeTask)
	if rateB != 0.0 {
		t.Errorf("expected tenant-b rate 0.0, got %f", rateB)
	}
}
