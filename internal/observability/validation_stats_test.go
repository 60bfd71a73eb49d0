package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordFailureConcurrent tests concurrent RecordFailure calls for race conditions.
func TestRecordFailureConcurrent(t *testing.T) {
	vs := NewValidationStats(1 * time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				vs.RecordFailure("hive-catalog", "metastore.uris", "MISSING_REQUIRED_PROPERTY")
				vs.RecordFailure("mysql-table", "engine", "TYPE_COERCION")
				vs.RecordFailure("mysql-table", "comment", "RESERVED_PROPERTY_ASSIGNED")
			}
		}()
	}

	wg.Wait()

	top := vs.GetTopFailures(10)
	if len(top) != 3 {
		t.Errorf("expected 3 properties, got %d", len(top))
	}

	expectedFreq := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expectedFreq {
			t.Errorf("expected frequency %d for %s/%s, got %d", expectedFreq, stat.Kind, stat.Property, stat.Frequency)
		}
	}
}

// TestGetTopFailuresOrdering tests that GetTopFailures returns results sorted by frequency.
func TestGetTopFailuresOrdering(t *testing.T) {
	vs := NewValidationStats(1 * time.Hour)

	for i := 0; i < 10; i++ {
		vs.RecordFailure("mysql-table", "engine", "TYPE_COERCION")
	}
	for i := 0; i < 5; i++ {
		vs.RecordFailure("hive-catalog", "client.pool-size", "IMMUTABLE_PROPERTY_CHANGE")
	}
	for i := 0; i < 20; i++ {
		vs.RecordFailure("hive-catalog", "metastore.uris", "MISSING_REQUIRED_PROPERTY")
	}

	top := vs.GetTopFailures(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].Property != "metastore.uris" || top[0].Frequency != 20 {
		t.Errorf("expected metastore.uris with 20 first, got %s with %d", top[0].Property, top[0].Frequency)
	}
	if top[1].Property != "engine" || top[1].Frequency != 10 {
		t.Errorf("expected engine with 10 second, got %s with %d", top[1].Property, top[1].Frequency)
	}
}

// TestRecordFailureTrackingCodes tests that codes are counted per property.
func TestRecordFailureTrackingCodes(t *testing.T) {
	vs := NewValidationStats(1 * time.Hour)
	vs.RecordFailure("mysql-table", "engine", "TYPE_COERCION")
	vs.RecordFailure("mysql-table", "engine", "TYPE_COERCION")
	vs.RecordFailure("mysql-table", "engine", "IMMUTABLE_PROPERTY_CHANGE")

	top := vs.GetTopFailures(1)
	if len(top) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(top))
	}
	if top[0].Codes["TYPE_COERCION"] != 2 {
		t.Errorf("expected 2 TYPE_COERCION, got %d", top[0].Codes["TYPE_COERCION"])
	}
	if top[0].Codes["IMMUTABLE_PROPERTY_CHANGE"] != 1 {
		t.Errorf("expected 1 IMMUTABLE_PROPERTY_CHANGE, got %d", top[0].Codes["IMMUTABLE_PROPERTY_CHANGE"])
	}

	// Returned copies must not alias internal state.
	top[0].Codes["TYPE_COERCION"] = 100
	if again := vs.GetTopFailures(1); again[0].Codes["TYPE_COERCION"] != 2 {
		t.Errorf("expected internal count to stay 2, got %d", again[0].Codes["TYPE_COERCION"])
	}
}

// TestPruneRemovesOldEntries tests that entries older than the window are dropped.
func TestPruneRemovesOldEntries(t *testing.T) {
	window := 100 * time.Millisecond
	vs := NewValidationStats(window)

	vs.RecordFailure("hive-catalog", "metastore.uris", "MISSING_REQUIRED_PROPERTY")
	if top := vs.GetTopFailures(10); len(top) != 1 {
		t.Errorf("expected 1 entry before prune, got %d", len(top))
	}

	time.Sleep(window + 50*time.Millisecond)
	vs.Prune()

	if top := vs.GetTopFailures(10); len(top) != 0 {
		t.Errorf("expected 0 entries after prune, got %d", len(top))
	}
}

// TestGetTopFailuresEmpty tests GetTopFailures with no data.
func TestGetTopFailuresEmpty(t *testing.T) {
	vs := NewValidationStats(1 * time.Hour)
	if top := vs.GetTopFailures(10); len(top) != 0 {
		t.Errorf("expected empty result, got %d entries", len(top))
	}
	if top := vs.GetTopFailures(0); len(top) != 0 {
		t.Errorf("expected empty result for n=0, got %d entries", len(top))
	}
}
