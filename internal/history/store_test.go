package history

import (
	"path/filepath"
	"testing"
	"time"
)

func testObservation(ts time.Time, i int) Observation {
	return Observation{
		Timestamp:         ts,
		OutsideTemp:       float64(i) - 5,
		Humidity:          65,
		WindSpeed:         3.5,
		CloudCover:        40,
		RoomTemp:          20.5,
		TargetTemp:        21,
		OutletTemp:        35.5,
		InletTemp:         30.2,
		PumpFreq:          40,
		CompressorFreq:    35,
		EnergyConsumption: 1.2,
		EnergyProduction:  4.1,
		COP:               3.4,
		PredictedTemp:     21.5,
		PredictedCOP:      3.6,
		HourOfDay:         ts.Hour(),
		DayOfWeek:         int(ts.Weekday()),
		Month:             int(ts.Month()),
		BuildingMass:      2,
		HeatingSystem:     "underfloor",
	}
}

func TestStoreRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	const count = 25
	for i := 0; i < count; i++ {
		if err := store.Append(testObservation(base.Add(time.Duration(i)*time.Hour), i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen: the full window comes back in append order.
	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != count {
		t.Fatalf("got %d observations after reload, want %d", reopened.Len(), count)
	}

	obs := reopened.Observations()
	for i, o := range obs {
		want := testObservation(base.Add(time.Duration(i)*time.Hour), i)
		if !o.Timestamp.Equal(want.Timestamp) {
			t.Errorf("observation %d: timestamp %v, want %v", i, o.Timestamp, want.Timestamp)
		}
		if o.OutsideTemp != want.OutsideTemp {
			t.Errorf("observation %d: outside %.1f, want %.1f", i, o.OutsideTemp, want.OutsideTemp)
		}
	}

	// Spot-check every field on one row.
	got := obs[3]
	want := testObservation(base.Add(3*time.Hour), 3)
	got.Timestamp = want.Timestamp // compared above with Equal
	if got != want {
		t.Errorf("field round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestStoreEvictsOldObservations(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	now := time.Now()
	old := testObservation(now.AddDate(0, 0, -RetentionDays-2), 0)
	if err := store.Append(old); err != nil {
		t.Fatalf("append old: %v", err)
	}
	recent := testObservation(now, 1)
	if err := store.Append(recent); err != nil {
		t.Fatalf("append recent: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("expected old observation evicted, have %d", store.Len())
	}
	if got := store.Observations()[0]; !got.Timestamp.Equal(recent.Timestamp) {
		t.Errorf("surviving observation is the wrong one: %v", got.Timestamp)
	}
}

func TestStoreEvictionPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	now := time.Now()
	store.Append(testObservation(now.AddDate(0, 0, -RetentionDays-2), 0))
	store.Append(testObservation(now, 1))
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != 1 {
		t.Errorf("evicted row resurrected: have %d observations", reopened.Len())
	}
}

func TestStoredTimeLexicalOrder(t *testing.T) {
	// Eviction compares timestamp strings in SQL; encoding must keep
	// lexical order equal to chronological order, fractional seconds and
	// zone offsets included.
	base := time.Date(2026, 8, 23, 12, 0, 5, 0, time.UTC)

	whole := formatStoredTime(base)
	frac := formatStoredTime(base.Add(500 * time.Millisecond))
	if !(whole < frac) {
		t.Errorf("whole second %q should sort before fractional %q", whole, frac)
	}

	// Zoned input normalizes to the same string.
	cet := base.In(time.FixedZone("CET", 3600))
	if got := formatStoredTime(cet); got != whole {
		t.Errorf("zoned time encodes as %q, want %q", got, whole)
	}
}

func TestStoreSameSecondFractionalTimestamps(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// A whole-second row followed by a fractional one in the same second:
	// the eviction DELETE at flush must not catch the fractional row.
	base := time.Date(2026, 8, 23, 12, 0, 5, 0, time.UTC)
	store.Append(testObservation(base, 0))
	store.Append(testObservation(base.Add(500*time.Millisecond), 1))
	store.Append(testObservation(base.Add(time.Second), 2))
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != 3 {
		t.Fatalf("got %d observations after reload, want 3", reopened.Len())
	}
	obs := reopened.Observations()
	for i := 1; i < len(obs); i++ {
		if !obs[i].Timestamp.After(obs[i-1].Timestamp) {
			t.Errorf("order lost at %d: %v then %v", i, obs[i-1].Timestamp, obs[i].Timestamp)
		}
	}
}

func TestStoreLatest(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		store.Append(testObservation(base.Add(time.Duration(i)*time.Hour), i))
	}

	latest := store.Latest(3)
	if len(latest) != 3 {
		t.Fatalf("got %d, want 3", len(latest))
	}
	// Oldest first within the tail.
	if latest[0].OutsideTemp != 2 || latest[2].OutsideTemp != 4 {
		t.Errorf("unexpected tail: %v, %v", latest[0].OutsideTemp, latest[2].OutsideTemp)
	}

	if got := store.Latest(100); len(got) != 10 {
		t.Errorf("oversized request should cap at %d, got %d", 10, len(got))
	}
}

func TestStoreAccuracyRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	trained := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	store.SetAccuracy("energy_consumption", Accuracy{MAE: 0.42, Samples: 150, TrainedAt: trained})
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	acc, ok := reopened.Accuracies()["energy_consumption"]
	if !ok {
		t.Fatal("accuracy record lost")
	}
	if acc.MAE != 0.42 || acc.Samples != 150 || !acc.TrainedAt.Equal(trained) {
		t.Errorf("got %+v", acc)
	}
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	snap := Snapshot{
		LearningRate:    0.05,
		ThermalLagHours: 4,
		BuildingMass:    "high",
		HeatingSystem:   "radiator",
	}
	store.SetSnapshot(snap)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if got := reopened.ConfigSnapshot(); got != snap {
		t.Errorf("got %+v, want %+v", got, snap)
	}
}
