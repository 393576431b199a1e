package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// RetentionDays bounds how long observations are kept.
	RetentionDays = 365

	// flushEvery is the persistence cadence: pending rows and metadata are
	// written every flushEvery appends and at Close.
	flushEvery = 10
)

// storedTimeLayout is RFC 3339 with fixed-width fractional seconds, always
// UTC. Eviction compares timestamp strings in SQL, which is only correct
// when the encoding is fixed-width and single-zone.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatStoredTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// Store is the append-only, age-bounded observation log. It keeps the full
// retained window in memory for training and correlation analysis and
// persists it to SQLite. Append and flush are single-writer; reads may come
// from the HTTP API, so access is guarded by a mutex.
type Store struct {
	db *sql.DB

	mu           sync.Mutex
	observations []Observation
	pending      []Observation
	accuracy     map[string]Accuracy
	snapshot     Snapshot
	appends      int
}

// Open opens (creating if necessary) the store at dbPath and loads the
// retained observation window and model accuracy metadata.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:       db,
		accuracy: map[string]Accuracy{},
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		outside_temp REAL, humidity REAL, wind_speed REAL, cloud_cover REAL,
		room_temp REAL, target_temp REAL, outlet_temp REAL, inlet_temp REAL,
		pump_freq REAL, compressor_freq REAL,
		energy_consumption REAL, energy_production REAL, cop REAL,
		predicted_temp REAL, predicted_cop REAL,
		hour_of_day INTEGER, day_of_week INTEGER, month INTEGER,
		building_mass REAL, heating_system TEXT
	);

	CREATE TABLE IF NOT EXISTS model_accuracy (
		model TEXT PRIMARY KEY,
		mae REAL NOT NULL,
		samples INTEGER NOT NULL,
		trained_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS config_snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		snapshot TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_observations_timestamp ON observations(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) load() error {
	cutoff := time.Now().AddDate(0, 0, -RetentionDays)

	rows, err := s.db.Query(`SELECT timestamp,
		outside_temp, humidity, wind_speed, cloud_cover,
		room_temp, target_temp, outlet_temp, inlet_temp,
		pump_freq, compressor_freq,
		energy_consumption, energy_production, cop,
		predicted_temp, predicted_cop,
		hour_of_day, day_of_week, month, building_mass, heating_system
		FROM observations ORDER BY id`)
	if err != nil {
		return fmt.Errorf("loading observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o Observation
		var ts string
		err := rows.Scan(&ts,
			&o.OutsideTemp, &o.Humidity, &o.WindSpeed, &o.CloudCover,
			&o.RoomTemp, &o.TargetTemp, &o.OutletTemp, &o.InletTemp,
			&o.PumpFreq, &o.CompressorFreq,
			&o.EnergyConsumption, &o.EnergyProduction, &o.COP,
			&o.PredictedTemp, &o.PredictedCOP,
			&o.HourOfDay, &o.DayOfWeek, &o.Month, &o.BuildingMass, &o.HeatingSystem)
		if err != nil {
			return fmt.Errorf("scanning observation: %w", err)
		}
		o.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			continue
		}
		if o.Timestamp.Before(cutoff) {
			continue
		}
		s.observations = append(s.observations, o)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	accRows, err := s.db.Query(`SELECT model, mae, samples, trained_at FROM model_accuracy`)
	if err != nil {
		return fmt.Errorf("loading model accuracy: %w", err)
	}
	defer accRows.Close()

	for accRows.Next() {
		var name, trainedAt string
		var a Accuracy
		if err := accRows.Scan(&name, &a.MAE, &a.Samples, &trainedAt); err != nil {
			return err
		}
		a.TrainedAt, _ = time.Parse(time.RFC3339Nano, trainedAt)
		s.accuracy[name] = a
	}

	var snapshotJSON string
	err = s.db.QueryRow(`SELECT snapshot FROM config_snapshot WHERE id = 1`).Scan(&snapshotJSON)
	if err == nil {
		json.Unmarshal([]byte(snapshotJSON), &s.snapshot)
	}

	return nil
}

// Close flushes pending state and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	err := s.flushLocked()
	s.mu.Unlock()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// Append records one observation. Entries older than the retention window
// are evicted, and pending state is flushed every tenth append.
func (s *Store) Append(o Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := o.Timestamp.AddDate(0, 0, -RetentionDays)
	for len(s.observations) > 0 && s.observations[0].Timestamp.Before(cutoff) {
		s.observations = s.observations[1:]
	}

	s.observations = append(s.observations, o)
	s.pending = append(s.pending, o)
	s.appends++

	if s.appends%flushEvery == 0 {
		return s.flushLocked()
	}
	return nil
}

// Flush writes any pending observations and metadata immediately.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting flush: %w", err)
	}
	defer tx.Rollback()

	for _, o := range s.pending {
		_, err := tx.Exec(`INSERT INTO observations (timestamp,
			outside_temp, humidity, wind_speed, cloud_cover,
			room_temp, target_temp, outlet_temp, inlet_temp,
			pump_freq, compressor_freq,
			energy_consumption, energy_production, cop,
			predicted_temp, predicted_cop,
			hour_of_day, day_of_week, month, building_mass, heating_system)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			formatStoredTime(o.Timestamp),
			o.OutsideTemp, o.Humidity, o.WindSpeed, o.CloudCover,
			o.RoomTemp, o.TargetTemp, o.OutletTemp, o.InletTemp,
			o.PumpFreq, o.CompressorFreq,
			o.EnergyConsumption, o.EnergyProduction, o.COP,
			o.PredictedTemp, o.PredictedCOP,
			o.HourOfDay, o.DayOfWeek, o.Month, o.BuildingMass, o.HeatingSystem)
		if err != nil {
			return fmt.Errorf("inserting observation: %w", err)
		}
	}

	if len(s.observations) > 0 {
		cutoff := formatStoredTime(s.observations[0].Timestamp)
		if _, err := tx.Exec(`DELETE FROM observations WHERE timestamp < ?`, cutoff); err != nil {
			return fmt.Errorf("evicting observations: %w", err)
		}
	}

	for name, a := range s.accuracy {
		_, err := tx.Exec(`INSERT OR REPLACE INTO model_accuracy (model, mae, samples, trained_at)
			VALUES (?, ?, ?, ?)`,
			name, a.MAE, a.Samples, formatStoredTime(a.TrainedAt))
		if err != nil {
			return fmt.Errorf("saving model accuracy: %w", err)
		}
	}

	snapshotJSON, _ := json.Marshal(s.snapshot)
	_, err = tx.Exec(`INSERT OR REPLACE INTO config_snapshot (id, snapshot, saved_at)
		VALUES (1, ?, ?)`, string(snapshotJSON), formatStoredTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving config snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing flush: %w", err)
	}

	s.pending = s.pending[:0]
	return nil
}

// Len returns the number of retained observations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observations)
}

// Observations returns a copy of the retained window in storage order.
func (s *Store) Observations() []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observation, len(s.observations))
	copy(out, s.observations)
	return out
}

// Latest returns up to n most recent observations, oldest first.
func (s *Store) Latest(n int) []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.observations) {
		n = len(s.observations)
	}
	out := make([]Observation, n)
	copy(out, s.observations[len(s.observations)-n:])
	return out
}

// SetAccuracy records the accuracy of a retrained model. It is persisted on
// the next flush.
func (s *Store) SetAccuracy(model string, a Accuracy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accuracy[model] = a
}

// Accuracies returns a copy of the per-model accuracy records.
func (s *Store) Accuracies() map[string]Accuracy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Accuracy, len(s.accuracy))
	for k, v := range s.accuracy {
		out[k] = v
	}
	return out
}

// SetSnapshot records the configuration the history is collected under.
func (s *Store) SetSnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

// ConfigSnapshot returns the stored configuration snapshot.
func (s *Store) ConfigSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}
