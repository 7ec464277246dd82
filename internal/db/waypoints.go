package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/nav"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

// Waypoint is a persisted detection position.
type Waypoint struct {
	RunID      string       `json:"run_id"`
	Key        int          `json:"key"`
	Position   nav.Position `json:"position"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// WaypointStore writes one run's waypoints and transitions. It implements
// nav.WaypointRecorder.
type WaypointStore struct {
	db    *DB
	runID string
	clock timeutil.Clock
}

// NewWaypointStore returns a store bound to runID.
func NewWaypointStore(db *DB, runID string, clock timeutil.Clock) *WaypointStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &WaypointStore{db: db, runID: runID, clock: clock}
}

// RunID returns the run the store writes to.
func (s *WaypointStore) RunID() string { return s.runID }

// RecordWaypoint upserts the waypoint for key; a later detection with the
// same key replaces the earlier position.
func (s *WaypointStore) RecordWaypoint(key int, pos nav.Position) error {
	_, err := s.db.Exec(`
		INSERT INTO waypoints (run_id, waypoint_key, x, y, z, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, waypoint_key) DO UPDATE SET
			x = excluded.x, y = excluded.y, z = excluded.z, recorded_at = excluded.recorded_at`,
		s.runID, key, pos.X, pos.Y, pos.Z, unixSeconds(s.clock.Now()),
	)
	if err != nil {
		return fmt.Errorf("record waypoint %d: %w", key, err)
	}
	return nil
}

// RecordTransition persists t. It matches nav.TransitionLog.OnTransition, so
// failures are logged rather than returned.
func (s *WaypointStore) RecordTransition(t nav.Transition) {
	_, err := s.db.Exec(
		`INSERT INTO nav_transitions (run_id, track, label, recorded_at) VALUES (?, ?, ?, ?)`,
		s.runID, string(t.Track), t.Label, unixSeconds(t.At),
	)
	if err != nil {
		monitoring.Logf("failed to persist transition %s: %v", t.Label, err)
	}
}

// ListWaypoints returns a run's waypoints ordered by key.
func (db *DB) ListWaypoints(runID string) ([]Waypoint, error) {
	rows, err := db.Query(`
		SELECT run_id, waypoint_key, x, y, z, recorded_at
		FROM waypoints WHERE run_id = ? ORDER BY waypoint_key`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Waypoint
	for rows.Next() {
		wp, err := scanWaypoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *wp)
	}
	return out, rows.Err()
}

// GetWaypoint returns one waypoint.
func (db *DB) GetWaypoint(runID string, key int) (*Waypoint, error) {
	wp, err := scanWaypoint(db.QueryRow(`
		SELECT run_id, waypoint_key, x, y, z, recorded_at
		FROM waypoints WHERE run_id = ? AND waypoint_key = ?`, runID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s key %d", ErrWaypointNotFound, runID, key)
	}
	return wp, err
}

func scanWaypoint(row rowScanner) (*Waypoint, error) {
	var (
		wp Waypoint
		at float64
	)
	if err := row.Scan(&wp.RunID, &wp.Key, &wp.Position.X, &wp.Position.Y, &wp.Position.Z, &at); err != nil {
		return nil, err
	}
	wp.RecordedAt = fromUnixSeconds(at)
	return &wp, nil
}

// TransitionRecord is a persisted state transition.
type TransitionRecord struct {
	Track      string    `json:"track"`
	Label      string    `json:"label"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ListTransitions returns a run's transitions in order.
func (db *DB) ListTransitions(runID string) ([]TransitionRecord, error) {
	rows, err := db.Query(`
		SELECT track, label, recorded_at FROM nav_transitions
		WHERE run_id = ? ORDER BY recorded_at, transition_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var (
			r  TransitionRecord
			at float64
		)
		if err := rows.Scan(&r.Track, &r.Label, &at); err != nil {
			return nil, err
		}
		r.RecordedAt = fromUnixSeconds(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
