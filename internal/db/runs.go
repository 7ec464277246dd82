package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one invocation of the navigation loop.
type Run struct {
	ID              string     `json:"run_id"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	FinalWallOffset *float64   `json:"final_wall_offset,omitempty"`
	Note            string     `json:"note,omitempty"`
}

// StartRun inserts a new run with a fresh ID.
func (db *DB) StartRun(startedAt time.Time, note string) (*Run, error) {
	run := &Run{ID: uuid.NewString(), StartedAt: startedAt.UTC(), Note: note}
	_, err := db.Exec(
		`INSERT INTO runs (run_id, started_at, note) VALUES (?, ?, ?)`,
		run.ID, unixSeconds(startedAt), nullString(note),
	)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the end of a run and its final wall offset.
func (db *DB) FinishRun(id string, finishedAt time.Time, wallOffset float64) error {
	res, err := db.Exec(
		`UPDATE runs SET finished_at = ?, final_wall_offset = ? WHERE run_id = ?`,
		unixSeconds(finishedAt), wallOffset, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

const runColumns = `run_id, started_at, finished_at, final_wall_offset, note`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		startedAt  float64
		finishedAt sql.NullFloat64
		offset     sql.NullFloat64
		note       sql.NullString
	)
	if err := row.Scan(&run.ID, &startedAt, &finishedAt, &offset, &note); err != nil {
		return nil, err
	}
	run.StartedAt = fromUnixSeconds(startedAt)
	if finishedAt.Valid {
		t := fromUnixSeconds(finishedAt.Float64)
		run.FinishedAt = &t
	}
	if offset.Valid {
		run.FinalWallOffset = &offset.Float64
	}
	run.Note = note.String
	return &run, nil
}

// GetRun returns one run.
func (db *DB) GetRun(id string) (*Run, error) {
	run, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// LatestRun returns the most recently started run.
func (db *DB) LatestRun() (*Run, error) {
	run, err := scanRun(db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListRuns returns up to limit runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
