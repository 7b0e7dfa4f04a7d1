package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"go-ocr-throughput/internal/model"
)

var db *sql.DB

// ErrRunNotFound is returned when a run id is unknown
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one persisted run
type RunRecord struct {
	ID          string        `json:"id"`
	Mode        model.Mode    `json:"mode"`
	Concurrency int           `json:"concurrency"`
	InputDir    string        `json:"input_dir"`
	Spec        model.RunSpec `json:"spec"`
	Status      string        `json:"status"`
	TotalJobs   int           `json:"total_jobs"`
	Succeeded   int64         `json:"succeeded"`
	Failed      int64         `json:"failed"`
	Skipped     int64         `json:"skipped"`
	ElapsedMS   int64         `json:"elapsed_ms"`
	Rate        *float64      `json:"rate"` // nil when the rate is undefined
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// JobErrorRecord is one failed or skipped job of a run
type JobErrorRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Job       string    `json:"job"`
	Unit      int       `json:"unit"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// UnitRecord is what one execution unit of a run did
type UnitRecord struct {
	RunID          string `json:"run_id"`
	Unit           int    `json:"unit"`
	Jobs           int64  `json:"jobs"`
	Failed         int64  `json:"failed"`
	Inits          int64  `json:"inits"`
	InitDurationMS int64  `json:"init_duration_ms"`
	BusyDurationMS int64  `json:"busy_duration_ms"`
}

// Initialize DB connection
func InitDB(dbPath string) error {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	// sqlite allows one writer at a time
	conn.SetMaxOpenConns(1)

	// Create tables if not exists
	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT,
		concurrency INTEGER,
		input_dir TEXT,
		spec TEXT,
		status TEXT,
		total_jobs INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		elapsed_ms INTEGER DEFAULT 0,
		rate REAL,
		error TEXT DEFAULT '',
		created_at DATETIME,
		updated_at DATETIME
	);
	`
	errorTable := `
	CREATE TABLE IF NOT EXISTS job_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		job TEXT,
		unit INTEGER,
		stage TEXT,
		message TEXT,
		created_at DATETIME
	);
	`
	unitTable := `
	CREATE TABLE IF NOT EXISTS run_units (
		run_id TEXT,
		unit INTEGER,
		jobs INTEGER,
		failed INTEGER,
		inits INTEGER,
		init_ms INTEGER,
		busy_ms INTEGER,
		PRIMARY KEY (run_id, unit)
	);
	`

	for _, stmt := range []string{runTable, errorTable, unitTable} {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return err
		}
	}

	db = conn
	return nil
}

// Enabled reports whether InitDB has been called
func Enabled() bool {
	return db != nil
}

// Close closes the database
func Close() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}

// ------------------- Runs -------------------

// SaveRun stores a new run in the running state
func SaveRun(runID string, spec model.RunSpec, totalJobs int) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = db.Exec(`INSERT INTO runs (id, mode, concurrency, input_dir, spec, status, total_jobs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, string(spec.Mode), spec.Concurrency, spec.InputDir, string(specJSON), model.StatusRunning, totalJobs, now, now)
	return err
}

// UpdateRunStatus updates run status
func UpdateRunStatus(runID, status string) error {
	now := time.Now().UTC()
	_, err := db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, now, runID)
	return err
}

// CompleteRun records the final report of a run. runErr is the fatal error
// that ended it, if any.
func CompleteRun(runID string, report model.RunReport, status string, runErr error) error {
	var rate sql.NullFloat64
	if report.RateDefined {
		rate = sql.NullFloat64{Float64: report.Rate, Valid: true}
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	now := time.Now().UTC()
	_, err := db.Exec(`UPDATE runs SET status = ?, total_jobs = ?, succeeded = ?, failed = ?, skipped = ?,
		elapsed_ms = ?, rate = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, report.TotalJobs, report.Succeeded, report.Failed, report.Skipped,
		report.Elapsed.Milliseconds(), rate, msg, now, runID)
	return err
}

// ListRuns returns all runs, newest first
func ListRuns() ([]RunRecord, error) {
	rows, err := db.Query(`SELECT id, mode, concurrency, input_dir, spec, status, total_jobs, succeeded, failed,
		skipped, elapsed_ms, rate, error, created_at, updated_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun fetches one run
func GetRun(runID string) (RunRecord, error) {
	row := db.QueryRow(`SELECT id, mode, concurrency, input_dir, spec, status, total_jobs, succeeded, failed,
		skipped, elapsed_ms, rate, error, created_at, updated_at FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrRunNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		r        RunRecord
		mode     string
		specJSON string
		rate     sql.NullFloat64
	)
	err := s.Scan(&r.ID, &mode, &r.Concurrency, &r.InputDir, &specJSON, &r.Status, &r.TotalJobs,
		&r.Succeeded, &r.Failed, &r.Skipped, &r.ElapsedMS, &rate, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.Mode = model.Mode(mode)
	if rate.Valid {
		r.Rate = &rate.Float64
	}
	if err := json.Unmarshal([]byte(specJSON), &r.Spec); err != nil {
		return r, fmt.Errorf("failed to decode spec of run %s: %w", r.ID, err)
	}
	return r, nil
}

// ------------------- Job errors -------------------

// SaveJobErrors records every failed or skipped job of a run
func SaveJobErrors(runID string, failures []model.JobFailure) error {
	if len(failures) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO job_errors (run_id, job, unit, stage, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, f := range failures {
		if _, err := stmt.Exec(runID, string(f.Job), f.Unit, f.Stage, f.Message, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRunErrors returns the job errors of a run in insertion order
func GetRunErrors(runID string) ([]JobErrorRecord, error) {
	rows, err := db.Query(`SELECT id, run_id, job, unit, stage, message, created_at FROM job_errors
		WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	errs := []JobErrorRecord{}
	for rows.Next() {
		var e JobErrorRecord
		if err := rows.Scan(&e.ID, &e.RunID, &e.Job, &e.Unit, &e.Stage, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// ------------------- Units -------------------

// SaveUnitStats records per-unit stats of a run
func SaveUnitStats(runID string, units []model.UnitStats) error {
	if len(units) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO run_units (run_id, unit, jobs, failed, inits, init_ms, busy_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range units {
		if _, err := stmt.Exec(runID, u.Unit, u.Jobs, u.Failed, u.Inits,
			u.InitDuration.Milliseconds(), u.BusyDuration.Milliseconds()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRunUnits returns the units of a run ordered by unit id
func GetRunUnits(runID string) ([]UnitRecord, error) {
	rows, err := db.Query(`SELECT run_id, unit, jobs, failed, inits, init_ms, busy_ms FROM run_units
		WHERE run_id = ? ORDER BY unit`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := []UnitRecord{}
	for rows.Next() {
		var u UnitRecord
		if err := rows.Scan(&u.RunID, &u.Unit, &u.Jobs, &u.Failed, &u.Inits, &u.InitDurationMS, &u.BusyDurationMS); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
