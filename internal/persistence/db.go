// Package persistence provides SQLite-based storage of ensemble results.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/reptation/internal/ensemble"
	"github.com/talgya/reptation/internal/sampler"
)

// DB wraps a SQLite connection for result persistence.
type DB struct {
	conn *sqlx.DB
}

// EnsembleRow is one stored ensemble.
type EnsembleRow struct {
	ID         string  `db:"id" json:"id"`
	Topology   string  `db:"topology" json:"topology"`
	LinkLength float64 `db:"link_length" json:"link_length"`
	Metric     string  `db:"metric" json:"metric"`
	RateModel  string  `db:"rate_model" json:"rate_model"`
	Reptons    int     `db:"reptons" json:"reptons"`
	Epsilon    float64 `db:"epsilon" json:"epsilon"`
	Steps      int     `db:"steps" json:"steps"`
	Repeats    int     `db:"repeats" json:"repeats"`
	Seed       int64   `db:"seed" json:"seed"`
	InitPolicy string  `db:"init_policy" json:"init_policy"`
	CreatedAt  string  `db:"created_at" json:"created_at"`
	ElapsedMS  int64   `db:"elapsed_ms" json:"elapsed_ms"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ensembles (
		id TEXT PRIMARY KEY,
		topology TEXT NOT NULL,
		link_length REAL NOT NULL,
		metric TEXT NOT NULL,
		rate_model TEXT NOT NULL,
		reptons INTEGER NOT NULL,
		epsilon REAL NOT NULL,
		steps INTEGER NOT NULL,
		repeats INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		init_policy TEXT NOT NULL,
		created_at TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS aggregates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ensemble_id TEXT NOT NULL REFERENCES ensembles(id),
		kind TEXT NOT NULL,
		particles INTEGER NOT NULL,
		epsilon REAL NOT NULL,
		mean REAL NOT NULL,
		std_err REAL NOT NULL,
		runs INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		ensemble_id TEXT NOT NULL REFERENCES ensembles(id),
		run INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		sim_time REAL NOT NULL,
		cms_x REAL NOT NULL,
		stop_reason TEXT NOT NULL,
		PRIMARY KEY (ensemble_id, run)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_aggregates_ensemble ON aggregates(ensemble_id);
	CREATE INDEX IF NOT EXISTS idx_aggregates_kind ON aggregates(kind, particles, epsilon);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveReport writes an ensemble with its runs and aggregates in one
// transaction.
func (db *DB) SaveReport(ctx context.Context, report ensemble.Report) error {
	rates, err := json.Marshal(report.Plan.Rates)
	if err != nil {
		return fmt.Errorf("encode rate model: %w", err)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p := report.Plan
	_, err = tx.ExecContext(ctx, `INSERT INTO ensembles
		(id, topology, link_length, metric, rate_model, reptons, epsilon,
		 steps, repeats, seed, init_policy, created_at, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, p.Topology.Name, p.LinkLength, p.Metric.String(), string(rates),
		p.Reptons, p.Epsilon, p.Steps, p.Repeats, p.Seed, p.Init.String(),
		report.CreatedAt.UTC().Format(time.RFC3339Nano), report.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert ensemble %s: %w", report.ID, err)
	}

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO runs
		(ensemble_id, run, steps, sim_time, cms_x, stop_reason)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range report.Runs {
		cmsX := 0.0
		if len(r.Displacement) > 0 {
			cmsX = r.Displacement[0]
		}
		if _, err := stmt.ExecContext(ctx, report.ID, i, r.Steps, r.Time, cmsX, r.StopReason); err != nil {
			return fmt.Errorf("insert run %d: %w", i, err)
		}
	}

	for _, a := range report.Aggregates {
		_, err := tx.ExecContext(ctx, `INSERT INTO aggregates
			(ensemble_id, kind, particles, epsilon, mean, std_err, runs)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.ID, a.Kind, a.Particles, a.Epsilon, a.Mean, a.StdErr, a.Runs,
		)
		if err != nil {
			return fmt.Errorf("insert aggregate %s: %w", a.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("ensemble saved", "id", report.ID, "runs", len(report.Runs), "aggregates", len(report.Aggregates))
	return nil
}

// Ensemble returns a stored ensemble by ID.
func (db *DB) Ensemble(ctx context.Context, id string) (EnsembleRow, bool, error) {
	var row EnsembleRow
	err := db.conn.GetContext(ctx, &row, "SELECT * FROM ensembles WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return EnsembleRow{}, false, nil
	}
	if err != nil {
		return EnsembleRow{}, false, err
	}
	return row, true, nil
}

// Aggregates returns the aggregates of one ensemble in insertion order.
func (db *DB) Aggregates(ctx context.Context, ensembleID string) ([]sampler.Aggregate, error) {
	var aggs []sampler.Aggregate
	err := db.conn.SelectContext(ctx, &aggs,
		`SELECT kind, particles, epsilon, mean, std_err, runs
		 FROM aggregates WHERE ensemble_id = ? ORDER BY id`,
		ensembleID,
	)
	return aggs, err
}

// Series returns every stored aggregate of one kind and chain length,
// ordered by field strength: the data behind a v(ε) or D(N) curve.
func (db *DB) Series(ctx context.Context, kind string, particles int) ([]sampler.Aggregate, error) {
	var aggs []sampler.Aggregate
	err := db.conn.SelectContext(ctx, &aggs,
		`SELECT kind, particles, epsilon, mean, std_err, runs
		 FROM aggregates WHERE kind = ? AND particles = ? ORDER BY epsilon, id`,
		kind, particles,
	)
	return aggs, err
}

// RecentEnsembles returns the most recent N ensembles.
func (db *DB) RecentEnsembles(ctx context.Context, limit int) ([]EnsembleRow, error) {
	var rows []EnsembleRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT * FROM ensembles ORDER BY created_at DESC, id LIMIT ?",
		limit,
	)
	return rows, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
