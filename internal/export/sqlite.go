package export

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteWriter 將每次匯出寫成 runs 表一列與 paths 表多列
type SQLiteWriter struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// RunSummary runs 表的一列
type RunSummary struct {
	RunID       string
	Format      string
	Total       int
	Successful  int
	SuccessRate float64
}

// OpenSQLite 開啟資料庫並套用所有 migration
func OpenSQLite(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteWriter{db: db, path: path}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m 不關閉：關閉會連帶關閉底層 db
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) Write(d Dataset) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs (run_id, exported_at, format, grid_width, grid_height,
		grid_fingerprint, total, successful, truncated, success_rate, avg_length, avg_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Timestamp.UnixMilli(), string(d.Format), d.GridWidth, d.GridHeight,
		d.Fingerprint, d.Stats.Total, d.Stats.Successful, d.Stats.Truncated,
		d.Stats.SuccessRate, d.Stats.AvgLength, d.Stats.AvgTimeMs)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO paths (run_id, request_id, start_x, start_y, end_x, end_y,
		success, reached_target, truncated, length, cost, time_ms, grid_version, coordinates)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare path insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range d.Paths {
		var timeMs sql.NullFloat64
		if p.Timed {
			timeMs = sql.NullFloat64{Float64: p.TimeMs, Valid: true}
		}
		var coords sql.NullString
		if p.Coordinates != "" {
			coords = sql.NullString{String: p.Coordinates, Valid: true}
		}
		if _, err := stmt.Exec(d.RunID, int64(p.ID), p.Start.X, p.Start.Y, p.End.X, p.End.Y,
			p.Success, p.ReachedTarget, p.Truncated, p.Length, p.Cost, timeMs,
			int64(p.GridVersion), coords); err != nil {
			return "", fmt.Errorf("failed to insert path %d: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit export: %w", err)
	}
	return fmt.Sprintf("%s#%s", w.path, d.RunID), nil
}

// Runs 依匯出時間列出所有 run
func (w *SQLiteWriter) Runs() ([]RunSummary, error) {
	rows, err := w.db.Query(`SELECT run_id, format, total, successful, success_rate
		FROM runs ORDER BY exported_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Format, &r.Total, &r.Successful, &r.SuccessRate); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountPaths 某個 run 的路徑數
func (w *SQLiteWriter) CountPaths(runID string) (int, error) {
	var n int
	err := w.db.QueryRow(`SELECT COUNT(*) FROM paths WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
