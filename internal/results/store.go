// Copyright Volt Labs Inc., 2026. All rights reserved.

package results

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/voltlab/ocvfit/pkg/types"
)

// Store persists longitudinal fit rows in a SQLite database so fits
// accumulated over a cell's life survive between runs.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the SQLite database at path, creating the
// parent directory and schema as needed.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	const stmt = `CREATE TABLE IF NOT EXISTS fits (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		ah REAL NOT NULL,
		xn0 REAL NOT NULL, xn0_std REAL,
		xn1 REAL NOT NULL, xn1_std REAL,
		xp0 REAL NOT NULL, xp0_std REAL,
		xp1 REAL NOT NULL, xp1_std REAL,
		ir REAL NOT NULL, ir_std REAL,
		objective REAL NOT NULL,
		success INTEGER NOT NULL,
		message TEXT,
		iterations INTEGER,
		created_at TEXT NOT NULL
	)`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("executing schema statement: %w", err)
	}
	return nil
}

// Append inserts one fit row. Missing standard deviations and the
// grid-search iteration sentinel (-1) are stored as NULL.
func (s *Store) Append(row Row) error {
	var std [5]any
	if row.Stdev != nil {
		sd := *row.Stdev
		std = [5]any{sd.Xn0, sd.Xn1, sd.Xp0, sd.Xp1, sd.IR}
	}

	var iterations any
	if row.Iterations >= 0 {
		iterations = row.Iterations
	}

	_, err := s.db.Exec(
		`INSERT INTO fits (ah, xn0, xn0_std, xn1, xn1_std, xp0, xp0_std,
			xp1, xp1_std, ir, ir_std, objective, success, message,
			iterations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Ah,
		row.Params.Xn0, std[0],
		row.Params.Xn1, std[1],
		row.Params.Xp0, std[2],
		row.Params.Xp1, std[3],
		row.Params.IR, std[4],
		row.Objective,
		row.Success,
		row.Message,
		iterations,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting fit row: %w", err)
	}
	return nil
}

// List loads every stored fit row in insertion order.
func (s *Store) List() (*Table, error) {
	rows, err := s.db.Query(
		`SELECT ah, xn0, xn0_std, xn1, xn1_std, xp0, xp0_std, xp1, xp1_std,
			ir, ir_std, objective, success, message, iterations
		 FROM fits ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying fits: %w", err)
	}
	defer rows.Close()

	table := &Table{}
	for rows.Next() {
		var r Row
		var stds [5]sql.NullFloat64
		var iterations sql.NullInt64

		err := rows.Scan(
			&r.Ah,
			&r.Params.Xn0, &stds[0],
			&r.Params.Xn1, &stds[1],
			&r.Params.Xp0, &stds[2],
			&r.Params.Xp1, &stds[3],
			&r.Params.IR, &stds[4],
			&r.Objective,
			&r.Success,
			&r.Message,
			&iterations,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning fit row: %w", err)
		}

		if stds[0].Valid {
			r.Stdev = &types.FitParams{
				Xn0: stds[0].Float64,
				Xn1: stds[1].Float64,
				Xp0: stds[2].Float64,
				Xp1: stds[3].Float64,
				IR:  stds[4].Float64,
			}
		}
		if iterations.Valid {
			r.Iterations = int(iterations.Int64)
		} else {
			r.Iterations = -1
		}

		table.Rows = append(table.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fit rows: %w", err)
	}
	return table, nil
}
