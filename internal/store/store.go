package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"linscore/internal/score"
)

//go:embed sql/*
var f embed.FS

// ErrNoWeights is returned by LatestVersion when no weights were saved yet.
var ErrNoWeights = errors.New("no weights stored")

// NotExistingVersionError is returned when a weights version is not stored.
type NotExistingVersionError struct {
	Version string
}

func (e *NotExistingVersionError) Error() string {
	return fmt.Sprintf("weights version %q does not exist", e.Version)
}

func NewNotExistingVersionError(version string) *NotExistingVersionError {
	return &NotExistingVersionError{Version: version}
}

// Store persists versioned weights tables and scoring results in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and its schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path not specified")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	ddl, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read the schema creation file: %w", err)
	}
	if _, err := db.Exec(string(ddl)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database schema in %s: %w", path, err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveWeights stores weights under version, replacing a previous table of the same version.
func (s *Store) SaveWeights(ctx context.Context, version string, weights score.WeightsTable) error {
	if version == "" {
		return errors.New("weights version not specified")
	}
	if err := weights.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM weights WHERE version = ?`, version); err != nil {
		return fmt.Errorf("failed to delete weights %s: %w", version, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO weights (version, position, feature, weight, tag, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	createdAt := s.now().UnixNano()
	for i, w := range weights {
		if _, err := stmt.ExecContext(ctx, version, i, w.Feature, w.Weight, w.Tag, createdAt); err != nil {
			return fmt.Errorf("failed to insert weight %s: %w", w.Feature, err)
		}
	}

	return tx.Commit()
}

// LoadWeights returns the weights table stored under version, in saved order.
func (s *Store) LoadWeights(ctx context.Context, version string) (score.WeightsTable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT feature, weight, tag FROM weights WHERE version = ? ORDER BY position`, version)
	if err != nil {
		return nil, fmt.Errorf("failed to query weights %s: %w", version, err)
	}
	defer rows.Close()

	var weights score.WeightsTable
	for rows.Next() {
		var w score.Weight
		if err := rows.Scan(&w.Feature, &w.Weight, &w.Tag); err != nil {
			return nil, err
		}
		weights = append(weights, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(weights) == 0 {
		return nil, NewNotExistingVersionError(version)
	}
	return weights, nil
}

// Versions returns the stored versions, most recent first.
func (s *Store) Versions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM weights GROUP BY version ORDER BY MAX(created_at) DESC, version DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// LatestVersion returns the most recently saved version.
func (s *Store) LatestVersion(ctx context.Context) (string, error) {
	versions, err := s.Versions(ctx)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", ErrNoWeights
	}
	return versions[0], nil
}

// Append saves a scoring result under runID. Keys are stored in their text form.
func (s *Store) Append(ctx context.Context, runID string, table *score.ScoresTable) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scores (run_id, primary_key, row_index, entity, column_index, name, value, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	createdAt := s.now().UnixNano()
	for i, row := range table.Rows {
		entity := score.KeyString(row.Key)
		for j, name := range table.Columns {
			if _, err := stmt.ExecContext(ctx, runID, table.PrimaryKey, i, entity, j, name, row.Values[j], createdAt); err != nil {
				return fmt.Errorf("failed to insert score %s of %s: %w", name, entity, err)
			}
		}
	}

	return tx.Commit()
}

// LoadScores returns the scoring result saved under runID.
func (s *Store) LoadScores(ctx context.Context, runID string) (*score.ScoresTable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT primary_key, row_index, entity, column_index, name, value FROM scores WHERE run_id = ? ORDER BY row_index, column_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores %s: %w", runID, err)
	}
	defer rows.Close()

	var table *score.ScoresTable
	for rows.Next() {
		var (
			primaryKey, entity, name string
			rowIndex, columnIndex    int
			value                    float64
		)
		if err := rows.Scan(&primaryKey, &rowIndex, &entity, &columnIndex, &name, &value); err != nil {
			return nil, err
		}
		if table == nil {
			table = &score.ScoresTable{PrimaryKey: primaryKey}
		}
		if rowIndex == 0 {
			table.Columns = append(table.Columns, name)
		}
		if rowIndex == len(table.Rows) {
			table.Rows = append(table.Rows, score.ScoreRow{Key: entity})
		}
		last := &table.Rows[len(table.Rows)-1]
		last.Values = append(last.Values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if table == nil {
		return nil, fmt.Errorf("scoring run %s not found", runID)
	}
	return table, nil
}
