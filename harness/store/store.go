// Package store persists localization runs to SQLite: per-test-case
// verdicts, per-line coverage and the ranked suspicious lines. A run is
// one localization pass over one source build; the matrix is rebuilt, not
// mutated, whenever the source changes.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ctrlfault/ctrlfault/harness/sbfl"
)

type Store struct {
	*sql.DB
}

// Open opens (and if needed initializes) the results database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			source_file TEXT,
			metric TEXT,
			epsilon DOUBLE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS verdicts (
			run_id TEXT,
			test_case TEXT,
			passed BOOLEAN,
			failed_iteration INTEGER,
			reason TEXT,
			PRIMARY KEY (run_id, test_case),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS coverage (
			run_id TEXT,
			test_case TEXT,
			line INTEGER,
			hits INTEGER,
			PRIMARY KEY (run_id, test_case, line),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS rankings (
			run_id TEXT,
			rank INTEGER,
			line INTEGER,
			score DOUBLE,
			ef INTEGER,
			ep INTEGER,
			PRIMARY KEY (run_id, rank),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db}, nil
}

// NewRun creates a run record and returns its identifier.
func (s *Store) NewRun(sourceFile, metric string, epsilon float64) (string, error) {
	runID := uuid.NewString()
	_, err := s.Exec(
		"INSERT INTO runs (run_id, source_file, metric, epsilon, created_at) VALUES (?, ?, ?, ?, ?)",
		runID, sourceFile, metric, epsilon, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return runID, nil
}

// SaveVerdict records one test case's verdict for a run.
func (s *Store) SaveVerdict(runID, testCase string, passed bool, failedIteration int, reason string) error {
	_, err := s.Exec(
		"INSERT OR REPLACE INTO verdicts (run_id, test_case, passed, failed_iteration, reason) VALUES (?, ?, ?, ?, ?)",
		runID, testCase, passed, failedIteration, reason,
	)
	return err
}

// SaveCoverage records one test case's per-line hit counts for a run.
func (s *Store) SaveCoverage(runID, testCase string, counts map[int]uint64) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO coverage (run_id, test_case, line, hits) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for line, hits := range counts {
		if _, err := stmt.Exec(runID, testCase, line, hits); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SaveRanking records the ranked suspicious lines for a run.
func (s *Store) SaveRanking(runID string, scores []sbfl.Score) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO rankings (run_id, rank, line, score, ef, ep) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i, sc := range scores {
		if _, err := stmt.Exec(runID, i+1, sc.Line, sc.Score, sc.Ef, sc.Ep); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadMatrix rebuilds a run's coverage matrix from the stored coverage
// and verdicts.
func (s *Store) LoadMatrix(runID string) (*sbfl.Matrix, error) {
	var sourceFile string
	if err := s.QueryRow("SELECT source_file FROM runs WHERE run_id = ?", runID).Scan(&sourceFile); err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	counts := make(map[string]map[int]uint64)
	rows, err := s.Query("SELECT test_case, line, hits FROM coverage WHERE run_id = ?", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var testCase string
		var line int
		var hits uint64
		if err := rows.Scan(&testCase, &line, &hits); err != nil {
			return nil, err
		}
		if counts[testCase] == nil {
			counts[testCase] = make(map[int]uint64)
		}
		counts[testCase][line] = hits
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	verdicts := make(map[string]bool)
	vrows, err := s.Query("SELECT test_case, passed FROM verdicts WHERE run_id = ?", runID)
	if err != nil {
		return nil, err
	}
	defer vrows.Close()
	for vrows.Next() {
		var testCase string
		var passed bool
		if err := vrows.Scan(&testCase, &passed); err != nil {
			return nil, err
		}
		verdicts[testCase] = passed
	}
	if err := vrows.Err(); err != nil {
		return nil, err
	}

	matrix := sbfl.NewMatrix(sourceFile)
	for testCase, passed := range verdicts {
		matrix.RecordCounts(testCase, counts[testCase], passed)
	}
	return matrix, nil
}

// LatestRun returns the most recently created run identifier.
func (s *Store) LatestRun() (string, error) {
	var runID string
	err := s.QueryRow("SELECT run_id FROM runs ORDER BY created_at DESC, run_id DESC LIMIT 1").Scan(&runID)
	if err != nil {
		return "", err
	}
	return runID, nil
}
