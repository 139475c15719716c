// Package runstore keeps a local history of test runs, results,
// evaluations, and errors in SQLite. The collector writes to it as the
// runner reports; the CLI reads it back for run summaries.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists run telemetry in SQLite.
type Store struct {
	db *sql.DB

	insertGridGroupStmt *sql.Stmt
	insertRunStmt       *sql.Stmt
	endRunStmt          *sql.Stmt
	insertResultStmt    *sql.Stmt
	insertEvalStmt      *sql.Stmt
	insertErrorStmt     *sql.Stmt
	getRunStmt          *sql.Stmt
	runsBySuiteStmt     *sql.Stmt
	resultsByRunStmt    *sql.Stmt
	evalsByRunStmt      *sql.Stmt
	errorsByRunStmt     *sql.Stmt
}

// Open opens or creates a store at the given path. ":memory:" gives an
// ephemeral store.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("runstore: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("runstore: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("runstore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runstore: ping sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &Store{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS grid_groups (
			id TEXT PRIMARY KEY,
			test_external_id TEXT NOT NULL,
			params_json TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			test_external_id TEXT NOT NULL,
			grid_group_id TEXT,
			grid_combo_json TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			test_case_hash TEXT NOT NULL,
			body BLOB,
			output BLOB,
			duration_ms REAL NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS evals (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			test_case_hash TEXT NOT NULL,
			evaluator_external_id TEXT NOT NULL,
			score REAL NOT NULL,
			threshold_json TEXT,
			metadata_json TEXT,
			assertions_json TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS errors (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			test_case_hash TEXT,
			evaluator_external_id TEXT,
			name TEXT NOT NULL,
			message TEXT NOT NULL,
			stacktrace TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_suite ON runs(test_external_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_evals_run_id ON evals(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_run_id ON errors(run_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("runstore: init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("runstore: nil store")
	}

	ctx := context.Background()
	type stmtSpec struct {
		dst    **sql.Stmt
		query  string
		errFmt string
	}

	specs := []stmtSpec{
		{
			dst:    &s.insertGridGroupStmt,
			query:  `INSERT INTO grid_groups (id, test_external_id, params_json, created_at) VALUES (?, ?, ?, ?)`,
			errFmt: "runstore: prepare insert grid group: %w",
		},
		{
			dst: &s.insertRunStmt,
			query: `
				INSERT INTO runs (id, test_external_id, grid_group_id, grid_combo_json, started_at)
				VALUES (?, ?, ?, ?, ?)
			`,
			errFmt: "runstore: prepare insert run: %w",
		},
		{
			dst:    &s.endRunStmt,
			query:  `UPDATE runs SET ended_at = ? WHERE id = ?`,
			errFmt: "runstore: prepare end run: %w",
		},
		{
			dst: &s.insertResultStmt,
			query: `
				INSERT INTO results (id, run_id, test_case_hash, body, output, duration_ms, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "runstore: prepare insert result: %w",
		},
		{
			dst: &s.insertEvalStmt,
			query: `
				INSERT INTO evals (
					id, run_id, test_case_hash, evaluator_external_id, score,
					threshold_json, metadata_json, assertions_json, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "runstore: prepare insert eval: %w",
		},
		{
			dst: &s.insertErrorStmt,
			query: `
				INSERT INTO errors (
					id, run_id, test_case_hash, evaluator_external_id, name, message, stacktrace, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "runstore: prepare insert error: %w",
		},
		{
			dst: &s.getRunStmt,
			query: `
				SELECT id, test_external_id, grid_group_id, grid_combo_json, started_at, ended_at
				FROM runs WHERE id = ?
			`,
			errFmt: "runstore: prepare get run: %w",
		},
		{
			dst: &s.runsBySuiteStmt,
			query: `
				SELECT id, test_external_id, grid_group_id, grid_combo_json, started_at, ended_at
				FROM runs
				WHERE test_external_id = ?
				ORDER BY started_at DESC
				LIMIT ?
			`,
			errFmt: "runstore: prepare runs by suite: %w",
		},
		{
			dst: &s.resultsByRunStmt,
			query: `
				SELECT id, run_id, test_case_hash, body, output, duration_ms, created_at
				FROM results
				WHERE run_id = ?
				ORDER BY created_at ASC, test_case_hash ASC
			`,
			errFmt: "runstore: prepare results by run: %w",
		},
		{
			dst: &s.evalsByRunStmt,
			query: `
				SELECT id, run_id, test_case_hash, evaluator_external_id, score,
					threshold_json, metadata_json, assertions_json, created_at
				FROM evals
				WHERE run_id = ?
				ORDER BY created_at ASC, test_case_hash ASC, evaluator_external_id ASC
			`,
			errFmt: "runstore: prepare evals by run: %w",
		},
		{
			dst: &s.errorsByRunStmt,
			query: `
				SELECT id, run_id, test_case_hash, evaluator_external_id, name, message, stacktrace, created_at
				FROM errors
				WHERE run_id = ?
				ORDER BY created_at ASC
			`,
			errFmt: "runstore: prepare errors by run: %w",
		},
	}

	for _, spec := range specs {
		stmt, err := s.db.PrepareContext(ctx, spec.query)
		if err != nil {
			return fmt.Errorf(spec.errFmt, err)
		}
		*spec.dst = stmt
	}
	return nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	stmts := []*sql.Stmt{
		s.insertGridGroupStmt,
		s.insertRunStmt,
		s.endRunStmt,
		s.insertResultStmt,
		s.insertEvalStmt,
		s.insertErrorStmt,
		s.getRunStmt,
		s.runsBySuiteStmt,
		s.resultsByRunStmt,
		s.evalsByRunStmt,
		s.errorsByRunStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateGridGroup records a grid-search run group.
func (s *Store) CreateGridGroup(ctx context.Context, g *GridGroupRecord) error {
	if s == nil {
		return errors.New("runstore: nil store")
	}
	if g == nil {
		return errors.New("runstore: nil grid group")
	}
	if strings.TrimSpace(g.ID) == "" || strings.TrimSpace(g.TestExternalID) == "" {
		return errors.New("runstore: grid group missing id or suite id")
	}

	paramsJSON, err := json.Marshal(g.Params)
	if err != nil {
		return fmt.Errorf("runstore: marshal grid params: %w", err)
	}
	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.insertGridGroupStmt.ExecContext(ctx, g.ID, g.TestExternalID, string(paramsJSON), createdAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("runstore: insert grid group: %w", err)
	}
	return nil
}

// CreateRun records the start of a run.
func (s *Store) CreateRun(ctx context.Context, run *RunRecord) error {
	if s == nil {
		return errors.New("runstore: nil store")
	}
	if run == nil {
		return errors.New("runstore: nil run")
	}
	if strings.TrimSpace(run.ID) == "" || strings.TrimSpace(run.TestExternalID) == "" {
		return errors.New("runstore: run missing id or suite id")
	}

	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	var comboJSON sql.NullString
	if run.GridCombo != nil {
		encoded, err := json.Marshal(run.GridCombo)
		if err != nil {
			return fmt.Errorf("runstore: marshal grid combo: %w", err)
		}
		comboJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err := s.insertRunStmt.ExecContext(ctx,
		run.ID,
		run.TestExternalID,
		nullString(run.GridGroupID),
		comboJSON,
		startedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("runstore: insert run: %w", err)
	}
	return nil
}

// EndRun marks a run as finished.
func (s *Store) EndRun(ctx context.Context, runID string, endedAt time.Time) error {
	if s == nil {
		return errors.New("runstore: nil store")
	}
	if strings.TrimSpace(runID) == "" {
		return errors.New("runstore: empty run id")
	}
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}

	res, err := s.endRunStmt.ExecContext(ctx, endedAt.UTC().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("runstore: end run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("runstore: end run: unknown run %s", runID)
	}
	return nil
}

// SaveResult persists one test case result.
func (s *Store) SaveResult(ctx context.Context, r *ResultRecord) error {
	if s == nil {
		return errors.New("runstore: nil store")
	}
	if r == nil {
		return errors.New("runstore: nil result")
	}
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.RunID) == "" || strings.TrimSpace(r.TestCaseHash) == "" {
		return errors.New("runstore: result missing id, run id, or hash")
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.insertResultStmt.ExecContext(ctx,
		r.ID, r.RunID, r.TestCaseHash,
		[]byte(r.Body), []byte(r.Output),
		r.DurationMs, createdAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("runstore: insert result: %w", err)
	}
	return nil
}

// SaveEvaluation persists one evaluator verdict.
func (s *Store) SaveEvaluation(ctx context.Context, e *EvalRecord) error {
	if s == nil {
		return errors.New("runstore: nil store")
	}
	if e == nil {
		return errors.New("runstore: nil evaluation")
	}
	if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.RunID) == "" ||
		strings.TrimSpace(e.TestCaseHash) == "" || strings.TrimSpace(e.EvaluatorExternalID) == "" {
		return errors.New("runstore: evaluation missing id, run id, hash, or evaluator id")
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.insertEvalStmt.ExecContext(ctx,
		e.ID, e.RunID, e.TestCaseHash, e.EvaluatorExternalID, e.Score,
		nullRaw(e.Threshold), nullRaw(e.Metadata), nullRaw(e.Assertions),
		createdAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("runstore: insert eval: %w", err)
	}
	return nil
}

// SaveError persists one reported failure.
func (s *Store) SaveError(ctx context.Context, e *ErrorRecord) error {
	if s == nil {
		return errors.New("runstore: nil store")
	}
	if e == nil {
		return errors.New("runstore: nil error record")
	}
	if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.RunID) == "" {
		return errors.New("runstore: error record missing id or run id")
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.insertErrorStmt.ExecContext(ctx,
		e.ID, e.RunID,
		nullString(e.TestCaseHash), nullString(e.EvaluatorExternalID),
		e.Name, e.Message, nullString(e.Stacktrace),
		createdAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("runstore: insert error: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s == nil {
		return nil, errors.New("runstore: nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("runstore: empty run id")
	}

	run, err := scanRun(s.getRunStmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("runstore: get run: %w", err)
	}
	return run, nil
}

// RunsForSuite lists the most recent runs of a suite, newest first.
func (s *Store) RunsForSuite(ctx context.Context, testExternalID string, limit int) ([]*RunRecord, error) {
	if s == nil {
		return nil, errors.New("runstore: nil store")
	}
	if strings.TrimSpace(testExternalID) == "" {
		return nil, errors.New("runstore: empty suite id")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.runsBySuiteStmt.QueryContext(ctx, testExternalID, limit)
	if err != nil {
		return nil, fmt.Errorf("runstore: runs for suite: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("runstore: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runstore: runs for suite: %w", err)
	}
	return runs, nil
}

// ResultsForRun lists the results saved for a run.
func (s *Store) ResultsForRun(ctx context.Context, runID string) ([]*ResultRecord, error) {
	if s == nil {
		return nil, errors.New("runstore: nil store")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("runstore: empty run id")
	}

	rows, err := s.resultsByRunStmt.QueryContext(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("runstore: results for run: %w", err)
	}
	defer rows.Close()

	var results []*ResultRecord
	for rows.Next() {
		var (
			r         ResultRecord
			createdMS int64
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.TestCaseHash, &r.Body, &r.Output, &r.DurationMs, &createdMS); err != nil {
			return nil, fmt.Errorf("runstore: scan result: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdMS).UTC()
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runstore: results for run: %w", err)
	}
	return results, nil
}

// EvaluationsForRun lists the evaluations saved for a run.
func (s *Store) EvaluationsForRun(ctx context.Context, runID string) ([]*EvalRecord, error) {
	if s == nil {
		return nil, errors.New("runstore: nil store")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("runstore: empty run id")
	}

	rows, err := s.evalsByRunStmt.QueryContext(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("runstore: evals for run: %w", err)
	}
	defer rows.Close()

	var evals []*EvalRecord
	for rows.Next() {
		var (
			e                             EvalRecord
			threshold, metadata, asserted sql.NullString
			createdMS                     int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.TestCaseHash, &e.EvaluatorExternalID, &e.Score,
			&threshold, &metadata, &asserted, &createdMS); err != nil {
			return nil, fmt.Errorf("runstore: scan eval: %w", err)
		}
		e.Threshold = rawFromNull(threshold)
		e.Metadata = rawFromNull(metadata)
		e.Assertions = rawFromNull(asserted)
		e.CreatedAt = time.UnixMilli(createdMS).UTC()
		evals = append(evals, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runstore: evals for run: %w", err)
	}
	return evals, nil
}

// ErrorsForRun lists the failures reported for a run.
func (s *Store) ErrorsForRun(ctx context.Context, runID string) ([]*ErrorRecord, error) {
	if s == nil {
		return nil, errors.New("runstore: nil store")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("runstore: empty run id")
	}

	rows, err := s.errorsByRunStmt.QueryContext(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("runstore: errors for run: %w", err)
	}
	defer rows.Close()

	var records []*ErrorRecord
	for rows.Next() {
		var (
			e               ErrorRecord
			hash, evaluator sql.NullString
			stacktrace      sql.NullString
			createdMS       int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &hash, &evaluator, &e.Name, &e.Message, &stacktrace, &createdMS); err != nil {
			return nil, fmt.Errorf("runstore: scan error record: %w", err)
		}
		e.TestCaseHash = hash.String
		e.EvaluatorExternalID = evaluator.String
		e.Stacktrace = stacktrace.String
		e.CreatedAt = time.UnixMilli(createdMS).UTC()
		records = append(records, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runstore: errors for run: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run       RunRecord
		groupID   sql.NullString
		comboJSON sql.NullString
		startedMS int64
		endedMS   sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.TestExternalID, &groupID, &comboJSON, &startedMS, &endedMS); err != nil {
		return nil, err
	}
	run.GridGroupID = groupID.String
	run.StartedAt = time.UnixMilli(startedMS).UTC()
	if endedMS.Valid {
		ended := time.UnixMilli(endedMS.Int64).UTC()
		run.EndedAt = &ended
	}
	if comboJSON.Valid && comboJSON.String != "" {
		if err := json.Unmarshal([]byte(comboJSON.String), &run.GridCombo); err != nil {
			return nil, fmt.Errorf("parse grid combo: %w", err)
		}
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawFromNull(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
