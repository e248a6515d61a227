// Package history keeps a SQLite ledger of dispatch assignments and merge decisions.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/dispatcher"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/guardian"
)

// AssignmentRecord is one stored dispatch result.
type AssignmentRecord struct {
	CreatedAt time.Time
	ID        string
	RunID     string
	Title     string
	Agent     string
	Reason    string
	Error     string
	Issue     int
	RiskScore int
	Applied   bool
}

// DecisionRecord is one stored guardian outcome.
type DecisionRecord struct {
	CreatedAt  time.Time
	ID         string
	RunID      string
	Kind       string
	Reason     string // blocker reason, empty unless Kind is blocked
	Action     string
	Error      string
	PR         int
	Confidence int // -1 when the decision carries none
	Threshold  int
	Applied    bool
}

// Store is a SQLite-backed history ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunID returns a fresh identifier grouping the records of one run.
func NewRunID() string {
	return uuid.NewString()
}

// Open opens or creates the ledger at path. ":memory:" gives a private in-memory ledger.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// SQLite serializes writers anyway; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		issue INTEGER NOT NULL,
		title TEXT NOT NULL,
		agent TEXT NOT NULL,
		risk_score INTEGER NOT NULL,
		reason TEXT NOT NULL,
		applied INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		pr INTEGER NOT NULL,
		kind TEXT NOT NULL,
		confidence INTEGER NOT NULL,
		threshold INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		applied INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_created ON assignments(created_at);
	CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	return nil
}

// RecordAssignments stores every result of one dispatch run in a single transaction.
func (s *Store) RecordAssignments(ctx context.Context, runID string, results []dispatcher.Result) (err error) {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO assignments (
		id, run_id, issue, title, agent, risk_score, reason, applied, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ts := s.timestamp()
	for i := range results {
		r := &results[i]
		if _, err = stmt.ExecContext(ctx,
			uuid.NewString(), runID, r.Issue, r.Title, r.Agent.Label(), r.RiskScore, r.Reason, r.Applied, errString(r.Err), ts,
		); err != nil {
			return fmt.Errorf("failed to insert assignment for issue #%d: %w", r.Issue, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecordDecision stores one guardian outcome. Outcomes without a decision are skipped.
func (s *Store) RecordDecision(ctx context.Context, runID string, out guardian.Outcome) error {
	if out.Decision == nil {
		return nil
	}
	confidence, ok := guardian.Confidence(out.Decision)
	if !ok {
		confidence = -1
	}
	threshold := 0
	reason := ""
	switch d := out.Decision.(type) {
	case guardian.Escalate:
		threshold = d.Threshold
	case guardian.Blocked:
		reason = d.Reason
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO decisions (
		id, run_id, pr, kind, confidence, threshold, reason, action, applied, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), runID, out.PR, string(out.Decision.Kind()), confidence, threshold, reason, out.Action, out.Applied, errString(out.Err), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision for PR #%d: %w", out.PR, err)
	}
	return nil
}

// RecentAssignments returns up to limit assignments, newest first.
func (s *Store) RecentAssignments(ctx context.Context, limit int) ([]AssignmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, issue, title, agent, risk_score, reason, applied, error, created_at
		FROM assignments
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AssignmentRecord
	for rows.Next() {
		var r AssignmentRecord
		var ts string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Issue, &r.Title, &r.Agent, &r.RiskScore, &r.Reason, &r.Applied, &r.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if r.CreatedAt, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentDecisions returns up to limit decisions, newest first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, pr, kind, confidence, threshold, reason, action, applied, error, created_at
		FROM decisions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		var ts string
		if err := rows.Scan(&r.ID, &r.RunID, &r.PR, &r.Kind, &r.Confidence, &r.Threshold, &r.Reason, &r.Action, &r.Applied, &r.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if r.CreatedAt, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// tsLayout has fixed width so timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func (s *Store) timestamp() string {
	return s.now().UTC().Format(tsLayout)
}

func parseTimestamp(ts string) (time.Time, error) {
	t, err := time.Parse(tsLayout, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	return t, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
