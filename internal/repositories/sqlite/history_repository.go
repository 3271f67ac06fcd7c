// Package sqlite implements the local run-history store on a pure-Go SQLite
// driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/repositories"
)

// HistoryRepository records classification runs in a local SQLite database.
type HistoryRepository struct {
	db *sql.DB
}

// Open initialises the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*HistoryRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history repository: path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history repository: open database: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &HistoryRepository{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			generated_at TEXT NOT NULL,
			tenant_id TEXT,
			criteria TEXT NOT NULL,
			users_processed INTEGER NOT NULL,
			users_matched INTEGER NOT NULL,
			matching_assignments INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs (generated_at);`,
		`CREATE TABLE IF NOT EXISTS run_assignments (
			run_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_principal_name TEXT,
			sku_id TEXT NOT NULL,
			sku_part_number TEXT,
			matching_plan_count INTEGER NOT NULL,
			enabled_matching_plan_count INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_assignments_run ON run_assignments (run_id);`,
	}
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("history repository: create schema: %w", err)
		}
	}
	return nil
}

// Record persists the run header and its assignments in one transaction.
func (r *HistoryRepository) Record(ctx context.Context, report domain.AssignmentReport) error {
	if r == nil || r.db == nil {
		return errors.New("history repository not initialised")
	}
	if strings.TrimSpace(report.RunID) == "" {
		return errors.New("history repository: run id is required")
	}

	criteria, err := json.Marshal(criteriaRecord{
		ExactIDs:     report.Criteria.ExactIDs,
		NamePatterns: report.Criteria.NamePatterns,
		NameRegexes:  report.Criteria.NameRegexes,
	})
	if err != nil {
		return fmt.Errorf("history repository: encode criteria: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history repository: begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, generated_at, tenant_id, criteria, users_processed, users_matched, matching_assignments)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.GeneratedAt.UTC().Format(time.RFC3339),
		report.Tenant.TenantID,
		string(criteria),
		report.Summary.UsersProcessed,
		report.Summary.UsersMatched,
		report.Summary.MatchingAssignments,
	)
	if err != nil {
		return fmt.Errorf("history repository: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_assignments (run_id, user_id, user_principal_name, sku_id, sku_part_number, matching_plan_count, enabled_matching_plan_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history repository: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, assignment := range report.Assignments {
		if _, err := stmt.ExecContext(ctx,
			report.RunID,
			assignment.UserID,
			assignment.UserPrincipalName,
			assignment.SKUID,
			assignment.SKUPartNumber,
			assignment.MatchingPlanCount,
			assignment.EnabledMatchingPlanCount,
		); err != nil {
			return fmt.Errorf("history repository: insert assignment for %s: %w", assignment.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history repository: commit: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// defaults to 20.
func (r *HistoryRepository) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history repository not initialised")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, generated_at, tenant_id, criteria, users_processed, users_matched, matching_assignments
		 FROM runs ORDER BY generated_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history repository: list runs: %w", err)
	}
	defer rows.Close()

	var records []domain.RunRecord
	for rows.Next() {
		var (
			record      domain.RunRecord
			generatedAt string
			criteria    string
		)
		if err := rows.Scan(&record.RunID, &generatedAt, &record.TenantID, &criteria,
			&record.UsersProcessed, &record.UsersMatched, &record.MatchingAssignments); err != nil {
			return nil, fmt.Errorf("history repository: scan run: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339, generatedAt); err == nil {
			record.GeneratedAt = parsed
		}
		var decoded criteriaRecord
		if err := json.Unmarshal([]byte(criteria), &decoded); err == nil {
			record.Criteria = domain.QueryCriteria{
				ExactIDs:     decoded.ExactIDs,
				NamePatterns: decoded.NamePatterns,
				NameRegexes:  decoded.NameRegexes,
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history repository: list runs: %w", err)
	}
	return records, nil
}

// PruneBefore removes runs generated before cutoff and reports how many run
// headers were deleted.
func (r *HistoryRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("history repository not initialised")
	}

	boundary := cutoff.UTC().Format(time.RFC3339)
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM run_assignments WHERE run_id IN (SELECT run_id FROM runs WHERE generated_at < ?)`, boundary); err != nil {
		return 0, fmt.Errorf("history repository: prune assignments: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE generated_at < ?`, boundary)
	if err != nil {
		return 0, fmt.Errorf("history repository: prune runs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history repository: prune runs: %w", err)
	}
	return int(affected), nil
}

// Close releases the database handle.
func (r *HistoryRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

type criteriaRecord struct {
	ExactIDs     []string `json:"exactIds,omitempty"`
	NamePatterns []string `json:"namePatterns,omitempty"`
	NameRegexes  []string `json:"nameRegexes,omitempty"`
}

var _ repositories.HistoryRepository = (*HistoryRepository)(nil)
