package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/waferline-labs/waferline-go/internal/domain"
	"github.com/waferline-labs/waferline-go/internal/repo"
)

// Schema creates the document table and the correlation-id index table.
const Schema = `
CREATE TABLE IF NOT EXISTS experiment_groups (
	group_id       TEXT PRIMARY KEY,
	username       TEXT NOT NULL,
	team           TEXT NOT NULL DEFAULT '',
	segment        TEXT NOT NULL DEFAULT '',
	program_family TEXT NOT NULL,
	submitted_at   TIMESTAMPTZ NOT NULL,
	doc            JSONB NOT NULL,
	version        BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS experiment_group_refs (
	ref_id   TEXT PRIMARY KEY,
	group_id TEXT NOT NULL REFERENCES experiment_groups(group_id) ON DELETE CASCADE,
	kind     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS experiment_group_refs_group_idx ON experiment_group_refs (group_id);
`

// EnsureSchema applies the schema. Intended for service startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GroupStore persists experiment groups as whole JSONB documents with an
// optimistic version column.
type GroupStore struct {
	db *sql.DB
}

func NewGroupStore(db *sql.DB) *GroupStore {
	if db == nil {
		return nil
	}
	return &GroupStore{db: db}
}

func (s *GroupStore) Insert(ctx context.Context, group domain.ExperimentGroup) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("group store not initialized")
	}
	if err := group.Validate(); err != nil {
		return err
	}
	if group.Version == 0 {
		group.Version = 1
	}
	doc, err := encodeGroup(group)
	if err != nil {
		return fmt.Errorf("encode group: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO experiment_groups (group_id, username, team, segment, program_family, submitted_at, doc, version)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		group.ID,
		strings.TrimSpace(group.Username),
		strings.TrimSpace(group.Team),
		strings.TrimSpace(group.Segment),
		strings.TrimSpace(group.TestProgram.Family),
		group.SubmittedAt.UTC(),
		doc,
		group.Version,
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	if err := insertRefs(ctx, tx, group); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func (s *GroupStore) Get(ctx context.Context, id string) (domain.ExperimentGroup, error) {
	if s == nil || s.db == nil {
		return domain.ExperimentGroup{}, fmt.Errorf("group store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ExperimentGroup{}, fmt.Errorf("group id is required")
	}
	return s.getByQuery(ctx, `SELECT doc FROM experiment_groups WHERE group_id = $1`, id)
}

func (s *GroupStore) GetByCorrelationID(ctx context.Context, id string) (domain.ExperimentGroup, error) {
	if s == nil || s.db == nil {
		return domain.ExperimentGroup{}, fmt.Errorf("group store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ExperimentGroup{}, fmt.Errorf("correlation id is required")
	}
	return s.getByQuery(
		ctx,
		`SELECT g.doc FROM experiment_groups g
		 JOIN experiment_group_refs r ON r.group_id = g.group_id
		 WHERE r.ref_id = $1 AND r.kind IN ('condition','stage')`,
		id,
	)
}

func (s *GroupStore) GetByExperimentID(ctx context.Context, id string) (domain.ExperimentGroup, error) {
	if s == nil || s.db == nil {
		return domain.ExperimentGroup{}, fmt.Errorf("group store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ExperimentGroup{}, fmt.Errorf("experiment id is required")
	}
	return s.getByQuery(
		ctx,
		`SELECT g.doc FROM experiment_groups g
		 JOIN experiment_group_refs r ON r.group_id = g.group_id
		 WHERE r.ref_id = $1 AND r.kind = 'experiment'`,
		id,
	)
}

func (s *GroupStore) getByQuery(ctx context.Context, query string, args ...any) (domain.ExperimentGroup, error) {
	var doc []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&doc); err != nil {
		return domain.ExperimentGroup{}, handleNotFound(err)
	}
	group, err := decodeGroup(doc)
	if err != nil {
		return domain.ExperimentGroup{}, fmt.Errorf("decode group: %w", err)
	}
	return group, nil
}

// Replace swaps the whole document. The caller's version must match the
// stored one; the replace bumps it by one.
func (s *GroupStore) Replace(ctx context.Context, group domain.ExperimentGroup) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("group store not initialized")
	}
	if err := group.Validate(); err != nil {
		return err
	}
	expected := group.Version
	group.Version = expected + 1
	doc, err := encodeGroup(group)
	if err != nil {
		return fmt.Errorf("encode group: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(
		ctx,
		`UPDATE experiment_groups
		 SET username = $2, team = $3, segment = $4, program_family = $5, submitted_at = $6, doc = $7, version = $8
		 WHERE group_id = $1 AND version = $9`,
		group.ID,
		strings.TrimSpace(group.Username),
		strings.TrimSpace(group.Team),
		strings.TrimSpace(group.Segment),
		strings.TrimSpace(group.TestProgram.Family),
		group.SubmittedAt.UTC(),
		doc,
		group.Version,
		expected,
	)
	if err != nil {
		return fmt.Errorf("replace group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace group: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM experiment_groups WHERE group_id = $1)`, group.ID).Scan(&exists); err != nil {
			return fmt.Errorf("replace group: %w", err)
		}
		if exists {
			return repo.ErrVersionConflict
		}
		return repo.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM experiment_group_refs WHERE group_id = $1`, group.ID); err != nil {
		return fmt.Errorf("clear refs: %w", err)
	}
	if err := insertRefs(ctx, tx, group); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func (s *GroupStore) List(ctx context.Context, filter repo.GroupFilter) ([]domain.ExperimentGroup, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("group store not initialized")
	}
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 5)

	if strings.TrimSpace(filter.Username) != "" {
		args = append(args, strings.TrimSpace(filter.Username))
		clauses = append(clauses, fmt.Sprintf("username = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Team) != "" {
		args = append(args, strings.TrimSpace(filter.Team))
		clauses = append(clauses, fmt.Sprintf("team = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Segment) != "" {
		args = append(args, strings.TrimSpace(filter.Segment))
		clauses = append(clauses, fmt.Sprintf("segment = $%d", len(args)))
	}
	if strings.TrimSpace(filter.ProgramFamily) != "" {
		args = append(args, strings.TrimSpace(filter.ProgramFamily))
		clauses = append(clauses, fmt.Sprintf("program_family = $%d", len(args)))
	}

	query := `SELECT doc FROM experiment_groups`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY submitted_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := make([]domain.ExperimentGroup, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		group, err := decodeGroup(doc)
		if err != nil {
			return nil, fmt.Errorf("decode group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func insertRefs(ctx context.Context, tx *sql.Tx, group domain.ExperimentGroup) error {
	for _, r := range refsForGroup(group) {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO experiment_group_refs (ref_id, group_id, kind) VALUES ($1,$2,$3)`,
			r.id,
			group.ID,
			r.kind,
		); err != nil {
			return fmt.Errorf("insert ref %s: %w", r.id, err)
		}
	}
	return nil
}
