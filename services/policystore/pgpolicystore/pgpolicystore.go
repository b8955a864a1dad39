// Package pgpolicystore implements services/policystore.Store on top of
// PostgreSQL via pgx, following the same transaction-wrapped,
// DB-interface-for-testability pattern as the workflow engine's storage
// layer: AddVersion determines the next version number with a
// COALESCE(MAX...)+1 query inside the same transaction it inserts in
// (SetActive's activation rows take their id from the column default),
// and every multi-step write runs in one BeginTx/defer-Rollback/Commit
// block so a caller-supplied hook failure rolls back cleanly.
package pgpolicystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"policy-reasoner/api/services/policystore"
)

// DB abstracts the database operations used by this package. Satisfied
// by *pgxpool.Pool in production and pgxmock in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type store struct {
	db DB
}

// New wraps db as a policystore.Store.
func New(db *pgxpool.Pool) (policystore.Store, error) {
	if db == nil {
		return nil, fmt.Errorf("pgpolicystore: db connection cannot be nil")
	}
	return &store{db: db}, nil
}

// NewWithDB is the test-facing constructor, accepting any DB
// implementation (in particular pgxmock.PgxPoolIface).
func NewWithDB(db DB) policystore.Store {
	return &store{db: db}
}

func (s *store) AddVersion(ctx context.Context, description string, content policystore.Content, actx policystore.Context, hook policystore.CommitHook) (policystore.Policy, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(timeoutCtx, pgx.TxOptions{})
	if err != nil {
		return policystore.Policy{}, fmt.Errorf("begin transaction for add_version: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	var nextVersion int
	err = tx.QueryRow(timeoutCtx, `
        SELECT COALESCE(MAX(version), 0) + 1
        FROM policy_versions`).Scan(&nextVersion)
	if err != nil {
		return policystore.Policy{}, fmt.Errorf("determine next version: %w", err)
	}

	p := policystore.Policy{
		Version:     nextVersion,
		Description: description,
		Creator:     actx.Initiator,
		Content:     content,
	}
	err = tx.QueryRow(timeoutCtx, `
        INSERT INTO policy_versions (version, description, creator, reasoner_id, reasoner_version, body)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at`,
		p.Version, p.Description, p.Creator, content.ReasonerID, content.ReasonerVersion, content.Body,
	).Scan(&p.CreatedAt)
	if err != nil {
		return policystore.Policy{}, fmt.Errorf("insert policy version: %w", err)
	}

	if err := hook(p); err != nil {
		return policystore.Policy{}, fmt.Errorf("add_version commit hook: %w", err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return policystore.Policy{}, fmt.Errorf("commit add_version: %w", err)
	}
	return p, nil
}

func (s *store) GetVersion(ctx context.Context, version int) (policystore.Policy, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanPolicy(s.db.QueryRow(timeoutCtx, `
        SELECT version, description, creator, created_at, reasoner_id, reasoner_version, body
        FROM policy_versions WHERE version = $1`, version))
}

func (s *store) GetMostRecent(ctx context.Context) (policystore.Policy, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanPolicy(s.db.QueryRow(timeoutCtx, `
        SELECT version, description, creator, created_at, reasoner_id, reasoner_version, body
        FROM policy_versions ORDER BY created_at DESC, version DESC LIMIT 1`))
}

func (s *store) GetVersions(ctx context.Context) ([]policystore.VersionSummary, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.Query(timeoutCtx, `
        SELECT version, description, creator, created_at
        FROM policy_versions ORDER BY created_at DESC, version DESC`)
	if err != nil {
		return nil, fmt.Errorf("query policy versions: %w", err)
	}
	defer rows.Close()

	var out []policystore.VersionSummary
	for rows.Next() {
		var v policystore.VersionSummary
		if err := rows.Scan(&v.Version, &v.Description, &v.Creator, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan policy version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policy versions: %w", err)
	}
	return out, nil
}

func (s *store) GetActive(ctx context.Context) (policystore.Policy, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return scanPolicy(s.db.QueryRow(timeoutCtx, `
        SELECT pv.version, pv.description, pv.creator, pv.created_at, pv.reasoner_id, pv.reasoner_version, pv.body
        FROM policy_versions pv
        JOIN active_policy_versions av ON av.version = pv.version
        ORDER BY av.activated_at DESC, av.id DESC LIMIT 1`))
}

func (s *store) SetActive(ctx context.Context, version int, actx policystore.Context, hook policystore.CommitHook) (policystore.Policy, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(timeoutCtx, pgx.TxOptions{})
	if err != nil {
		return policystore.Policy{}, fmt.Errorf("begin transaction for set_active: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	p, err := scanPolicy(tx.QueryRow(timeoutCtx, `
        SELECT version, description, creator, created_at, reasoner_id, reasoner_version, body
        FROM policy_versions WHERE version = $1`, version))
	if err != nil {
		return policystore.Policy{}, err
	}

	_, err = tx.Exec(timeoutCtx, `
        INSERT INTO active_policy_versions (version, activated_by, activated_at)
        VALUES ($1, $2, now())`,
		version, actx.Initiator)
	if err != nil {
		return policystore.Policy{}, fmt.Errorf("insert active policy version: %w", err)
	}

	if err := hook(p); err != nil {
		return policystore.Policy{}, fmt.Errorf("set_active commit hook: %w", err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return policystore.Policy{}, fmt.Errorf("commit set_active: %w", err)
	}
	return p, nil
}

// scanRow is satisfied by both pgx.Row and the tx.QueryRow result, so
// the read queries above work identically inside or outside a
// transaction.
type scanRow interface {
	Scan(dest ...any) error
}

func scanPolicy(row scanRow) (policystore.Policy, error) {
	var p policystore.Policy
	var content policystore.Content
	err := row.Scan(&p.Version, &p.Description, &p.Creator, &p.CreatedAt, &content.ReasonerID, &content.ReasonerVersion, &content.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return policystore.Policy{}, policystore.ErrNotFound
		}
		return policystore.Policy{}, fmt.Errorf("scan policy: %w", err)
	}
	p.Content = content
	return p, nil
}
