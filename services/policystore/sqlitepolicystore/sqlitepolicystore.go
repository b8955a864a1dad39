// Package sqlitepolicystore implements services/policystore.Store on top
// of SQLite via modernc.org/sqlite, for single-process deployments and
// for fast policy-store tests that don't need a running Postgres.
package sqlitepolicystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"policy-reasoner/api/services/policystore"
)

const schema = `
CREATE TABLE IF NOT EXISTS policy_versions (
	version INTEGER PRIMARY KEY,
	description TEXT NOT NULL,
	creator TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	reasoner_id TEXT NOT NULL,
	reasoner_version TEXT NOT NULL,
	body BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS active_policy_versions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	version INTEGER NOT NULL REFERENCES policy_versions(version),
	activated_by TEXT NOT NULL,
	activated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

type store struct {
	db *sql.DB
}

// Open creates (if needed) and opens a SQLite-backed Store at path. Use
// ":memory:" for ephemeral/test use.
func Open(path string) (policystore.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitepolicystore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitepolicystore: migrate: %w", err)
	}
	return &store{db: db}, nil
}

func (s *store) AddVersion(ctx context.Context, description string, content policystore.Content, actx policystore.Context, hook policystore.CommitHook) (policystore.Policy, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return policystore.Policy{}, fmt.Errorf("begin transaction for add_version: %w", err)
	}
	defer tx.Rollback()

	var nextVersion int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM policy_versions`).Scan(&nextVersion); err != nil {
		return policystore.Policy{}, fmt.Errorf("determine next version: %w", err)
	}

	p := policystore.Policy{Version: nextVersion, Description: description, Creator: actx.Initiator, Content: content}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO policy_versions (version, description, creator, reasoner_id, reasoner_version, body)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Version, p.Description, p.Creator, content.ReasonerID, content.ReasonerVersion, content.Body)
	if err != nil {
		return policystore.Policy{}, fmt.Errorf("insert policy version: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT created_at FROM policy_versions WHERE version = ?`, p.Version).Scan(&p.CreatedAt); err != nil {
		return policystore.Policy{}, fmt.Errorf("read created_at: %w", err)
	}

	if err := hook(p); err != nil {
		return policystore.Policy{}, fmt.Errorf("add_version commit hook: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return policystore.Policy{}, fmt.Errorf("commit add_version: %w", err)
	}
	return p, nil
}

func (s *store) GetVersion(ctx context.Context, version int) (policystore.Policy, error) {
	return scanPolicy(s.db.QueryRowContext(ctx, `
		SELECT version, description, creator, created_at, reasoner_id, reasoner_version, body
		FROM policy_versions WHERE version = ?`, version))
}

func (s *store) GetMostRecent(ctx context.Context) (policystore.Policy, error) {
	return scanPolicy(s.db.QueryRowContext(ctx, `
		SELECT version, description, creator, created_at, reasoner_id, reasoner_version, body
		FROM policy_versions ORDER BY created_at DESC, version DESC LIMIT 1`))
}

func (s *store) GetVersions(ctx context.Context) ([]policystore.VersionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
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
	return out, rows.Err()
}

func (s *store) GetActive(ctx context.Context) (policystore.Policy, error) {
	return scanPolicy(s.db.QueryRowContext(ctx, `
		SELECT pv.version, pv.description, pv.creator, pv.created_at, pv.reasoner_id, pv.reasoner_version, pv.body
		FROM policy_versions pv
		JOIN active_policy_versions av ON av.version = pv.version
		ORDER BY av.activated_at DESC, av.id DESC LIMIT 1`))
}

func (s *store) SetActive(ctx context.Context, version int, actx policystore.Context, hook policystore.CommitHook) (policystore.Policy, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return policystore.Policy{}, fmt.Errorf("begin transaction for set_active: %w", err)
	}
	defer tx.Rollback()

	p, err := scanPolicy(tx.QueryRowContext(ctx, `
		SELECT version, description, creator, created_at, reasoner_id, reasoner_version, body
		FROM policy_versions WHERE version = ?`, version))
	if err != nil {
		return policystore.Policy{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO active_policy_versions (version, activated_by, activated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)`, version, actx.Initiator)
	if err != nil {
		return policystore.Policy{}, fmt.Errorf("insert active policy version: %w", err)
	}

	if err := hook(p); err != nil {
		return policystore.Policy{}, fmt.Errorf("set_active commit hook: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return policystore.Policy{}, fmt.Errorf("commit set_active: %w", err)
	}
	return p, nil
}

type scanRow interface {
	Scan(dest ...any) error
}

func scanPolicy(row scanRow) (policystore.Policy, error) {
	var p policystore.Policy
	var content policystore.Content
	err := row.Scan(&p.Version, &p.Description, &p.Creator, &p.CreatedAt, &content.ReasonerID, &content.ReasonerVersion, &content.Body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policystore.Policy{}, policystore.ErrNotFound
		}
		return policystore.Policy{}, fmt.Errorf("scan policy: %w", err)
	}
	p.Content = content
	return p, nil
}
