// Package policystore defines the versioned policy store: policies keyed
// by a strictly monotonic version number, with a separately-tracked
// "active version" pointer. Two backends are provided (pgpolicystore,
// sqlitepolicystore); both satisfy Store.
package policystore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get* operations that find no matching row.
var ErrNotFound = errors.New("policystore: not found")

// Content is the policy body as handed to and returned from the store:
// the store treats it as opaque bytes plus a reasoner identifier, never
// interpreting its contents.
type Content struct {
	ReasonerID      string `json:"reasonerId"`
	ReasonerVersion string `json:"reasonerVersion"`
	Body            []byte `json:"body"`
}

// Policy is one stored, versioned policy.
type Policy struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	Creator     string    `json:"creator"`
	CreatedAt   time.Time `json:"createdAt"`
	Content     Content   `json:"content"`
}

// VersionSummary is the lightweight projection returned by GetVersions.
type VersionSummary struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	Creator     string    `json:"creator"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ActiveVersion records a single activation event: version v became
// active, activated by whom, and when. The store's "current active
// policy" is whichever row has the latest ActivatedAt.
type ActiveVersion struct {
	Version     int       `json:"version"`
	ActivatedBy string    `json:"activatedBy"`
	ActivatedAt time.Time `json:"activatedAt"`
}

// Context carries the caller identity attributed to a write operation.
type Context struct {
	Initiator string
}

// CommitHook runs inside the same transaction as the store write it is
// passed to; its error aborts the transaction. The policy-management API
// uses this to, e.g., record an audit-log entry atomically with the
// policy write it documents.
type CommitHook func(Policy) error

// Store is the versioned policy store's full operation set.
type Store interface {
	AddVersion(ctx context.Context, description string, content Content, actx Context, hook CommitHook) (Policy, error)
	GetVersion(ctx context.Context, version int) (Policy, error)
	GetMostRecent(ctx context.Context) (Policy, error)
	GetVersions(ctx context.Context) ([]VersionSummary, error)
	GetActive(ctx context.Context) (Policy, error)
	SetActive(ctx context.Context, version int, actx Context, hook CommitHook) (Policy, error)
}
