// Package store implements the Store component (C1): a repository layer
// over the per-project namespaced Postgres schema generated from
// ent/schema/*.go. Every repository method takes the owning project name
// explicitly or is bound to a *Store already scoped to one, matching
// spec §3's "every entity lives in a per-project database namespace."
package store

import (
	"context"
	"sync"

	"github.com/devctrl/orchestrator/ent"
)

// Store is a thin, project-scoped facade over the shared *ent.Client.
// It holds no connection of its own — the ent.Client (and its
// underlying *sql.DB pool) is shared across every project, per spec §5's
// "Store is shared across projects... connection pool is shared."
type Store struct {
	client  *ent.Client
	project string
}

// New wraps an ent client for a single project namespace. Most callers
// should go through a Registry instead so the per-project instance is
// reused rather than recreated on every call.
func New(client *ent.Client, project string) *Store {
	return &Store{client: client, project: project}
}

// Project returns the namespace this Store instance is bound to.
func (s *Store) Project() string { return s.project }

// Client exposes the underlying ent client for callers (e.g. the
// Workflow Engine's transactional checkpoint/rollback path) that must
// compose multiple repository writes into one ent transaction.
func (s *Store) Client() *ent.Client { return s.client }

// WithTx runs fn inside an ent transaction, committing on success and
// rolling back on error or panic. Used anywhere spec invariants demand
// atomicity across more than one entity write (e.g. checkpoint rollback,
// deployment promotion + retirement of the prior production version).
func (s *Store) WithTx(ctx context.Context, fn func(tx *ent.Tx) error) error {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return &Unavailable{Op: "begin tx", Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return &Unavailable{Op: "rollback", Err: rerr}
		}
		return err
	}
	return tx.Commit()
}

// Registry is the process-global, lazily-populated map from project
// name to its Store instance, mirroring the teacher's per-project cache
// convention (spec §5, §9 "Global state"). A fresh project name gets a
// fresh Store on first access; teardown is per-project via Close.
type Registry struct {
	mu        sync.Mutex
	client    *ent.Client
	instances map[string]*Store
}

// NewRegistry creates a registry backed by a single shared ent client.
func NewRegistry(client *ent.Client) *Registry {
	return &Registry{client: client, instances: make(map[string]*Store)}
}

// Get returns the Store for project, creating it on first access.
func (r *Registry) Get(project string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.instances[project]; ok {
		return s
	}
	s := New(r.client, project)
	r.instances[project] = s
	return s
}

// Close drops the cached instance for project. The underlying ent
// client (and its connection pool) is untouched — it is shared.
func (r *Registry) Close(project string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, project)
}
