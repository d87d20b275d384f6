package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"costcore/pkg/domain"
)

// BackendMode selects which side of the router serves operations.
type BackendMode string

const (
	// BackendLocal routes to the embedded local store.
	BackendLocal BackendMode = "local"
	// BackendRemote routes to the networked remote store.
	BackendRemote BackendMode = "remote"
)

// Compile-time contract assertion ensuring the router satisfies the domain interface.
var _ domain.PersistentStore = (*Router)(nil)

var errRemoteUnconfigured = errors.New("remote store not configured")

// Router dispatches every operation to exactly one backend according to the
// active mode. Both sides implement identical semantics, so callers never see
// mode-dependent behavior — only mode-dependent failures, which surface
// unchanged. The router never retries against the other side.
type Router struct {
	local  domain.PersistentStore
	remote domain.PersistentStore

	mu   sync.RWMutex
	mode BackendMode
}

// NewRouter constructs a router over the two backends. remote may be nil, in
// which case remote-mode operations fail with BackendUnavailableError until a
// remote store is attached.
func NewRouter(local, remote domain.PersistentStore, mode BackendMode) (*Router, error) {
	if local == nil {
		return nil, fmt.Errorf("local store required")
	}
	if mode != BackendLocal && mode != BackendRemote {
		return nil, fmt.Errorf("unknown backend mode %q", mode)
	}
	return &Router{local: local, remote: remote, mode: mode}, nil
}

// Mode returns the currently active backend mode.
func (r *Router) Mode() BackendMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Use switches the active backend. Switching to remote is allowed even when
// no remote store is attached; subsequent operations fail loudly instead.
func (r *Router) Use(mode BackendMode) error {
	if mode != BackendLocal && mode != BackendRemote {
		return fmt.Errorf("unknown backend mode %q", mode)
	}
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
	return nil
}

// AttachRemote installs or replaces the remote backend.
func (r *Router) AttachRemote(remote domain.PersistentStore) {
	r.mu.Lock()
	r.remote = remote
	r.mu.Unlock()
}

// Local returns the local backend.
func (r *Router) Local() domain.PersistentStore { return r.local }

// Remote returns the remote backend, which may be nil.
func (r *Router) Remote() domain.PersistentStore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.remote
}

func (r *Router) active() (domain.PersistentStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.mode == BackendRemote {
		if r.remote == nil {
			return nil, domain.BackendUnavailableError{Backend: string(BackendRemote), Err: errRemoteUnconfigured}
		}
		return r.remote, nil
	}
	return r.local, nil
}

// RunInTransaction dispatches a transactional write to the active backend.
func (r *Router) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	store, err := r.active()
	if err != nil {
		return domain.Result{}, err
	}
	return store.RunInTransaction(ctx, fn)
}

// View dispatches a read-only snapshot view to the active backend.
func (r *Router) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	store, err := r.active()
	if err != nil {
		return err
	}
	return store.View(ctx, fn)
}

// GetProject returns a project from the active backend.
func (r *Router) GetProject(id string) (domain.Project, bool) {
	store, err := r.active()
	if err != nil {
		return domain.Project{}, false
	}
	return store.GetProject(id)
}

// ListProjects lists projects from the active backend.
func (r *Router) ListProjects() []domain.Project {
	store, err := r.active()
	if err != nil {
		return nil
	}
	return store.ListProjects()
}

// GetEstimate returns an estimate from the active backend.
func (r *Router) GetEstimate(id string) (domain.Estimate, bool) {
	store, err := r.active()
	if err != nil {
		return domain.Estimate{}, false
	}
	return store.GetEstimate(id)
}

// GetTrade returns a trade from the active backend.
func (r *Router) GetTrade(id string) (domain.Trade, bool) {
	store, err := r.active()
	if err != nil {
		return domain.Trade{}, false
	}
	return store.GetTrade(id)
}

// GetTemplate returns a template from the active backend.
func (r *Router) GetTemplate(id string) (domain.Template, bool) {
	store, err := r.active()
	if err != nil {
		return domain.Template{}, false
	}
	return store.GetTemplate(id)
}

// ListTemplates lists templates from the active backend.
func (r *Router) ListTemplates() []domain.Template {
	store, err := r.active()
	if err != nil {
		return nil
	}
	return store.ListTemplates()
}

// ListCategories lists registry entries from the active backend.
func (r *Router) ListCategories() []domain.Category {
	store, err := r.active()
	if err != nil {
		return nil
	}
	return store.ListCategories()
}
