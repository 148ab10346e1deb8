package app

import (
	"context"
	"sync"

	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/model"
)

// Root composes the gate, the project list and the selected project's detail
type Root struct {
	gate   *Gate
	list   *ProjectList
	store  Store
	notify Notifier

	mu sync.Mutex
	// base carries the values of the Init context into fetches started by
	// session events, which have no context of their own
	base     context.Context
	selected string
	detail   *ProjectDetail
	changed  []func()
}

// NewRoot wires the controllers together
func NewRoot(auth Auth, store Store, notify Notifier) *Root {
	r := &Root{
		gate:   NewGate(auth),
		list:   NewProjectList(store, auth, notify),
		store:  store,
		notify: notify,
		base:   context.Background(),
	}
	r.list.onCreated = r.projectCreated
	r.list.onSelect = func(ctx context.Context, id string) { _ = r.Select(ctx, id) }
	r.gate.OnStateChange(r.authChanged)
	return r
}

// Init retrieves the session. Entering Authenticated fetches the project list
func (r *Root) Init(ctx context.Context) error {
	r.mu.Lock()
	r.base = context.WithoutCancel(ctx)
	r.mu.Unlock()
	return r.gate.Init(ctx)
}

// Close unsubscribes from session changes
func (r *Root) Close() {
	r.gate.Close()
}

// OnChange registers fn to run after session-driven state changes, so a
// front end can redraw
func (r *Root) OnChange(fn func()) {
	r.mu.Lock()
	r.changed = append(r.changed, fn)
	r.mu.Unlock()
}

func (r *Root) authChanged(prev, next AuthState) {
	switch next {
	case StateAuthenticated:
		if prev != StateAuthenticated {
			r.mu.Lock()
			ctx := r.base
			r.mu.Unlock()
			r.FetchProjects(ctx)
		}
	case StateUnauthenticated:
		r.mu.Lock()
		r.selected = ""
		r.detail = nil
		r.mu.Unlock()
		r.list.reset()
	}

	r.mu.Lock()
	fns := append([]func(){}, r.changed...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// State returns the gate state
func (r *Root) State() AuthState {
	return r.gate.State()
}

// Session returns the current session
func (r *Root) Session() *model.Session {
	return r.gate.Session()
}

// Gate returns the authentication gate
func (r *Root) Gate() *Gate {
	return r.gate
}

// List returns the project list controller
func (r *Root) List() *ProjectList {
	return r.list
}

// Projects returns the current project list
func (r *Root) Projects() []model.Project {
	return r.list.Projects()
}

// FetchProjects re-fetches the project list. Failures are only logged
func (r *Root) FetchProjects(ctx context.Context) {
	if r.gate.State() != StateAuthenticated {
		return
	}
	r.list.Refresh(ctx)
}

// Selected returns the selected project id, "" for none
func (r *Root) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Detail returns the detail controller of the selected project, nil for none
func (r *Root) Detail() *ProjectDetail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detail
}

// Select shows project id in the detail pane and loads it
func (r *Root) Select(ctx context.Context, id string) error {
	if r.gate.State() != StateAuthenticated {
		return ErrNotAuthenticated
	}

	d := NewProjectDetail(r.store, r.notify, id)
	d.onMissing = func(ctx context.Context) { r.selectionMissing(ctx, id) }

	r.mu.Lock()
	r.selected = id
	r.detail = d
	r.mu.Unlock()

	return d.Load(ctx)
}

// selectionMissing drops a selection whose project no longer exists
func (r *Root) selectionMissing(ctx context.Context, id string) {
	r.mu.Lock()
	current := r.selected == id
	if current {
		r.selected = ""
		r.detail = nil
	}
	r.mu.Unlock()
	if !current {
		return
	}
	logger.Info("Selected project is gone, clearing selection", logger.F("project_id", id))
	r.FetchProjects(ctx)
}

func (r *Root) projectCreated(ctx context.Context, p *model.Project) {
	r.FetchProjects(ctx)
	_ = r.Select(ctx, p.ID)
}

// SignOut ends the session. The subscription moves Root back to the gate and
// discards the selection and the project list
func (r *Root) SignOut(ctx context.Context) error {
	if err := r.gate.SignOut(ctx); err != nil {
		logger.Warn("Sign out failed", logger.F("error", err))
		r.notify.Error(err.Error())
		return err
	}
	return nil
}
