package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/existflow/promanage/internal/backend"
	"github.com/existflow/promanage/internal/model"
	"github.com/existflow/promanage/internal/session"
)

// memStore is an in-memory Store that orders rows the way the backend does
type memStore struct {
	mu       sync.Mutex
	clock    time.Time
	seq      int
	projects []model.Project
	tasks    []model.Task
	calls    int
	lists    int
	listErr  error
	writeErr error
}

func newMemStore() *memStore {
	return &memStore{clock: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (s *memStore) tick() (string, time.Time) {
	s.seq++
	s.clock = s.clock.Add(time.Minute)
	return fmt.Sprintf("id-%d", s.seq), s.clock
}

func (s *memStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := append([]model.Project(nil), s.projects...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, p := range s.projects {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("select projects: %w", backend.ErrNotFound)
}

func (s *memStore) CreateProject(ctx context.Context, in model.NewProject) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	id, at := s.tick()
	desc := in.Description
	p := model.Project{ID: id, Name: in.Name, Description: &desc, CreatedAt: at, UserID: in.UserID, Status: model.ProjectActive}
	s.projects = append(s.projects, p)
	return &p, nil
}

func (s *memStore) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lists++
	var out []model.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) CreateTask(ctx context.Context, in model.NewTask) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	id, at := s.tick()
	desc := in.Description
	t := model.Task{ID: id, Title: in.Title, Description: &desc, Status: model.StatusTodo, Priority: in.Priority,
		DueDate: in.DueDate, ProjectID: in.ProjectID, CreatedAt: at}
	s.tasks = append(s.tasks, t)
	return &t, nil
}

func (s *memStore) UpdateTaskStatus(ctx context.Context, id string, patch model.StatusPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.writeErr != nil {
		return s.writeErr
	}
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			patch.Apply(&s.tasks[i])
			return nil
		}
	}
	return fmt.Errorf("update tasks: %w", backend.ErrNotFound)
}

func (s *memStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.writeErr != nil {
		return s.writeErr
	}
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete tasks: %w", backend.ErrNotFound)
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *memStore) taskLists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func (s *memStore) removeProject(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.projects {
		if s.projects[i].ID == id {
			s.projects = append(s.projects[:i], s.projects[i+1:]...)
			break
		}
	}
	// tasks cascade with their project
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.ProjectID != id {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
}

func (s *memStore) failTaskWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// fakeAuth is an Auth whose session is set directly by tests
type fakeAuth struct {
	mu      sync.Mutex
	session *model.Session
	subs    map[int]session.Listener
	next    int
	getErr  error
	noUser  bool
}

func newFakeAuth(signedIn bool) *fakeAuth {
	a := &fakeAuth{subs: map[int]session.Listener{}}
	if signedIn {
		a.session = &model.Session{AccessToken: "at", User: model.User{ID: "u1", Email: "a@example.com"}}
	}
	return a
}

func (a *fakeAuth) GetSession(ctx context.Context) (*model.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.getErr != nil {
		return nil, a.getErr
	}
	return a.session, nil
}

func (a *fakeAuth) GetUser(ctx context.Context) (*model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil || a.noUser {
		return nil, nil
	}
	u := a.session.User
	return &u, nil
}

func (a *fakeAuth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
	a.emit(session.SignedOut, nil)
	return nil
}

func (a *fakeAuth) signIn() {
	s := &model.Session{AccessToken: "at", User: model.User{ID: "u1"}}
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	a.emit(session.SignedIn, s)
}

func (a *fakeAuth) OnChange(fn session.Listener) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	a.subs[id] = fn
	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

func (a *fakeAuth) subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}

func (a *fakeAuth) emit(e session.Event, s *model.Session) {
	a.mu.Lock()
	var fns []session.Listener
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(e, s)
	}
}

var errBoom = errors.New("boom")
