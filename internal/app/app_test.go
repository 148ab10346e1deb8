package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/existflow/promanage/internal/backend"
	"github.com/existflow/promanage/internal/model"
)

func newSignedInRoot(t *testing.T) (*Root, *memStore, *fakeAuth, *Notifications) {
	t.Helper()
	store := newMemStore()
	auth := newFakeAuth(true)
	notes := &Notifications{}
	root := NewRoot(auth, store, notes)
	if err := root.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(root.Close)
	return root, store, auth, notes
}

func TestGateMovesThroughStates(t *testing.T) {
	auth := newFakeAuth(false)
	gate := NewGate(auth)
	if gate.State() != StateLoading {
		t.Fatalf("expected loading before init, got %s", gate.State())
	}

	if err := gate.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if gate.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", gate.State())
	}

	auth.signIn()
	if gate.State() != StateAuthenticated || gate.Session() == nil {
		t.Fatalf("expected authenticated after sign-in event, got %s", gate.State())
	}

	gate.Close()
	if auth.subscribers() != 0 {
		t.Fatalf("expected Close to unsubscribe, %d left", auth.subscribers())
	}
	auth.SignOut(context.Background())
	if gate.State() != StateAuthenticated {
		t.Fatalf("closed gate should ignore events")
	}
}

func TestGateSessionErrorLeavesGateUnauthenticated(t *testing.T) {
	auth := newFakeAuth(true)
	auth.getErr = errBoom
	gate := NewGate(auth)
	if err := gate.Init(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("expected error, got %v", err)
	}
	if gate.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", gate.State())
	}
}

func TestCreateProjectWithoutDescriptionIsListedFirstAndSelected(t *testing.T) {
	root, _, _, notes := newSignedInRoot(t)
	ctx := context.Background()

	if _, err := root.List().Create(ctx, "Older", "x"); err != nil {
		t.Fatalf("create older: %v", err)
	}
	notes.Drain()

	p, err := root.List().Create(ctx, "Alpha", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	projects := root.Projects()
	if len(projects) != 2 || projects[0].Name != "Alpha" {
		t.Fatalf("expected Alpha first, got %+v", projects)
	}
	if projects[0].DescriptionText() != "" {
		t.Fatalf("expected empty description, got %q", projects[0].DescriptionText())
	}
	if projects[0].UserID != "u1" {
		t.Fatalf("expected project owned by u1, got %s", projects[0].UserID)
	}
	if root.Selected() != p.ID || root.Detail() == nil || root.Detail().Project() == nil {
		t.Fatalf("expected new project to be selected and loaded")
	}
	if form := root.List().Form(); form.Open || form.Name != "" {
		t.Fatalf("expected form closed and cleared, got %+v", form)
	}
	got := notes.Drain()
	if len(got) != 1 || got[0].Kind != NotifySuccess {
		t.Fatalf("expected one success notification, got %+v", got)
	}
}

func TestEmptyProjectNameIsRejectedBeforeNetwork(t *testing.T) {
	root, store, _, notes := newSignedInRoot(t)
	before := store.callCount()

	_, err := root.List().Create(context.Background(), "   ", "desc")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.callCount() != before {
		t.Fatalf("expected no store calls, got %d", store.callCount()-before)
	}
	form := root.List().Form()
	if !form.Open || form.Description != "desc" {
		t.Fatalf("expected form to stay open with values, got %+v", form)
	}
	if n, ok := notes.Last(); !ok || n.Kind != NotifyError {
		t.Fatalf("expected error notification")
	}
}

func TestCreateProjectWithoutUserFails(t *testing.T) {
	root, _, auth, notes := newSignedInRoot(t)
	auth.noUser = true

	_, err := root.List().Create(context.Background(), "Alpha", "")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if n, _ := notes.Last(); n.Message != "user not authenticated" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if form := root.List().Form(); !form.Open || form.Name != "Alpha" {
		t.Fatalf("expected form to keep values, got %+v", form)
	}
	if len(root.Projects()) != 0 {
		t.Fatalf("expected no projects")
	}
}

func selectNewProject(t *testing.T, root *Root) *ProjectDetail {
	t.Helper()
	if _, err := root.List().Create(context.Background(), "P", ""); err != nil {
		t.Fatalf("create project: %v", err)
	}
	d := root.Detail()
	if d == nil {
		t.Fatalf("expected a selected project")
	}
	return d
}

func TestCreateTaskDefaultsAndListing(t *testing.T) {
	root, _, _, notes := newSignedInRoot(t)
	d := selectNewProject(t, root)
	notes.Drain()

	if _, err := d.CreateTask(context.Background(), TaskInput{Title: "Write spec", Priority: "high"}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	tasks := d.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	task := tasks[0]
	if task.Title != "Write spec" || task.Priority != model.PriorityHigh || task.Status != model.StatusTodo {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.CompletedAt != nil || task.DueDate != nil {
		t.Fatalf("expected no completion or due date, got %+v", task)
	}
	if form := d.Form(); form.Open || form.Input.Priority != "medium" || form.Input.Title != "" {
		t.Fatalf("expected reset form with medium priority, got %+v", form)
	}
	if n, _ := notes.Last(); n.Message != "Task created successfully!" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestCreateTaskPriorityDefaultsToMedium(t *testing.T) {
	root, _, _, _ := newSignedInRoot(t)
	d := selectNewProject(t, root)

	task, err := d.CreateTask(context.Background(), TaskInput{Title: "t", DueDate: "2024-06-01"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Priority != model.PriorityMedium || task.DueDate == nil || *task.DueDate != "2024-06-01" {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	root, store, _, _ := newSignedInRoot(t)
	d := selectNewProject(t, root)
	before := store.callCount()

	cases := []TaskInput{
		{Title: ""},
		{Title: "x", Priority: "urgent"},
		{Title: "x", DueDate: "tomorrow"},
	}
	for _, in := range cases {
		if _, err := d.CreateTask(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
		if form := d.Form(); !form.Open || form.Input != in {
			t.Fatalf("expected form to keep %+v, got %+v", in, form)
		}
	}
	if store.callCount() != before {
		t.Fatalf("validation must not reach the store")
	}
}

func TestToggleTaskStampsAndClearsCompletion(t *testing.T) {
	root, _, _, _ := newSignedInRoot(t)
	d := selectNewProject(t, root)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	task, _ := d.CreateTask(context.Background(), TaskInput{Title: "t"})

	if err := d.ToggleTask(context.Background(), task.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	got, _ := d.Task(task.ID)
	if got.Status != model.StatusCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Fatalf("expected completed with stamp, got %+v", got)
	}

	if err := d.ToggleTask(context.Background(), task.ID); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	got, _ = d.Task(task.ID)
	if got.Status != model.StatusTodo || got.CompletedAt != nil {
		t.Fatalf("expected todo without stamp, got %+v", got)
	}
}

func TestDeleteTask(t *testing.T) {
	root, store, _, notes := newSignedInRoot(t)
	d := selectNewProject(t, root)
	ctx := context.Background()
	keep, _ := d.CreateTask(ctx, TaskInput{Title: "keep"})
	gone, _ := d.CreateTask(ctx, TaskInput{Title: "gone"})

	before := store.callCount()
	deleted, err := d.DeleteTask(ctx, gone.ID, func(context.Context, string) bool { return false })
	if err != nil || deleted || store.callCount() != before {
		t.Fatalf("declined delete must not call the store")
	}

	deleted, err = d.DeleteTask(ctx, gone.ID, AlwaysConfirm)
	if err != nil || !deleted {
		t.Fatalf("delete: %v", err)
	}
	tasks := d.Tasks()
	if len(tasks) != 1 || tasks[0].ID != keep.ID {
		t.Fatalf("expected only the kept task, got %+v", tasks)
	}

	notes.Drain()
	_, err = d.DeleteTask(ctx, "does-not-exist", AlwaysConfirm)
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(d.Tasks()) != 1 {
		t.Fatalf("failed delete must not change the list")
	}
	if n, ok := notes.Last(); !ok || n.Kind != NotifyError {
		t.Fatalf("expected error notification")
	}
}

func TestSignOutDiscardsSelectionAndProjects(t *testing.T) {
	root, _, _, _ := newSignedInRoot(t)
	selectNewProject(t, root)

	if err := root.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if root.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", root.State())
	}
	if root.Selected() != "" || root.Detail() != nil || len(root.Projects()) != 0 {
		t.Fatalf("expected selection and projects to be discarded")
	}
}

func TestProjectListFetchFailureIsLogOnly(t *testing.T) {
	root, store, _, notes := newSignedInRoot(t)
	if _, err := root.List().Create(context.Background(), "Alpha", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	notes.Drain()

	store.listErr = errBoom
	root.FetchProjects(context.Background())
	if len(root.Projects()) != 1 {
		t.Fatalf("expected previous list to be kept")
	}
	if got := notes.Drain(); len(got) != 0 {
		t.Fatalf("expected no notification, got %+v", got)
	}
}

func TestMissingSelectedProjectClearsSelection(t *testing.T) {
	root, store, _, _ := newSignedInRoot(t)
	d := selectNewProject(t, root)
	id := d.ProjectID()

	store.removeProject(id)
	if err := root.Select(context.Background(), id); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if root.Selected() != "" || root.Detail() != nil {
		t.Fatalf("expected selection to be cleared")
	}
	if len(root.Projects()) != 0 {
		t.Fatalf("expected project list to be re-fetched")
	}
}

func TestLoadSkipsTasksOfMissingProject(t *testing.T) {
	root, store, _, _ := newSignedInRoot(t)
	d := selectNewProject(t, root)
	id := d.ProjectID()

	store.removeProject(id)
	before := store.taskLists()
	if err := d.Load(context.Background()); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if store.taskLists() != before {
		t.Fatalf("did not expect tasks of a missing project to be fetched")
	}
}

func TestTaskWriteOnDeletedProjectClearsSelection(t *testing.T) {
	ctx := context.Background()
	writes := map[string]func(d *ProjectDetail, taskID string) error{
		"toggle": func(d *ProjectDetail, taskID string) error { return d.ToggleTask(ctx, taskID) },
		"delete": func(d *ProjectDetail, taskID string) error {
			_, err := d.DeleteTask(ctx, taskID, AlwaysConfirm)
			return err
		},
	}
	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			root, store, _, _ := newSignedInRoot(t)
			d := selectNewProject(t, root)
			task, err := d.CreateTask(ctx, TaskInput{Title: "orphan"})
			if err != nil {
				t.Fatalf("create task: %v", err)
			}

			store.removeProject(d.ProjectID())
			if err := write(d, task.ID); !errors.Is(err, backend.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
			if root.Selected() != "" || root.Detail() != nil {
				t.Fatalf("expected selection to be cleared, got %q", root.Selected())
			}
			if len(root.Projects()) != 0 {
				t.Fatalf("expected project list to be re-fetched")
			}
		})
	}
}

func TestTaskWriteFailureKeepsLiveProjectSelected(t *testing.T) {
	root, store, _, notes := newSignedInRoot(t)
	d := selectNewProject(t, root)
	ctx := context.Background()
	task, _ := d.CreateTask(ctx, TaskInput{Title: "t"})
	notes.Drain()

	store.failTaskWrites(errBoom)
	if err := d.ToggleTask(ctx, task.ID); !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := d.CreateTask(ctx, TaskInput{Title: "again"}); !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if root.Selected() != d.ProjectID() || root.Detail() != d {
		t.Fatalf("expected the project to stay selected")
	}
	if !d.Form().Open || d.Form().Input.Title != "again" {
		t.Fatalf("expected the form to keep its values")
	}
	if got := notes.Drain(); len(got) != 2 {
		t.Fatalf("expected one notification per failure, got %+v", got)
	}
}

func TestSignInEventFetchesProjects(t *testing.T) {
	store := newMemStore()
	store.projects = []model.Project{{ID: "p1", Name: "Existing", CreatedAt: time.Now()}}
	auth := newFakeAuth(false)
	root := NewRoot(auth, store, &Notifications{})
	redraws := 0
	root.OnChange(func() { redraws++ })
	if err := root.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer root.Close()

	if len(root.Projects()) != 0 {
		t.Fatalf("expected no projects while signed out")
	}
	auth.signIn()
	if root.State() != StateAuthenticated || len(root.Projects()) != 1 {
		t.Fatalf("expected projects after sign-in, got %d", len(root.Projects()))
	}
	if redraws != 2 {
		t.Fatalf("expected two redraw callbacks, got %d", redraws)
	}
}
