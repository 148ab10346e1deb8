package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/existflow/promanage/internal/backend"
	"github.com/existflow/promanage/internal/model"
	"github.com/existflow/promanage/internal/session"
)

const testAnonKey = "anon-test-key"

type testEnv struct {
	srv    *Server
	http   *httptest.Server
	client *backend.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv, err := New(Config{
		DatabaseURL: filepath.Join(t.TempDir(), "promanage.db"),
		JWTSecret:   "test-secret",
		AnonKey:     testAnonKey,
		DevMode:     true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hs := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		hs.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, http: hs, client: backend.NewClient(hs.URL, testAnonKey)}
}

// signUp registers email and returns its session store and tables
func (e *testEnv) signUp(t *testing.T, email string) (*session.Store, *backend.Tables) {
	t.Helper()
	store := session.NewStore(e.client, session.NewMemoryStorage())
	confirmed, err := store.SignUp(context.Background(), email, "secret123")
	if err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
	if !confirmed {
		t.Fatalf("expected sign up to return a session")
	}
	return store, backend.NewTables(e.client, store)
}

func (e *testEnv) raw(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("apikey", testAnonKey)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res.StatusCode, out
}

func TestProjectAndTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store, tables := env.signUp(t, "ada@example.com")

	user, err := store.GetUser(ctx)
	if err != nil || user == nil {
		t.Fatalf("GetUser: %v %v", user, err)
	}

	alpha, err := tables.CreateProject(ctx, model.NewProject{Name: "Alpha", UserID: user.ID})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if alpha.Status != model.ProjectActive {
		t.Errorf("expected default status active, got %q", alpha.Status)
	}
	if alpha.DescriptionText() != "" {
		t.Errorf("expected empty description, got %q", alpha.DescriptionText())
	}
	if _, err := tables.CreateProject(ctx, model.NewProject{Name: "Beta", Description: "second", UserID: user.ID}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	projects, err := tables.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 2 || projects[0].Name != "Beta" || projects[1].Name != "Alpha" {
		t.Fatalf("expected newest first, got %+v", projects)
	}

	got, err := tables.GetProject(ctx, alpha.ID)
	if err != nil || got.Name != "Alpha" {
		t.Fatalf("GetProject: %+v %v", got, err)
	}
	if _, err := tables.GetProject(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing project, got %v", err)
	}

	task, err := tables.CreateTask(ctx, model.NewTask{Title: "Write spec", Priority: model.PriorityHigh, ProjectID: alpha.ID})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != model.StatusTodo || task.CompletedAt != nil || task.Priority != model.PriorityHigh {
		t.Fatalf("unexpected task %+v", task)
	}

	patch := task.ToggleStatus(time.Now())
	if err := tables.UpdateTaskStatus(ctx, task.ID, patch); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	tasks, err := tables.ListTasks(ctx, alpha.ID)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("ListTasks: %+v %v", tasks, err)
	}
	if tasks[0].Status != model.StatusCompleted || tasks[0].CompletedAt == nil {
		t.Fatalf("expected completed task with a timestamp, got %+v", tasks[0])
	}

	if err := tables.UpdateTaskStatus(ctx, task.ID, tasks[0].ToggleStatus(time.Now())); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	tasks, _ = tables.ListTasks(ctx, alpha.ID)
	if tasks[0].Status != model.StatusTodo || tasks[0].CompletedAt != nil {
		t.Fatalf("expected todo task without completed_at, got %+v", tasks[0])
	}

	if err := tables.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := tables.DeleteTask(ctx, task.ID); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestDueDateIsStoredAsDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store, tables := env.signUp(t, "due@example.com")
	user, _ := store.GetUser(ctx)

	p, err := tables.CreateProject(ctx, model.NewProject{Name: "Dates", UserID: user.ID})
	if err != nil {
		t.Fatal(err)
	}
	due := "2025-03-01T10:00:00Z"
	task, err := tables.CreateTask(ctx, model.NewTask{Title: "File taxes", Priority: model.PriorityMedium, DueDate: &due, ProjectID: p.ID})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.DueDate == nil || *task.DueDate != "2025-03-01" {
		t.Fatalf("expected due date 2025-03-01, got %v", task.DueDate)
	}
}

func TestRowChecksIsolateUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	storeA, tablesA := env.signUp(t, "a@example.com")
	_, tablesB := env.signUp(t, "b@example.com")
	userA, _ := storeA.GetUser(ctx)

	p, err := tablesA.CreateProject(ctx, model.NewProject{Name: "Private", UserID: userA.ID})
	if err != nil {
		t.Fatal(err)
	}
	task, err := tablesA.CreateTask(ctx, model.NewTask{Title: "Secret", Priority: model.PriorityLow, ProjectID: p.ID})
	if err != nil {
		t.Fatal(err)
	}

	projects, err := tablesB.ListProjects(ctx)
	if err != nil || len(projects) != 0 {
		t.Fatalf("expected no visible projects for b, got %+v %v", projects, err)
	}
	if _, err := tablesB.GetProject(ctx, p.ID); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := tablesB.DeleteTask(ctx, task.ID); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = tablesB.CreateTask(ctx, model.NewTask{Title: "Intrude", Priority: model.PriorityLow, ProjectID: p.ID})
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden || apiErr.Code != "42501" {
		t.Fatalf("expected row-level security error, got %v", err)
	}
	if _, err := tablesB.CreateProject(ctx, model.NewProject{Name: "Spoof", UserID: userA.ID}); !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("expected row-level security error, got %v", err)
	}

	tasks, _ := tablesA.ListTasks(ctx, p.ID)
	if len(tasks) != 1 {
		t.Fatalf("expected a's task to survive, got %+v", tasks)
	}
}

func TestAnonymousCallerSeesNoRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store, tables := env.signUp(t, "owner@example.com")
	user, _ := store.GetUser(ctx)
	if _, err := tables.CreateProject(ctx, model.NewProject{Name: "Mine", UserID: user.ID}); err != nil {
		t.Fatal(err)
	}

	anon := backend.NewTables(env.client, nil)
	projects, err := anon.ListProjects(ctx)
	if err != nil || len(projects) != 0 {
		t.Fatalf("expected no rows for the anon key, got %+v %v", projects, err)
	}
}

func TestPasswordSignIn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUp(t, "pw@example.com")

	if _, err := env.client.SignInWithPassword(ctx, "pw@example.com", "wrong-password"); err == nil {
		t.Fatal("expected invalid credentials")
	} else {
		var apiErr *backend.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != "invalid_credentials" || apiErr.Message != "Invalid login credentials" {
			t.Fatalf("unexpected error %v", err)
		}
	}

	sess, err := env.client.SignInWithPassword(ctx, "PW@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if sess.User.Email != "pw@example.com" || sess.RefreshToken == "" || sess.ExpiresAt == 0 {
		t.Fatalf("unexpected session %+v", sess)
	}

	_, _, err = env.client.SignUp(ctx, "pw@example.com", "secret123")
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "user_already_exists" {
		t.Fatalf("expected user_already_exists, got %v", err)
	}
	_, _, err = env.client.SignUp(ctx, "short@example.com", "123")
	if !errors.As(err, &apiErr) || apiErr.Code != "weak_password" {
		t.Fatalf("expected weak_password, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUp(t, "rot@example.com")

	sess, err := env.client.SignInWithPassword(ctx, "rot@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	next, err := env.client.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if next.RefreshToken == sess.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	env.srv.now = func() time.Time { return time.Now().Add(refreshReuseInterval + time.Second) }
	defer func() { env.srv.now = time.Now }()

	_, err = env.client.RefreshSession(ctx, sess.RefreshToken)
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected the old refresh token to be rejected, got %v", err)
	}
}

func TestRotatedRefreshTokenResolvesWithinReuseInterval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUp(t, "race@example.com")

	sess, err := env.client.SignInWithPassword(ctx, "race@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	first, err := env.client.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}

	// a second client still holding the old token lands on the same session
	second, err := env.client.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatalf("reuse within interval: %v", err)
	}
	if second.RefreshToken != first.RefreshToken || second.AccessToken == "" {
		t.Fatalf("expected the replacement refresh token, got %+v", second)
	}
	if _, err := env.client.GetUser(ctx, second.AccessToken); err != nil {
		t.Fatalf("GetUser with resumed session: %v", err)
	}

	// the replacement still rotates normally
	third, err := env.client.RefreshSession(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if third.RefreshToken == first.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	if err := env.client.SignOut(ctx, third.AccessToken); err != nil {
		t.Fatal(err)
	}
	if _, err := env.client.RefreshSession(ctx, first.RefreshToken); err == nil {
		t.Fatal("expected reuse to fail once the replacement is signed out")
	}
}

func TestSignOutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUp(t, "out@example.com")

	sess, err := env.client.SignInWithPassword(ctx, "out@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.client.SignOut(ctx, sess.AccessToken); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := env.client.RefreshSession(ctx, sess.RefreshToken); err == nil {
		t.Fatal("expected refresh after sign out to fail")
	}
}

func TestMagicLinkIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token, err := env.client.SendMagicLink(ctx, "link@example.com")
	if err != nil {
		t.Fatalf("SendMagicLink: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token in dev mode")
	}

	sess, err := env.client.VerifyMagicLink(ctx, "link@example.com", token)
	if err != nil {
		t.Fatalf("VerifyMagicLink: %v", err)
	}
	user, err := env.client.GetUser(ctx, sess.AccessToken)
	if err != nil || user.Email != "link@example.com" {
		t.Fatalf("GetUser: %+v %v", user, err)
	}

	_, err = env.client.VerifyMagicLink(ctx, "link@example.com", token)
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("expected reused token to be rejected, got %v", err)
	}
}

func TestExpiredMagicLinkIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token, err := env.client.SendMagicLink(ctx, "late@example.com")
	if err != nil {
		t.Fatal(err)
	}
	env.srv.now = func() time.Time { return time.Now().Add(magicLinkTTL + time.Minute) }
	defer func() { env.srv.now = time.Now }()

	if _, err := env.client.VerifyMagicLink(ctx, "late@example.com", token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestRejectsBadAccessTokens(t *testing.T) {
	env := newTestEnv(t)

	expired, _, err := env.srv.signAccessToken(model.User{ID: "u1", Email: "x@example.com", Role: audience}, "s1", time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	status, body := env.raw(t, http.MethodGet, "/rest/v1/projects?select=*", expired, nil)
	if status != http.StatusUnauthorized || body["code"] != "PGRST303" {
		t.Fatalf("expected PGRST303, got %d %v", status, body)
	}
	status, body = env.raw(t, http.MethodGet, "/rest/v1/projects?select=*", "not-a-jwt", nil)
	if status != http.StatusUnauthorized || body["code"] != "PGRST301" {
		t.Fatalf("expected PGRST301, got %d %v", status, body)
	}

	req, _ := http.NewRequest(http.MethodGet, env.http.URL+"/rest/v1/projects", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without apikey, got %d", res.StatusCode)
	}
}

func TestRestValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store, tables := env.signUp(t, "v@example.com")
	user, _ := store.GetUser(ctx)
	p, err := tables.CreateProject(ctx, model.NewProject{Name: "V", UserID: user.ID})
	if err != nil {
		t.Fatal(err)
	}
	token, _ := store.AccessToken(ctx)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown table", http.MethodGet, "/rest/v1/widgets", nil, http.StatusNotFound, "42P01"},
		{"unknown filter column", http.MethodGet, "/rest/v1/tasks?colour=eq.red", nil, http.StatusBadRequest, "42703"},
		{"bad priority", http.MethodPost, "/rest/v1/tasks",
			map[string]interface{}{"title": "x", "priority": "urgent", "project_id": p.ID}, http.StatusBadRequest, "22P02"},
		{"unknown column", http.MethodPost, "/rest/v1/tasks",
			map[string]interface{}{"title": "x", "colour": "red", "project_id": p.ID}, http.StatusBadRequest, "PGRST204"},
		{"missing title", http.MethodPost, "/rest/v1/tasks",
			map[string]interface{}{"project_id": p.ID}, http.StatusBadRequest, "23502"},
		{"bad date", http.MethodPost, "/rest/v1/tasks",
			map[string]interface{}{"title": "x", "due_date": "soon", "project_id": p.ID}, http.StatusBadRequest, "22007"},
		{"unfiltered delete", http.MethodDelete, "/rest/v1/tasks", nil, http.StatusBadRequest, "21000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.raw(t, tt.method, tt.path, token, tt.body)
			if status != tt.status || body["code"] != tt.code {
				t.Fatalf("expected %d %s, got %d %v", tt.status, tt.code, status, body)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM tasks WHERE id = ? AND project_id IN (SELECT id FROM projects WHERE user_id = ?)"
	if got := dialectSQLite.rebind(q); got != q {
		t.Fatalf("sqlite should keep ? placeholders, got %q", got)
	}
	want := "SELECT * FROM tasks WHERE id = $1 AND project_id IN (SELECT id FROM projects WHERE user_id = $2)"
	if got := dialectPostgres.rebind(q); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
