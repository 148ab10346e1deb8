package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/existflow/promanage/internal/model"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

func newTestTables(t *testing.T, h http.HandlerFunc) *Tables {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewTables(NewClient(srv.URL, "anon-key"), staticToken("user-token"))
}

func TestListProjectsSendsHeadersAndOrdering(t *testing.T) {
	tables := newTestTables(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/projects" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Fatalf("expected apikey header, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Fatalf("expected bearer token, got %q", got)
		}
		if r.URL.Query().Get("order") != "created_at.desc" || r.URL.Query().Get("select") != "*" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"p2","name":"Beta","description":null,"created_at":"2024-05-02T10:00:00Z","user_id":"u1","status":"active"},
			{"id":"p1","name":"Alpha","description":"first","created_at":"2024-05-01T10:00:00Z","user_id":"u1","status":"active"}]`)
	})

	projects, err := tables.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(projects) != 2 || projects[0].Name != "Beta" || projects[1].DescriptionText() != "first" {
		t.Fatalf("unexpected projects %+v", projects)
	}
	if projects[0].Status != model.ProjectActive {
		t.Fatalf("expected active status, got %s", projects[0].Status)
	}
}

func TestAnonymousRequestsUseAnonKeyAsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer anon-key" {
			t.Fatalf("expected anon bearer, got %q", got)
		}
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	tables := NewTables(NewClient(srv.URL, "anon-key"), staticToken(""))
	if _, err := tables.ListProjects(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func TestGetProjectMissingIsNotFound(t *testing.T) {
	tables := newTestTables(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != singleObject {
			t.Fatalf("expected single object accept header, got %q", r.Header.Get("Accept"))
		}
		if r.URL.Query().Get("id") != "eq.missing" {
			t.Fatalf("unexpected filter %s", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusNotAcceptable)
		io.WriteString(w, `{"code":"PGRST116","details":"The result contains 0 rows","hint":null,"message":"JSON object requested, multiple (or no) rows returned"}`)
	})

	_, err := tables.GetProject(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Details != "The result contains 0 rows" {
		t.Fatalf("expected parsed APIError, got %#v", err)
	}
}

func TestDeleteTaskWithNoMatchingRowIsNotFound(t *testing.T) {
	tables := newTestTables(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("expected DELETE, got %s", r.Method)
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Fatalf("expected representation preference")
		}
		io.WriteString(w, `[]`)
	})

	if err := tables.DeleteTask(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTaskStatusSendsNullCompletedAt(t *testing.T) {
	var body string
	tables := newTestTables(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Query().Get("id") != "eq.t1" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.RawQuery)
		}
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		io.WriteString(w, `[{"id":"t1","status":"todo","completed_at":null}]`)
	})

	if err := tables.UpdateTaskStatus(context.Background(), "t1", model.StatusPatch{Status: model.StatusTodo}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(body, `"completed_at":null`) || !strings.Contains(body, `"status":"todo"`) {
		t.Fatalf("unexpected patch body %s", body)
	}
}

func TestCreateTaskReturnsRow(t *testing.T) {
	tables := newTestTables(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Accept") != singleObject {
			t.Fatalf("unexpected insert request %s accept=%s", r.Method, r.Header.Get("Accept"))
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"t1","title":"Write spec","description":"","status":"todo","priority":"high","due_date":null,"project_id":"p1","assigned_to":null,"created_at":"2024-05-01T10:00:00Z","completed_at":null}`)
	})

	task, err := tables.CreateTask(context.Background(), model.NewTask{Title: "Write spec", Priority: model.PriorityHigh, ProjectID: "p1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID != "t1" || task.Status != model.StatusTodo || task.CompletedAt != nil {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestInsertWithoutRowFails(t *testing.T) {
	for _, body := range []string{`{}`, `null`} {
		tables := newTestTables(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, body)
		})

		task, err := tables.CreateTask(context.Background(), model.NewTask{Title: "t", ProjectID: "p1"})
		if err == nil || task != nil {
			t.Fatalf("body %s: expected an error for a task insert with no row, got %+v", body, task)
		}
		project, err := tables.CreateProject(context.Background(), model.NewProject{Name: "p", UserID: "u1"})
		if err == nil || project != nil {
			t.Fatalf("body %s: expected an error for a project insert with no row, got %+v", body, project)
		}
	}
}

func TestSignInParsesSessionAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Fatalf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		data, _ := io.ReadAll(r.Body)
		if strings.Contains(string(data), "wrong") {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`)
			return
		}
		io.WriteString(w, `{"access_token":"at","token_type":"bearer","expires_in":3600,"refresh_token":"rt","user":{"id":"u1","email":"a@example.com"}}`)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "anon")

	s, err := c.SignInWithPassword(context.Background(), "a@example.com", "secret")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if s.AccessToken != "at" || s.RefreshToken != "rt" || s.User.ID != "u1" {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.ExpiresAt < time.Now().Unix()+3500 {
		t.Fatalf("expected expires_at derived from expires_in, got %d", s.ExpiresAt)
	}

	_, err = c.SignInWithPassword(context.Background(), "a@example.com", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "Invalid login credentials" || apiErr.Code != "invalid_credentials" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestSignUpWithoutSessionReturnsUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"u9","email":"new@example.com"}`)
	}))
	defer srv.Close()

	s, u, err := NewClient(srv.URL, "anon").SignUp(context.Background(), "new@example.com", "pw123456")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if s != nil {
		t.Fatalf("expected no session while confirmation is pending")
	}
	if u.ID != "u9" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestParseAPIErrorLegacyAuthBody(t *testing.T) {
	e := parseAPIError(http.StatusUnauthorized, []byte(`{"error":"invalid_grant","error_description":"Refresh Token Not Found"}`))
	if e.Message != "Refresh Token Not Found" || e.Code != "invalid_grant" {
		t.Fatalf("unexpected %+v", e)
	}
	if !errors.Is(e, ErrUnauthorized) {
		t.Fatalf("expected 401 to match ErrUnauthorized")
	}

	plain := parseAPIError(http.StatusBadGateway, []byte("upstream down"))
	if plain.Message != "upstream down" {
		t.Fatalf("expected raw body as message, got %q", plain.Message)
	}
}

func TestRequestsProduceSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	}()

	tables := newTestTables(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"message":"boom"}`)
	})
	if _, err := tables.ListTasks(context.Background(), "p1"); err == nil {
		t.Fatalf("expected error")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "backend.select" {
		t.Fatalf("unexpected span name %s", span.Name)
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if attrs["backend.table"].AsString() != "tasks" {
		t.Fatalf("expected table attribute, got %#v", attrs["backend.table"])
	}
	if attrs["http.status_code"].AsInt64() != http.StatusInternalServerError {
		t.Fatalf("expected status attribute, got %#v", attrs["http.status_code"])
	}
	if span.Status.Code != codes.Error {
		t.Fatalf("expected error status, got %v", span.Status.Code)
	}
}
