package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/existflow/promanage/internal/app"
	"github.com/existflow/promanage/internal/backend"
)

func (s *Server) notes(c echo.Context) []app.Notification {
	r := current(c)
	notes := s.flash(c.Request().Context(), r.sid)
	return append(notes, r.notes.Drain()...)
}

func (s *Server) renderGate(c echo.Context, status int, vm *pageVM) error {
	if vm.Mode == "" {
		vm.Mode = "login"
	}
	vm.Title = "Sign in"
	vm.Notes = append(vm.Notes, s.notes(c)...)
	return c.Render(status, "gate.html", vm)
}

func (s *Server) renderLayout(c echo.Context, status int) error {
	return c.Render(status, "layout.html", layoutVM(current(c), s.notes(c)))
}

func (s *Server) handleIndex(c echo.Context) error {
	r := current(c)
	if r.root.State() != app.StateAuthenticated {
		return s.renderGate(c, http.StatusOK, &pageVM{Mode: c.QueryParam("mode")})
	}
	if c.QueryParam("new") == "project" {
		r.root.List().OpenForm()
	}
	return s.renderLayout(c, http.StatusOK)
}

func (s *Server) handleLogin(c echo.Context) error {
	r := current(c)
	email := c.FormValue("email")
	if err := r.auth.SignInWithPassword(c.Request().Context(), email, c.FormValue("password")); err != nil {
		return s.renderGate(c, http.StatusUnprocessableEntity, &pageVM{Mode: "login", FormEmail: email, Error: err.Error()})
	}
	return s.redirect(c, "/")
}

func (s *Server) handleSignUp(c echo.Context) error {
	r := current(c)
	email := c.FormValue("email")
	confirmed, err := r.auth.SignUp(c.Request().Context(), email, c.FormValue("password"))
	if err != nil {
		return s.renderGate(c, http.StatusUnprocessableEntity, &pageVM{Mode: "signup", FormEmail: email, Error: err.Error()})
	}
	if !confirmed {
		r.notes.Success("Check your email to confirm your account")
	}
	return s.redirect(c, "/")
}

func (s *Server) handleMagicLink(c echo.Context) error {
	r := current(c)
	email := c.FormValue("email")
	token, err := r.auth.SendMagicLink(c.Request().Context(), email)
	if err != nil {
		return s.renderGate(c, http.StatusUnprocessableEntity, &pageVM{Mode: "magic", FormEmail: email, Error: err.Error()})
	}
	return s.renderGate(c, http.StatusOK, &pageVM{Mode: "magic", FormEmail: email, MagicSent: true, MagicToken: token})
}

func (s *Server) handleMagicLinkVerify(c echo.Context) error {
	r := current(c)
	email := c.FormValue("email")
	if err := r.auth.VerifyMagicLink(c.Request().Context(), email, c.FormValue("token")); err != nil {
		return s.renderGate(c, http.StatusUnprocessableEntity, &pageVM{Mode: "magic", FormEmail: email, MagicSent: true, Error: err.Error()})
	}
	return s.redirect(c, "/")
}

func (s *Server) handleLogout(c echo.Context) error {
	_ = current(c).root.SignOut(c.Request().Context())
	return s.redirect(c, "/")
}

func (s *Server) handleCreateProject(c echo.Context) error {
	r := current(c)
	ok, key := s.claim(c)
	if !ok {
		return s.redirect(c, "/")
	}

	if _, err := r.root.List().Create(c.Request().Context(), c.FormValue("name"), c.FormValue("description")); err != nil {
		s.release(c, key)
		return s.renderLayout(c, http.StatusUnprocessableEntity)
	}
	if id := r.root.Selected(); id != "" {
		return s.redirect(c, "/projects/"+id)
	}
	return s.redirect(c, "/")
}

// selectProject loads the project named in the path. It returns nil when the
// project is gone and the selection was dropped
func (s *Server) selectProject(c echo.Context) *app.ProjectDetail {
	r := current(c)
	_ = r.root.Select(c.Request().Context(), c.Param("id"))
	if r.root.Selected() == "" {
		return nil
	}
	return r.root.Detail()
}

func projectPath(c echo.Context) string {
	return "/projects/" + c.Param("id")
}

func (s *Server) handleProject(c echo.Context) error {
	d := s.selectProject(c)
	if d == nil {
		return s.redirect(c, "/")
	}
	if c.QueryParam("new") == "task" {
		d.OpenForm()
	}
	return s.renderLayout(c, http.StatusOK)
}

func (s *Server) handleCreateTask(c echo.Context) error {
	ok, key := s.claim(c)
	if !ok {
		return s.redirect(c, projectPath(c))
	}
	d := s.selectProject(c)
	if d == nil {
		s.release(c, key)
		return s.redirect(c, "/")
	}

	_, err := d.CreateTask(c.Request().Context(), app.TaskInput{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Priority:    c.FormValue("priority"),
		DueDate:     c.FormValue("due_date"),
	})
	if err != nil {
		s.release(c, key)
		return s.renderLayout(c, http.StatusUnprocessableEntity)
	}
	return s.redirect(c, projectPath(c))
}

func (s *Server) handleToggleTask(c echo.Context) error {
	ok, key := s.claim(c)
	if !ok {
		return s.redirect(c, projectPath(c))
	}
	d := s.selectProject(c)
	if d == nil {
		s.release(c, key)
		return s.redirect(c, "/")
	}

	if err := d.ToggleTask(c.Request().Context(), c.Param("taskID")); err != nil {
		s.release(c, key)
	}
	return s.redirect(c, projectPath(c))
}

func (s *Server) handleConfirmDelete(c echo.Context) error {
	d := s.selectProject(c)
	if d == nil {
		return s.redirect(c, "/")
	}

	task, ok := d.Task(c.Param("taskID"))
	if !ok {
		current(c).notes.Error(fmt.Errorf("task %s: %w", c.Param("taskID"), backend.ErrNotFound).Error())
		return s.redirect(c, projectPath(c))
	}

	vm := layoutVM(current(c), s.notes(c))
	tv := newTaskVM(task)
	vm.Confirm = &tv
	vm.Title = app.DeleteTaskPrompt
	return c.Render(http.StatusOK, "confirm.html", vm)
}

func (s *Server) handleDeleteTask(c echo.Context) error {
	ok, key := s.claim(c)
	if !ok {
		return s.redirect(c, projectPath(c))
	}
	d := s.selectProject(c)
	if d == nil {
		s.release(c, key)
		return s.redirect(c, "/")
	}

	confirmed := func(context.Context, string) bool { return c.FormValue("confirm") == "yes" }
	deleted, err := d.DeleteTask(c.Request().Context(), c.Param("taskID"), confirmed)
	if err != nil || !deleted {
		s.release(c, key)
	}
	return s.redirect(c, projectPath(c))
}
