package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/existflow/promanage/internal/app"
	"github.com/existflow/promanage/internal/backend"
	"github.com/existflow/promanage/internal/config"
	"github.com/existflow/promanage/internal/session"
)

// errNotSignedIn is returned by commands that need a session
var errNotSignedIn = errors.New("not signed in (run: promanage auth login)")

// conn is one command's view of the backend
type conn struct {
	client *backend.Client
	auth   *session.Store
	notes  *app.Notifications
	root   *app.Root
}

// connect builds the backend client and the session store kept under
// ~/.promanage/sessions, then restores the session. Callers must close it
func (a *App) connect(cmd *cobra.Command) (*conn, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	client := backend.NewClient(a.cfg.BackendURL, a.cfg.AnonKey)
	auth := session.NewStore(client, session.NewFileStorage(config.SessionDir()))
	notes := &app.Notifications{}
	root := app.NewRoot(auth, backend.NewTables(client, auth), notes)

	if err := root.Init(cmd.Context()); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	return &conn{client: client, auth: auth, notes: notes, root: root}, nil
}

func (c *conn) close() {
	c.auth.Stop()
	c.root.Close()
}

// signedIn connects and fails unless a session exists
func (a *App) signedIn(cmd *cobra.Command) (*conn, error) {
	c, err := a.connect(cmd)
	if err != nil {
		return nil, err
	}
	if c.root.State() != app.StateAuthenticated {
		c.close()
		return nil, errNotSignedIn
	}
	return c, nil
}

// report prints the notifications raised by the controllers. It returns the
// last error message, if any
func (c *conn) report(cmd *cobra.Command) error {
	var last error
	for _, n := range c.notes.Drain() {
		if n.Kind == app.NotifyError {
			last = errors.New(n.Message)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s\n", n.Message)
	}
	return last
}

// prompt reads one line after printing label
func (a *App) prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), label)
	line, err := a.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo when stdin is a terminal
func (a *App) promptPassword(cmd *cobra.Command, label string) (string, error) {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return a.prompt(cmd, label)
	}

	fmt.Fprint(cmd.OutOrStdout(), label)
	passwordBytes, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(passwordBytes), nil
}

// confirm asks a yes/no question, defaulting to no
func (a *App) confirm(cmd *cobra.Command, question string) bool {
	answer, err := a.prompt(cmd, question+" [y/N]: ")
	if err != nil {
		return false
	}
	return answer == "y" || answer == "Y"
}
