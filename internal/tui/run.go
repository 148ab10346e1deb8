package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/existflow/promanage/internal/app"
	"github.com/existflow/promanage/internal/logger"
)

// Run starts the TUI and blocks until the user quits
func Run(ctx context.Context, root *app.Root, auth Authenticator, notes *app.Notifications, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer root.Close()

	p := tea.NewProgram(NewModel(ctx, root, auth, notes, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run tui: %w", err)
	}
	logger.Info("TUI exited")
	return nil
}
