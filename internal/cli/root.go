package cli

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/existflow/promanage/internal/config"
	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/telemetry"
	"github.com/existflow/promanage/internal/tui"
)

// sessionRefreshInterval is how often the TUI checks whether its access
// token is about to expire
const sessionRefreshInterval = time.Minute

// App carries the flags and config shared by every command
type App struct {
	logLevel   string
	logFile    string
	logConsole bool
	backendURL string
	anonKey    string

	cfg       *config.Config
	telemetry *telemetry.Provider
	reader    *bufio.Reader
}

// NewRootCmd builds the promanage command tree
func NewRootCmd() *cobra.Command {
	a := &App{}

	cmd := &cobra.Command{
		Use:   "promanage",
		Short: "ProManage - projects and tasks from the terminal",
		Long: `ProManage keeps your projects and their tasks on a hosted backend.

Run 'promanage' without arguments to launch the interactive TUI.`,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  promanage

  # Scriptable commands
  promanage auth login --email ada@example.com
  promanage project new "Website" --description "Relaunch"
  promanage task add "Write copy" --project website --priority high
  promanage web --addr :8080
`),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			c.auth.StartAutoRefresh(sessionRefreshInterval)
			logger.Info("Launching TUI")
			return tui.Run(cmd.Context(), c.root, c.auth, c.notes, tui.Options{
				ConfirmDelete: a.cfg.ConfirmDelete,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.telemetry.Shutdown(cmd.Context())
			logger.Info("ProManage exiting", logger.F("command", cmd.Name()))
			logger.Close()
		},
	}

	// Logging and backend flags, persisted to the config file when given
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	cmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Path to log file")
	cmd.PersistentFlags().BoolVar(&a.logConsole, "log-console", false, "Enable console logging")
	cmd.PersistentFlags().StringVar(&a.backendURL, "backend-url", "", "Backend base URL")
	cmd.PersistentFlags().StringVar(&a.anonKey, "anon-key", "", "Backend anon key")

	cmd.AddCommand(newAuthCmd(a))
	cmd.AddCommand(newProjectCmd(a))
	cmd.AddCommand(newTaskCmd(a))
	cmd.AddCommand(newWebCmd(a))
	cmd.AddCommand(newConfigCmd(a))

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// setup loads the config, applies flag overrides and starts logging
func (a *App) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		logger.Warn("Failed to load config, using defaults", logger.F("error", err))
		cfg = config.DefaultConfig()
	}

	// Override with CLI flags if provided
	flags := cmd.Flags()
	configChanged := false
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
		configChanged = true
	}
	if flags.Changed("log-file") {
		cfg.LogFile = a.logFile
		configChanged = true
	}
	if flags.Changed("log-console") {
		cfg.LogConsole = a.logConsole
		configChanged = true
	}
	if flags.Changed("backend-url") {
		cfg.BackendURL = a.backendURL
		configChanged = true
	}
	if flags.Changed("anon-key") {
		cfg.AnonKey = a.anonKey
		configChanged = true
	}

	if configChanged {
		if err := cfg.Save(); err != nil {
			logger.Warn("Failed to save config", logger.F("error", err))
		}
	}
	a.cfg = cfg

	logConfig := logger.Config{
		Level:      logger.ParseLevel(cfg.LogLevel),
		FilePath:   cfg.LogFile,
		MaxSize:    10 * 1024 * 1024, // 10MB
		MaxAge:     7,
		MaxBackups: 5,
		Console:    cfg.LogConsole,
	}
	if err := logger.Init(logConfig); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.telemetry = telemetry.Setup(cfg.Tracing, logger.Global())
	a.reader = bufio.NewReader(cmd.InOrStdin())

	logger.Info("ProManage started", logger.F("command", cmd.Name()))
	return nil
}
