package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/existflow/promanage/internal/backend"
	"github.com/existflow/promanage/internal/dedupe"
	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/session"
	"github.com/existflow/promanage/internal/web"
)

func newWebCmd(a *App) *cobra.Command {
	var (
		addr       string
		sessionTTL time.Duration
	)
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the browser UI",
		Long: `Serve the browser UI. Browser sessions and form idempotency keys are kept in
redis when redis_url is set, in memory otherwise.

Examples:
  promanage web
  promanage web --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				a.cfg.WebAddr = addr
			}

			sessions, deduper, closeStore, err := webStores(cmd, a.cfg.RedisURL, a.cfg.DedupeTTL)
			if err != nil {
				return err
			}
			defer closeStore()

			client := backend.NewClient(a.cfg.BackendURL, a.cfg.AnonKey)
			srv, err := web.New(web.Config{
				Addr:         a.cfg.WebAddr,
				CookieSecure: a.cfg.CookieSecure,
				SessionTTL:   sessionTTL,
			}, client, sessions, deduper)
			if err != nil {
				return fmt.Errorf("failed to build web UI: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "🌐 Serving on %s (Ctrl+C to stop)\n", a.cfg.WebAddr)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config web_addr)")
	cmd.Flags().DurationVar(&sessionTTL, "session-ttl", 30*24*time.Hour, "How long an idle browser session is kept")
	return cmd
}

// webStores picks redis or in-memory session storage and deduper
func webStores(cmd *cobra.Command, redisURL string, ttl time.Duration) (session.Storage, dedupe.Deduper, func(), error) {
	if redisURL == "" {
		logger.Info("Using in-memory web sessions")
		return session.NewMemoryStorage(), dedupe.NewMemoryDeduper(ttl), func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(cmd.Context()).Err(); err != nil {
		_ = rc.Close()
		return nil, nil, nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	logger.Info("Using redis web sessions", logger.F("addr", opts.Addr))
	return session.NewRedisStorage(rc), dedupe.NewRedisDeduper(rc, ttl), func() { _ = rc.Close() }, nil
}
