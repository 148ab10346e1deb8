package session

import (
	"context"
	"time"

	"github.com/existflow/promanage/internal/logger"
)

// StartAutoRefresh checks the session every interval and refreshes the access
// token before it expires. It stops on Stop
func (s *Store) StartAutoRefresh(interval time.Duration) {
	go s.refreshLoop(interval)
}

func (s *Store) refreshLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshIfDue(interval)
		case <-s.stopCh:
			return
		}
	}
}

// refreshIfDue refreshes when the token would expire before the next tick
func (s *Store) refreshIfDue(window time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	if err := s.load(ctx); err != nil {
		s.mu.Unlock()
		logger.Warn("Background session refresh failed", logger.F("error", err))
		return
	}
	due := s.session != nil && s.session.IsExpired(window+s.margin)
	s.mu.Unlock()

	if !due {
		return
	}
	if _, err := s.refresh(ctx, window+s.margin); err != nil {
		logger.Warn("Background session refresh failed", logger.F("error", err))
	}
}

// Stop stops the background refresh loop
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}
