package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/nexus/internal/cron"
	"github.com/haasonsaas/nexus/internal/session"
)

const sessionTTLSweepHandler = "session_ttl_sweep"

// sessionTTLSweep closes bound sessions that have sat idle past ttl. It is
// registered as a cron.CustomHandler rather than a config.Cron.Jobs entry:
// it runs unconditionally from the moment the process starts, not at an
// operator's discretion.
func sessionTTLSweep(manager *session.Manager, ttl time.Duration, logger *slog.Logger) cron.CustomHandlerFunc {
	return func(ctx context.Context, job *cron.Job, args map[string]any) error {
		for _, id := range manager.ActiveSessionIDs() {
			sess, ok := manager.Get(id)
			if !ok || sess.IsProcessing() {
				continue
			}
			info, err := manager.InfoFor(id)
			if err != nil {
				continue
			}
			if time.Since(info.UpdatedAt) < ttl {
				continue
			}
			if err := manager.Close(ctx, id); err != nil {
				logger.Warn("session ttl sweep: close failed", "session_id", id, "error", err)
				continue
			}
			logger.Info("session ttl sweep: closed idle session", "session_id", id, "idle_for", time.Since(info.UpdatedAt))
		}
		return nil
	}
}
