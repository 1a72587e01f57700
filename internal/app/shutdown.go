package app

import (
	"context"

	"mawneychat/pkg/state/logger"
)

// Shutdown stops the listener and background work, gives the outbox one
// last flush within ctx, then closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	logger.Info("shutdown_requested")

	if a.srvFast != nil {
		if err := a.srvFast.Shutdown(); err != nil {
			logger.Error("command_api_shutdown_failed", "error", err)
		}
	}
	a.c.Poller.Stop()
	a.c.Outbox.Stop()

	if _, ok := a.c.Chats.CurrentUser(); ok && a.c.Remote != nil {
		if n, err := a.c.Outbox.Flush(ctx); err != nil {
			logger.Warn("final_outbox_flush_incomplete", "delivered", n, "error", err)
		} else if n > 0 {
			logger.Info("final_outbox_flush", "delivered", n)
		}
	}
	a.c.Chats.Close()

	if err := a.c.KV.Flush(); err != nil {
		logger.Error("store_flush_failed", "error", err)
	}
	if a.cleanup != nil {
		a.cleanup()
	}
	a.state = "stopped"
	logger.Info("shutdown_complete")
	return nil
}
