package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driven"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driving"
)

// Janitor runs the periodic maintenance loop: sweeping expired pending
// authorizations and proactively refreshing the access token before it
// crosses the refresh margin, so interactive requests rarely pay for a
// refresh inline.
type Janitor struct {
	connector driving.ConnectorService
	pending   driven.PendingAuthStore
	interval  time.Duration
	logger    *slog.Logger
}

// NewJanitor creates a janitor. Zero interval means one minute.
func NewJanitor(connector driving.ConnectorService, pending driven.PendingAuthStore, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		connector: connector,
		pending:   pending,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, ticking at the configured interval.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("janitor started", "interval", j.interval)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one maintenance pass.
func (j *Janitor) Sweep(ctx context.Context) {
	if err := j.pending.Cleanup(ctx); err != nil {
		j.logger.Warn("pending authorization cleanup failed", "error", err)
	}

	state, err := j.connector.RefreshIfNeeded(ctx)
	if err != nil {
		// A refresh failure already transitioned the connection to error;
		// the admin sees it on the next status poll.
		j.logger.Warn("proactive token refresh failed", "error", err)
		return
	}
	if state.Status == domain.StatusConnected && state.TokenExpiry != nil {
		j.logger.Debug("token checked", "expires_in", time.Until(*state.TokenExpiry).Round(time.Second))
	}
}
