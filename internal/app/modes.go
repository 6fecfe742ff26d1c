package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/auctionhaus/marketd/internal/notify"
	"github.com/auctionhaus/marketd/internal/server"
	"github.com/auctionhaus/marketd/internal/server/handler"
	"github.com/auctionhaus/marketd/internal/server/ws"
)

// ServeMode runs the HTTP API, the WebSocket hub, the notification
// relay, and the expired-auction sweeper.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startMarketplace(ctx, g, deps)

	return g.Wait()
}

// ArchiveMode runs only the cold-storage archiver on its configured
// interval. Useful as a separate cron-style deployment next to a
// serve-mode fleet.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver not configured (set archive.enabled and s3 settings)")
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: the marketplace API plus the archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startMarketplace(ctx, g, deps)

	if deps.Archiver != nil {
		a.startArchiver(ctx, g, deps)
	} else {
		a.logger.InfoContext(ctx, "archive.enabled is false, skipping archiver")
	}

	return g.Wait()
}

// startMarketplace adds the HTTP server, WebSocket hub, notification
// relay, and auction sweeper goroutines to the given errgroup.
func (a *App) startMarketplace(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	// WebSocket hub bridges the signal bus to browser clients.
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Notification relay forwards marketplace events to the operator's
	// Telegram and Discord channels.
	relay := notify.NewRelay(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return relay.Run(ctx)
	})

	// Expired English auctions are settled by a periodic sweep so an
	// auction past its deadline ends even when nobody calls the end
	// endpoint.
	g.Go(func() error {
		interval := a.cfg.Market.SweepInterval.Duration
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := deps.English.Sweep(ctx, a.cfg.Market.SweepBatch); err != nil {
					a.logger.WarnContext(ctx, "auction sweep failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})

	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "server.enabled is false, skipping HTTP API")
		return
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Fixed:   handler.NewFixedHandler(deps.Fixed, a.logger),
			English: handler.NewEnglishHandler(deps.English, a.logger),
			Dutch:   handler.NewDutchHandler(deps.Dutch, a.logger),
			Sales:   handler.NewSaleHandler(deps.SaleStore, a.logger),
			Audit:   handler.NewAuditHandler(deps.AuditStore, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver adds the periodic cold-storage archival goroutine to the
// given errgroup. Each cycle moves sales and audit entries older than the
// retention window to object storage.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		interval := a.cfg.Archive.Interval.Duration
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

		runOnce := func() {
			cutoff := time.Now().UTC().Add(-retention)
			sales, err := deps.Archiver.ArchiveSales(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "sale archival failed",
					slog.String("error", err.Error()),
				)
			}
			audit, err := deps.Archiver.ArchiveAudit(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "audit archival failed",
					slog.String("error", err.Error()),
				)
			}
			a.logger.InfoContext(ctx, "archive cycle complete",
				slog.Int64("sales", sales),
				slog.Int64("audit_entries", audit),
				slog.Time("cutoff", cutoff),
			)
		}

		runOnce()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				runOnce()
			}
		}
	})
}
