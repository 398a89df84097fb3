package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/neonslash/neonvault/internal/agent"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/pipeline"
	"github.com/neonslash/neonvault/internal/server"
	"github.com/neonslash/neonvault/internal/server/handler"
	"github.com/neonslash/neonvault/internal/server/ws"
	"github.com/neonslash/neonvault/internal/service"
	"github.com/neonslash/neonvault/internal/state"
)

// services holds the domain services shared by every mode.
type services struct {
	sessions *state.Registry
	inbox    *notify.Inbox
	catalog  *service.Catalog
	actions  *service.Actions
	bridge   *service.BridgeService // nil when the bridge is disabled
}

// buildServices constructs the session registry and the services on top of
// it. Their cleanup is registered on the App.
func (a *App) buildServices(deps *Dependencies) *services {
	cfg := a.cfg
	sessions := state.NewRegistry(deps.Vault, deps.Token, state.SessionConfig{
		LockPeriod:      cfg.Engine.LockPeriod.Duration,
		BondRate:        cfg.Engine.BondRate,
		Tick:            cfg.Engine.TickInterval.Duration,
		RewardThreshold: cfg.Engine.RewardThreshold,
		TokenDecimals:   cfg.Chain.TokenDecimals,
		Spender:         cfg.Chain.VaultAddress,
	}, a.logger)
	a.closers = append(a.closers, sessions.Close)

	inbox := notify.NewInbox(cfg.Notify.TTL.Duration, deps.SignalBus, a.logger)

	svc := &services{
		sessions: sessions,
		inbox:    inbox,
		catalog:  service.NewCatalog(deps.Vault, deps.MarketCache, deps.MarketStore, sessions, cfg.Engine.PageSize, a.logger),
		actions: service.NewActions(deps.Vault, deps.Token, sessions, inbox, deps.AuditStore, deps.SignalBus, service.ActionsConfig{
			Spender:       cfg.Chain.VaultAddress,
			TokenDecimals: cfg.Chain.TokenDecimals,
			RefetchDelay:  cfg.Engine.RefetchDelay.Duration,
		}, a.logger),
	}

	if deps.Bridge != nil {
		svc.bridge = service.NewBridgeService(deps.Bridge, sessions, inbox, deps.Notifier,
			cfg.Chain.TokenDecimals, cfg.Bridge.SwitchDelay.Duration, a.logger)
		a.closers = append(a.closers, svc.bridge.Close)
	}
	return svc
}

// ServerMode serves the HTTP API and the WebSocket hub, ticks bond
// projections for connected users and expires notifications.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	svc := a.buildServices(deps)
	orch := pipeline.NewOrchestrator(a.logger)
	a.addServer(ctx, orch, deps, svc, nil)
	return orch.Run(ctx)
}

// IndexerMode polls the vault into Postgres, Redis and the signal bus and
// runs the scheduled archive.
func (a *App) IndexerMode(ctx context.Context, deps *Dependencies) error {
	svc := a.buildServices(deps)
	orch := pipeline.NewOrchestrator(a.logger)
	orch.Add("indexer", a.newIndexer(deps, svc).Run)

	sched := pipeline.NewScheduler(a.logger)
	if _, err := a.addArchive(sched, deps); err != nil {
		return err
	}
	if sched.Len() > 0 {
		orch.Add("scheduler", sched.Run)
	}
	return orch.Run(ctx)
}

// AgentMode runs the market-creation waves on their cron schedule, plus the
// expired-market resolver when it is enabled.
func (a *App) AgentMode(ctx context.Context, deps *Dependencies) error {
	svc := a.buildServices(deps)
	sched := pipeline.NewScheduler(a.logger)
	if err := a.addProphet(sched, deps, svc); err != nil {
		return err
	}
	if a.cfg.Agent.ResolveEnabled {
		if err := a.addResolver(sched, deps, svc); err != nil {
			return err
		}
	}

	orch := pipeline.NewOrchestrator(a.logger)
	orch.Add("scheduler", sched.Run)
	return orch.Run(ctx)
}

// FullMode runs every enabled component in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	svc := a.buildServices(deps)
	orch := pipeline.NewOrchestrator(a.logger)
	sched := pipeline.NewScheduler(a.logger)

	if a.cfg.Indexer.Enabled {
		orch.Add("indexer", a.newIndexer(deps, svc).Run)
	}
	if a.cfg.Agent.Enabled {
		if err := a.addProphet(sched, deps, svc); err != nil {
			return err
		}
	}
	if a.cfg.Agent.ResolveEnabled {
		if err := a.addResolver(sched, deps, svc); err != nil {
			return err
		}
	}
	archive, err := a.addArchive(sched, deps)
	if err != nil {
		return err
	}
	if sched.Len() > 0 {
		orch.Add("scheduler", sched.Run)
	}

	if a.cfg.Server.Enabled {
		var trigger func(context.Context) error
		if archive != nil {
			trigger = archive.Run
		}
		a.addServer(ctx, orch, deps, svc, trigger)
	} else {
		orch.Add("inbox_pruner", a.pruneInbox(svc.inbox))
	}

	return orch.Run(ctx)
}

func (a *App) newIndexer(deps *Dependencies, svc *services) *service.Indexer {
	return service.NewIndexer(
		deps.Vault,
		svc.sessions,
		svc.catalog,
		service.IndexerStores{
			Markets:  deps.MarketStore,
			Bets:     deps.BetStore,
			Accounts: deps.AccountStore,
		},
		deps.MarketCache,
		deps.SignalBus,
		a.cfg.Indexer.WatchAddresses,
		a.cfg.Indexer.Interval.Duration,
		a.logger,
	)
}

// addProphet registers the market-creation wave.
func (a *App) addProphet(sched *pipeline.Scheduler, deps *Dependencies, svc *services) error {
	cfg := a.cfg.Agent
	var news agent.Headliner
	if cfg.NewsFeedURL != "" {
		news = agent.NewNewsFeed(cfg.NewsFeedURL, cfg.NewsKeywords)
	}
	fixtures := make([]agent.Fixture, 0, len(cfg.Fixtures))
	for _, f := range cfg.Fixtures {
		fixtures = append(fixtures, agent.Fixture{Home: f.Home, Away: f.Away, League: f.League})
	}

	prophet := agent.NewProphet(svc.actions, news, deps.LockManager, deps.Notifier, agent.ProphetConfig{
		Fixtures:       fixtures,
		MarketDuration: cfg.MarketDuration.Duration,
		MaxNewsMarkets: cfg.MaxNewsMarkets,
		CryptoSymbol:   cfg.CryptoSymbol,
	}, a.logger)
	if cfg.PriceAPIKey != "" {
		prophet.SetPriceSource(agent.NewCoinMarketCap(cfg.PriceAPIURL, cfg.PriceAPIKey, 1))
	}

	return sched.Add("prophet_wave", cfg.Schedule, func(ctx context.Context) error {
		_, err := prophet.Wave(ctx)
		return err
	})
}

// addResolver registers the sweep over expired markets.
func (a *App) addResolver(sched *pipeline.Scheduler, deps *Dependencies, svc *services) error {
	cfg := a.cfg.Agent
	resolver := agent.NewResolver(deps.Vault, svc.actions, deps.LockManager, deps.Notifier,
		cfg.ResolveOutcome, cfg.ResolvePause.Duration, a.logger)

	return sched.Add("resolve_expired", cfg.ResolveSchedule, func(ctx context.Context) error {
		_, err := resolver.Sweep(ctx)
		return err
	})
}

// addArchive registers the cold-storage archive when it is wired. It returns
// nil without error when archiving is off.
func (a *App) addArchive(sched *pipeline.Scheduler, deps *Dependencies) (*pipeline.Archiver, error) {
	if deps.Archiver == nil {
		return nil, nil
	}
	archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	if err := sched.Add("archive", a.cfg.Archive.Cron, archiver.Run); err != nil {
		return nil, err
	}
	return archiver, nil
}

// addServer registers the HTTP server, the WebSocket hub, the bond publisher
// and the inbox pruner. archive may be nil.
func (a *App) addServer(ctx context.Context, orch *pipeline.Orchestrator, deps *Dependencies, svc *services, archive func(context.Context) error) {
	cfg := a.cfg
	actor := svc.actions.Actor()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: cfg.Server.CORSOrigins,
		Accounts:       svc.sessions,
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(cfg.Mode, actor, deps.Health, a.logger),
		Markets:  handler.NewMarketHandler(svc.catalog, a.logger),
		Accounts: handler.NewAccountHandler(svc.catalog, svc.inbox, a.logger),
		Actions:  handler.NewActionHandler(svc.actions, a.logger),
		Pipeline: handler.NewPipelineHandler(ctx, archive, a.logger),
	}
	if svc.bridge != nil {
		handlers.Bridge = handler.NewBridgeHandler(svc.bridge, actor, a.logger)
	}
	if deps.AuditStore != nil || deps.SignalBus != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, deps.SignalBus, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  time.Minute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	orch.Add("ws_hub", hub.Run)
	orch.Add("http", func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		return <-errCh
	})
	orch.Add("bond_publisher", service.NewBondPublisher(svc.sessions, deps.SignalBus, 5*time.Second, cfg.Engine.SessionIdle.Duration, a.logger).Run)
	orch.Add("inbox_pruner", a.pruneInbox(svc.inbox))

	a.logger.InfoContext(ctx, "HTTP server configured",
		slog.Int("port", cfg.Server.Port),
		slog.Bool("auth", cfg.Server.APIKey != ""),
		slog.Bool("bridge", svc.bridge != nil),
		slog.Bool("archive_trigger", archive != nil),
	)
}

// pruneInbox drops expired notifications on every TTL.
func (a *App) pruneInbox(inbox *notify.Inbox) pipeline.Loop {
	every := a.cfg.Notify.TTL.Duration
	if every <= 0 {
		every = 10 * time.Second
	}
	return func(ctx context.Context) error {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				inbox.Prune()
			}
		}
	}
}
