package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"sol-bundler-bot/internal/alerts"
	"sol-bundler-bot/internal/bundle"
	"sol-bundler-bot/internal/config"
	"sol-bundler-bot/internal/dispatch"
	"sol-bundler-bot/internal/history"
	"sol-bundler-bot/internal/metrics"
	"sol-bundler-bot/internal/ratelimit"
	"sol-bundler-bot/internal/state"
	"sol-bundler-bot/internal/state/sqlite"
	"sol-bundler-bot/internal/volume"
	"sol-bundler-bot/internal/wallet"

	"go.uber.org/zap"
)

// App wires the dispatch engine and the volume scheduler together with
// their operational surroundings.
type App struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *sqlite.Store
	wallets    []wallet.Credential
	walletSvc  *wallet.Service
	relay      *bundle.RelayClient
	dispatcher *dispatch.Dispatcher
	scheduler  *volume.Scheduler
	metrics    *metrics.Metrics
	promServer *http.Server
	history    *history.Writer
	alerts     *alerts.Telegram
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	wallets, err := wallet.LoadPool(cfg.Wallets.File)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	walletSvc := wallet.NewService(cfg.Wallets.ServiceURL, cfg.Wallets.ServiceTimeout, log)

	limiter, err := ratelimit.New(cfg.Relay.RateLimit, cfg.Relay.RateWindow)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	builder := bundle.NewBuilderClient(cfg.Builder.BaseURL, cfg.Builder.Timeout, log)
	relay := bundle.NewRelayClient(cfg.Relay.BaseURL, cfg.Relay.Timeout, log)
	signer, err := bundle.NewSigner(cfg.Fee.Collector, cfg.Fee.Lamports, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	dispatcher, err := dispatch.New(builder, signer, relay, limiter, dispatch.Options{
		SingleDelay: cfg.Trade.SingleDelay,
		BatchDelay:  cfg.Trade.BatchDelay,
		InjectFee:   cfg.Fee.EnabledValue(),
	}, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	m := metrics.NewNoop()
	var promServer *http.Server
	if cfg.Metrics.EnabledValue() {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, prom.Handler())
		promServer = &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
	}

	hist, err := history.New(cfg.History, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	scheduler := volume.New(dispatcher, wallets, volume.Config{
		TokenAddress: cfg.Trade.TokenAddress,
		Protocol:     cfg.Trade.Protocol,
		Mode:         dispatch.Mode(cfg.Trade.BundleMode),
		IntervalMin:  cfg.Volume.IntervalMin,
		IntervalMax:  cfg.Volume.IntervalMax,
		MinAmount:    cfg.Volume.MinAmount,
		MaxAmount:    cfg.Volume.MaxAmount,
		SellPercent:  cfg.Volume.SellPercent,
		BuyBias:      cfg.Volume.BuyBias,
		Duration:     cfg.Volume.Duration,
		SlippageBps:  cfg.Trade.SlippageBps,
		TipLamports:  cfg.Trade.TipLamports,
	}, log)

	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		wallets:    wallets,
		walletSvc:  walletSvc,
		relay:      relay,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		metrics:    m,
		promServer: promServer,
		history:    hist,
		alerts:     alerts.NewTelegram(cfg.Telegram, log),
	}, nil
}

// Dispatcher exposes the dispatch engine for one-shot use.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Wallets returns the loaded pool.
func (a *App) Wallets() []wallet.Credential { return a.wallets }

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.history.Close()

	if !a.relay.Configured() {
		return fmt.Errorf("%w: relay endpoint is not set", volume.ErrNotConfigured)
	}

	a.checkWallets(ctx)

	if snapshot, ok, err := state.LoadVolumeSnapshot(ctx, a.store); err != nil {
		a.log.Warn("volume snapshot load failed", zap.Error(err))
	} else if ok {
		a.log.Info("previous session",
			zap.String("session", snapshot.SessionID),
			zap.Int("trades", snapshot.Trades),
			zap.Float64("volume_sol", snapshot.VolumeSol),
		)
	}

	a.history.Start(ctx)
	if a.promServer != nil {
		go func() {
			if err := a.promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = a.promServer.Shutdown(shutdownCtx)
		}()
	}

	a.scheduler.OnTrade = a.onTrade
	session, err := a.scheduler.Start(ctx)
	if err != nil {
		return err
	}
	a.alerts.SessionStarted(ctx, session, a.cfg.Trade.TokenAddress, len(a.wallets))

	<-ctx.Done()
	stats := a.scheduler.Stop()
	a.persistStats(stats)

	alertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.alerts.SessionStopped(alertCtx, stats)
	return ctx.Err()
}

// checkWallets validates the pool against the wallet service, falling back
// to local validation when the service is unavailable.
func (a *App) checkWallets(ctx context.Context) {
	balances, err := a.walletSvc.Check(ctx, a.wallets)
	if err != nil {
		a.log.Warn("wallet check failed", zap.Error(err))
		return
	}
	for _, b := range balances {
		if !b.Valid {
			a.log.Warn("wallet failed validation", zap.String("address", b.Address))
			continue
		}
		a.log.Info("wallet ready",
			zap.String("address", b.Address),
			zap.Uint64("lamports", b.Lamports),
			zap.Bool("local_check", b.Local),
		)
	}
}

func (a *App) onTrade(record volume.TradeRecord) {
	a.metrics.TradesExecuted.Inc()
	if record.Side == dispatch.SideBuy {
		a.metrics.BuysExecuted.Inc()
	} else {
		a.metrics.SellsExecuted.Inc()
	}
	for i := 0; i < record.Succeeded; i++ {
		a.metrics.BundlesSubmitted.Inc()
	}
	for i := 0; i < record.Failed; i++ {
		a.metrics.BundlesRejected.Inc()
	}
	if record.Succeeded == 0 {
		a.metrics.TradesFailed.Inc()
		alertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.alerts.TradeFailed(alertCtx, record)
		cancel()
	}

	a.history.Enqueue(history.Trade{
		Time:        record.At,
		SessionID:   record.SessionID,
		Token:       record.Token,
		Side:        string(record.Side),
		Wallet:      record.Wallet,
		AmountSol:   record.AmountSol,
		SellPercent: record.SellPercent,
		Succeeded:   record.Succeeded,
		Failed:      record.Failed,
		Error:       record.Err,
	})

	a.persistStats(a.scheduler.Stats())
}

func (a *App) persistStats(stats volume.Stats) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	snapshot := state.VolumeSnapshot{
		SessionID:    stats.SessionID,
		TokenAddress: stats.TokenAddress,
		Trades:       stats.Trades,
		Successes:    stats.Successes,
		Buys:         stats.Buys,
		Sells:        stats.Sells,
		Failures:     stats.Failures,
		VolumeSol:    stats.VolumeSol,
		StartedAtMS:  stats.StartedAt.UnixMilli(),
		UpdatedAtMS:  time.Now().UnixMilli(),
	}
	if err := state.SaveVolumeSnapshot(ctx, a.store, snapshot); err != nil {
		a.log.Warn("volume snapshot save failed", zap.Error(err))
	}
}
