package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"spread-radar/internal/aggregator"
	"spread-radar/internal/alerting"
	"spread-radar/internal/config"
	"spread-radar/internal/market"
	"spread-radar/internal/metrics"
	"spread-radar/internal/render"
	"spread-radar/internal/scanner"
	"spread-radar/internal/scheduler"
	"spread-radar/internal/storage"
	"spread-radar/internal/venue"
	"spread-radar/internal/version"
)

// stopGrace bounds the last cycle after a shutdown signal.
var stopGrace = 10 * time.Second

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives tables and reports, Err the terminal bell.
	Out io.Writer
	Err io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
		Err:    os.Stderr,
	}
}

// ScanOverrides carry command-line values that win over the scanner section of the config.
type ScanOverrides struct {
	Symbols       optional.Option[string]
	Interval      optional.Option[time.Duration]
	FeeBps        optional.Option[decimal.Decimal]
	SlippageBps   optional.Option[decimal.Decimal]
	NotionalUSD   optional.Option[decimal.Decimal]
	TopN          optional.Option[int]
	MinDepthUSD   optional.Option[decimal.Decimal]
	DiffVenueOnly optional.Option[bool]
	AlertBps      optional.Option[decimal.Decimal]
	NoAlert       bool
	AlertSound    optional.Option[bool]
	// ExportPath also switches CSV export on.
	ExportPath optional.Option[string]
}

func (o ScanOverrides) apply(cfg *scanner.Config) {
	if o.Symbols.IsSome() {
		cfg.Symbols = market.ParseSymbols(o.Symbols.Unwrap())
	}
	if o.Interval.IsSome() {
		cfg.Interval = o.Interval.Unwrap()
	}
	if o.FeeBps.IsSome() {
		cfg.FeeBps = o.FeeBps.Unwrap()
	}
	if o.SlippageBps.IsSome() {
		cfg.SlippageBps = o.SlippageBps.Unwrap()
	}
	if o.NotionalUSD.IsSome() {
		cfg.NotionalUSD = o.NotionalUSD.Unwrap()
	}
	if o.TopN.IsSome() {
		cfg.TopN = o.TopN.Unwrap()
	}
	if o.MinDepthUSD.IsSome() {
		cfg.MinDepthUSD = o.MinDepthUSD.Unwrap()
	}
	if o.DiffVenueOnly.IsSome() {
		cfg.DiffVenueOnly = o.DiffVenueOnly.Unwrap()
	}
	if o.AlertBps.IsSome() {
		cfg.AlertBps = o.AlertBps
	}
	if o.NoAlert {
		cfg.AlertBps = optional.None[decimal.Decimal]()
	}
	if o.AlertSound.IsSome() {
		cfg.AlertSound = o.AlertSound.Unwrap()
	}
	if o.ExportPath.IsSome() {
		cfg.ExportCSV = true
		cfg.ExportPath = o.ExportPath.Unwrap()
	}
}

func (a *App) scanConfig(overrides ScanOverrides) (scanner.Config, error) {
	cfg := a.Config.ScanConfig()
	overrides.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return scanner.Config{}, err
	}
	return cfg, nil
}

func (a *App) openRegistry(ctx context.Context, symbols []string) (*venue.Registry, error) {
	opts := a.Config.VenueOptions(symbols, version.UserAgent())
	reg, err := venue.Build(a.Config.Venues.Enabled, opts, a.Logger)
	if err != nil {
		return nil, err
	}
	if err := reg.Start(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}

func (a *App) closeRegistry(reg *venue.Registry) {
	if err := reg.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("venue shutdown incomplete")
	}
}

func (a *App) newAggregator(connectors []venue.Connector, m *metrics.Metrics) *aggregator.Aggregator {
	opts := aggregator.Options{
		Levels:      a.Config.Venues.Levels,
		Timeout:     a.Config.Venues.RequestTimeout,
		Concurrency: a.Config.Venues.Concurrency,
	}
	if m != nil {
		opts.Recorder = m
	}
	return aggregator.New(connectors, opts, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) newSignal() alerting.Notifier {
	if a.Config.Alerting.Bell {
		return alerting.NewBell(a.Err)
	}
	return nil
}

// newScanner wires alert channels, persistence and metrics around resolver.
func (a *App) newScanner(resolver scanner.Resolver, store *storage.Store, runID uuid.UUID, m *metrics.Metrics) *scanner.Scanner {
	opts := scanner.Options{
		Resolver:      resolver,
		Signal:        a.newSignal(),
		AlertCooldown: a.Config.Alerting.Cooldown,
	}
	if m != nil {
		opts.Recorder = m
	}

	var remote alerting.Multi
	if n := a.newNotifier(); n != nil {
		remote = append(remote, n)
	}
	if store != nil {
		opts.Sinks = append(opts.Sinks, storage.NewSink(store, runID))
		remote = append(remote, storage.NewAlertLog(store, runID))
	}
	if len(remote) > 0 {
		opts.Remote = remote
	}
	return scanner.New(opts, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database, a.Config.App.Name)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newRenderer() *render.Renderer {
	return render.New(render.Options{
		Output: a.Out,
		Every:  a.Config.Render.Every,
		Plain:  a.Config.Render.Plain,
	})
}

// Run scans until SIGINT/SIGTERM, drawing every snapshot on Out.
func (a *App) Run(ctx context.Context, overrides ScanOverrides) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scanCfg, err := a.scanConfig(overrides)
	if err != nil {
		return err
	}

	reg, err := a.openRegistry(ctx, scanCfg.Symbols)
	if err != nil {
		return err
	}
	defer a.closeRegistry(reg)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var prune *scheduler.Scheduler
	var retention *storage.Retention
	if store != nil && a.Config.Retention.MaxAge > 0 {
		prune, err = scheduler.New("retention", scheduler.Options{
			Interval:       a.Config.Retention.Interval,
			AlignToStart:   a.Config.Retention.AlignToBucket,
			RunImmediately: true,
		}, a.Logger)
		if err != nil {
			return err
		}
		retention = &storage.Retention{
			Opportunities: store,
			Alerts:        store,
			Locker:        store,
			LockKey:       a.Config.Retention.AdvisoryLockKey,
			MaxAge:        a.Config.Retention.MaxAge,
			Logger:        a.Logger,
		}
	}

	m := metrics.New()
	sc := a.newScanner(a.newAggregator(reg.Connectors(), m), store, scanCfg.RunID, m)
	renderer := a.newRenderer()

	g, gctx := errgroup.WithContext(ctx)
	if listen := a.Config.Metrics.Listen; listen != "" {
		g.Go(func() error { return metrics.Serve(gctx, listen, m, a.Logger) })
	}
	if prune != nil {
		g.Go(func() error { return ignoreCanceled(prune.Run(gctx, retention.Prune)) })
	}

	a.Logger.Info().
		Str("run_id", scanCfg.RunID.String()).
		Strs("venues", reg.Names()).
		Msg("radar starting")
	if err := a.scanUntil(gctx, sc, scanCfg, renderer); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("radar terminated with error")
		return err
	}
	a.Logger.Info().Msg("radar stopped")
	return nil
}

// Once runs a single cycle and prints its statuses and table.
func (a *App) Once(ctx context.Context, overrides ScanOverrides) error {
	scanCfg, err := a.scanConfig(overrides)
	if err != nil {
		return err
	}

	reg, err := a.openRegistry(ctx, scanCfg.Symbols)
	if err != nil {
		return err
	}
	defer a.closeRegistry(reg)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	sc := a.newScanner(a.newAggregator(reg.Connectors(), nil), store, scanCfg.RunID, nil)
	return a.printCycle(ctx, sc, scanCfg)
}

func (a *App) printCycle(ctx context.Context, sc *scanner.Scanner, cfg scanner.Config) error {
	cycle, err := sc.RunOnce(ctx, cfg)
	if err != nil {
		return err
	}
	renderer := a.newRenderer()
	for _, status := range cycle.Statuses {
		renderer.Status(status)
	}
	renderer.Snapshot(cycle.Snapshot)
	return nil
}

// scanUntil runs sc until stop ends. The loop's own context is detached from stop so the
// in-flight cycle completes and is drawn; stopGrace caps how long that may take.
func (a *App) scanUntil(stop context.Context, sc *scanner.Scanner, cfg scanner.Config, renderer *render.Renderer) error {
	loopCtx, cancelLoop := context.WithCancel(context.WithoutCancel(stop))
	defer cancelLoop()

	out := make(chan scanner.Message, 8)
	renderer.Status("Scanning...")
	if err := sc.StartContext(loopCtx, cfg, out); err != nil {
		return err
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		_ = renderer.Drain(context.Background(), out)
	}()

	<-stop.Done()
	sc.Stop()
	grace := time.AfterFunc(stopGrace, cancelLoop)
	sc.Wait()
	grace.Stop()

	// the loop has exited, nothing sends on out any more
	close(out)
	<-drained
	renderer.Status("Stopped.")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ExportOptions hold parameters for exporting persisted opportunities.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	Symbol    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// SimulateOptions describe the synthetic quotes of simulate-alert.
type SimulateOptions struct {
	Symbol string
	Ask    decimal.Decimal
	Bid    decimal.Decimal
	Size   decimal.Decimal
}
