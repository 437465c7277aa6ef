package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spread-radar/internal/alerting"
	"spread-radar/internal/export"
	"spread-radar/internal/market"
)

// publishGrace bounds how long a stopped loop waits for the consumer to take its last message.
const publishGrace = time.Second

// ErrAlreadyRunning is returned by Start while a loop is active.
var ErrAlreadyRunning = errors.New("scanner: already running")

// State is the lifecycle state of a Scanner.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Resolver finds the best cross-venue quotes of a symbol.
type Resolver interface {
	Resolve(ctx context.Context, symbol string) (market.BestQuotePair, bool)
}

// Sink persists the rows of a cycle.
type Sink interface {
	Name() string
	Append(ctx context.Context, rows []market.OpportunityRow) error
}

// Recorder receives cycle-level measurements.
type Recorder interface {
	CycleCompleted(elapsed time.Duration, rows int)
	NetSpread(symbol string, bps float64)
	AlertFired()
	SinkFailed(sink string)
}

// Options wire the collaborators of a Scanner.
type Options struct {
	Resolver Resolver
	// Signal is triggered on alerts when Config.AlertSound is set. Failures are swallowed.
	Signal alerting.Notifier
	// Remote receives alerts at most once per AlertCooldown. Failures are logged.
	Remote        alerting.Notifier
	AlertCooldown time.Duration
	Sinks         []Sink
	Recorder      Recorder
	Clock         func() time.Time
}

// Scanner runs the poll, score and publish loop on its own goroutine.
type Scanner struct {
	opts   Options
	signal alerting.Notifier
	logger zerolog.Logger

	mu    sync.Mutex
	state State
	stop  context.CancelFunc
	done  chan struct{}
}

// New constructs a Scanner. Options.Resolver is required.
func New(opts Options, logger zerolog.Logger) *Scanner {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger = logger.With().Str("component", "scanner").Logger()
	return &Scanner{
		opts:   opts,
		signal: alerting.NewFallback(opts.Signal, logger),
		logger: logger,
	}
}

// State reports whether a loop is active.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the loop with a background context.
func (s *Scanner) Start(cfg Config, out chan<- Message) error {
	return s.StartContext(context.Background(), cfg, out)
}

// StartContext validates cfg and launches the loop. Cancelling ctx aborts in-flight venue
// calls as well as the loop; Stop only ends the loop after the current cycle.
func (s *Scanner) StartContext(ctx context.Context, cfg Config, out chan<- Message) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if out == nil {
		return &ConfigError{Err: errors.New("output channel is nil")}
	}
	if s.opts.Resolver == nil {
		return &ConfigError{Err: errors.New("no quote resolver configured")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		return ErrAlreadyRunning
	}

	soft, cancel := context.WithCancel(ctx)
	prev := s.done
	done := make(chan struct{})
	s.state = Running
	s.stop = cancel
	s.done = done

	r := s.newRun(cfg)
	go s.loop(ctx, soft, r, out, prev, done)

	s.logger.Info().
		Str("run_id", cfg.RunID.String()).
		Int("symbols", len(cfg.Symbols)).
		Dur("interval", cfg.SleepInterval()).
		Msg("scanner started")
	return nil
}

// Stop asks the loop to exit at the next cycle boundary. It never blocks; a loop started
// right after Stop holds its first cycle until the stopped one has exited.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return
	}
	s.stop()
	s.state = Idle
	s.logger.Info().Msg("scanner stop requested")
}

// Wait blocks until the most recently started loop has exited.
func (s *Scanner) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Cycle is the outcome of a single pass.
type Cycle struct {
	Snapshot Snapshot
	Statuses []string
}

// RunOnce executes exactly one cycle synchronously, without touching the loop state.
func (s *Scanner) RunOnce(ctx context.Context, cfg Config) (Cycle, error) {
	if err := cfg.Validate(); err != nil {
		return Cycle{}, err
	}
	if s.opts.Resolver == nil {
		return Cycle{}, &ConfigError{Err: errors.New("no quote resolver configured")}
	}
	r := s.newRun(cfg)
	statuses := r.prepare()
	c := s.cycle(ctx, r)
	c.Statuses = append(statuses, c.Statuses...)
	return c, nil
}

type run struct {
	cfg      Config
	fee      decimal.Decimal
	slippage decimal.Decimal
	csv      *export.CSVSink
	sinks    []Sink

	lastRemote time.Time
}

func (s *Scanner) newRun(cfg Config) *run {
	cfg.Symbols = append([]string(nil), cfg.Symbols...)
	r := &run{
		cfg:      cfg,
		fee:      market.BpsToFraction(cfg.FeeBps),
		slippage: market.BpsToFraction(cfg.SlippageBps),
	}
	if cfg.ExportCSV && cfg.ExportPath != "" {
		r.csv = export.NewCSVSink(cfg.ExportPath)
		r.sinks = append(r.sinks, r.csv)
	}
	r.sinks = append(r.sinks, s.opts.Sinks...)
	return r
}

// prepare writes the CSV header up front so the file exists from the first second of a run.
func (r *run) prepare() []string {
	if r.csv == nil {
		return nil
	}
	if err := r.csv.Prepare(); err != nil {
		return []string{fmt.Sprintf("CSV error: %v", err)}
	}
	return nil
}

func (s *Scanner) loop(ctx, soft context.Context, r *run, out chan<- Message, prev <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		if s.done == done && s.state == Running {
			s.state = Idle
		}
		s.mu.Unlock()
		s.logger.Info().Msg("scanner stopped")
	}()

	// one producer at a time on out and on the CSV file
	if prev != nil {
		select {
		case <-prev:
		case <-soft.Done():
			return
		}
	}

	for _, status := range r.prepare() {
		if !s.publish(soft, out, StatusMessage(status)) {
			return
		}
	}

	for {
		if soft.Err() != nil {
			return
		}

		c := s.cycle(ctx, r)
		for _, status := range c.Statuses {
			if !s.publish(soft, out, StatusMessage(status)) {
				return
			}
		}
		if !s.publish(soft, out, RowsMessage(c.Snapshot)) {
			return
		}

		timer := time.NewTimer(r.cfg.SleepInterval())
		select {
		case <-soft.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// publish delivers msg unless the loop was stopped and the consumer does not take it in time.
func (s *Scanner) publish(soft context.Context, out chan<- Message, msg Message) bool {
	select {
	case out <- msg:
		return true
	case <-soft.Done():
	}

	grace := time.NewTimer(publishGrace)
	defer grace.Stop()
	select {
	case out <- msg:
		return true
	case <-grace.C:
		s.logger.Debug().Str("kind", string(msg.Kind)).Msg("message dropped after stop")
		return false
	}
}

func (s *Scanner) cycle(ctx context.Context, r *run) Cycle {
	started := time.Now()
	cfg := r.cfg

	rows := make([]market.OpportunityRow, 0, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		pair, ok := s.resolve(ctx, symbol)
		if !ok || !Admit(pair, cfg) {
			continue
		}
		rows = append(rows, Score(pair, cfg.NotionalUSD, r.fee, r.slippage, s.opts.Clock()))
	}
	rows = Rank(rows, cfg.TopN)

	var statuses []string
	if status, ok := s.evaluateAlert(ctx, r, rows); ok {
		statuses = append(statuses, status)
	}
	statuses = append(statuses, s.persist(ctx, r, rows)...)

	if rec := s.opts.Recorder; rec != nil {
		for _, row := range rows {
			rec.NetSpread(row.Symbol, row.NetBps().InexactFloat64())
		}
		rec.CycleCompleted(time.Since(started), len(rows))
	}
	s.logger.Debug().Int("rows", len(rows)).Dur("elapsed", time.Since(started)).Msg("cycle complete")

	return Cycle{
		Snapshot: Snapshot{Header: Header(cfg, len(rows)), Rows: rows},
		Statuses: statuses,
	}
}

func (s *Scanner) resolve(ctx context.Context, symbol string) (pair market.BestQuotePair, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Warn().Str("symbol", symbol).Interface("panic", rec).Msg("symbol skipped")
			pair, ok = market.BestQuotePair{}, false
		}
	}()
	return s.opts.Resolver.Resolve(ctx, symbol)
}

func (s *Scanner) evaluateAlert(ctx context.Context, r *run, rows []market.OpportunityRow) (string, bool) {
	if r.cfg.AlertBps.IsNone() {
		return "", false
	}
	threshold := r.cfg.AlertBps.Unwrap()
	hits := Triggered(rows, threshold)
	if len(hits) == 0 {
		return "", false
	}

	now := s.opts.Clock()
	alert := alerting.Alert{At: now, RunID: r.cfg.RunID.String(), ThresholdBps: threshold, Rows: hits}

	if r.cfg.AlertSound {
		_ = s.signal.Notify(ctx, alert)
	}
	if s.opts.Remote != nil && (r.lastRemote.IsZero() || now.Sub(r.lastRemote) >= s.opts.AlertCooldown) {
		r.lastRemote = now
		if err := s.opts.Remote.Notify(ctx, alert); err != nil {
			s.logger.Warn().Err(err).Msg("remote alert delivery failed")
		}
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.AlertFired()
	}
	return alert.Message(), true
}

func (s *Scanner) persist(ctx context.Context, r *run, rows []market.OpportunityRow) []string {
	if len(rows) == 0 {
		return nil
	}
	var statuses []string
	for _, sink := range r.sinks {
		if err := sink.Append(ctx, rows); err != nil {
			s.logger.Error().Err(err).Str("sink", sink.Name()).Msg("export failed")
			statuses = append(statuses, fmt.Sprintf("%s error: %v", sink.Name(), err))
			if s.opts.Recorder != nil {
				s.opts.Recorder.SinkFailed(sink.Name())
			}
		}
	}
	return statuses
}
