package volume

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"sol-bundler-bot/internal/dispatch"
	"sol-bundler-bot/internal/wallet"
)

var (
	ErrAlreadyRunning = errors.New("volume session already running")
	ErrNotConfigured  = errors.New("volume scheduler not configured")
)

// Dispatcher is the trade execution surface the scheduler drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent dispatch.Intent, creds []wallet.Credential) (dispatch.Result, error)
}

// Config is the per-session trading profile.
type Config struct {
	TokenAddress string
	Protocol     string
	Mode         dispatch.Mode
	IntervalMin  time.Duration
	IntervalMax  time.Duration
	MinAmount    float64 // SOL per buy, lower bound
	MaxAmount    float64 // SOL per buy, upper bound
	SellPercent  float64 // fixed sell fraction; 0 picks 10-50 at random
	BuyBias      float64 // probability a free choice lands on buy
	Duration     time.Duration // 0 runs until stopped
	SlippageBps  int
	TipLamports  uint64
}

// Stats is a point-in-time snapshot of the current (or last) session.
type Stats struct {
	SessionID    string
	TokenAddress string
	Active       bool
	StartedAt    time.Time
	Trades       int
	Successes    int
	Buys         int
	Sells        int
	Failures     int
	VolumeSol    float64
	LastTradeAt  time.Time
	LastError    string
}

// TradeRecord describes one completed scheduler trade for downstream sinks.
type TradeRecord struct {
	SessionID   string
	Token       string
	Side        dispatch.Side
	Wallet      string
	AmountSol   float64
	SellPercent float64
	Succeeded   int
	Failed      int
	Err         string
	At          time.Time
}

// Scheduler runs randomized buy-biased trades against a token on a jittered
// interval, rotating through the wallet pool. One session at a time.
type Scheduler struct {
	dispatcher Dispatcher
	pool       []wallet.Credential
	cfg        Config
	log        *zap.Logger

	// OnTrade, when set before Start, receives every trade outcome. Called
	// outside the scheduler lock.
	OnTrade func(TradeRecord)

	warmup time.Duration
	now    func() time.Time

	mu         sync.Mutex
	rnd        *rand.Rand
	running    bool
	session    string
	cancel     context.CancelFunc
	timer      *time.Timer
	durTimer   *time.Timer
	stats      Stats
	lastSide   dispatch.Side
	lastWallet int
}

func New(dispatcher Dispatcher, pool []wallet.Credential, cfg Config, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		dispatcher: dispatcher,
		pool:       pool,
		cfg:        cfg,
		log:        log,
		warmup:     500 * time.Millisecond,
		now:        time.Now,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		lastWallet: -1,
	}
}

func (s *Scheduler) validate() error {
	if s.dispatcher == nil {
		return fmt.Errorf("%w: dispatcher is required", ErrNotConfigured)
	}
	if s.cfg.TokenAddress == "" {
		return fmt.Errorf("%w: token address is required", ErrNotConfigured)
	}
	if len(s.pool) == 0 {
		return fmt.Errorf("%w: wallet pool is empty", ErrNotConfigured)
	}
	if s.cfg.IntervalMin <= 0 || s.cfg.IntervalMax < s.cfg.IntervalMin {
		return fmt.Errorf("%w: bad trade interval", ErrNotConfigured)
	}
	if s.cfg.MinAmount <= 0 || s.cfg.MaxAmount < s.cfg.MinAmount {
		return fmt.Errorf("%w: bad buy amount range", ErrNotConfigured)
	}
	if s.cfg.BuyBias < 0 || s.cfg.BuyBias > 1 {
		return fmt.Errorf("%w: buy bias outside [0, 1]", ErrNotConfigured)
	}
	return nil
}

// Start begins a new session. The first trade fires after a short warm-up.
func (s *Scheduler) Start(ctx context.Context) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return "", ErrAlreadyRunning
	}

	session := fmt.Sprintf("vol-%s", s.now().UTC().Format("20060102T150405Z"))
	sessionCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.session = session
	s.cancel = cancel
	s.lastSide = ""
	s.lastWallet = -1
	s.stats = Stats{
		SessionID:    session,
		TokenAddress: s.cfg.TokenAddress,
		Active:       true,
		StartedAt:    s.now(),
	}
	s.timer = time.AfterFunc(s.warmup, func() { s.tick(sessionCtx, session) })
	if s.cfg.Duration > 0 {
		s.durTimer = time.AfterFunc(s.cfg.Duration, func() { s.Stop() })
	}

	s.log.Info("volume session started",
		zap.String("session", session),
		zap.String("token", s.cfg.TokenAddress),
		zap.Int("wallets", len(s.pool)),
		zap.Duration("interval_min", s.cfg.IntervalMin),
		zap.Duration("interval_max", s.cfg.IntervalMax),
	)
	return session, nil
}

// Stop ends the current session. Safe to call repeatedly; trades already in
// flight are discarded when they complete.
func (s *Scheduler) Stop() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return s.stats
	}
	s.running = false
	s.stats.Active = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.durTimer != nil {
		s.durTimer.Stop()
		s.durTimer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.log.Info("volume session stopped",
		zap.String("session", s.session),
		zap.Int("trades", s.stats.Trades),
		zap.Int("failures", s.stats.Failures),
		zap.Float64("volume_sol", s.stats.VolumeSol),
	)
	return s.stats
}

// Active reports whether a session is running.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns a snapshot of the current or most recent session.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) tick(ctx context.Context, session string) {
	s.mu.Lock()
	if !s.running || s.session != session {
		s.mu.Unlock()
		return
	}
	intent, cred := s.nextTrade()
	s.mu.Unlock()

	res, err := s.dispatcher.Dispatch(ctx, intent, []wallet.Credential{cred})

	record := TradeRecord{
		SessionID:   session,
		Token:       intent.TokenAddress,
		Side:        intent.Side,
		Wallet:      cred.Address,
		AmountSol:   intent.AmountSol,
		SellPercent: intent.SellPercent,
		At:          s.now(),
	}
	if err == nil {
		record.Succeeded = res.Succeeded
		record.Failed = res.Failed
		if resErr := res.Err(); resErr != nil {
			record.Err = resErr.Error()
		}
	} else {
		record.Failed = 1
		record.Err = err.Error()
	}

	s.mu.Lock()
	if !s.running || s.session != session {
		s.mu.Unlock()
		return
	}
	s.apply(record)
	delay := s.nextDelay()
	s.timer = time.AfterFunc(delay, func() { s.tick(ctx, session) })
	s.mu.Unlock()

	s.log.Info("volume trade",
		zap.String("session", session),
		zap.String("side", string(record.Side)),
		zap.String("wallet", record.Wallet),
		zap.Float64("amount_sol", record.AmountSol),
		zap.Int("failed", record.Failed),
		zap.Duration("next_in", delay),
	)
	if s.OnTrade != nil {
		s.OnTrade(record)
	}
}

// nextTrade picks direction, wallet and size for the next trade. Caller
// holds the lock.
func (s *Scheduler) nextTrade() (dispatch.Intent, wallet.Credential) {
	side := dispatch.SideBuy
	if s.lastSide == dispatch.SideBuy && s.rnd.Float64() >= s.cfg.BuyBias {
		side = dispatch.SideSell
	}
	s.lastSide = side

	idx := s.rnd.Intn(len(s.pool))
	if len(s.pool) > 1 {
		for idx == s.lastWallet {
			idx = s.rnd.Intn(len(s.pool))
		}
	}
	s.lastWallet = idx

	intent := dispatch.Intent{
		TokenAddress: s.cfg.TokenAddress,
		Protocol:     s.cfg.Protocol,
		Side:         side,
		Mode:         s.cfg.Mode,
		SlippageBps:  s.cfg.SlippageBps,
		TipLamports:  s.cfg.TipLamports,
	}
	if intent.Mode == "" {
		intent.Mode = dispatch.ModeSingle
	}
	if side == dispatch.SideBuy {
		amount := s.cfg.MinAmount + s.rnd.Float64()*(s.cfg.MaxAmount-s.cfg.MinAmount)
		intent.AmountSol = math.Round(amount*10000) / 10000
	} else {
		intent.SellPercent = s.cfg.SellPercent
		if intent.SellPercent <= 0 {
			intent.SellPercent = 10 + s.rnd.Float64()*40
		}
	}
	return intent, s.pool[idx]
}

// apply folds one trade outcome into the session stats. A failed cycle only
// advances the failure counter. Caller holds the lock.
func (s *Scheduler) apply(record TradeRecord) {
	s.stats.LastTradeAt = record.At
	if record.Err != "" {
		s.stats.LastError = record.Err
	}
	if record.Succeeded == 0 {
		s.stats.Failures++
		return
	}
	s.stats.Trades++
	s.stats.Successes++
	if record.Side == dispatch.SideBuy {
		s.stats.Buys++
		s.stats.VolumeSol += record.AmountSol
	} else {
		s.stats.Sells++
	}
}

// nextDelay draws a fresh uniform delay from the configured interval. Caller
// holds the lock.
func (s *Scheduler) nextDelay() time.Duration {
	span := s.cfg.IntervalMax - s.cfg.IntervalMin
	if span <= 0 {
		return s.cfg.IntervalMin
	}
	return s.cfg.IntervalMin + time.Duration(s.rnd.Int63n(int64(span)+1))
}
