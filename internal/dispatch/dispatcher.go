package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sol-bundler-bot/internal/bundle"
	"sol-bundler-bot/internal/wallet"
)

// ErrInvalidConfig marks fail-fast rejections of a dispatch request before
// any network call is made.
var ErrInvalidConfig = errors.New("invalid dispatch configuration")

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Mode string

const (
	// ModeSingle prepares and submits per wallet, pausing between wallets.
	ModeSingle Mode = "single"
	// ModeBatch prepares and submits in wallet groups of MaxTxPerBundle.
	ModeBatch Mode = "batch"
	// ModeAllInOne prepares once for every wallet and submits the resulting
	// bundles concurrently with a per-bundle stagger.
	ModeAllInOne Mode = "all-in-one"
)

// Intent is one trade request against a token. For buys either AmountSol
// applies to every wallet or AmountsSol carries one amount per wallet; for
// sells SellPercent applies to every wallet.
type Intent struct {
	TokenAddress string
	Protocol     string
	Side         Side
	Mode         Mode
	AmountSol    float64
	AmountsSol   []float64
	SellPercent  float64
	SlippageBps  int
	TipLamports  uint64
}

// UnitResult is the outcome of one independent dispatch unit: a wallet in
// single mode, a wallet group in batch mode, a bundle in all-in-one mode.
type UnitResult struct {
	Wallets []string
	Bundles int
	Acks    []bundle.RelayAck
	Err     error
}

type Result struct {
	Units     []UnitResult
	Succeeded int
	Failed    int
}

func (r *Result) record(u UnitResult) {
	r.Units = append(r.Units, u)
	if u.Err != nil {
		r.Failed++
	} else {
		r.Succeeded++
	}
}

// Success reports whether at least one unit went through.
func (r Result) Success() bool { return r.Succeeded > 0 }

// Err summarizes partial and total failure; nil when every unit succeeded.
func (r Result) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d failed, %d succeeded", r.Failed, r.Succeeded)
}

type Builder interface {
	Prepare(ctx context.Context, req bundle.PrepareRequest) ([]bundle.Bundle, error)
}

type Signer interface {
	SignBundle(b bundle.Bundle, creds []wallet.Credential, injectFee bool) (bundle.Bundle, error)
}

type Relay interface {
	Send(ctx context.Context, b bundle.Bundle) (bundle.RelayAck, error)
}

type Limiter interface {
	Acquire(ctx context.Context) error
}

type Options struct {
	MaxAttempts int           // retry budget per network call, default 3
	BatchSize   int           // wallets per group in batch mode, default 5
	SingleDelay time.Duration // pause between wallets in single mode, default 200ms
	BatchDelay  time.Duration // pause between groups in batch mode, default 1s
	Stagger     time.Duration // per-bundle launch offset in all-in-one mode, default 100ms
	InjectFee   bool          // prepend the side-payment on buy dispatches
}

type Dispatcher struct {
	builder Builder
	signer  Signer
	relay   Relay
	limiter Limiter
	log     *zap.Logger

	opts  Options
	sleep func(context.Context, time.Duration) error
}

func New(builder Builder, signer Signer, relay Relay, limiter Limiter, opts Options, log *zap.Logger) (*Dispatcher, error) {
	if builder == nil || signer == nil || relay == nil || limiter == nil {
		return nil, fmt.Errorf("%w: builder, signer, relay and limiter are required", ErrInvalidConfig)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.SingleDelay <= 0 {
		opts.SingleDelay = 200 * time.Millisecond
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = time.Second
	}
	if opts.Stagger <= 0 {
		opts.Stagger = 100 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		builder: builder,
		signer:  signer,
		relay:   relay,
		limiter: limiter,
		log:     log,
		opts:    opts,
		sleep:   sleepCtx,
	}, nil
}

// Dispatch runs one intent across the wallet pool using the intent's
// topology. Units fail independently; the Result carries every outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent, creds []wallet.Credential) (Result, error) {
	if err := validateIntent(intent, creds); err != nil {
		return Result{}, err
	}
	injectFee := d.opts.InjectFee && intent.Side == SideBuy

	d.log.Info("dispatching",
		zap.String("token", intent.TokenAddress),
		zap.String("side", string(intent.Side)),
		zap.String("mode", string(intent.Mode)),
		zap.Int("wallets", len(creds)),
	)

	var res Result
	switch intent.Mode {
	case ModeSingle:
		res = d.dispatchSingle(ctx, intent, creds, injectFee)
	case ModeBatch:
		res = d.dispatchBatch(ctx, intent, creds, injectFee)
	case ModeAllInOne:
		res = d.dispatchAllInOne(ctx, intent, creds, injectFee)
	}

	d.log.Info("dispatch finished",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func validateIntent(intent Intent, creds []wallet.Credential) error {
	if intent.TokenAddress == "" {
		return fmt.Errorf("%w: token address is required", ErrInvalidConfig)
	}
	switch intent.Mode {
	case ModeSingle, ModeBatch, ModeAllInOne:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, intent.Mode)
	}
	if len(creds) == 0 {
		return fmt.Errorf("%w: wallet pool is empty", ErrInvalidConfig)
	}
	switch intent.Side {
	case SideBuy:
		if len(intent.AmountsSol) > 0 {
			if len(intent.AmountsSol) != len(creds) {
				return fmt.Errorf("%w: %d per-wallet amounts for %d wallets", ErrInvalidConfig, len(intent.AmountsSol), len(creds))
			}
			for _, amt := range intent.AmountsSol {
				if amt <= 0 {
					return fmt.Errorf("%w: non-positive buy amount", ErrInvalidConfig)
				}
			}
		} else if intent.AmountSol <= 0 {
			return fmt.Errorf("%w: buy amount is required", ErrInvalidConfig)
		}
	case SideSell:
		if intent.SellPercent <= 0 || intent.SellPercent > 100 {
			return fmt.Errorf("%w: sell percent %v outside (0, 100]", ErrInvalidConfig, intent.SellPercent)
		}
	default:
		return fmt.Errorf("%w: unknown side %q", ErrInvalidConfig, intent.Side)
	}
	return nil
}

func (d *Dispatcher) dispatchSingle(ctx context.Context, intent Intent, creds []wallet.Credential, injectFee bool) Result {
	var res Result
	for i, cred := range creds {
		if i > 0 {
			if err := d.sleep(ctx, d.opts.SingleDelay); err != nil {
				res.record(UnitResult{Wallets: []string{cred.Address}, Err: err})
				return res
			}
		}
		unitIntent := intent
		if len(intent.AmountsSol) > 0 {
			unitIntent.AmountSol = intent.AmountsSol[i]
			unitIntent.AmountsSol = nil
		}
		res.record(d.dispatchUnit(ctx, unitIntent, []wallet.Credential{cred}, injectFee && i == 0))
	}
	return res
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, intent Intent, creds []wallet.Credential, injectFee bool) Result {
	var res Result
	for start := 0; start < len(creds); start += d.opts.BatchSize {
		end := start + d.opts.BatchSize
		if end > len(creds) {
			end = len(creds)
		}
		if start > 0 {
			if err := d.sleep(ctx, d.opts.BatchDelay); err != nil {
				res.record(UnitResult{Wallets: wallet.Addresses(creds[start:end]), Err: err})
				return res
			}
		}
		unitIntent := intent
		if len(intent.AmountsSol) > 0 {
			unitIntent.AmountsSol = intent.AmountsSol[start:end]
		}
		res.record(d.dispatchUnit(ctx, unitIntent, creds[start:end], injectFee && start == 0))
	}
	return res
}

func (d *Dispatcher) dispatchAllInOne(ctx context.Context, intent Intent, creds []wallet.Credential, injectFee bool) Result {
	var res Result
	addrs := wallet.Addresses(creds)

	var prepared []bundle.Bundle
	err := retryWith(ctx, d.opts.MaxAttempts, func() error {
		var err error
		prepared, err = d.builder.Prepare(ctx, prepareRequest(intent, creds))
		return err
	}, d.sleep)
	if err != nil {
		res.record(UnitResult{Wallets: addrs, Err: err})
		return res
	}

	var signed []bundle.Bundle
	for _, b := range bundle.Split(prepared) {
		sb, err := d.signer.SignBundle(b, creds, injectFee)
		if err != nil {
			res.record(UnitResult{Wallets: addrs, Err: err})
			continue
		}
		injectFee = false
		signed = append(signed, sb)
	}
	// the side-payment can push the first bundle past the relay cap
	signed = bundle.Split(signed)
	if len(signed) == 0 {
		if len(res.Units) == 0 {
			res.record(UnitResult{Wallets: addrs, Err: fmt.Errorf("%w: prepared bundles carry no transactions", bundle.ErrMalformedResponse)})
		}
		return res
	}

	results := make([]UnitResult, len(signed))
	var wg sync.WaitGroup
	for i, b := range signed {
		wg.Add(1)
		go func(i int, b bundle.Bundle) {
			defer wg.Done()
			unit := UnitResult{Wallets: addrs}
			if i > 0 {
				if err := d.sleep(ctx, time.Duration(i)*d.opts.Stagger); err != nil {
					unit.Err = err
					results[i] = unit
					return
				}
			}
			ack, err := d.submit(ctx, b)
			if err != nil {
				unit.Err = err
			} else {
				unit.Bundles = 1
				unit.Acks = append(unit.Acks, ack)
			}
			results[i] = unit
		}(i, b)
	}
	wg.Wait()
	for _, unit := range results {
		res.record(unit)
	}
	return res
}

// dispatchUnit runs the full prepare, sign, submit flow for one wallet set.
func (d *Dispatcher) dispatchUnit(ctx context.Context, intent Intent, creds []wallet.Credential, injectFee bool) UnitResult {
	unit := UnitResult{Wallets: wallet.Addresses(creds)}

	var prepared []bundle.Bundle
	err := retryWith(ctx, d.opts.MaxAttempts, func() error {
		var err error
		prepared, err = d.builder.Prepare(ctx, prepareRequest(intent, creds))
		return err
	}, d.sleep)
	if err != nil {
		unit.Err = err
		return unit
	}

	var signed []bundle.Bundle
	for _, b := range bundle.Split(prepared) {
		sb, err := d.signer.SignBundle(b, creds, injectFee)
		if err != nil {
			unit.Err = err
			return unit
		}
		injectFee = false
		signed = append(signed, sb)
	}
	if len(signed) == 0 {
		unit.Err = fmt.Errorf("%w: prepared bundles carry no transactions", bundle.ErrMalformedResponse)
		return unit
	}
	for _, b := range bundle.Split(signed) {
		ack, err := d.submit(ctx, b)
		if err != nil {
			unit.Err = err
			return unit
		}
		unit.Bundles++
		unit.Acks = append(unit.Acks, ack)
	}
	return unit
}

func (d *Dispatcher) submit(ctx context.Context, b bundle.Bundle) (bundle.RelayAck, error) {
	if err := d.limiter.Acquire(ctx); err != nil {
		return bundle.RelayAck{}, err
	}
	var ack bundle.RelayAck
	err := retryWith(ctx, d.opts.MaxAttempts, func() error {
		var err error
		ack, err = d.relay.Send(ctx, b)
		return err
	}, d.sleep)
	return ack, err
}

func prepareRequest(intent Intent, creds []wallet.Credential) bundle.PrepareRequest {
	return bundle.PrepareRequest{
		WalletAddresses: wallet.Addresses(creds),
		TokenAddress:    intent.TokenAddress,
		Protocol:        intent.Protocol,
		Side:            string(intent.Side),
		AmountSol:       intent.AmountSol,
		AmountsSol:      intent.AmountsSol,
		SellPercent:     intent.SellPercent,
		SlippageBps:     intent.SlippageBps,
		TipLamports:     intent.TipLamports,
	}
}
