package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sol-bundler-bot/internal/app"
	"sol-bundler-bot/internal/config"
	"sol-bundler-bot/internal/dispatch"
	"sol-bundler-bot/internal/logging"

	"go.uber.org/zap"
)

// dispatch fires one trade across the configured wallet pool and prints the
// per-unit outcome, bypassing the scheduler.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	side := flag.String("side", "buy", "trade side: buy or sell")
	mode := flag.String("mode", "", "bundle mode override: single, batch or all-in-one")
	amount := flag.Float64("amount", 0, "SOL per wallet for buys")
	sellPercent := flag.Float64("sell-percent", 0, "holdings percentage for sells")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log)
	if err != nil {
		fatal(err)
	}

	intent := dispatch.Intent{
		TokenAddress: cfg.Trade.TokenAddress,
		Protocol:     cfg.Trade.Protocol,
		Side:         dispatch.Side(*side),
		Mode:         dispatch.Mode(cfg.Trade.BundleMode),
		AmountSol:    *amount,
		SellPercent:  *sellPercent,
		SlippageBps:  cfg.Trade.SlippageBps,
		TipLamports:  cfg.Trade.TipLamports,
	}
	if *mode != "" {
		intent.Mode = dispatch.Mode(*mode)
	}
	if intent.Side == dispatch.SideBuy && intent.AmountSol <= 0 {
		intent.AmountSol = cfg.Volume.MinAmount
	}
	if intent.Side == dispatch.SideSell && intent.SellPercent <= 0 {
		intent.SellPercent = cfg.Volume.SellPercent
		if intent.SellPercent <= 0 {
			intent.SellPercent = 100
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := application.Dispatcher().Dispatch(ctx, intent, application.Wallets())
	if err != nil {
		fatal(err)
	}

	type unitOut struct {
		Wallets []string `json:"wallets"`
		Bundles int      `json:"bundles"`
		Error   string   `json:"error,omitempty"`
	}
	out := struct {
		Success   bool      `json:"success"`
		Succeeded int       `json:"succeeded"`
		Failed    int       `json:"failed"`
		Error     string    `json:"error,omitempty"`
		Units     []unitOut `json:"units"`
	}{
		Success:   res.Success(),
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
	}
	if resErr := res.Err(); resErr != nil {
		out.Error = resErr.Error()
	}
	for _, unit := range res.Units {
		u := unitOut{Wallets: unit.Wallets, Bundles: unit.Bundles}
		if unit.Err != nil {
			u.Error = unit.Err.Error()
		}
		out.Units = append(out.Units, u)
	}

	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
	log.Info("dispatch complete",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
	)
	if !res.Success() {
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
