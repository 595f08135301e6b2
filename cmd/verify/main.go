// Command verify checks venue connectivity and prints the rates, direction
// decision, and derived maker prices for the configured trade without
// placing any orders.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"dn-arb-bot/internal/config"
	"dn-arb-bot/internal/exchange"
	"dn-arb-bot/internal/ftx/rest"
	"dn-arb-bot/internal/logging"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
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

	creds := rest.Credentials{
		Key:        strings.TrimSpace(os.Getenv("FTX_API_KEY")),
		Secret:     strings.TrimSpace(os.Getenv("FTX_API_SECRET")),
		Subaccount: cfg.REST.Subaccount,
	}
	client := exchange.NewFTX(rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, creds, log))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	underlier := cfg.Trade.Underlier
	borrow, err := client.BorrowRate(ctx, underlier)
	if err != nil {
		fatal(err)
	}
	lend, err := client.LendRate(ctx, underlier)
	if err != nil {
		fatal(err)
	}
	funding, err := client.FundingRate(ctx, underlier)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("rates: borrow=%.8f lend=%.8f funding=%.8f\n", borrow, lend, funding)

	longSpotPnL := cfg.Trade.Size * (lend + funding)
	shortSpotPnL := cfg.Trade.Size * (-funding - borrow)
	longSpot := longSpotPnL > shortSpotPnL
	forced := cfg.Trade.ForceLongSpot != nil && *cfg.Trade.ForceLongSpot
	if forced {
		longSpot = true
	}
	fmt.Printf("direction: long_spot=%v forced=%v long_spot_pnl=%.6f short_spot_pnl=%.6f\n",
		longSpot, forced, longSpotPnL, shortSpotPnL)

	spotMarket := exchange.SpotMarket(underlier)
	perpMarket := exchange.PerpMarket(underlier)
	spot, err := client.SpotQuote(ctx, spotMarket)
	if err != nil {
		fatal(err)
	}
	perp, err := client.PerpQuote(ctx, perpMarket)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("quotes: %s bid=%.6f ask=%.6f | %s bid=%.6f ask=%.6f\n",
		spotMarket, spot.Bid, spot.Ask, perpMarket, perp.Bid, perp.Ask)

	offset := cfg.Trade.PriceOffsetBps / 10000
	if longSpot {
		fmt.Printf("maker prices: buy %s @ %.6f, sell %s @ %.6f\n",
			spotMarket, spot.Bid*(1-offset), perpMarket, perp.Ask*(1+offset))
	} else {
		fmt.Printf("maker prices: buy %s @ %.6f, sell %s @ %.6f\n",
			perpMarket, perp.Bid*(1-offset), spotMarket, spot.Ask*(1+offset))
	}
	fmt.Printf("size: %v (mode=%s escalation=%s)\n", cfg.Trade.Size, cfg.Trade.Mode, cfg.Trade.Escalation)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
