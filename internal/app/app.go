package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"funding-radar/internal/aggregate"
	"funding-radar/internal/config"
	"funding-radar/internal/exchange"
	"funding-radar/internal/history"
	"funding-radar/internal/model"
	"funding-radar/internal/server"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

type adapters struct {
	all   []exchange.Adapter
	hyper *exchange.HyperLiquid
	gate  *exchange.GateIO
}

func (a *App) newAdapters() adapters {
	client := exchange.NewClient(exchange.ClientOptions{
		MaxAttempts: a.Config.Upstream.MaxAttempts,
		BaseDelay:   a.Config.Upstream.BaseDelay,
		Timeout:     a.Config.Upstream.Timeout,
		UserAgent:   a.Config.Upstream.UserAgent,
	}, a.Logger)

	ex := a.Config.Exchanges
	binance := exchange.NewBinance(ex.Binance.BaseURL, client, a.Logger)
	bybit := exchange.NewBybit(ex.Bybit.BaseURL, client, a.Logger)
	bitget := exchange.NewBitget(ex.Bitget.BaseURL, client, a.Logger)
	okx := exchange.NewOKX(exchange.OKXOptions{
		BaseURL:           ex.OKX.BaseURL,
		MaxConcurrency:    ex.OKX.MaxConcurrency,
		RequestsPerSecond: ex.OKX.RequestsPerSecond,
	}, client, a.Logger)
	gate := exchange.NewGateIO(ex.GateIO.BaseURL, client, a.Logger)
	hyper := exchange.NewHyperLiquid(exchange.HyperLiquidOptions{
		BaseURL:           ex.HyperLiquid.BaseURL,
		BatchDays:         ex.HyperLiquid.BatchDays,
		PageLimit:         ex.HyperLiquid.PageLimit,
		RequestsPerSecond: ex.HyperLiquid.RequestsPerSecond,
	}, client, a.Logger)

	return adapters{
		all:   []exchange.Adapter{binance, bybit, bitget, okx, gate, hyper},
		hyper: hyper,
		gate:  gate,
	}
}

// settled returns the exchanges with discrete funding settlements, which is
// the set the history reconciler fans out over.
func (ad adapters) settled() []exchange.Adapter {
	var out []exchange.Adapter
	for _, a := range ad.all {
		switch a.Name() {
		case model.GateIO, model.HyperLiquid:
			continue
		}
		out = append(out, a)
	}
	return out
}

// Run executes the long-running API service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ad := a.newAdapters()

	aggregator := aggregate.New(ad.all, a.Config.Cache.TTL, a.Logger)
	reconciler := history.New(ad.settled(), ad.hyper, a.Config.History.IncludeCurrent, a.Logger)

	hub := server.NewHub(a.Logger)
	aggregator.Subscribe(func(snap aggregate.Snapshot) {
		hub.Broadcast(snap)
	})

	srv := server.New(server.Options{
		Address:         a.Config.Server.Address,
		ReadTimeout:     a.Config.Server.ReadTimeout,
		WriteTimeout:    a.Config.Server.WriteTimeout,
		ShutdownTimeout: a.Config.Server.ShutdownTimeout,
	}, aggregator, reconciler, ad.gate, hub, a.Logger)

	a.Logger.Info().Msg("starting funding-rate service")
	err := srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("funding-rate service stopped")
	return nil
}

// Rates performs one snapshot fan-out and prints the merged table.
func (a *App) Rates(ctx context.Context) error {
	ad := a.newAdapters()
	aggregator := aggregate.New(ad.all, a.Config.Cache.TTL, a.Logger)

	snap := aggregator.Snapshot(ctx)
	if !snap.Success {
		return fmt.Errorf("snapshot failed: %s", snap.Error)
	}

	data := snap.Data
	sort.Slice(data, func(i, j int) bool {
		if data[i].Symbol != data[j].Symbol {
			return data[i].Symbol < data[j].Symbol
		}
		return data[i].Exchange < data[j].Exchange
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tEXCHANGE\tRATE%\tINTERVAL(H)")
	for _, record := range data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\n",
			record.Symbol, record.Exchange, record.CurrentRate, record.SettlementInterval)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\ntotal: %d records\n", snap.Debug.TotalCount)
	return nil
}
