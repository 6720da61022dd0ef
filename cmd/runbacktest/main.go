// Command runbacktest runs one or more strategies over stored candles and
// prints the trade list and daily summary. Strategies share the candle slice
// read-only, so they run concurrently.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"martlet/services/backtest"
	"martlet/services/clickhouse"
	"martlet/services/config"
	"martlet/services/market"
)

type runResult struct {
	strategy string
	trades   []backtest.ClosedTrade
	rows     []backtest.DailySummaryRow
	periods  []backtest.DrawdownPeriod
	err      error
}

func main() {
	ticker := flag.String("ticker", "xauusd", "Ticker")
	timeframe := flag.String("timeframe", "5min", "Timeframe label")
	strategy := flag.String("strategy", "all", "Strategy name, or all")
	from := flag.String("from", "2022-01-01", "First trading date (YYYY-MM-DD)")
	showTrades := flag.Bool("trades", false, "Print every closed trade")
	timeFilter := flag.Bool("time-filter", false, "Restrict entries to the 09:00-20:00 window")
	flag.Parse()

	start, err := time.Parse(market.DateLayout, *from)
	if err != nil {
		log.Fatalf("-from must be YYYY-MM-DD: %v", err)
	}

	names := backtest.StrategyNames()
	if *strategy != "all" {
		if _, err := backtest.PolicyByName(*strategy); err != nil {
			log.Fatalf("Unknown strategy %q (have: %s)", *strategy, strings.Join(names, ", "))
		}
		names = []string{*strategy}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := clickhouse.NewClient(clickhouse.Config{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to ClickHouse", zap.Error(err))
	}
	defer store.Close()

	candles, err := store.CandlesByTickerTimeframe(ctx, *ticker, *timeframe, start)
	if err != nil {
		logger.Fatal("Failed to load candles", zap.Error(err))
	}
	logger.Info("Loaded candles",
		zap.String("ticker", *ticker),
		zap.String("timeframe", *timeframe),
		zap.Int("candles", len(candles)),
	)

	bar := progressbar.NewOptions(len(names),
		progressbar.OptionSetDescription("Backtesting..."),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	results := make([]runResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			defer bar.Add(1)
			results[i] = runOne(name, candles, *timeFilter)
		}(i, name)
	}
	wg.Wait()
	fmt.Println()

	failed := false
	for _, res := range results {
		if res.err != nil {
			logger.Error("Backtest failed", zap.String("strategy", res.strategy), zap.Error(res.err))
			failed = true
			continue
		}
		printResult(res, *showTrades)
	}
	if failed {
		os.Exit(1)
	}
}

func runOne(name string, candles []market.Candle, timeFilter bool) runResult {
	policy, err := backtest.PolicyByName(name)
	if err != nil {
		return runResult{strategy: name, err: err}
	}

	settings := backtest.DefaultSettings()
	if name == "compression_breakout_scalp" {
		settings.Strategy.TakeProfit = decimal.NewFromFloat(1.2)
		settings.Strategy.StopLoss = decimal.NewFromInt(28)
		settings.Strategy.RiskPerTrade = decimal.NewFromInt(1)
	}
	settings.Strategy.EnableTimeFilter = timeFilter

	trades, err := backtest.Run(candles, settings, policy, timeFilter)
	if err != nil {
		return runResult{strategy: name, err: err}
	}
	rows, periods := backtest.DailySummary(trades, settings.Account.StartingCash)
	return runResult{strategy: name, trades: trades, rows: rows, periods: periods}
}

func printResult(res runResult, showTrades bool) {
	fmt.Printf("\n=== %s ===\n", res.strategy)
	if len(res.trades) == 0 {
		fmt.Println("No trades.")
		return
	}

	if showTrades {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tDATE\tSIDE\tSIZE\tENTRY\tEXIT\tREASON\tPNL")
		for _, t := range res.trades {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				t.TradeID, t.TradingDate.Format(market.DateLayout), t.Side,
				t.PositionSize, t.EntryPrice, t.ExitPrice, t.ExitReason, t.PnL)
		}
		w.Flush()
	}

	last := res.rows[len(res.rows)-1]
	wins := 0
	for _, t := range res.trades {
		if t.PnL.IsPositive() {
			wins++
		}
	}
	fmt.Printf("Trades: %d  Wins: %d  Final equity: %s  Max drawdown periods: %d\n",
		len(res.trades), wins, last.Equity, len(res.periods))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTRADES\tPNL\tEQUITY\tDRAWDOWN")
	for _, row := range res.rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			row.TradingDate.Format(market.DateLayout),
			row.NumTrades, row.PnL, row.Equity, row.Drawdown)
	}
	w.Flush()
}
