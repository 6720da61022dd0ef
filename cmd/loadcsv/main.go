// Command loadcsv bulk-loads an OHLC CSV export into ClickHouse. It accepts
// plain UTF-8 files and the UTF-16 exports some terminals produce, enriches
// the bars (trading dates, EMA, prior-day ranges) and writes them in batches.
//
// Two row shapes are recognized:
//
//	2024-03-01T10:00:00Z,2330.1,2332.4,2329.0,2331.2
//	2024.03.01,10:00,2330.1,2332.4,2329.0,2331.2
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"martlet/services/clickhouse"
	"martlet/services/config"
	"martlet/services/market"
)

const insertBatchSize = 10000

func main() {
	in := flag.String("in", "", "Input CSV path")
	ticker := flag.String("ticker", "xauusd", "Ticker to load as")
	timeframe := flag.String("timeframe", "5min", "Timeframe label")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
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

	bars, err := readCSV(*in, *ticker, *timeframe)
	if err != nil {
		logger.Fatal("Failed to read CSV", zap.String("path", *in), zap.Error(err))
	}
	if len(bars) == 0 {
		logger.Fatal("No rows parsed", zap.String("path", *in))
	}
	logger.Info("Parsed CSV", zap.String("path", *in), zap.Int("rows", len(bars)))

	enriched := market.Enrich(bars)
	logger.Info("Enriched bars",
		zap.Int("rows", len(enriched)),
		zap.Int("dropped", len(bars)-len(enriched)),
	)

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
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure schema", zap.Error(err))
	}

	bar := progressbar.NewOptions(len(enriched),
		progressbar.OptionSetDescription("Loading candles..."),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
	for start := 0; start < len(enriched); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(enriched) {
			end = len(enriched)
		}
		if err := store.InsertCandles(ctx, enriched[start:end]); err != nil {
			logger.Fatal("Failed to insert batch", zap.Int("offset", start), zap.Error(err))
		}
		bar.Add(end - start)
	}
	fmt.Println()
	logger.Info("Load complete",
		zap.String("ticker", *ticker),
		zap.String("timeframe", *timeframe),
		zap.Int("candles", len(enriched)),
	)
}

func readCSV(path, ticker, timeframe string) ([]market.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	// detect UTF-16 BOM; if present, decode to UTF-8
	if b, _ := br.Peek(2); len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		if _, err := f.Seek(0, 0); err != nil {
			return nil, err
		}
		tr := transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
		br = bufio.NewReader(tr)
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.Comma = detectComma(br)

	var bars []market.Candle
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 5 {
			continue
		}
		bar, ok := parseRow(rec, ticker, timeframe)
		if !ok {
			// header or malformed row
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// detectComma peeks the first line and switches to tab separation for
// tab-delimited terminal exports.
func detectComma(br *bufio.Reader) rune {
	line, err := br.Peek(256)
	if err != nil && len(line) == 0 {
		return ','
	}
	if i := strings.IndexByte(string(line), '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.ContainsRune(string(line), '\t') {
		return '\t'
	}
	return ','
}

func parseRow(rec []string, ticker, timeframe string) (market.Candle, bool) {
	for i := range rec {
		rec[i] = strings.TrimSpace(strings.TrimPrefix(rec[i], "\uFEFF"))
	}

	var (
		ts     time.Time
		err    error
		prices []string
	)
	if t, perr := time.Parse("2006.01.02", rec[0]); perr == nil && len(rec) >= 6 {
		// split date/time columns
		var hm time.Time
		hm, err = time.Parse("15:04", rec[1])
		if err == nil {
			ts = t.Add(time.Duration(hm.Hour())*time.Hour + time.Duration(hm.Minute())*time.Minute)
			prices = rec[2:6]
		}
	} else {
		ts, err = time.Parse(time.RFC3339, rec[0])
		if err != nil {
			ts, err = time.Parse("2006-01-02 15:04:05", rec[0])
		}
		prices = rec[1:5]
	}
	if err != nil {
		return market.Candle{}, false
	}

	var vals [4]decimal.Decimal
	for i, s := range prices {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return market.Candle{}, false
		}
		vals[i] = v
	}

	return market.Candle{
		Ticker:    ticker,
		Timeframe: timeframe,
		Timestamp: ts.UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
	}, true
}
