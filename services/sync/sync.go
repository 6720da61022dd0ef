package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"martlet/services/clickhouse"
	"martlet/services/market"
)

// ErrNoBaseline means the store has no existing series to extend; the
// initial bulk load has to happen first.
var ErrNoBaseline = errors.New("no existing candle data to sync against")

// overlapWindow is how far back stored bars are re-read so derived fields
// can be recomputed across the stitch point (two trading days of history
// plus slack for weekends).
const overlapWindow = 5 * 24 * time.Hour

// Syncer pulls new bars for one ticker/timeframe and upserts the enriched
// overlap window.
type Syncer struct {
	store     *clickhouse.Client
	prices    *TiingoClient
	ticker    string
	timeframe string
	logger    *zap.Logger
}

func NewSyncer(store *clickhouse.Client, prices *TiingoClient, ticker, timeframe string, logger *zap.Logger) *Syncer {
	return &Syncer{
		store:     store,
		prices:    prices,
		ticker:    ticker,
		timeframe: timeframe,
		logger:    logger,
	}
}

// SyncOnce performs one incremental sync: fetch from the last stored bar
// forward, merge with the stored overlap window (new bars win), re-enrich,
// sanity-check recomputed rows against what was stored, and upsert
// everything at or after the previous tail.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	last, ok, err := s.store.LastCandleTimestamp(ctx, s.ticker, s.timeframe)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNoBaseline, s.ticker, s.timeframe)
	}

	fetched, err := s.prices.FetchPrices(ctx, s.ticker, s.timeframe, last, time.Now().UTC())
	if err != nil {
		return err
	}
	fresh := fetched[:0]
	for _, b := range fetched {
		if !b.Timestamp.Before(last) {
			fresh = append(fresh, b)
		}
	}
	if len(fresh) == 0 {
		s.logger.Info("no new bars from price api",
			zap.String("ticker", s.ticker), zap.Time("last", last))
		return nil
	}

	stored, err := s.store.CandlesByTickerTimeframe(ctx, s.ticker, s.timeframe, last.Add(-overlapWindow))
	if err != nil {
		return err
	}

	merged := MergeCandles(stored, fresh)
	enriched := market.Enrich(merged)
	s.checkParity(stored, enriched, last)

	var upsert []market.Candle
	for _, b := range enriched {
		if !b.Timestamp.Before(last) {
			upsert = append(upsert, b)
		}
	}
	if err := s.store.InsertCandles(ctx, upsert); err != nil {
		return err
	}
	s.logger.Info("sync completed",
		zap.String("ticker", s.ticker),
		zap.String("timeframe", s.timeframe),
		zap.Int("fetched", len(fresh)),
		zap.Int("upserted", len(upsert)))
	return nil
}

// MergeCandles combines stored and freshly fetched bars into one sequence.
// A fetched bar replaces a stored bar with the same timestamp: the API's
// latest view of a candle supersedes what was written earlier.
func MergeCandles(stored, fetched []market.Candle) []market.Candle {
	merged := make([]market.Candle, 0, len(stored)+len(fetched))
	merged = append(merged, stored...)
	merged = append(merged, fetched...)
	// Enrich sorts and dedupes keeping the later occurrence, so fetched
	// bars appended after stored ones win ties.
	return merged
}

// checkParity recomputes derived fields over the stored overlap (excluding
// the unconfirmed tail bar) and logs any divergence from what the store
// already holds. A mismatch signals upstream data drift, not a sync failure.
func (s *Syncer) checkParity(stored, recomputed []market.Candle, last time.Time) {
	byTs := make(map[int64]market.Candle, len(recomputed))
	for _, b := range recomputed {
		byTs[b.Timestamp.UnixMilli()] = b
	}
	mismatches := 0
	for _, old := range stored {
		if !old.Timestamp.Before(last) {
			continue
		}
		b, ok := byTs[old.Timestamp.UnixMilli()]
		if !ok {
			continue
		}
		if !b.Close.Equal(old.Close) ||
			(b.PrevDayHigh.Valid != old.PrevDayHigh.Valid) ||
			(b.PrevDayHigh.Valid && !b.PrevDayHigh.Decimal.Equal(old.PrevDayHigh.Decimal)) {
			mismatches++
		}
	}
	if mismatches > 0 {
		s.logger.Warn("recomputed candles diverge from stored rows",
			zap.String("ticker", s.ticker),
			zap.Int("mismatches", mismatches))
	}
}
