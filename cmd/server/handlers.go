package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"martlet/services/auth"
	"martlet/services/backtest"
	"martlet/services/clickhouse"
	"martlet/services/market"
	"martlet/services/repository"
)

// backtestStart is the first candle considered by a simulation run; the
// stored equity curve's synthetic opening row sits on this date too.
var backtestStart = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

const defaultTradeLimit = 100

// ---- auth ----

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

func (s *Service) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	user, err := s.db.CreateUser(c.Request.Context(), req.Username, req.Email, hashed)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username or email already taken"})
		return
	}
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Service) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.db.UserByUsername(c.Request.Context(), req.Username)
	if err != nil || !auth.VerifyPassword(req.Password, user.HashedPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
		return
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		s.logger.Error("Failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": token, "tokenType": "bearer"})
}

// authRequired validates the bearer token and stashes the username for the
// handlers behind it.
func (s *Service) authRequired(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	username, err := s.tokens.Parse(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	c.Set("username", username)
	c.Next()
}

func (s *Service) handleMe(c *gin.Context) {
	username := c.GetString("username")
	user, err := s.db.UserByUsername(c.Request.Context(), username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Service) handleRefresh(c *gin.Context) {
	token, err := s.tokens.Issue(c.GetString("username"))
	if err != nil {
		s.logger.Error("Failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": token, "tokenType": "bearer"})
}

// ---- candles ----

func (s *Service) handleCandles(c *gin.Context) {
	ticker := c.DefaultQuery("ticker", "xauusd")
	timeframe := c.DefaultQuery("timeframe", "5min")

	from := backtestStart
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(market.DateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		from = parsed
	}

	candles, err := s.candles.CandlesByTickerTimeframe(c.Request.Context(), ticker, timeframe, from)
	if err != nil {
		if errors.Is(err, clickhouse.ErrNoCandles) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no candles for ticker/timeframe"})
			return
		}
		s.logger.Error("Failed to query candles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query candles"})
		return
	}
	c.JSON(http.StatusOK, candles)
}

// ---- trade journal ----

func (s *Service) handleListTrades(c *gin.Context) {
	limit := defaultTradeLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	trades, err := s.db.ListTrades(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trades"})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Service) handleCreateTrade(c *gin.Context) {
	var t repository.Trade
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if t.Type == "" {
		t.Type = repository.TradeTypeReal
	}
	if t.Type != repository.TradeTypeReal && t.Type != repository.TradeTypeSimulated {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be real or simulated"})
		return
	}
	if t.TradingDate.IsZero() {
		t.TradingDate = market.TradingDate(t.EntryTime)
	}

	created, err := s.db.CreateTrade(c.Request.Context(), t)
	if err != nil {
		s.logger.Error("Failed to create trade", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create trade"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Service) handleTradesByTickerDate(c *gin.Context) {
	tradingDate, err := time.Parse(market.DateLayout, c.Param("trading_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trading_date must be YYYY-MM-DD"})
		return
	}

	typ := repository.TradeType(c.DefaultQuery("type", string(repository.TradeTypeReal)))
	if typ != repository.TradeTypeReal && typ != repository.TradeTypeSimulated {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be real or simulated"})
		return
	}

	trades, err := s.db.TradesByTickerDate(c.Request.Context(), c.Param("ticker"), tradingDate, typ)
	if err != nil {
		s.logger.Error("Failed to query trades", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query trades"})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Service) handleDeleteTrade(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	if err := s.db.DeleteTrade(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrTradeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
			return
		}
		s.logger.Error("Failed to delete trade", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete trade"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- backtest ----

type backtestRequest struct {
	Ticker    string `json:"ticker"`
	Timeframe string `json:"timeframe"`
	Strategy  string `json:"strategy" binding:"required"`
}

// strategySettings returns the stock parameters for a named strategy. The
// scalp variant pairs a tight target with a wide stop and sizes on full
// equity.
func strategySettings(name string) backtest.Settings {
	settings := backtest.DefaultSettings()
	if name == "compression_breakout_scalp" {
		settings.Strategy.TakeProfit = decimal.NewFromFloat(1.2)
		settings.Strategy.StopLoss = decimal.NewFromInt(28)
		settings.Strategy.RiskPerTrade = decimal.NewFromInt(1)
	}
	return settings
}

func (s *Service) handleRunBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Ticker == "" {
		req.Ticker = "xauusd"
	}
	if req.Timeframe == "" {
		req.Timeframe = "5min"
	}

	policy, err := backtest.PolicyByName(req.Strategy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "unknown strategy",
			"strategies": backtest.StrategyNames(),
		})
		return
	}

	runID := uuid.New().String()
	log := s.logger.With(
		zap.String("run_id", runID),
		zap.String("strategy", req.Strategy),
		zap.String("ticker", req.Ticker),
		zap.String("timeframe", req.Timeframe),
	)

	ctx := c.Request.Context()
	candles, err := s.candles.CandlesByTickerTimeframe(ctx, req.Ticker, req.Timeframe, backtestStart)
	if err != nil {
		if errors.Is(err, clickhouse.ErrNoCandles) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no candles for ticker/timeframe"})
			return
		}
		log.Error("Failed to load candles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load candles"})
		return
	}

	settings := strategySettings(req.Strategy)
	started := time.Now()
	trades, err := backtest.Run(candles, settings, policy, settings.Strategy.EnableTimeFilter)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	log.Info("Backtest complete",
		zap.Int("candles", len(candles)),
		zap.Int("trades", len(trades)),
		zap.Duration("elapsed", time.Since(started)),
	)

	rows, _ := backtest.DailySummary(trades, settings.Account.StartingCash)
	curve := backtest.AlignCalendar(rows, backtestStart,
		market.Date(candles[len(candles)-1].Timestamp), settings.Account.StartingCash)

	results := make([]repository.BacktestResult, len(curve))
	for i, point := range curve {
		results[i] = repository.BacktestResult{
			Ticker:      req.Ticker,
			Timeframe:   req.Timeframe,
			Strategy:    req.Strategy,
			TradingDate: point.TradingDate,
			Equity:      point.Equity,
			PnL:         point.PnL,
		}
	}
	if err := s.db.UpsertResults(ctx, results); err != nil {
		log.Error("Failed to save results", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save results"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runId":  runID,
		"trades": trades,
		"curve":  curve,
	})
}

func (s *Service) handleBacktestResults(c *gin.Context) {
	strategy := c.Query("strategy")
	if strategy == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategy is required"})
		return
	}
	ticker := c.DefaultQuery("ticker", "xauusd")
	timeframe := c.DefaultQuery("timeframe", "5min")

	results, err := s.db.ResultsByKey(c.Request.Context(), strategy, ticker, timeframe)
	if err != nil {
		if errors.Is(err, repository.ErrNoResults) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no results for strategy"})
			return
		}
		s.logger.Error("Failed to query results", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query results"})
		return
	}
	c.JSON(http.StatusOK, results)
}

// ---- status ----

func (s *Service) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()

	clickhouseUp := s.candles.Ping(ctx) == nil
	postgresUp := s.db.Ping(ctx) == nil

	status := http.StatusOK
	if !clickhouseUp || !postgresUp {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"clickhouse":   clickhouseUp,
		"postgres":     postgresUp,
		"syncRunning":  s.scheduler.Running(),
		"jobsAttached": s.scheduler.Jobs(),
	})
}
