// Package server exposes the aggregation pipeline over HTTP and a
// websocket push channel.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"funding-radar/internal/aggregate"
	"funding-radar/internal/history"
	"funding-radar/internal/model"
)

// Snapshotter serves the merged live snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context) aggregate.Snapshot
}

// Historian serves the per-symbol cross-exchange series.
type Historian interface {
	Fetch(ctx context.Context, symbol, timeRange, exchangeFilter string) history.Response
}

// SymbolRater serves the Gate.io single-symbol convenience lookup.
type SymbolRater interface {
	FetchSymbolRate(ctx context.Context, symbol string) (model.RateRecord, error)
}

// Options tune the HTTP listener.
type Options struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server hosts the Gin-powered API.
type Server struct {
	opts       Options
	snapshots  Snapshotter
	historian  Historian
	gate       SymbolRater
	hub        *Hub
	logger     zerolog.Logger
	httpServer *http.Server
}

// New constructs the API server and wires the hub into the aggregator's
// subscriber list via Subscribe on the caller side.
func New(opts Options, snapshots Snapshotter, historian Historian, gate SymbolRater, hub *Hub, logger zerolog.Logger) *Server {
	if opts.Address == "" {
		opts.Address = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		opts:      opts,
		snapshots: snapshots,
		historian: historian,
		gate:      gate,
		hub:       hub,
		logger:    logger.With().Str("component", "http_server").Logger(),
	}
}

// Router builds the route table.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/funding-rates", s.handleFundingRates)
	engine.GET("/history/:symbol", s.handleHistory)
	engine.GET("/gateio/current-rate", s.handleGateRate)
	if s.hub != nil {
		engine.GET("/ws", s.hub.Handle)
	}

	return engine
}

// Run serves until ctx is cancelled, then drains with a bounded shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.opts.Address,
		Handler:      s.Router(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.opts.Address).Msg("http server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.Close()
	}
	return nil
}

func (s *Server) handleFundingRates(c *gin.Context) {
	snap := s.snapshots.Snapshot(c.Request.Context())
	status := http.StatusOK
	if !snap.Success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, snap)
}

func (s *Server) handleHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	timeRange := c.DefaultQuery("timeRange", "24h")
	exchangeFilter := c.DefaultQuery("exchange", "all")

	if exchangeFilter != "all" {
		if _, ok := model.Parse(exchangeFilter); !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "unknown exchange: " + exchangeFilter,
				"data":    []model.RateRecord{},
			})
			return
		}
	}

	resp := s.historian.Fetch(c.Request.Context(), symbol, timeRange, exchangeFilter)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, resp)
}

func (s *Server) handleGateRate(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "缺少 symbol 參數",
		})
		return
	}

	record, err := s.gate.FetchSymbolRate(c.Request.Context(), symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("gateio rate lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "獲取 Gate.io 資金費率失敗",
		})
		return
	}

	if !model.ValidRate(record.CurrentRate) {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"error":   "無法獲取有效的資金費率",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rate":    record.CurrentRate,
	})
}
