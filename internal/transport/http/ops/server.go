package ops

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"tidemark/internal/config"
	"tidemark/internal/cursor"
	"tidemark/internal/executor"
	"tidemark/internal/feed"
	"tidemark/internal/ledger"
	"tidemark/internal/logger"
	"tidemark/internal/market"
)

// RunsReader exposes recent execution runs to the ops API.
type RunsReader interface {
	Recent(ctx context.Context, botID string, limit int) ([]executor.RunRecord, error)
}

// Server is the operator-facing HTTP surface: read-only views over feed
// states, cursors and the ledger, plus a manual refresh trigger.
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr    string
	States  feed.StateStore
	Snaps   feed.SnapshotStore
	Cursors cursor.Store
	Ledger  ledger.Store
	Runs    RunsReader
	Refresh feed.RefreshQueue
	Config  *config.Config
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.States == nil || cfg.Cursors == nil || cfg.Ledger == nil {
		return nil, errors.New("ops server requires states, cursors and ledger stores")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8087"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/ops")
	h := &handlers{cfg: cfg}
	api.GET("/feeds", h.listFeeds)
	api.GET("/cursors", h.listCursors)
	api.GET("/positions", h.listPositions)
	api.GET("/events", h.listEvents)
	api.GET("/runs", h.listRuns)
	api.GET("/config", h.effectiveConfig)
	api.GET("/chart", h.renderChart)
	api.POST("/refresh", h.requestRefresh)

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("ops server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("ops http: %s %s status=%d in %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Truncate(time.Millisecond))
	}
}

type handlers struct {
	cfg ServerConfig
}

func (h *handlers) listFeeds(c *gin.Context) {
	markets, err := h.cfg.States.ListMarkets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	indicators, err := h.cfg.States.ListIndicators(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markets": markets, "indicators": indicators})
}

func (h *handlers) listCursors(c *gin.Context) {
	cursors, err := h.cfg.Cursors.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cursors": cursors})
}

func (h *handlers) listPositions(c *gin.Context) {
	positions, err := h.cfg.Ledger.ListPositions(c.Request.Context(), c.Query("bot_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (h *handlers) listEvents(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 100)
	events, err := h.cfg.Ledger.ListEvents(c.Request.Context(), c.Query("bot_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *handlers) listRuns(c *gin.Context) {
	if h.cfg.Runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history not enabled"})
		return
	}
	limit := parseLimit(c.Query("limit"), 50)
	recs, err := h.cfg.Runs.Recent(c.Request.Context(), c.Query("bot_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": recs})
}

// effectiveConfig dumps the running configuration as YAML with credentials
// removed.
func (h *handlers) effectiveConfig(c *gin.Context) {
	if h.cfg.Config == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "config not available"})
		return
	}
	redacted := *h.cfg.Config
	redacted.Exchange.APIKey = ""
	redacted.Exchange.APISecret = ""
	redacted.Redis.Password = ""
	out, err := yaml.Marshal(redacted)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/yaml; charset=utf-8", out)
}

func (h *handlers) requestRefresh(c *gin.Context) {
	if h.cfg.Refresh == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh queue not enabled"})
		return
	}
	var req struct {
		ExchangeID   string `json:"exchange_id" binding:"required"`
		Symbol       string `json:"symbol" binding:"required"`
		Timeframe    string `json:"timeframe" binding:"required"`
		LookbackBars int    `json:"lookback_bars"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := market.FrameMillis(req.Timeframe); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeframe"})
		return
	}
	err := h.cfg.Refresh.EnqueueMarket(c.Request.Context(), feed.MarketRefreshRequest{
		ExchangeID:   req.ExchangeID,
		Symbol:       req.Symbol,
		Timeframe:    req.Timeframe,
		LookbackBars: req.LookbackBars,
		RequiredAt:   time.Now().UnixMilli(),
		Reason:       "manual",
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "enqueued"})
}

func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
