package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/johnayoung/go-price-sync/internal/models"
)

type handlers struct {
	svc    Service
	logger *slog.Logger
}

// routes is the route-group table registered at startup, keyed by prefix.
func (h *handlers) routes() map[string]func(*gin.RouterGroup) {
	return map[string]func(*gin.RouterGroup){
		"/api": func(g *gin.RouterGroup) {
			g.GET("/health", h.health)
			g.GET("/metrics", h.metrics)
		},
		"/api/price": func(g *gin.RouterGroup) {
			g.GET("/:symbol", h.getSeries)
			g.POST("/multiple", h.getMultiple)
			g.POST("/aggregate", h.aggregate)
			g.GET("/:symbol/market-hours", h.marketHours)
			g.GET("/:symbol/info", h.info)
			g.GET("/:symbol/compare", h.compare)
			g.GET("/:symbol/validate", h.validate)
		},
		"/api/cache": func(g *gin.RouterGroup) {
			g.GET("/symbols", h.listSymbols)
			g.GET("/:symbol/stats", h.stats)
			g.DELETE("/:symbol", h.clear)
		},
	}
}

type multipleRequest struct {
	Symbols  []string `json:"symbols" binding:"required"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Interval string   `json:"interval"`
	UseCache *bool    `json:"use_cache"`
	Adjusted *bool    `json:"adjusted"`
}

type aggregateRequest struct {
	Bars      []models.Bar `json:"bars"`
	Timeframe string       `json:"timeframe" binding:"required"`
}

func (h *handlers) health(c *gin.Context) {
	if err := h.svc.Health(c.Request.Context()); err != nil {
		respondError(c, err, gin.H{"status": "unhealthy"})
		return
	}
	respondOK(c, gin.H{"status": "ok"})
}

func (h *handlers) metrics(c *gin.Context) {
	respondOK(c, h.svc.Metrics())
}

func (h *handlers) getSeries(c *gin.Context) {
	opts, err := seriesOptions(c.Query("interval"), c.Query("use_cache"), c.Query("adjusted"))
	if err != nil {
		respondBadRequest(c, "get_series", err)
		return
	}

	res, err := h.svc.GetSeries(c.Request.Context(), c.Param("symbol"), c.Query("start"), c.Query("end"), opts)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, res)
}

func (h *handlers) getMultiple(c *gin.Context) {
	var req multipleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "get_multiple", err)
		return
	}

	opts := models.DefaultSeriesOptions()
	if req.Interval != "" {
		opts.Interval = models.Interval(req.Interval)
	}
	if req.UseCache != nil {
		opts.UseCache = *req.UseCache
	}
	if req.Adjusted != nil {
		opts.Adjusted = *req.Adjusted
	}

	res, err := h.svc.GetMultiple(c.Request.Context(), req.Symbols, req.Start, req.End, opts)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, res)
}

func (h *handlers) aggregate(c *gin.Context) {
	var req aggregateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "aggregate", err)
		return
	}

	bars, err := h.svc.Aggregate(req.Bars, req.Timeframe)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, gin.H{"timeframe": req.Timeframe, "bars": bars, "count": len(bars)})
}

func (h *handlers) marketHours(c *gin.Context) {
	useCache, err := boolQuery(c.Query("use_cache"), true)
	if err != nil {
		respondBadRequest(c, "market_hours", err)
		return
	}

	res, err := h.svc.GetMarketHours(c.Request.Context(), c.Param("symbol"), c.Query("date"), useCache)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, res)
}

func (h *handlers) info(c *gin.Context) {
	info, err := h.svc.Info(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, info)
}

func (h *handlers) compare(c *gin.Context) {
	cmp, err := h.svc.Compare(c.Request.Context(), c.Param("symbol"), c.Query("start"), c.Query("end"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, cmp)
}

func (h *handlers) validate(c *gin.Context) {
	report, err := h.svc.Validate(c.Request.Context(), c.Param("symbol"), c.Query("start"), c.Query("end"))
	if err != nil {
		if report != nil {
			respondError(c, err, report)
		} else {
			respondError(c, err, nil)
		}
		return
	}
	respondOK(c, report)
}

func (h *handlers) listSymbols(c *gin.Context) {
	listings, err := h.svc.ListCachedSymbols(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, listings)
}

func (h *handlers) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), c.Param("symbol"), c.Query("kind"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, stats)
}

func (h *handlers) clear(c *gin.Context) {
	symbol, kind := c.Param("symbol"), c.Query("kind")
	if err := h.svc.ClearCache(c.Request.Context(), symbol, kind); err != nil {
		respondError(c, err, nil)
		return
	}

	target := models.NormalizeSymbol(symbol)
	if kind != "" {
		target += "/" + kind
	}
	h.logger.Info("cache cleared via api", "target", target)
	c.JSON(http.StatusOK, Envelope{Success: true, Message: "cleared cache for " + target})
}

func seriesOptions(interval, useCache, adjusted string) (models.SeriesOptions, error) {
	opts := models.DefaultSeriesOptions()
	if interval != "" {
		opts.Interval = models.Interval(interval)
	}

	var err error
	if opts.UseCache, err = boolQuery(useCache, true); err != nil {
		return opts, err
	}
	if opts.Adjusted, err = boolQuery(adjusted, true); err != nil {
		return opts, err
	}
	return opts, nil
}

func boolQuery(value string, fallback bool) (bool, error) {
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, &models.ValidationError{Field: "query", Message: fmt.Sprintf("invalid boolean %q", value)}
	}
	return b, nil
}
