package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dquispe/sismo-sync/internal/models"
	"github.com/dquispe/sismo-sync/internal/refresh"
	"github.com/dquispe/sismo-sync/internal/repository"
)

// RefreshRunner executes one full-refresh run.
type RefreshRunner interface {
	Run(ctx context.Context, startYear, endYear int) (models.RunSummary, error)
}

type Handler struct {
	runner       RefreshRunner
	store        repository.Store
	defaultStart int
	defaultEnd   int
}

func NewHandler(runner RefreshRunner, store repository.Store, defaultStart, defaultEnd int) *Handler {
	return &Handler{
		runner:       runner,
		store:        store,
		defaultStart: defaultStart,
		defaultEnd:   defaultEnd,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/refresh", h.triggerRefresh)
	r.GET("/api/sismos", h.getSismos)
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// refreshRequest is the trigger payload. Pointer fields distinguish "absent,
// use the configured default" from an explicit year.
type refreshRequest struct {
	StartYear *int `json:"start_year"`
	EndYear   *int `json:"end_year"`
}

// parseRefreshRequest accepts either the direct mapping {start_year, end_year}
// or the proxy-style envelope {"body": "<json string>"}. The envelope is tried
// first; an unparseable inner body degrades to an empty request rather than
// failing the trigger.
func parseRefreshRequest(data []byte) refreshRequest {
	var envelope struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Body != "" {
		var req refreshRequest
		if err := json.Unmarshal([]byte(envelope.Body), &req); err == nil {
			return req
		}
		return refreshRequest{}
	}

	var req refreshRequest
	if err := json.Unmarshal(data, &req); err == nil {
		return req
	}
	return refreshRequest{}
}

func (h *Handler) triggerRefresh(c *gin.Context) {
	data, _ := io.ReadAll(c.Request.Body)
	req := parseRefreshRequest(data)

	startYear := h.defaultStart
	if req.StartYear != nil {
		startYear = *req.StartYear
	}
	endYear := h.defaultEnd
	if req.EndYear != nil {
		endYear = *req.EndYear
	}

	summary, err := h.runner.Run(c.Request.Context(), startYear, endYear)
	if errors.Is(err, refresh.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Per-year errors are not a failure: the replace completed.
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) getSismos(c *gin.Context) {
	filter := repository.Filter{
		Limit: 100, // default page when no limit param is supplied
	}

	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if m := c.Query("min_magnitud"); m != "" {
		if mag, err := strconv.ParseFloat(m, 64); err == nil {
			filter.MinMagnitud = &mag
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}

	records, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch sismos",
		})
		return
	}
	if records == nil {
		records = []models.Record{}
	}

	if c.Query("format") == "geojson" {
		fc := toGeoJSON(records)
		c.Header("Content-Type", "application/geo+json")
		c.JSON(http.StatusOK, fc)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(records),
		"sismos": records,
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
