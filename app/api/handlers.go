package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/answer-relay/app/database"
)

const healthTimeout = 3 * time.Second

type Options struct {
	Stats     StatsProvider
	Limits    RateLimitProvider
	Watermark WatermarkProvider
	Seen      SeenCounter
	Ledger    database.LedgerRepository
	Stores    []Pinger
	Version   string
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		stats:     opts.Stats,
		limits:    opts.Limits,
		watermark: opts.Watermark,
		seen:      opts.Seen,
		ledger:    opts.Ledger,
		stores:    opts.Stores,
		version:   opts.Version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	stores := make(map[string]string, len(h.stores))
	for _, store := range h.stores {
		if err := store.Ping(ctx); err != nil {
			slog.Warn("Health check failed", "store", store.Name(), "error", err)
			stores[store.Name()] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		stores[store.Name()] = "ok"
	}

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"stores":    stores,
	}
	if status != http.StatusOK {
		health["status"] = "degraded"
	}

	c.JSON(status, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	response := map[string]interface{}{}

	if h.stats != nil {
		snapshot := h.stats.Snapshot()
		response["stats"] = snapshot
		response["uptime"] = time.Since(snapshot.StartedAt).Round(time.Second).String()
	}
	if h.limits != nil {
		limits := make(map[string]interface{})
		for class, state := range h.limits.Snapshot() {
			limits[string(class)] = state
		}
		response["rate_limits"] = limits
	}
	if h.watermark != nil {
		response["watermark"] = h.watermark.Watermark().Format(time.RFC3339)
	}
	if h.seen != nil {
		response["seen"] = h.seen.Len()
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) APIGetOutcome(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing record id parameter"})
		return
	}

	outcome, err := h.ledger.GetOutcome(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_outcome", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if outcome == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Outcome not found"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"record_id":      outcome.RecordID,
		"posted_id":      outcome.PostedID,
		"target_id":      outcome.TargetID,
		"status":         outcome.Status,
		"content_length": outcome.ContentLength,
		"proof":          outcome.Proof,
		"terminal":       outcome.IsTerminal(),
		"processed_at":   outcome.ProcessedAt,
		"created_at":     outcome.CreatedAt,
		"updated_at":     outcome.UpdatedAt,
	})
}

func (h *Handler) APIListOutcomeCounts(c *gin.Context) {
	counts, err := h.ledger.CountByStatus(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "count_outcomes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"counts": counts,
		"total":  total,
	})
}
