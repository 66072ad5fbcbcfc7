package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-flood-alerts/internal/broadcast"
	"github.com/mr1hm/go-flood-alerts/internal/engine"
	"github.com/mr1hm/go-flood-alerts/internal/ingestion"
	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/repository"
	"github.com/mr1hm/go-flood-alerts/internal/scheduler"
)

type Store interface {
	repository.UserRepository
	ListSensors(ctx context.Context) ([]models.SensorRecord, error)
}

type AlertHistory interface {
	History(ctx context.Context, userID, locationID string, limit int) ([]models.AlertEvent, error)
}

type CycleRunner interface {
	RunCycle(ctx context.Context, userID string, trigger engine.Trigger) (engine.CycleReport, error)
}

type Scheduler interface {
	Sync(userID string, s models.AlertSettings) error
	Stop(userID string) bool
	Status() scheduler.Status
}

type Handler struct {
	store       Store
	history     AlertHistory
	runner      CycleRunner
	scheduler   Scheduler
	broadcaster *broadcast.Broadcaster
	settingsMu  userLocks
}

// userLocks hands out one mutex per user. Entries are dropped once no
// request holds or waits for them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(userID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*userLock)
	}
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func NewHandler(store Store, history AlertHistory, runner CycleRunner, sched Scheduler, broadcaster *broadcast.Broadcaster) *Handler {
	return &Handler{
		store:       store,
		history:     history,
		runner:      runner,
		scheduler:   sched,
		broadcaster: broadcaster,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/api/scheduler/status", h.schedulerStatus)
	r.GET("/api/sensors", h.getSensors)
	r.GET("/api/alerts/stream", h.streamAlerts)

	u := r.Group("/api/users/:userId")
	u.POST("/alerts/test", h.testAlert)
	u.POST("/alerts/enable", h.enable)
	u.POST("/alerts/disable", h.disable)

	u.GET("/settings", h.getSettings)
	u.PUT("/settings", h.updateSettings)
	u.DELETE("/settings", h.deleteSettings)

	u.GET("/locations", h.getLocations)
	u.PUT("/locations/:locationId", h.putLocation)
	u.DELETE("/locations/:locationId", h.deleteLocation)
	u.GET("/locations/:locationId/alerts", h.getAlerts)

	u.PUT("/chat", h.linkChat)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) schedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}

func (h *Handler) testAlert(c *gin.Context) {
	userID := c.Param("userId")

	// A client that disconnects mid-cycle does not interrupt sends or
	// ledger writes already under way.
	ctx := context.WithoutCancel(c.Request.Context())
	report, err := h.runner.RunCycle(ctx, userID, engine.TriggerManual)
	switch {
	case errors.Is(err, ingestion.ErrSourceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "report": report})
		return
	case err != nil:
		h.fail(c, "failed to run alert cycle", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *Handler) disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handler) setEnabled(c *gin.Context, enabled bool) {
	userID := c.Param("userId")
	h.applySettings(c, userID, models.SettingsOverrides{Enabled: &enabled})
}

func (h *Handler) getSettings(c *gin.Context) {
	s, err := h.store.GetSettings(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, "failed to load settings", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) updateSettings(c *gin.Context) {
	var o models.SettingsOverrides
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.applySettings(c, c.Param("userId"), o)
}

// applySettings validates before anything is written, then brings the
// scheduler in line with what was stored. Writes for one user are serialized
// so the stored settings and the running schedule match the last request.
func (h *Handler) applySettings(c *gin.Context, userID string, o models.SettingsOverrides) {
	ctx := c.Request.Context()
	defer h.settingsMu.lock(userID)()

	current, err := h.store.GetSettings(ctx, userID)
	if err != nil {
		h.fail(c, "failed to load settings", err)
		return
	}
	next := models.ApplyOverrides(current, o)
	if err := next.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SaveSettings(ctx, userID, next); err != nil {
		h.fail(c, "failed to save settings", err)
		return
	}
	if err := h.scheduler.Sync(userID, next); err != nil {
		h.fail(c, "failed to update schedule", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"settings":  next,
		"scheduled": next.Enabled,
	})
}

func (h *Handler) deleteSettings(c *gin.Context) {
	userID := c.Param("userId")
	defer h.settingsMu.lock(userID)()
	h.scheduler.Stop(userID)

	if err := h.store.DeleteSettings(c.Request.Context(), userID); err != nil {
		h.fail(c, "failed to delete settings", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getLocations(c *gin.Context) {
	locations, err := h.store.ListLocations(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, "failed to fetch locations", err)
		return
	}

	fc := locationsToGeoJSON(locations)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) putLocation(c *gin.Context) {
	ctx := c.Request.Context()
	userID, locationID := c.Param("userId"), c.Param("locationId")

	var loc models.MonitoredLocation
	if err := c.ShouldBindJSON(&loc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loc.ID = locationID
	if err := loc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Status and last alert time belong to the engine.
	existing, err := h.store.GetLocation(ctx, userID, locationID)
	switch {
	case err == nil:
		loc.Status = existing.Status
		loc.StatusUpdatedAt = existing.StatusUpdatedAt
		loc.LastAlertAt = existing.LastAlertAt
	case errors.Is(err, repository.ErrNotFound):
		loc.Status = models.SeveritySafe
		loc.StatusUpdatedAt = nil
		loc.LastAlertAt = nil
	default:
		h.fail(c, "failed to load location", err)
		return
	}

	if err := h.store.SaveLocation(ctx, userID, loc); err != nil {
		h.fail(c, "failed to save location", err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

func (h *Handler) deleteLocation(c *gin.Context) {
	if err := h.store.DeleteLocation(c.Request.Context(), c.Param("userId"), c.Param("locationId")); err != nil {
		h.fail(c, "failed to delete location", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getAlerts(c *gin.Context) {
	limit := 20 // Default to 20 alerts if limit param not supplied
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			limit = lim
		}
	}

	alerts, err := h.history.History(c.Request.Context(), c.Param("userId"), c.Param("locationId"), limit)
	if err != nil {
		h.fail(c, "failed to fetch alerts", err)
		return
	}
	if alerts == nil {
		alerts = []models.AlertEvent{}
	}
	c.JSON(http.StatusOK, alerts)
}

type linkChatRequest struct {
	ChatID int64 `json:"chatId" binding:"required"`
}

func (h *Handler) linkChat(c *gin.Context) {
	var req linkChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SetChatID(c.Request.Context(), c.Param("userId"), req.ChatID); err != nil {
		h.fail(c, "failed to link chat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": req.ChatID})
}

func (h *Handler) getSensors(c *gin.Context) {
	records, err := h.store.ListSensors(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to fetch sensors", err)
		return
	}

	fc := sensorsToGeoJSON(records, time.Now())
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

// streamAlerts sends recorded alerts as server-sent events. userId narrows
// the stream to one user.
func (h *Handler) streamAlerts(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "streaming disabled"})
		return
	}

	id, events := h.broadcaster.Subscribe(c.Query("userId"))
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("alert", e)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	if errors.Is(err, repository.ErrInvalidPath) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return
	}
	slog.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": msg,
	})
}
