package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskharvest/internal/middleware"
	"taskharvest/internal/models"
	"taskharvest/internal/services"
	"taskharvest/internal/sources"
	"taskharvest/internal/storage"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	pipeline     *services.PipelineService
	analysis     *services.AnalysisService
	calendarPush *services.CalendarPushService
	store        storage.Store
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	pipeline *services.PipelineService,
	analysis *services.AnalysisService,
	calendarPush *services.CalendarPushService,
	store storage.Store,
) *Handlers {
	return &Handlers{
		pipeline:     pipeline,
		analysis:     analysis,
		calendarPush: calendarPush,
		store:        store,
	}
}

func requestUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserID)
}

// RunSyncHandler handles POST /api/sync/:source/run
func (h *Handlers) RunSyncHandler(c *gin.Context) {
	source := models.TaskSource(c.Param("source"))
	known := false
	for _, s := range h.pipeline.Sources() {
		if s == source {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sync source: " + c.Param("source")})
		return
	}

	var req models.RunBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.pipeline.RunBatch(c.Request.Context(), requestUserID(c), source, req.Credentials)
	if err != nil {
		if errors.Is(err, sources.ErrBadCredentials) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunAllHandler handles POST /api/sync/run-all
func (h *Handlers) RunAllHandler(c *gin.Context) {
	var req models.RunAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response := h.pipeline.RunAll(c.Request.Context(), requestUserID(c), req.Credentials)
	c.JSON(http.StatusOK, response)
}

// ListTasksHandler handles GET /api/tasks
func (h *Handlers) ListTasksHandler(c *gin.Context) {
	userID := requestUserID(c)

	var (
		tasks []models.Task
		err   error
	)
	if c.Query("open") == "true" {
		tasks, err = h.store.ListOpenTasks(c.Request.Context(), userID)
	} else {
		tasks, err = h.store.ListTasks(c.Request.Context(), userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

// AnalyzeWorkloadHandler handles GET /api/analysis/workload
func (h *Handlers) AnalyzeWorkloadHandler(c *gin.Context) {
	analysis, err := h.analysis.AnalyzeWorkload(c.Request.Context(), requestUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to analyze workload"})
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// CalendarPushHandler handles POST /api/calendar/push
func (h *Handlers) CalendarPushHandler(c *gin.Context) {
	var req models.CalendarPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.calendarPush.PushScheduled(c.Request.Context(), requestUserID(c), req.Credentials.Token)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
