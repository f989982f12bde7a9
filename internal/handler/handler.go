package handler

import (
	"errors"
	"net/http"

	"narrative-server/internal/models"
	"narrative-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StoryHandler exposes the narrative engine to the presentation layer. The
// handlers only translate HTTP to progress-manager calls; rendering the
// payload is the caller's problem.
type StoryHandler struct {
	manager *service.ProgressManager
	logger  *zap.Logger
}

// NewStoryHandler creates the handler.
func NewStoryHandler(manager *service.ProgressManager, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{manager: manager, logger: logger.Named("StoryHandler")}
}

// RegisterRoutes mounts the story API under router.
func (h *StoryHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/players/:playerID/story")
	{
		api.GET("", h.getProgress)
		api.GET("/chapters", h.availableChapters)
		api.GET("/completed", h.completedChapters)
		api.POST("/advance", h.advance)
		api.POST("/choice", h.choose)
		api.POST("/complete", h.complete)
		api.POST("/fail", h.fail)
		api.POST("/chapter/:chapterID", h.setChapter)
		api.POST("/hierarchy/points", h.addHierarchyPoints)
	}
}

// ChoiceRequest is the body of POST .../choice.
type ChoiceRequest struct {
	ChoiceIndex *int `json:"choice_index" binding:"required"`
}

// HierarchyPointsRequest is the body of POST .../hierarchy/points. Points is a
// pointer so a zero delta still binds.
type HierarchyPointsRequest struct {
	Points *int `json:"points" binding:"required"`
}

// APIError is the uniform error body.
type APIError struct {
	Message string `json:"error"`
}

func (h *StoryHandler) getProgress(c *gin.Context) {
	player, err := h.manager.InitializeStoryProgress(c.Request.Context(), c.Param("playerID"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

func (h *StoryHandler) availableChapters(c *gin.Context) {
	ids, err := h.manager.AvailableChapters(c.Request.Context(), c.Param("playerID"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapters": ids})
}

func (h *StoryHandler) completedChapters(c *gin.Context) {
	ids, err := h.manager.GetCompletedChapters(c.Request.Context(), c.Param("playerID"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapters": ids})
}

func (h *StoryHandler) advance(c *gin.Context) {
	update, err := h.manager.AdvanceStory(c.Request.Context(), c.Param("playerID"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, update)
}

func (h *StoryHandler) choose(c *gin.Context) {
	var req ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "choice_index is required"})
		return
	}
	update, err := h.manager.ChooseOption(c.Request.Context(), c.Param("playerID"), *req.ChoiceIndex)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, update)
}

func (h *StoryHandler) complete(c *gin.Context) {
	update, err := h.manager.CompleteCurrentChapter(c.Request.Context(), c.Param("playerID"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, update)
}

func (h *StoryHandler) fail(c *gin.Context) {
	update, err := h.manager.FailCurrentChallenge(c.Request.Context(), c.Param("playerID"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, update)
}

func (h *StoryHandler) setChapter(c *gin.Context) {
	id, err := models.ParseChapterID(c.Param("chapterID"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	update, err := h.manager.SetCurrentChapter(c.Request.Context(), c.Param("playerID"), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, update)
}

func (h *StoryHandler) addHierarchyPoints(c *gin.Context) {
	var req HierarchyPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "points is required"})
		return
	}
	player, err := h.manager.AddHierarchyPoints(c.Request.Context(), c.Param("playerID"), *req.Points)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

// handleServiceError maps engine sentinels onto HTTP statuses.
func (h *StoryHandler) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, models.ErrMalformedChapterID),
		errors.Is(err, models.ErrInvalidChoice),
		errors.Is(err, models.ErrNotChallengeChapter),
		errors.Is(err, models.ErrBadRequest):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrNoCurrentChapter),
		errors.Is(err, models.ErrMissingChapter),
		errors.Is(err, models.ErrProgressNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrVersionConflict):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	default:
		h.logger.Error("Unhandled service error", zap.Error(err))
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}
	c.JSON(statusCode, apiErr)
}
