package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/usecase"
	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	uc     *usecase.TaskUsecase
	logger *slog.Logger
}

func NewTaskHandler(uc *usecase.TaskUsecase, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{uc: uc, logger: logger.With("component", "task_handler")}
}

// GetByID handles GET /tasks/:id.
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	task, err := h.uc.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errTaskNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "get task", "task_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, task)
}

// List handles GET /tasks?status=&cursor=&limit=.
func (h *TaskHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	result, err := h.uc.List(c.Request.Context(), usecase.ListTasksInput{
		Status: domain.Status(c.Query("status")),
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "list tasks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks":       result.Tasks,
		"next_cursor": result.NextCursor,
	})
}

type cancelTaskRequest struct {
	Func      string         `json:"func" binding:"required"`
	ArgsMatch map[string]any `json:"argsMatch"`
}

// Cancel handles POST /tasks/cancel. It deletes queued tasks matching
// func/args, mirroring the registry's cancel(**kwargs) embedding API.
func (h *TaskHandler) Cancel(c *gin.Context) {
	var req cancelTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	removed, err := h.uc.Cancel(c.Request.Context(), req.Func, req.ArgsMatch)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "cancel task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
