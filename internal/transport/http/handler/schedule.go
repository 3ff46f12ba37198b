package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/usecase"
	"github.com/gin-gonic/gin"
)

type ScheduleHandler struct {
	uc     *usecase.ScheduleUsecase
	logger *slog.Logger
}

func NewScheduleHandler(uc *usecase.ScheduleUsecase, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{uc: uc, logger: logger.With("component", "schedule_handler")}
}

type createScheduleRequest struct {
	Name        string          `json:"name" binding:"max=256"`
	Func        string          `json:"func" binding:"required"`
	Args        json.RawMessage `json:"args"`
	CronExpr    string          `json:"cronExpr"`
	IntervalSec *int            `json:"intervalSeconds"`
	OneShotAt   *time.Time      `json:"oneShotAt"`
}

func (h *ScheduleHandler) Create(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var interval *time.Duration
	if req.IntervalSec != nil {
		d := time.Duration(*req.IntervalSec) * time.Second
		interval = &d
	}

	s, err := h.uc.CreateSchedule(c.Request.Context(), usecase.CreateScheduleInput{
		Name:      req.Name,
		Func:      req.Func,
		Args:      req.Args,
		CronExpr:  req.CronExpr,
		Interval:  interval,
		OneShotAt: req.OneShotAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCronExpr):
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidCronExpr})
		case errors.Is(err, domain.ErrInvalidFiringPolicy):
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidFiringPolicy})
		case errors.Is(err, domain.ErrScheduleNameConflict):
			c.JSON(http.StatusConflict, gin.H{"error": errScheduleNameConflict})
		default:
			h.logger.ErrorContext(c.Request.Context(), "create schedule", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusCreated, s)
}

func (h *ScheduleHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	result, err := h.uc.ListSchedules(c.Request.Context(), usecase.ListSchedulesInput{
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "list schedules", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"schedules":   result.Schedules,
		"next_cursor": result.NextCursor,
	})
}

func (h *ScheduleHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}

	s, err := h.uc.GetSchedule(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "get schedule", "schedule_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, s)
}

func (h *ScheduleHandler) Pause(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}

	if err := h.uc.Pause(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrScheduleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		case errors.Is(err, domain.ErrScheduleAlreadyPaused):
			c.JSON(http.StatusConflict, gin.H{"error": errScheduleAlreadyPaused})
		default:
			h.logger.ErrorContext(c.Request.Context(), "pause schedule", "schedule_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Resume(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}

	if err := h.uc.Resume(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrScheduleNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		case errors.Is(err, domain.ErrScheduleNotPaused):
			c.JSON(http.StatusConflict, gin.H{"error": errScheduleNotPaused})
		default:
			h.logger.ErrorContext(c.Request.Context(), "resume schedule", "schedule_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}

	if err := h.uc.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "delete schedule", "schedule_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.Status(http.StatusNoContent)
}
