// Package httptransport wires the admin/inspection HTTP API: read and
// cancel tasks, full schedule CRUD plus pause/resume, leader status, and
// magic-link auth. It never exposes task enqueueing, which stays on the
// registry's Delay/ApplyAsync embedding API.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/barnqueue/barn/internal/health"
	"github.com/barnqueue/barn/internal/transport/http/handler"
	"github.com/barnqueue/barn/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

func NewRouter(
	logger *slog.Logger,
	taskHandler *handler.TaskHandler,
	scheduleHandler *handler.ScheduleHandler,
	authHandler *handler.AuthHandler,
	statusHandler *handler.StatusHandler,
	checker *health.Checker,
	jwtKey []byte,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, checker.Liveness(c.Request.Context()))
	})
	r.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	})

	r.POST("/auth/magic-link", authHandler.RequestMagicLink)
	r.GET("/auth/verify", authHandler.Verify)

	admin := r.Group("", middleware.Auth(jwtKey))

	admin.GET("/leader", statusHandler.Leader)

	admin.GET("/tasks", taskHandler.List)
	admin.GET("/tasks/:id", taskHandler.GetByID)
	admin.POST("/tasks/cancel", taskHandler.Cancel)

	admin.POST("/schedules", scheduleHandler.Create)
	admin.GET("/schedules", scheduleHandler.List)
	admin.GET("/schedules/:id", scheduleHandler.GetByID)
	admin.POST("/schedules/:id/pause", scheduleHandler.Pause)
	admin.POST("/schedules/:id/resume", scheduleHandler.Resume)
	admin.DELETE("/schedules/:id", scheduleHandler.Delete)

	return r
}
