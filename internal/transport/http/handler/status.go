package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// leaderInspector is the subset of leader.Elector the status handler
// needs, defined at point of use so tests can inject a fake.
type leaderInspector interface {
	IsLeader() bool
}

type StatusHandler struct {
	leader leaderInspector
}

func NewStatusHandler(leader leaderInspector) *StatusHandler {
	return &StatusHandler{leader: leader}
}

// Leader handles GET /leader and reports whether this node currently
// holds the scheduler's distributed lease.
func (h *StatusHandler) Leader(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isLeader": h.leader.IsLeader()})
}
