package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/travelhub/crm-escalation/db"
	"github.com/travelhub/crm-escalation/services"
)

type CycleRunner interface {
	RunEscalationCycle(ctx context.Context) (*services.CycleSummary, error)
}

// DefaultManualCycleTimeout bounds a cycle started from the admin API.
const DefaultManualCycleTimeout = 2 * time.Minute

type EscalationHandler struct {
	Engine CycleRunner
	// Timeout bounds a manual cycle; zero means DefaultManualCycleTimeout.
	Timeout time.Duration
}

func NewEscalationHandler(engine CycleRunner) *EscalationHandler {
	return &EscalationHandler{Engine: engine, Timeout: DefaultManualCycleTimeout}
}

// RunCycle triggers one escalation cycle and returns its summary
// POST /api/admin/escalation/run
func (h *EscalationHandler) RunCycle(c *gin.Context) {
	log.Printf("Manual escalation cycle requested by user %s", c.GetString("user_id"))

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultManualCycleTimeout
	}
	// A client disconnect must not abort a cycle halfway through its sweeps.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), timeout)
	defer cancel()

	summary, err := h.Engine.RunEscalationCycle(ctx)
	if err != nil {
		if errors.Is(err, services.ErrLockHeld) {
			c.JSON(http.StatusConflict, gin.H{"error": "An escalation cycle is already running"})
			return
		}
		log.Printf("Error running escalation cycle: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run escalation cycle"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListRules returns the escalation ladder
// GET /api/admin/escalation/rules
func (h *EscalationHandler) ListRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": db.EscalationRules})
}
