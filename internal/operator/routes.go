// Package operator implements the HTTP control surface: status, pending
// governance-gated actions, budget holds, membership, and a websocket
// event stream — adapted from the teacher's gin-based API handler.
package operator

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lightning-goats/cl-hive-sub000/internal/config"
	"github.com/lightning-goats/cl-hive-sub000/internal/kernel"
	"github.com/lightning-goats/cl-hive-sub000/internal/store"
)

// Handler serves the operator HTTP API over a live kernel and store.
type Handler struct {
	cfg *config.Config
	db  *store.Store
	k   *kernel.Kernel
	hub *Hub
}

// SetupRouter builds the gin.Engine with CORS, auth, rate limiting, and
// every operator route wired — the same shape as the teacher's
// SetupRouter, generalized to this domain's resources.
func SetupRouter(cfg *config.Config, db *store.Store, k *kernel.Kernel, hub *Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	h := &Handler{cfg: cfg, db: db, k: k, hub: hub}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", hub.Subscribe)
	}

	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	auth.Use(NewRateLimiter(60, 10).Middleware())
	{
		auth.GET("/members", h.handleListMembers)
		auth.GET("/pending-actions", h.handleListPendingActions)
		auth.POST("/pending-actions/:id/approve", h.handleApprovePendingAction)
		auth.POST("/pending-actions/:id/reject", h.handleRejectPendingAction)
		auth.GET("/budget/holds", h.handleListBudgetHolds)
		auth.GET("/planner-log", h.handleListPlannerLog)
	}

	return r
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"governance_mode": h.cfg.Snapshot().GovernanceMode,
	})
}

func (h *Handler) handleListMembers(c *gin.Context) {
	members, err := h.db.ListMembers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *Handler) handleListPendingActions(c *gin.Context) {
	actions, err := h.db.ListPendingActions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending_actions": actions})
}

// handleApprovePendingAction marks a pending action approved. The
// underlying Gateway mutation it describes is not replayed from this
// endpoint — the component that originally queued the action (expansion,
// settlement, membership) owns interpreting its own detail payload and
// must poll pending_actions for the approval before acting on it.
func (h *Handler) handleApprovePendingAction(c *gin.Context) {
	h.resolvePendingAction(c, "approved")
}

func (h *Handler) handleRejectPendingAction(c *gin.Context) {
	h.resolvePendingAction(c, "rejected")
}

func (h *Handler) resolvePendingAction(c *gin.Context, status string) {
	id := c.Param("id")
	operatorID := c.GetHeader("X-Operator-ID")
	if operatorID == "" {
		operatorID = "unknown-operator"
	}
	if err := h.db.ResolvePendingAction(c.Request.Context(), id, status, operatorID, time.Now().Unix()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "id": id})
}

func (h *Handler) handleListBudgetHolds(c *gin.Context) {
	holds, err := h.db.ListActiveBudgetHolds(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"holds": holds})
}

func (h *Handler) handleListPlannerLog(c *gin.Context) {
	entries, err := h.db.ListRecentPlannerLog(c.Request.Context(), 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
