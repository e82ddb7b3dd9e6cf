package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthHandler exposes GET /healthz, pinging the database so a load
// balancer can detect a gateway instance that has lost its connection pool.
type HealthHandler struct {
	db *pgxpool.Pool
}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler(db *pgxpool.Pool) *HealthHandler {
	return &HealthHandler{db: db}
}

// Register attaches /healthz directly to the router (not behind a version
// group — it carries no auth and no business logic).
func (h *HealthHandler) Register(router gin.IRouter) {
	router.GET("/healthz", h.healthz)
}

func (h *HealthHandler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
