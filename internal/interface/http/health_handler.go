package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/pong-user-directory/pkg/response"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	DB Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{DB: db}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		response.Error[any](c, http.StatusServiceUnavailable, "storage unavailable", gin.H{"database": err.Error()})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"database": "ok"}, "healthy", nil)
}
