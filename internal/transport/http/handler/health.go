package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"leftear-ai/internal/bootstrap"
)

type HealthHandler struct {
	app *bootstrap.App
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Check pings every backing dependency. 503 when any of them is down, so the
// endpoint doubles as a load-balancer probe.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := map[string]dependencyStatus{
		"mysql":    h.pingMySQL(ctx),
		"redis":    h.pingRedis(ctx),
		"rabbitmq": h.pingRabbitMQ(),
	}

	statusCode := http.StatusOK
	for _, d := range deps {
		if !d.OK {
			statusCode = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(statusCode, gin.H{
		"app":          h.app.Config.App.Name,
		"env":          h.app.Config.App.Env,
		"uptime_sec":   int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": deps,
	})
}

func (h *HealthHandler) pingMySQL(ctx context.Context) dependencyStatus {
	sqlDB, err := h.app.MySQL.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return dependencyStatus{Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) pingRedis(ctx context.Context) dependencyStatus {
	if err := h.app.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) pingRabbitMQ() dependencyStatus {
	if h.app.MQConn == nil || h.app.MQConn.IsClosed() {
		return dependencyStatus{Message: "connection closed"}
	}
	return dependencyStatus{OK: true}
}
