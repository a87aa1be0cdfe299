package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"zoomgo/internal/utils"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

func NewHealthHandler(checks map[string]HealthCheck, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{checks: checks, timeout: timeout}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	dependencies := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			dependencies[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		dependencies[name] = "ok"
	}

	healthy := "healthy"
	if status != http.StatusOK {
		healthy = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":       healthy,
		"service":      utils.AppName,
		"version":      utils.AppVersion,
		"dependencies": dependencies,
		"timestamp":    time.Now().UTC(),
	})
}
