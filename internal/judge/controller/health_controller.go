package controller

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHealthTimeout = 2 * time.Second

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// HealthController reports dependency health.
type HealthController struct {
	checks    map[string]HealthCheck
	languages func() []string
	timeout   time.Duration
}

// NewHealthController creates a health controller. languages may be nil.
func NewHealthController(checks map[string]HealthCheck, languages func() []string) *HealthController {
	return &HealthController{checks: checks, languages: languages, timeout: defaultHealthTimeout}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Languages []string          `json:"languages,omitempty"`
}

// Health returns 200 when every dependency answers, 503 otherwise.
func (h *HealthController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	if h.languages != nil {
		resp.Languages = h.languages()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
