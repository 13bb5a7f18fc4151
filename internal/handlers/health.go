package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Probe is one dependency checked by /healthz.
type Probe struct {
	Name string
	Ping func(ctx context.Context) error
}

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Environment  string            `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:       "ok",
		Dependencies: make(map[string]string, len(h.probes)),
		Environment:  h.cfg.Environment,
	}
	for _, p := range h.probes {
		if err := p.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Dependencies[p.Name] = "error"
			h.log.Error().Err(err).Str("dependency", p.Name).Msg("health probe failed")
			continue
		}
		resp.Dependencies[p.Name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
