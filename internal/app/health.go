package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

type HealthChecker struct {
	infra Infrastructure
}

func NewHealthChecker(infra Infrastructure) *HealthChecker {
	return &HealthChecker{
		infra: infra,
	}
}

type componentStatus struct {
	name string
	err  error
}

// check pings every backing store concurrently
func (h *HealthChecker) check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	results := make(chan componentStatus, 2)

	go func() {
		results <- componentStatus{name: "postgres", err: h.infra.Postgres().Ping(ctx)}
	}()

	go func() {
		results <- componentStatus{name: "redis", err: h.infra.Redis().Ping(ctx)}
	}()

	components := make(map[string]string, 2)
	for range 2 {
		r := <-results
		if r.err != nil {
			components[r.name] = r.err.Error()
			continue
		}
		components[r.name] = "pass"
	}

	return components
}

func (h *HealthChecker) Handler(c *gin.Context) {
	components := h.check(c.Request.Context())

	for _, status := range components {
		if status != "pass" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "fail",
				"components": components,
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "pass",
		"components": components,
	})
}
