package database

import (
	"context"
	"time"
)

// HealthStatus reports database connectivity for the health endpoint.
type HealthStatus struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"response_time_ms"`
}

// Health pings the database and reports latency.
func Health(ctx context.Context, client *Client) (*HealthStatus, error) {
	start := time.Now()

	if err := client.Ping(ctx); err != nil {
		return &HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start).Milliseconds(),
		}, err
	}

	return &HealthStatus{
		Status:       "healthy",
		ResponseTime: time.Since(start).Milliseconds(),
	}, nil
}
