/*
Package monitoring provides Prometheus metrics for termhub.

# Overview

Each Metrics value owns its registry, so tests and multiple servers in one
process never collide on registration.

# Features

- HTTP request metrics (latency, status)
- Session gauges by status, create/close counters
- Admission rejections by reason
- Buffer overflow counter (live vs paused)
- WebSocket connection and message metrics
- Uptime

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
