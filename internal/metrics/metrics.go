// Package metrics declares the prometheus collectors of the chat server.
package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Realtime metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "staychat_ws_connections",
			Help: "Open websocket connections",
		},
	)

	OnlineIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "staychat_online_identities",
			Help: "Identities with at least one live connection",
		},
	)

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staychat_messages_persisted_total",
			Help: "Messages stored by the delivery engine",
		},
	)

	ChannelDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staychat_channel_deliveries_total",
			Help: "Message copies queued to connections",
		},
		[]string{"path"}, // "room" or "direct"
	)

	DroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staychat_dropped_events_total",
			Help: "Events dropped because a connection send buffer was full",
		},
		[]string{"event"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staychat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// GinMiddleware counts requests by method, matched route and status.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
