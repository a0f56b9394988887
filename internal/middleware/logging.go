package middleware

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RequestIDKey is the gin context key carrying the request ID
const RequestIDKey = "request_id"

// RequestLogger tags every request with a snowflake ID and writes a
// structured access log line when the handler chain completes.
type RequestLogger struct {
	node *snowflake.Node
}

// NewRequestLogger builds the middleware. Datacenter and worker IDs each
// use 5 bits (0-31) of the snowflake node ID, so concurrently deployed
// instances never issue colliding request IDs.
func NewRequestLogger(datacenterID, workerID int64) (*RequestLogger, error) {
	node, err := snowflake.NewNode((datacenterID << 5) | workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &RequestLogger{node: node}, nil
}

// Middleware returns a Gin middleware function
func (rl *RequestLogger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := rl.node.Generate().String()
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		log.Info().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
