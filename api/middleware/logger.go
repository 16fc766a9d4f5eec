// Package middleware holds the gin middleware chain wired in
// cmd/podflow/main.go: FormattedLogger, gin.Recovery, gzip, RequestBlocker,
// and a per-route ErrorHandler.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// FormattedLogger logs one line per request in the "timestamp | status |
// latency | client_ip | METHOD path" shape gin.Logger() itself produces, via
// gin.LoggerWithFormatter so an operator's existing log shipper keeps
// parsing the same format.
func FormattedLogger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(p gin.LogFormatterParams) string {
		return fmt.Sprintf("%s | %3d | %13v | %15s | %-7s %s\n",
			p.TimeStamp.Format(time.RFC3339),
			p.StatusCode,
			p.Latency,
			p.ClientIP,
			p.Method,
			p.Path,
		)
	})
}
