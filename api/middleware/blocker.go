package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequestBlocker rejects requests from a configured denylist of client IPs
// or User-Agent substrings, fed from the --blocked-ips/--blocked-user-agents
// flags parsed in cmd/podflow/main.go.
func RequestBlocker(blockedIPs, blockedUserAgents []string) gin.HandlerFunc {
	ipSet := make(map[string]bool, len(blockedIPs))
	for _, ip := range blockedIPs {
		ipSet[ip] = true
	}

	return func(ctx *gin.Context) {
		if ipSet[ctx.ClientIP()] {
			ctx.AbortWithStatus(http.StatusForbidden)
			return
		}
		ua := ctx.Request.UserAgent()
		for _, blocked := range blockedUserAgents {
			if blocked != "" && strings.Contains(ua, blocked) {
				ctx.AbortWithStatus(http.StatusForbidden)
				return
			}
		}
		ctx.Next()
	}
}
