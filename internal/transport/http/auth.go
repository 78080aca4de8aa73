package httptransport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ai-sentinel/internal/domain/auth"
	"ai-sentinel/internal/utils"
)

const subjectKey = "auth.subject"

// BearerAuth rejects requests without a valid "Authorization: Bearer" token.
// Browsers cannot set headers on websocket upgrades, so a "token" query
// parameter is accepted as well.
func BearerAuth(tokens *auth.AuthToken, logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			scheme, value, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				RespondError(c, http.StatusUnauthorized, "authorization header must use the Bearer scheme", nil)
				c.Abort()
				return
			}
			raw = strings.TrimSpace(value)
		}
		if raw == "" {
			RespondError(c, http.StatusUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}

		subject, err := tokens.VerifyToken(raw)
		if err != nil {
			logger.WarnTag("HTTP", "rejected token from %s: %v", c.ClientIP(), err)
			RespondError(c, http.StatusUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}
		c.Set(subjectKey, subject)
		c.Next()
	}
}
