package middlewares

import (
	"net/http"

	"github.com/ghoridigital/secretcodes_backend/models"
	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware guards the admin surface. The expected key lives in the
// settings store so it can be rotated without a redeploy.
func APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected, err := models.GetSettingValue(c.Request.Context(), models.SettingAPIKey, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "api_key_lookup_failed"})
			c.Abort()
			return
		}
		if expected == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "api_key_not_configured"})
			c.Abort()
			return
		}

		provided := c.Request.Header.Get("X-API-Key")
		if provided != expected {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}
