package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Tenant maps the token's organization claim to tenant_id. Keycloak emits the
// claim as a string, a list of aliases or a map keyed by alias depending on
// the mapper; only a single organization is accepted.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get("claims")
		if !exists {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Claims not found"})
			c.Abort()
			return
		}

		jwtClaims, _ := claims.(jwt.MapClaims)
		organization := organizationOf(jwtClaims["organization"])
		if organization == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Organization not found in token"})
			c.Abort()
			return
		}

		c.Set("tenant_id", organization)
		c.Next()
	}
}

func organizationOf(v interface{}) string {
	switch org := v.(type) {
	case string:
		return org
	case []interface{}:
		if len(org) == 1 {
			s, _ := org[0].(string)
			return s
		}
	case map[string]interface{}:
		if len(org) == 1 {
			for alias := range org {
				return alias
			}
		}
	}
	return ""
}
