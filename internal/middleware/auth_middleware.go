package middleware

import (
	"errors"
	"net/http"
	"strings"

	"zoomgo/internal/utils"
	"zoomgo/pkg/auth"
	"zoomgo/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AccessTokenQueryParam carries the bearer token on WebSocket upgrades,
// where browsers cannot set an Authorization header.
const AccessTokenQueryParam = "access_token"

// AuthRequired verifies the bearer token and puts the caller's id on both
// the gin context and the request context.
func AuthRequired(verifier auth.TokenVerifier, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Bearer token required")
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), tokenString)
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				message = "Token expired"
			}
			log.WithContext(c.Request.Context()).LogSecurityEvent("token_rejected", "low", map[string]interface{}{
				"path":      c.FullPath(),
				"client_ip": c.ClientIP(),
				"reason":    err.Error(),
			})
			utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHENTICATED", message)
			return
		}

		ctx := auth.WithUserID(c.Request.Context(), identity.UserID)
		if identity.Email != "" {
			ctx = auth.WithEmail(ctx, identity.Email)
		}
		c.Set(utils.ContextUserID, identity.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
			return "", false
		}
		return strings.TrimSpace(tokenString), true
	}

	if tokenString := c.Query(AccessTokenQueryParam); tokenString != "" {
		return tokenString, true
	}
	return "", false
}
