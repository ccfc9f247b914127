package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// tokenAuthMiddleware guards the admin API with a static bearer token.
func (s *Server) tokenAuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return c.JSON(http.StatusUnauthorized, NewErrorResponseWithMessage(MsgMissingAuthHeader))
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, NewErrorResponseWithMessage(MsgInvalidAuthHeader))
		}

		tokenStr := authHeader[len("Bearer "):]
		if subtle.ConstantTimeCompare([]byte(tokenStr), []byte(s.cfg.Token)) != 1 {
			s.logger.Warn("rejected request with invalid api token")
			return c.JSON(http.StatusUnauthorized, NewErrorResponseWithMessage(MsgUnauthorized))
		}
		return next(c)
	}
}
