package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/chainauth/core"
	"github.com/layer-3/chainauth/internal/log"
	"github.com/layer-3/chainauth/service"
)

const (
	ctxUserAddress = "userAddress"
	ctxSession     = "session"
)

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		// Check if the Authorization header is present and in correct format
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		session, err := authService.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, core.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		c.Set(ctxUserAddress, session.Address)
		c.Set(ctxSession, session)

		c.Next()
	}
}

func sessionFrom(c *gin.Context) (*core.Session, bool) {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil, false
	}
	session, ok := v.(*core.Session)
	return session, ok
}

// LoggerMiddleware logs one line per request and stores a request scoped
// logger in the request context.
func LoggerMiddleware(lg log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLg := lg.WithKV("method", c.Request.Method).WithKV("path", c.FullPath())
		c.Request = c.Request.WithContext(log.SetContextLogger(c.Request.Context(), reqLg))

		c.Next()

		status := c.Writer.Status()
		kv := []any{"status", status, "duration", time.Since(start), "client_ip", c.ClientIP()}
		switch {
		case status >= http.StatusInternalServerError:
			reqLg.Error("request failed", append(kv, "errors", c.Errors.String())...)
		case status >= http.StatusBadRequest:
			reqLg.Info("request rejected", kv...)
		default:
			reqLg.Debug("request served", kv...)
		}
	}
}
