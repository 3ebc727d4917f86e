package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
)

const contextUserID = "userID"

// authMiddleware validates the Bearer access token and stores the caller's
// user ID in the request context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		userID, err := s.services.Identities.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(contextUserID, userID)
		c.Next()
	}
}

// callerID extracts the authenticated user's ID set by authMiddleware.
func (s *Server) callerID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetString(contextUserID)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses a UUID path parameter.
func (s *Server) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes and validates a request body.
func (s *Server) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return false
	}
	if err := s.validator.Struct(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// writeError maps service errors onto HTTP responses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := apierrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("handler error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	var apiErr *apierrors.Error
	apierrors.As(err, &apiErr)
	c.JSON(status, gin.H{"error": apiErr.Message, "kind": apiErr.Kind})
}

// pageParams reads the cursor/limit query pair used by list endpoints.
func pageParams(c *gin.Context) (string, int) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := parsePositive(raw); err == nil {
			limit = n
		}
	}
	return c.Query("cursor"), limit
}

func parsePositive(raw string) (int, error) {
	n := 0
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, apierrors.Invalid("not a number")
		}
		n = n*10 + int(r-'0')
		if n > 1000 {
			break
		}
	}
	return n, nil
}
