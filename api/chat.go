package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// chatSocket upgrades to the realtime gateway. The access token rides the
// query string because browsers cannot set headers on a WebSocket upgrade.
func (s *Server) chatSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token query parameter required"})
		return
	}
	rawID, err := s.services.Identities.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return
	}
	if err := s.services.Hub.HandleUpgrade(c.Writer, c.Request, userID); err != nil {
		// Upgrade failures already wrote the response.
		s.logger.Warn("websocket upgrade failed")
	}
}

func (s *Server) listConversations(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	cursor, limit := pageParams(c)
	page, err := s.services.Chat.ListConversations(c.Request.Context(), userID, cursor, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) conversationHistory(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	conversationID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	cursor, limit := pageParams(c)
	page, err := s.services.Chat.History(c.Request.Context(), userID, conversationID, cursor, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) markConversationRead(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	conversationID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		MessageID uuid.UUID `json:"message_id" validate:"required"`
	}
	if !s.bindJSON(c, &req) {
		return
	}
	count, err := s.services.Chat.MarkRead(c.Request.Context(), conversationID, userID, req.MessageID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read_count": count})
}
