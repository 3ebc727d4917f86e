package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewcall/crewcall/pkg/models"
)

func (s *Server) listNotifications(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	cursor, limit := pageParams(c)
	page, err := s.services.Notifications.List(c.Request.Context(), userID,
		c.Query("unread") == "true", cursor, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) markNotificationsRead(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	var req models.MarkReadRequest
	if !s.bindJSON(c, &req) {
		return
	}
	count, err := s.services.Notifications.MarkRead(c.Request.Context(), userID, req.IDs)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read_count": count})
}

func (s *Server) registerDevice(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	var req models.DeviceRequest
	if !s.bindJSON(c, &req) {
		return
	}
	device, err := s.services.Notifications.RegisterDevice(c.Request.Context(), userID, req.Token, req.Platform)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (s *Server) unregisterDevice(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}
	if err := s.services.Notifications.UnregisterDevice(c.Request.Context(), userID, token); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
