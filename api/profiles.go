package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewcall/crewcall/internal/profiles"
	"github.com/crewcall/crewcall/pkg/models"
)

func (s *Server) getMyProfile(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	profile, err := s.services.Profiles.GetMine(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) upsertMyProfile(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	var req models.ProfileUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	profile, err := s.services.Profiles.Upsert(c.Request.Context(), userID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) getProfile(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	profile, err := s.services.Profiles.GetByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) listProfiles(c *gin.Context) {
	cursor, limit := pageParams(c)
	page, err := s.services.Profiles.List(c.Request.Context(), profiles.ListFilter{
		Role:     c.Query("role"),
		City:     c.Query("city"),
		Category: c.Query("category"),
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
