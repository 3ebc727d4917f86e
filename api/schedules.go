package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewcall/crewcall/pkg/models"
)

func (s *Server) createScheduleEntry(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	projectID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req models.ScheduleEntryRequest
	if !s.bindJSON(c, &req) {
		return
	}
	entry, err := s.services.Schedules.Create(c.Request.Context(), userID, projectID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) updateScheduleEntry(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	entryID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req models.ScheduleEntryRequest
	if !s.bindJSON(c, &req) {
		return
	}
	entry, err := s.services.Schedules.Update(c.Request.Context(), userID, entryID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) deleteScheduleEntry(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	entryID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	if err := s.services.Schedules.Delete(c.Request.Context(), userID, entryID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listProjectSchedule(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	projectID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	entries, err := s.services.Schedules.ListProject(c.Request.Context(), userID, projectID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

func (s *Server) mySchedule(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	entries, err := s.services.Schedules.ListMine(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}
