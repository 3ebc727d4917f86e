package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewcall/crewcall/pkg/models"
)

func (s *Server) apply(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	postID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req models.ApplyRequest
	if !s.bindJSON(c, &req) {
		return
	}
	application, err := s.services.Applications.Apply(c.Request.Context(), userID, postID, req.Note)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, application)
}

func (s *Server) setApplicationStatus(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	applicationID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req models.ApplicationStatusRequest
	if !s.bindJSON(c, &req) {
		return
	}
	application, err := s.services.Applications.SetStatus(c.Request.Context(), userID, applicationID, req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, application)
}

func (s *Server) withdrawApplication(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	applicationID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	application, err := s.services.Applications.Withdraw(c.Request.Context(), userID, applicationID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, application)
}

func (s *Server) listMyApplications(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	cursor, limit := pageParams(c)
	page, err := s.services.Applications.ListMine(c.Request.Context(), userID, cursor, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) listPostApplications(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	postID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	cursor, limit := pageParams(c)
	page, err := s.services.Applications.ListForPost(c.Request.Context(), userID, postID, cursor, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
