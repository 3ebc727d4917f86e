package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewcall/crewcall/internal/projects"
	"github.com/crewcall/crewcall/pkg/models"
)

func (s *Server) createProject(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	var req models.ProjectRequest
	if !s.bindJSON(c, &req) {
		return
	}
	project, err := s.services.Projects.Create(c.Request.Context(), userID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *Server) updateProject(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	projectID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req models.ProjectRequest
	if !s.bindJSON(c, &req) {
		return
	}
	project, err := s.services.Projects.Update(c.Request.Context(), userID, projectID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *Server) setProjectStatus(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	projectID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" validate:"required,oneof=draft open closed"`
	}
	if !s.bindJSON(c, &req) {
		return
	}
	project, err := s.services.Projects.SetStatus(c.Request.Context(), userID, projectID, req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *Server) getProject(c *gin.Context) {
	projectID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	project, err := s.services.Projects.Get(c.Request.Context(), projectID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *Server) listMyProjects(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	cursor, limit := pageParams(c)
	page, err := s.services.Projects.ListMine(c.Request.Context(), userID, cursor, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) createPost(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	projectID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req models.RolePostRequest
	if !s.bindJSON(c, &req) {
		return
	}
	post, err := s.services.Projects.CreatePost(c.Request.Context(), userID, projectID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (s *Server) updatePost(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	postID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req models.RolePostRequest
	if !s.bindJSON(c, &req) {
		return
	}
	post, err := s.services.Projects.UpdatePost(c.Request.Context(), userID, postID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) closePost(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	postID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	post, err := s.services.Projects.ClosePost(c.Request.Context(), userID, postID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) getPost(c *gin.Context) {
	postID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	post, err := s.services.Projects.GetPost(c.Request.Context(), postID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) listProjectPosts(c *gin.Context) {
	projectID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	posts, err := s.services.Projects.ListProjectPosts(c.Request.Context(), projectID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": posts})
}

func (s *Server) postFeed(c *gin.Context) {
	cursor, limit := pageParams(c)
	page, err := s.services.Projects.Feed(c.Request.Context(), projects.FeedFilter{
		Category: c.Query("category"),
		City:     c.Query("city"),
		PaidOnly: c.Query("paid") == "true",
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
