package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) upload(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := s.services.Uploads.Upload(c.Request.Context(), userID,
		fileHeader.Filename, contentType, fileHeader.Size, file)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) uploadURL(c *gin.Context) {
	if _, ok := s.callerID(c); !ok {
		return
	}
	uploadID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	url, err := s.services.Uploads.URL(c.Request.Context(), uploadID, c.Query("variant"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) deleteUpload(c *gin.Context) {
	userID, ok := s.callerID(c)
	if !ok {
		return
	}
	uploadID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	if err := s.services.Uploads.Delete(c.Request.Context(), userID, uploadID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
