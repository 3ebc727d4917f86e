package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewcall/crewcall/pkg/models"
)

func (s *Server) requestOTP(c *gin.Context) {
	var req models.OTPRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.services.Identities.RequestOTP(c.Request.Context(), req.Phone); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (s *Server) verifyOTP(c *gin.Context) {
	var req models.OTPVerifyRequest
	if !s.bindJSON(c, &req) {
		return
	}
	pair, err := s.services.Identities.VerifyOTP(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) refresh(c *gin.Context) {
	var req models.RefreshRequest
	if !s.bindJSON(c, &req) {
		return
	}
	pair, err := s.services.Identities.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}
