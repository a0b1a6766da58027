package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type signInRequest struct {
	OwnerID string `json:"owner_id"`
}

type sessionResponse struct {
	OwnerID  string `json:"owner_id"`
	SignedIn bool   `json:"signed_in"`
}

// SignIn switches the active owner. The order feed for the new owner starts
// in the background; clients follow it through the stream endpoint.
func (s *Server) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		AbortWithError(c, newValidationError("owner_id", "required", "owner_id is required"))
		return
	}

	s.identity.SignIn(owner)
	s.log.Info("owner signed in", zap.String("owner_id", owner))
	c.JSON(http.StatusAccepted, sessionResponse{OwnerID: owner, SignedIn: true})
}

func (s *Server) SignOut(c *gin.Context) {
	s.identity.SignOut()
	c.Status(http.StatusNoContent)
}

func (s *Server) GetSession(c *gin.Context) {
	owner := s.identity.Current()
	c.JSON(http.StatusOK, sessionResponse{OwnerID: owner, SignedIn: owner != ""})
}
