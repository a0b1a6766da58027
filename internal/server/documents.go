package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
)

type replaceProfileOrdersRequest struct {
	OrderIDs []string `json:"order_ids"`
}

// ReplaceProfileOrders overwrites the owner's order id list.
func (s *Server) ReplaceProfileOrders(c *gin.Context) {
	owner := strings.TrimSpace(c.Param("owner"))
	var req replaceProfileOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.docs.SaveProfile(c.Request.Context(), domain.Profile{OwnerID: owner, OrderIDs: req.OrderIDs}); err != nil {
		AbortWithError(c, err)
		return
	}
	profile, err := s.docs.GetProfile(c.Request.Context(), owner)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type orderDocumentRequest struct {
	OwnerID string         `json:"owner_id"`
	Fields  map[string]any `json:"fields"`
}

type orderDocumentResponse struct {
	ID      string         `json:"id"`
	OwnerID string         `json:"owner_id"`
	Fields  map[string]any `json:"fields"`
}

// CreateOrder stores a new order document under a generated id and
// appends the id to the owner's profile.
func (s *Server) CreateOrder(c *gin.Context) {
	var req orderDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		AbortWithError(c, newValidationError("owner_id", "required", "owner_id is required"))
		return
	}

	id := s.genID.Generate().String()
	ctx := c.Request.Context()
	if err := s.docs.PutOrder(ctx, owner, domain.OrderDocument{ID: id, Fields: req.Fields}); err != nil {
		AbortWithError(c, err)
		return
	}
	err := s.limiter.WithProfileLock(ctx, owner, func(ctx context.Context) error {
		return s.docs.AttachOrder(ctx, owner, id)
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderDocumentResponse{ID: id, OwnerID: owner, Fields: req.Fields})
}

// PutOrder creates or replaces the order document with the path id. The
// profile list is left untouched.
func (s *Server) PutOrder(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req orderDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	owner := strings.TrimSpace(req.OwnerID)
	if err := s.docs.PutOrder(c.Request.Context(), owner, domain.OrderDocument{ID: id, Fields: req.Fields}); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderDocumentResponse{ID: id, OwnerID: owner, Fields: req.Fields})
}

func (s *Server) DeleteOrder(c *gin.Context) {
	if err := s.docs.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
