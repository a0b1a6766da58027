package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"github.com/smallbiznis/orderfeed/internal/order/service"
	"github.com/smallbiznis/orderfeed/pkg/db/pagination"
)

type listOrdersResponse struct {
	Orders        []domain.OrderRecord `json:"orders"`
	Phase         service.Phase        `json:"phase"`
	Live          bool                 `json:"live"`
	Search        string               `json:"search"`
	Status        string               `json:"status"`
	RawCount      int                  `json:"raw_count"`
	FilteredCount int                  `json:"filtered_count"`
	PageInfo      pagination.PageInfo  `json:"page_info"`
}

func (s *Server) ListOrders(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be a number"))
		return
	}

	view := s.orders.View()
	orders, info, err := pagination.Slice(view.Orders, page, func(rec domain.OrderRecord) string { return rec.ID })
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, listOrdersResponse{
		Orders:        orders,
		Phase:         view.Phase,
		Live:          view.Live,
		Search:        view.Search,
		Status:        view.Status,
		RawCount:      view.RawCount,
		FilteredCount: view.FilteredCount,
		PageInfo:      info,
	})
}

type countsResponse struct {
	RawCount      int           `json:"raw_count"`
	FilteredCount int           `json:"filtered_count"`
	Phase         service.Phase `json:"phase"`
}

func (s *Server) OrderCounts(c *gin.Context) {
	view := s.orders.View()
	c.JSON(http.StatusOK, countsResponse{
		RawCount:      view.RawCount,
		FilteredCount: view.FilteredCount,
		Phase:         view.Phase,
	})
}

type filterRequest struct {
	Search    *string `json:"search"`
	Status    *string `json:"status"`
	Immediate bool    `json:"immediate"`
}

// SetFilter updates the search text and status filter. Search text is
// debounced unless immediate is set.
func (s *Server) SetFilter(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if req.Status != nil {
		status, ok := parseStatusFilter(*req.Status)
		if !ok {
			AbortWithError(c, newValidationError("status", "invalid_status", "status must be one of all, pending, completed, failed, unknown"))
			return
		}
		s.orders.SetStatusFilter(status)
	}
	if req.Search != nil {
		s.orders.SetSearchText(*req.Search)
		if req.Immediate {
			s.orders.FlushSearch()
		}
	}

	view := s.orders.View()
	c.JSON(http.StatusAccepted, countsResponse{
		RawCount:      view.RawCount,
		FilteredCount: view.FilteredCount,
		Phase:         view.Phase,
	})
}
