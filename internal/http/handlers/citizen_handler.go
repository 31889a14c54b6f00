// Citizen HTTP handlers.
//
// This file exposes the operational REST endpoints:
//   - GET /api/v1/citizens/{id}/messages  (paginated chat history)
//   - GET /api/v1/stats                   (registration totals)
//
// These endpoints are for district staff dashboards, not citizens; they sit
// behind the same middleware chain as the webhook.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
	"github.com/gramsetu/citizen-assist-backend/internal/services"
	"github.com/gramsetu/citizen-assist-backend/internal/utils"
)

// ListMessagesResponse contains a page of chat turns and paging metadata.
type ListMessagesResponse struct {
	Messages   []domain.ChatMessage `json:"messages"`
	Pagination Pagination           `json:"pagination"`
}

// clampPagination parses page/page_size query parameters with sane defaults
// and caps.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// ListCitizenMessages returns a page of the citizen's chat history in
// chronological order.
func (h *Handlers) ListCitizenMessages(c *gin.Context) {
	citizenID := c.Param("id")
	if citizenID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "citizen id is required")
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.Reg.History(c.Request.Context(), citizenID, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrCitizenNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "citizen not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeHistoryFailed, "could not list messages")
		return
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		},
	})
}

// GetStats returns registration totals for dashboards.
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.Reg.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not compute stats")
		return
	}
	ok(c, http.StatusOK, stats)
}
