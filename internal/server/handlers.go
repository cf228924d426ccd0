package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/search"
)

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
}

// Handler serves the JSON API.
type Handler struct {
	svc *search.Service
}

// NewHandler creates a Handler.
func NewHandler(svc *search.Service) *Handler {
	return &Handler{svc: svc}
}

// Fields lists the schema.
func (h *Handler) Fields(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Fields())
}

// Search runs a query. Parse and compile failures are 400s carrying the
// error code; anything else is a 500.
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToPayload(
			errors.New(errors.ErrCodeInvalidInput, "request body must be JSON with a query field", err)))
		return
	}

	rows, err := h.svc.Search(c.Request.Context(), req.Query)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.IsBadRequest(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, errors.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, rows)
}
