package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/pawls/internal/api/middlewares"
	"github.com/markdave123-py/pawls/internal/models"
	"github.com/markdave123-py/pawls/internal/services"
)

type AllocationService interface {
	GetAllocation(identity *string) (*models.Allocation, error)
	SetComment(sha string, identity *string, comments string) error
	SetJunk(sha string, identity *string, junk bool) error
}

type AllocationHandler struct {
	allocations AllocationService
	logger      *slog.Logger
}

func NewAllocationHandler(allocations AllocationService, logger *slog.Logger) *AllocationHandler {
	return &AllocationHandler{allocations: allocations, logger: logger}
}

func (h *AllocationHandler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	alloc, err := h.allocations.GetAllocation(middleware.IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, alloc)
}

func (h *AllocationHandler) SetComments(w http.ResponseWriter, r *http.Request) {
	var comments string
	if err := decodeField(r.Body, "comments", &comments); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	if err := h.allocations.SetComment(chi.URLParam(r, "sha"), middleware.IdentityFrom(r.Context()), comments); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, struct{}{})
}

func (h *AllocationHandler) SetJunk(w http.ResponseWriter, r *http.Request) {
	var junk bool
	if err := decodeField(r.Body, "junk", &junk); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	if err := h.allocations.SetJunk(chi.URLParam(r, "sha"), middleware.IdentityFrom(r.Context()), junk); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, struct{}{})
}

// decodeField reads either {"<field>": value} or the bare value. The value
// is required, so null is rejected.
func decodeField(body io.Reader, field string, dst any) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: %v", services.ErrInvalidRequest, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return fmt.Errorf("%w: %v", services.ErrInvalidRequest, err)
		}
		raw, ok := wrapper[field]
		if !ok {
			return fmt.Errorf("%w: missing %q", services.ErrInvalidRequest, field)
		}
		data = bytes.TrimSpace(raw)
	}
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: %s must not be null", services.ErrInvalidRequest, field)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", services.ErrInvalidRequest, field, err)
	}
	return nil
}
