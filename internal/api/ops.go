package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btoaldas/actas-ia/internal/database"
)

// OperationsSource provides the data behind the operations dashboard.
// *database.DB satisfies it.
type OperationsSource interface {
	ListOperations(ctx context.Context, limit, offset int) ([]database.Operation, error)
	OperationSummary(ctx context.Context) (map[string]int, error)
}

type OperationsHandler struct {
	src OperationsSource
}

func NewOperationsHandler(src OperationsSource) *OperationsHandler {
	return &OperationsHandler{src: src}
}

func (h *OperationsHandler) Routes(r chi.Router) {
	r.Get("/operations", h.ListOperations)
	r.Get("/operations/summary", h.GetSummary)
}

// ListOperations returns processing jobs, newest activity first.
func (h *OperationsHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ops, err := h.src.ListOperations(r.Context(), p.Limit, p.Offset)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "no se pudieron listar las operaciones")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"exito":       true,
		"operaciones": ops,
		"total":       len(ops),
		"limit":       p.Limit,
		"offset":      p.Offset,
	})
}

// GetSummary returns operation counts grouped by state.
func (h *OperationsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.src.OperationSummary(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "no se pudo obtener el resumen")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"exito":   true,
		"resumen": summary,
	})
}
