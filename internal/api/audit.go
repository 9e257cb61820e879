package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btoaldas/actas-ia/internal/audit"
	"github.com/btoaldas/actas-ia/internal/metrics"
)

type AuditHandler struct {
	collector *audit.Collector
}

func NewAuditHandler(collector *audit.Collector) *AuditHandler {
	return &AuditHandler{collector: collector}
}

func (h *AuditHandler) Routes(r chi.Router) {
	r.Post("/audit/batch", h.CollectBatch)
}

// CollectBatch accepts a batch of frontend interaction events. Events
// are queued for asynchronous persistence, so the response only
// acknowledges receipt.
func (h *AuditHandler) CollectBatch(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		WriteError(w, http.StatusServiceUnavailable, "auditoría no disponible")
		return
	}

	var body struct {
		Events []audit.Event `json:"eventos"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, "cuerpo de solicitud inválido")
		return
	}
	if len(body.Events) == 0 {
		WriteError(w, http.StatusBadRequest, "el lote no contiene eventos")
		return
	}

	h.collector.RecordBatch(body.Events)
	metrics.AuditEventsCollected.Add(float64(len(body.Events)))
	WriteJSON(w, http.StatusAccepted, map[string]any{
		"exito":     true,
		"recibidos": len(body.Events),
	})
}
