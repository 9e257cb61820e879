package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/btoaldas/actas-ia/internal/database"
	"github.com/btoaldas/actas-ia/internal/events"
	"github.com/btoaldas/actas-ia/internal/metrics"
	"github.com/btoaldas/actas-ia/internal/structure"
)

// StructureRepo is the persistence surface the structure handlers need.
// *database.DB satisfies it.
type StructureRepo interface {
	GetStructure(ctx context.Context, id int64) (*structure.Structure, int64, error)
	SaveStructure(ctx context.Context, id int64, s *structure.Structure, expectedVersion int64, rec database.EditRecord) (int64, error)
	ListEditHistory(ctx context.Context, id int64, limit int) ([]database.EditHistoryEntry, error)
}

type StructuresHandler struct {
	repo StructureRepo
	bus  *events.Bus
	now  func() time.Time
}

func NewStructuresHandler(repo StructureRepo, bus *events.Bus) *StructuresHandler {
	return &StructuresHandler{repo: repo, bus: bus, now: time.Now}
}

func (h *StructuresHandler) Routes(r chi.Router) {
	r.Get("/transcriptions/{id}/structure", h.GetStructure)
	r.Put("/transcriptions/{id}/structure", h.SaveStructure)
	r.Post("/transcriptions/{id}/segments", h.AddSegment)
	r.Put("/transcriptions/{id}/segments/{index}", h.EditSegment)
	r.Delete("/transcriptions/{id}/segments/{index}", h.DeleteSegment)
	r.Post("/transcriptions/{id}/speakers", h.UpdateSpeakers)
	r.Post("/transcriptions/{id}/reorder", h.Reorder)
	r.Get("/transcriptions/{id}/history", h.GetHistory)
}

// GetStructure returns the conversation structure and its version.
func (h *StructuresHandler) GetStructure(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "ID de transcripción inválido")
		return
	}

	s, version, err := h.repo.GetStructure(r.Context(), id)
	if err != nil {
		writeStructureError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"exito":      true,
		"estructura": s,
		"version":    version,
	})
}

// The mutation endpoints do read-modify-write on the server: load the
// current structure, apply the change, and save with a version check.
// A concurrent writer makes the save fail, so the whole cycle retries
// from a fresh read a few times before giving up with a conflict.
const casRetries = 3

func (h *StructuresHandler) mutate(ctx context.Context, id int64, fn func(s *structure.Structure) (database.EditRecord, error)) (*structure.Structure, int64, error) {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		s, version, err := h.repo.GetStructure(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		rec, err := fn(s)
		if err != nil {
			return nil, 0, err
		}
		rec.User = UserFromContext(ctx)
		newVersion, err := h.repo.SaveStructure(ctx, id, s, version, rec)
		if errors.Is(err, database.ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		return s, newVersion, nil
	}
	return nil, 0, lastErr
}

func (h *StructuresHandler) publish(eventType string, id int64, payload any) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(eventType, id, payload)
	metrics.EventsPublished.WithLabelValues(eventType).Inc()
}

// EditSegment replaces the fields of one segment.
func (h *StructuresHandler) EditSegment(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "ID de transcripción inválido")
		return
	}
	index, err := PathInt(r, "index")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "índice de segmento inválido")
		return
	}

	var d structure.Draft
	if err := DecodeJSON(r, &d); err != nil {
		WriteError(w, http.StatusBadRequest, "cuerpo de solicitud inválido")
		return
	}

	var updated structure.Segment
	s, version, err := h.mutate(r.Context(), id, func(s *structure.Structure) (database.EditRecord, error) {
		before := structure.Segment{}
		if index >= 0 && index < len(s.Segments) {
			before = s.Segments[index]
		}
		seg, err := s.ApplyEdit(index, d, UserFromContext(r.Context()), h.now())
		if err != nil {
			return database.EditRecord{}, err
		}
		updated = *seg
		return database.EditRecord{
			Type:        "editar_segmento",
			Description: fmt.Sprintf("Segmento %d editado", index),
			Before:      before,
			After:       updated,
		}, nil
	})
	if err != nil {
		writeStructureError(w, err)
		return
	}

	metrics.SegmentMutations.WithLabelValues("editar").Inc()
	h.publish(events.TypeSegmentEdited, id, map[string]any{
		"indice":   index,
		"segmento": updated,
	})
	WriteJSON(w, http.StatusOK, map[string]any{
		"exito":                true,
		"mensaje":              "Segmento actualizado correctamente",
		"segmento_actualizado": updated,
		"texto_estructurado":   s.RenderedText,
		"metadata":             s.Metadata,
		"version":              version,
	})
}

// AddSegment inserts a new segment, appending unless posicion says otherwise.
func (h *StructuresHandler) AddSegment(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "ID de transcripción inválido")
		return
	}

	var body struct {
		structure.Draft
		Position *int `json:"posicion"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, "cuerpo de solicitud inválido")
		return
	}

	var created structure.Segment
	var position int
	s, version, err := h.mutate(r.Context(), id, func(s *structure.Structure) (database.EditRecord, error) {
		seg, pos, err := s.Insert(body.Draft, body.Position, UserFromContext(r.Context()), h.now())
		if err != nil {
			return database.EditRecord{}, err
		}
		created = *seg
		position = pos
		return database.EditRecord{
			Type:        "agregar_segmento",
			Description: fmt.Sprintf("Segmento agregado en posición %d", pos),
			After:       created,
		}, nil
	})
	if err != nil {
		writeStructureError(w, err)
		return
	}

	metrics.SegmentMutations.WithLabelValues("agregar").Inc()
	h.publish(events.TypeSegmentAdded, id, map[string]any{
		"posicion": position,
		"segmento": created,
	})
	WriteJSON(w, http.StatusCreated, map[string]any{
		"exito":              true,
		"mensaje":            "Segmento agregado correctamente",
		"segmento_creado":    created,
		"posicion":           position,
		"total_segmentos":    len(s.Segments),
		"texto_estructurado": s.RenderedText,
		"metadata":           s.Metadata,
		"version":            version,
	})
}

// DeleteSegment removes one segment. Following indices shift down.
func (h *StructuresHandler) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "ID de transcripción inválido")
		return
	}
	index, err := PathInt(r, "index")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "índice de segmento inválido")
		return
	}

	s, version, err := h.mutate(r.Context(), id, func(s *structure.Structure) (database.EditRecord, error) {
		removed, err := s.Delete(index, UserFromContext(r.Context()), h.now())
		if err != nil {
			return database.EditRecord{}, err
		}
		return database.EditRecord{
			Type:        "eliminar_segmento",
			Description: fmt.Sprintf("Segmento %d eliminado", index),
			Before:      removed,
		}, nil
	})
	if err != nil {
		writeStructureError(w, err)
		return
	}

	metrics.SegmentMutations.WithLabelValues("eliminar").Inc()
	h.publish(events.TypeSegmentDeleted, id, map[string]any{
		"indice": index,
	})
	WriteJSON(w, http.StatusOK, map[string]any{
		"exito":              true,
		"mensaje":            "Segmento eliminado correctamente",
		"total_segmentos":    len(s.Segments),
		"texto_estructurado": s.RenderedText,
		"metadata":           s.Metadata,
		"version":            version,
	})
}

// UpdateSpeakers adds, renames, or removes a speaker in the map.
func (h *StructuresHandler) UpdateSpeakers(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "ID de transcripción inválido")
		return
	}

	var body struct {
		Action string `json:"accion"`
		Key    string `json:"clave"`
		Name   string `json:"nombre"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, "cuerpo de solicitud inválido")
		return
	}

	s, version, err := h.mutate(r.Context(), id, func(s *structure.Structure) (database.EditRecord, error) {
		user := UserFromContext(r.Context())
		var err error
		switch body.Action {
		case "agregar":
			err = s.AddSpeaker(body.Key, body.Name, user, h.now())
		case "renombrar":
			err = s.RenameSpeaker(body.Key, body.Name, user, h.now())
		case "eliminar":
			err = s.RemoveSpeaker(body.Key, user, h.now())
		default:
			err = &structure.ValidationError{Msg: "acción de hablante desconocida: " + body.Action}
		}
		if err != nil {
			return database.EditRecord{}, err
		}
		return database.EditRecord{
			Type:        "hablantes",
			Description: fmt.Sprintf("Hablante %s: %s", body.Action, body.Key),
			After:       s.Header.SpeakerMap,
		}, nil
	})
	if err != nil {
		writeStructureError(w, err)
		return
	}

	metrics.SegmentMutations.WithLabelValues("hablantes").Inc()
	h.publish(events.TypeSpeakersChanged, id, map[string]any{
		"mapeo_hablantes": s.Header.SpeakerMap,
	})
	WriteJSON(w, http.StatusOK, map[string]any{
		"exito":              true,
		"mapeo_hablantes":    s.Header.SpeakerMap,
		"texto_estructurado": s.RenderedText,
		"metadata":           s.Metadata,
		"version":            version,
	})
}

// Reorder persists a drag-and-drop rearrangement of segments.
func (h *StructuresHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "ID de transcripción inválido")
		return
	}

	var body struct {
		Order []int `json:"orden"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, "cuerpo de solicitud inválido")
		return
	}

	s, version, err := h.mutate(r.Context(), id, func(s *structure.Structure) (database.EditRecord, error) {
		if err := s.Reorder(body.Order, UserFromContext(r.Context()), h.now()); err != nil {
			return database.EditRecord{}, err
		}
		return database.EditRecord{
			Type:        "reordenar",
			Description: "Segmentos reordenados",
			After:       body.Order,
		}, nil
	})
	if err != nil {
		writeStructureError(w, err)
		return
	}

	metrics.SegmentMutations.WithLabelValues("reordenar").Inc()
	h.publish(events.TypeStructureSaved, id, map[string]any{
		"total_segmentos": len(s.Segments),
	})
	WriteJSON(w, http.StatusOK, map[string]any{
		"exito":              true,
		"total_segmentos":    len(s.Segments),
		"texto_estructurado": s.RenderedText,
		"metadata":           s.Metadata,
		"version":            version,
	})
}

// SaveStructure replaces the whole structure (bulk save). A version in
// the body makes the save conditional on it; without one the current
// version is used.
func (h *StructuresHandler) SaveStructure(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "ID de transcripción inválido")
		return
	}

	var body struct {
		Structure *structure.Structure `json:"estructura"`
		Version   int64                `json:"version"`
	}
	if err := DecodeJSON(r, &body); err != nil || body.Structure == nil {
		WriteError(w, http.StatusBadRequest, "cuerpo de solicitud inválido")
		return
	}

	user := UserFromContext(r.Context())
	now := h.now()

	apply := func(s *structure.Structure) (database.EditRecord, error) {
		if err := s.Replace(body.Structure, user, now); err != nil {
			return database.EditRecord{}, err
		}
		return database.EditRecord{
			Type:        "guardar_estructura",
			Description: fmt.Sprintf("Estructura guardada (%d segmentos)", len(s.Segments)),
		}, nil
	}

	var s *structure.Structure
	var version int64
	if body.Version > 0 {
		// Client-supplied version: a stale one is a hard conflict,
		// not something to retry past.
		current, currentVersion, err := h.repo.GetStructure(r.Context(), id)
		if err != nil {
			writeStructureError(w, err)
			return
		}
		if currentVersion != body.Version {
			writeStructureError(w, database.ErrVersionConflict)
			return
		}
		rec, err := apply(current)
		if err != nil {
			writeStructureError(w, err)
			return
		}
		rec.User = user
		version, err = h.repo.SaveStructure(r.Context(), id, current, body.Version, rec)
		if err != nil {
			writeStructureError(w, err)
			return
		}
		s = current
	} else {
		s, version, err = h.mutate(r.Context(), id, apply)
		if err != nil {
			writeStructureError(w, err)
			return
		}
	}

	metrics.SegmentMutations.WithLabelValues("guardar").Inc()
	h.publish(events.TypeStructureSaved, id, map[string]any{
		"total_segmentos": len(s.Segments),
	})
	WriteJSON(w, http.StatusOK, map[string]any{
		"exito":              true,
		"mensaje":            "Estructura guardada correctamente",
		"total_segmentos":    len(s.Segments),
		"texto_estructurado": s.RenderedText,
		"metadata":           s.Metadata,
		"version":            version,
	})
}

// GetHistory lists the edit history, newest first.
func (h *StructuresHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "ID de transcripción inválido")
		return
	}

	limit, _ := QueryInt(r, "limit")
	entries, err := h.repo.ListEditHistory(r.Context(), id, limit)
	if err != nil {
		writeStructureError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"exito":     true,
		"historial": entries,
		"total":     len(entries),
	})
}

func writeStructureError(w http.ResponseWriter, err error) {
	var verr *structure.ValidationError
	switch {
	case errors.As(err, &verr):
		metrics.ValidationFailures.Inc()
		WriteError(w, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, database.ErrNotFound):
		WriteError(w, http.StatusNotFound, "transcripción no encontrada")
	case errors.Is(err, database.ErrVersionConflict):
		metrics.VersionConflicts.Inc()
		WriteError(w, http.StatusConflict, "la estructura fue modificada por otro usuario")
	default:
		WriteError(w, http.StatusInternalServerError, "error interno del servidor")
	}
}
