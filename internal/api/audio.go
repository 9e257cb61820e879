package api

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/btoaldas/actas-ia/internal/audio"
	"github.com/btoaldas/actas-ia/internal/database"
)

// AudioPathSource looks up where a transcription's recordings live.
// *database.DB satisfies it.
type AudioPathSource interface {
	GetAudioPaths(ctx context.Context, id int64) (database.AudioPaths, error)
}

type AudioHandler struct {
	src      AudioPathSource
	store    audio.Store
	audioDir string
}

func NewAudioHandler(src AudioPathSource, store audio.Store, audioDir string) *AudioHandler {
	return &AudioHandler{src: src, store: store, audioDir: audioDir}
}

func (h *AudioHandler) Routes(r chi.Router) {
	r.Get("/transcriptions/{id}/audio", h.ServeAudio)
}

// ServeAudio streams the recording behind a transcription. The
// variante query selects original (default) or procesado. Local files
// are served directly so range requests work for player seeking;
// S3-backed files redirect to a presigned URL.
func (h *AudioHandler) ServeAudio(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "ID de transcripción inválido")
		return
	}

	variant := r.URL.Query().Get("variante")
	if variant == "" {
		variant = "original"
	}
	if variant != "original" && variant != "procesado" {
		WriteError(w, http.StatusBadRequest, "variante desconocida: "+variant)
		return
	}

	paths, err := h.src.GetAudioPaths(r.Context(), id)
	if err != nil {
		writeStructureError(w, err)
		return
	}

	stored := paths.Original
	if variant == "procesado" {
		stored = paths.Processed
	}
	if stored == "" {
		WriteError(w, http.StatusNotFound, "audio no disponible")
		return
	}

	// Local file wins: ServeFile handles range requests.
	if local := audio.ResolveFile(h.audioDir, stored); local != "" {
		w.Header().Set("Content-Type", audio.ContentType(local))
		http.ServeFile(w, r, local)
		return
	}

	if h.store != nil {
		if url, err := h.store.URL(r.Context(), stored); err == nil && url != "" {
			http.Redirect(w, r, url, http.StatusFound)
			return
		}
		rc, err := h.store.Open(r.Context(), stored)
		if err == nil {
			defer rc.Close()
			w.Header().Set("Content-Type", audio.ContentType(stored))
			io.Copy(w, rc)
			return
		}
		hlog.FromRequest(r).Warn().Err(err).Int64("id", id).Str("variant", variant).Msg("audio open failed")
	}

	WriteError(w, http.StatusNotFound, "audio no disponible")
}
