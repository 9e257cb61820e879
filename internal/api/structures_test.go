package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/btoaldas/actas-ia/internal/database"
	"github.com/btoaldas/actas-ia/internal/structure"
)

// fakeRepo is an in-memory StructureRepo for handler tests.
type fakeRepo struct {
	s       *structure.Structure
	version int64

	// conflictsLeft makes the next N saves fail with a version
	// conflict regardless of the expected version.
	conflictsLeft int

	saveCalls int
	history   []database.EditRecord
}

func (f *fakeRepo) GetStructure(ctx context.Context, id int64) (*structure.Structure, int64, error) {
	if f.s == nil {
		return nil, 0, database.ErrNotFound
	}
	return f.s.Clone(), f.version, nil
}

func (f *fakeRepo) SaveStructure(ctx context.Context, id int64, s *structure.Structure, expectedVersion int64, rec database.EditRecord) (int64, error) {
	f.saveCalls++
	if f.s == nil {
		return 0, database.ErrNotFound
	}
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return 0, database.ErrVersionConflict
	}
	if expectedVersion != f.version {
		return 0, database.ErrVersionConflict
	}
	f.s = s.Clone()
	f.version++
	f.history = append(f.history, rec)
	return f.version, nil
}

func (f *fakeRepo) ListEditHistory(ctx context.Context, id int64, limit int) ([]database.EditHistoryEntry, error) {
	return []database.EditHistoryEntry{}, nil
}

func testStructure() *structure.Structure {
	return &structure.Structure{
		Header: structure.Header{SpeakerMap: map[string]string{
			"SPEAKER_00": "Alcalde",
			"SPEAKER_01": "Secretario",
		}},
		Segments: []structure.Segment{
			{Speaker: "Alcalde", SpeakerKey: "SPEAKER_00", Text: "Buenos días", StartTime: 0, EndTime: 4.5, Duration: 4.5},
			{Speaker: "Secretario", SpeakerKey: "SPEAKER_01", Text: "Se constata el quórum", StartTime: 4.5, EndTime: 9, Duration: 4.5},
			{Speaker: "Alcalde", SpeakerKey: "SPEAKER_00", Text: "Se abre la sesión", StartTime: 9, EndTime: 12, Duration: 3},
		},
		Metadata: map[string]any{},
	}
}

func newTestRouter(repo *fakeRepo) *chi.Mux {
	h := NewStructuresHandler(repo, nil)
	h.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(WithUser)
	h.Routes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reqBody *strings.Reader
	if body == "" {
		reqBody = strings.NewReader("")
	} else {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("X-Usuario", "secretaria")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var parsed map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, parsed
}

// ── GET structure ──

func TestGetStructure(t *testing.T) {
	t.Run("returns_structure_and_version", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 3}
		rec, body := doJSON(t, newTestRouter(repo), "GET", "/transcriptions/7/structure", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if body["exito"] != true {
			t.Error("expected exito:true")
		}
		if body["version"] != float64(3) {
			t.Errorf("expected version 3, got %v", body["version"])
		}
		est, ok := body["estructura"].(map[string]any)
		if !ok {
			t.Fatal("missing estructura")
		}
		if conv, ok := est["conversacion"].([]any); !ok || len(conv) != 3 {
			t.Errorf("expected 3 segments, got %v", est["conversacion"])
		}
	})

	t.Run("unknown_transcription_404", func(t *testing.T) {
		repo := &fakeRepo{}
		rec, body := doJSON(t, newTestRouter(repo), "GET", "/transcriptions/7/structure", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		if body["exito"] != false {
			t.Error("expected exito:false")
		}
	})
}

// ── Edit segment ──

func TestEditSegment(t *testing.T) {
	t.Run("replaces_fields_and_returns_canonical_state", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, body := doJSON(t, newTestRouter(repo), "PUT", "/transcriptions/7/segments/1",
			`{"hablante":"Secretario","texto":"Texto corregido","inicio":4.5,"fin":10}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		seg, ok := body["segmento_actualizado"].(map[string]any)
		if !ok {
			t.Fatal("missing segmento_actualizado")
		}
		if seg["texto"] != "Texto corregido" {
			t.Errorf("expected updated text, got %v", seg["texto"])
		}
		if seg["editado"] != true {
			t.Error("expected editado:true")
		}
		if seg["duracion"] != 5.5 {
			t.Errorf("expected duracion 5.5, got %v", seg["duracion"])
		}
		if _, ok := body["texto_estructurado"].(string); !ok {
			t.Error("missing texto_estructurado")
		}
		if _, ok := body["metadata"].(map[string]any); !ok {
			t.Error("missing metadata")
		}

		// persisted, other segments untouched
		if repo.s.Segments[0].Text != "Buenos días" || repo.s.Segments[2].Text != "Se abre la sesión" {
			t.Error("neighbouring segments changed")
		}
		if repo.history[0].Type != "editar_segmento" {
			t.Errorf("expected editar_segmento history, got %q", repo.history[0].Type)
		}
		if repo.history[0].User != "secretaria" {
			t.Errorf("expected user secretaria, got %q", repo.history[0].User)
		}
	})

	t.Run("validation_failure_400_without_save", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, body := doJSON(t, newTestRouter(repo), "PUT", "/transcriptions/7/segments/1",
			`{"hablante":"Secretario","texto":"   ","inicio":4.5,"fin":10}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if body["exito"] != false {
			t.Error("expected exito:false")
		}
		if repo.saveCalls != 0 {
			t.Errorf("expected no save on validation failure, got %d", repo.saveCalls)
		}
	})

	t.Run("bad_index_400", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, _ := doJSON(t, newTestRouter(repo), "PUT", "/transcriptions/7/segments/99",
			`{"hablante":"Secretario","texto":"x","inicio":0,"fin":1}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("retries_past_transient_conflict", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1, conflictsLeft: 1}
		rec, _ := doJSON(t, newTestRouter(repo), "PUT", "/transcriptions/7/segments/0",
			`{"hablante":"Alcalde","texto":"Buenas tardes","inicio":0,"fin":4.5}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 after retry, got %d", rec.Code)
		}
		if repo.saveCalls != 2 {
			t.Errorf("expected 2 save attempts, got %d", repo.saveCalls)
		}
	})

	t.Run("persistent_conflict_409", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1, conflictsLeft: 10}
		rec, _ := doJSON(t, newTestRouter(repo), "PUT", "/transcriptions/7/segments/0",
			`{"hablante":"Alcalde","texto":"Buenas tardes","inicio":0,"fin":4.5}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

// ── Add segment ──

func TestAddSegment(t *testing.T) {
	t.Run("appends_by_default", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, body := doJSON(t, newTestRouter(repo), "POST", "/transcriptions/7/segments",
			`{"hablante":"Concejal","texto":"Una moción","inicio":12,"fin":15}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if body["posicion"] != float64(3) {
			t.Errorf("expected posicion 3, got %v", body["posicion"])
		}
		if body["total_segmentos"] != float64(4) {
			t.Errorf("expected total_segmentos 4, got %v", body["total_segmentos"])
		}
		seg := body["segmento_creado"].(map[string]any)
		if seg["hablante_id"] != "MANUAL_CONCEJAL" {
			t.Errorf("expected manual speaker key, got %v", seg["hablante_id"])
		}
	})

	t.Run("inserts_at_position_shifting_occupant", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, body := doJSON(t, newTestRouter(repo), "POST", "/transcriptions/7/segments",
			`{"hablante":"Concejal","texto":"Una moción","inicio":4,"fin":5,"posicion":1}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		if body["posicion"] != float64(1) {
			t.Errorf("expected posicion 1, got %v", body["posicion"])
		}
		if repo.s.Segments[1].Speaker != "Concejal" {
			t.Errorf("expected new segment at 1, got %q", repo.s.Segments[1].Speaker)
		}
		if repo.s.Segments[2].Text != "Se constata el quórum" {
			t.Errorf("expected occupant shifted to 2, got %q", repo.s.Segments[2].Text)
		}
	})

	t.Run("invalid_interval_400", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, _ := doJSON(t, newTestRouter(repo), "POST", "/transcriptions/7/segments",
			`{"hablante":"Concejal","texto":"x","inicio":5,"fin":5}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

// ── Delete segment ──

func TestDeleteSegment(t *testing.T) {
	t.Run("removes_and_shifts", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, body := doJSON(t, newTestRouter(repo), "DELETE", "/transcriptions/7/segments/0", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body["total_segmentos"] != float64(2) {
			t.Errorf("expected total_segmentos 2, got %v", body["total_segmentos"])
		}
		if repo.s.Segments[0].Text != "Se constata el quórum" {
			t.Errorf("expected shift, got %q", repo.s.Segments[0].Text)
		}
	})

	t.Run("bad_index_400", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, _ := doJSON(t, newTestRouter(repo), "DELETE", "/transcriptions/7/segments/9", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

// ── Speakers ──

func TestUpdateSpeakers(t *testing.T) {
	t.Run("rename_propagates_to_segments", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, body := doJSON(t, newTestRouter(repo), "POST", "/transcriptions/7/speakers",
			`{"accion":"renombrar","clave":"SPEAKER_00","nombre":"Alcaldesa"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		mapping := body["mapeo_hablantes"].(map[string]any)
		if mapping["SPEAKER_00"] != "Alcaldesa" {
			t.Errorf("expected renamed speaker, got %v", mapping["SPEAKER_00"])
		}
		if repo.s.Segments[0].Speaker != "Alcaldesa" || repo.s.Segments[2].Speaker != "Alcaldesa" {
			t.Error("rename did not propagate to segments")
		}
	})

	t.Run("remove_referenced_speaker_400", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, _ := doJSON(t, newTestRouter(repo), "POST", "/transcriptions/7/speakers",
			`{"accion":"eliminar","clave":"SPEAKER_00"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown_action_400", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, _ := doJSON(t, newTestRouter(repo), "POST", "/transcriptions/7/speakers",
			`{"accion":"mutar","clave":"SPEAKER_00"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

// ── Reorder ──

func TestReorder(t *testing.T) {
	t.Run("applies_permutation", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, _ := doJSON(t, newTestRouter(repo), "POST", "/transcriptions/7/reorder",
			`{"orden":[2,0,1]}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if repo.s.Segments[0].Text != "Se abre la sesión" {
			t.Errorf("expected reordered first segment, got %q", repo.s.Segments[0].Text)
		}
	})

	t.Run("rejects_non_permutation", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, _ := doJSON(t, newTestRouter(repo), "POST", "/transcriptions/7/reorder",
			`{"orden":[0,0,1]}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

// ── Bulk save ──

func TestSaveStructure(t *testing.T) {
	bulk := func(version int64) string {
		b, _ := json.Marshal(map[string]any{
			"version": version,
			"estructura": map[string]any{
				"cabecera":     map[string]any{"mapeo_hablantes": map[string]string{"SPEAKER_00": "Alcalde"}},
				"conversacion": []map[string]any{{"hablante": "Alcalde", "texto": "Todo", "inicio": 0, "fin": 2}},
			},
		})
		return string(b)
	}

	t.Run("replaces_whole_structure", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		rec, body := doJSON(t, newTestRouter(repo), "PUT", "/transcriptions/7/structure", bulk(1))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if body["total_segmentos"] != float64(1) {
			t.Errorf("expected total_segmentos 1, got %v", body["total_segmentos"])
		}
		if body["version"] != float64(2) {
			t.Errorf("expected version 2, got %v", body["version"])
		}
	})

	t.Run("stale_version_409", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 5}
		rec, _ := doJSON(t, newTestRouter(repo), "PUT", "/transcriptions/7/structure", bulk(1))
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		if repo.saveCalls != 0 {
			t.Errorf("expected no save attempt, got %d", repo.saveCalls)
		}
	})

	t.Run("invalid_segment_rejected_wholesale", func(t *testing.T) {
		repo := &fakeRepo{s: testStructure(), version: 1}
		b, _ := json.Marshal(map[string]any{
			"estructura": map[string]any{
				"conversacion": []map[string]any{
					{"hablante": "Alcalde", "texto": "Bien", "inicio": 0, "fin": 2},
					{"hablante": "", "texto": "Mal", "inicio": 2, "fin": 4},
				},
			},
		})
		rec, _ := doJSON(t, newTestRouter(repo), "PUT", "/transcriptions/7/structure", string(b))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if len(repo.s.Segments) != 3 {
			t.Error("structure should be untouched")
		}
	})
}
