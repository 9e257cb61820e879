package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/btoaldas/actas-ia/internal/structure"
)

// HTTPStore is the StructureStore over the structure HTTP API.
type HTTPStore struct {
	baseURL string
	token   string
	user    string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPStore builds a store for the API at baseURL (no trailing
// slash). token and user may be empty.
func NewHTTPStore(baseURL, token, user string, log zerolog.Logger) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		user:    user,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("component", "structure-store").Logger(),
	}
}

// wireResponse is the superset of fields the structure endpoints return.
type wireResponse struct {
	Exito        bool                 `json:"exito"`
	Error        string               `json:"error"`
	Mensaje      string               `json:"mensaje"`
	Estructura   *structure.Structure `json:"estructura"`
	Updated      *structure.Segment   `json:"segmento_actualizado"`
	Created      *structure.Segment   `json:"segmento_creado"`
	Position     int                  `json:"posicion"`
	Total        int                  `json:"total_segmentos"`
	RenderedText string               `json:"texto_estructurado"`
	Metadata     map[string]any       `json:"metadata"`
	Version      int64                `json:"version"`
}

func (s *HTTPStore) do(ctx context.Context, op, method, path string, body any) (*wireResponse, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, &NetworkError{Op: op, Err: err}
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if s.user != "" {
		req.Header.Set("X-Usuario", s.user)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("op", op).Msg("request failed")
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		// Off-contract body, whatever the status code was.
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("respuesta malformada (HTTP %d): %w", resp.StatusCode, err)}
	}
	if !wr.Exito {
		msg := wr.Error
		if msg == "" {
			msg = fmt.Sprintf("el servidor rechazó la operación (HTTP %d)", resp.StatusCode)
		}
		return nil, &ServerError{Msg: msg}
	}
	return &wr, nil
}

func (s *HTTPStore) Fetch(ctx context.Context, id int64) (*FetchResult, error) {
	wr, err := s.do(ctx, "cargar estructura", http.MethodGet,
		fmt.Sprintf("/api/v2/transcriptions/%d/structure", id), nil)
	if err != nil {
		return nil, err
	}
	if wr.Estructura == nil {
		return nil, &NetworkError{Op: "cargar estructura", Err: fmt.Errorf("respuesta sin estructura")}
	}
	wr.Estructura.Normalize()
	return &FetchResult{Structure: wr.Estructura, Version: wr.Version}, nil
}

func (s *HTTPStore) EditSegment(ctx context.Context, id int64, index int, d structure.Draft) (*MutationResult, error) {
	wr, err := s.do(ctx, "editar segmento", http.MethodPut,
		fmt.Sprintf("/api/v2/transcriptions/%d/segments/%d", id, index), d)
	if err != nil {
		return nil, err
	}
	if wr.Updated == nil {
		return nil, &NetworkError{Op: "editar segmento", Err: fmt.Errorf("respuesta sin segmento")}
	}
	return &MutationResult{
		Segment:      wr.Updated,
		RenderedText: wr.RenderedText,
		Metadata:     wr.Metadata,
		Version:      wr.Version,
	}, nil
}

func (s *HTTPStore) AddSegment(ctx context.Context, id int64, d structure.Draft, position *int) (*MutationResult, error) {
	body := struct {
		structure.Draft
		Position *int `json:"posicion,omitempty"`
	}{Draft: d, Position: position}

	wr, err := s.do(ctx, "agregar segmento", http.MethodPost,
		fmt.Sprintf("/api/v2/transcriptions/%d/segments", id), body)
	if err != nil {
		return nil, err
	}
	if wr.Created == nil {
		return nil, &NetworkError{Op: "agregar segmento", Err: fmt.Errorf("respuesta sin segmento")}
	}
	return &MutationResult{
		Segment:       wr.Created,
		Position:      wr.Position,
		TotalSegments: wr.Total,
		RenderedText:  wr.RenderedText,
		Metadata:      wr.Metadata,
		Version:       wr.Version,
	}, nil
}

func (s *HTTPStore) DeleteSegment(ctx context.Context, id int64, index int) (*MutationResult, error) {
	wr, err := s.do(ctx, "eliminar segmento", http.MethodDelete,
		fmt.Sprintf("/api/v2/transcriptions/%d/segments/%d", id, index), nil)
	if err != nil {
		return nil, err
	}
	return &MutationResult{
		TotalSegments: wr.Total,
		RenderedText:  wr.RenderedText,
		Metadata:      wr.Metadata,
		Version:       wr.Version,
	}, nil
}

func (s *HTTPStore) SaveStructure(ctx context.Context, id int64, st *structure.Structure, version int64) (*MutationResult, error) {
	body := struct {
		Structure *structure.Structure `json:"estructura"`
		Version   int64                `json:"version,omitempty"`
	}{Structure: st, Version: version}

	wr, err := s.do(ctx, "guardar estructura", http.MethodPut,
		fmt.Sprintf("/api/v2/transcriptions/%d/structure", id), body)
	if err != nil {
		return nil, err
	}
	return &MutationResult{
		TotalSegments: wr.Total,
		RenderedText:  wr.RenderedText,
		Metadata:      wr.Metadata,
		Version:       wr.Version,
	}, nil
}
