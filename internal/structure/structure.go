// Package structure holds the editable conversation document of a
// transcription: speaker map, ordered segments, the derived structured
// text, and free-form metadata. All operations are pure in-memory
// mutations; persistence and transport live elsewhere.
package structure

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Metadata keys maintained by mutation operations.
const (
	MetaLastEdited     = "fecha_ultima_edicion"
	MetaLastEditedBy   = "usuario_ultima_edicion"
	MetaTotalSegments  = "total_segmentos"
	MetaEditedSegments = "segmentos_editados"
)

// Segment is one attributed utterance with a time interval.
// JSON field names match the stored document format.
type Segment struct {
	Speaker    string  `json:"hablante"`
	SpeakerKey string  `json:"hablante_id,omitempty"`
	Text       string  `json:"texto"`
	StartTime  float64 `json:"inicio"`
	EndTime    float64 `json:"fin"`
	Duration   float64 `json:"duracion"`
	Edited     bool    `json:"editado,omitempty"`
	EditedAt   string  `json:"fecha_edicion,omitempty"`
	CreatedAt  string  `json:"fecha_creacion,omitempty"`
}

// Header carries the speaker key to display name mapping.
type Header struct {
	SpeakerMap map[string]string `json:"mapeo_hablantes"`
}

// Structure is the full editable conversation document for one transcription.
type Structure struct {
	Header       Header         `json:"cabecera"`
	Segments     []Segment      `json:"conversacion"`
	RenderedText string         `json:"texto_estructurado"`
	Metadata     map[string]any `json:"metadata"`
}

// Draft is user input for an edit or add operation, before validation.
type Draft struct {
	Speaker   string  `json:"hablante"`
	Text      string  `json:"texto"`
	StartTime float64 `json:"inicio"`
	EndTime   float64 `json:"fin"`
}

// ValidationError reports invalid user input, detected before any
// state change or network call.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Empty returns a safe fallback structure so a view can stay
// interactive when loading fails.
func Empty() *Structure {
	return &Structure{
		Header:   Header{SpeakerMap: map[string]string{}},
		Segments: []Segment{},
		Metadata: map[string]any{},
	}
}

// Normalize fills in missing aggregate fields. Stored documents can
// predate fields added later, so every load passes through here.
func (s *Structure) Normalize() {
	if s.Header.SpeakerMap == nil {
		s.Header.SpeakerMap = map[string]string{}
	}
	if s.Segments == nil {
		s.Segments = []Segment{}
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
}

// Clone returns a deep copy, used for the editor's load snapshot.
func (s *Structure) Clone() *Structure {
	c := &Structure{
		Header:       Header{SpeakerMap: make(map[string]string, len(s.Header.SpeakerMap))},
		Segments:     make([]Segment, len(s.Segments)),
		RenderedText: s.RenderedText,
		Metadata:     make(map[string]any, len(s.Metadata)),
	}
	for k, v := range s.Header.SpeakerMap {
		c.Header.SpeakerMap[k] = v
	}
	copy(c.Segments, s.Segments)
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	return c
}

// ValidateDraft checks the field constraints shared by edit and add:
// non-empty trimmed speaker and text, finite non-negative times, and
// a strictly positive interval.
func ValidateDraft(d Draft) error {
	if strings.TrimSpace(d.Speaker) == "" {
		return validationf("el hablante no puede estar vacío")
	}
	if strings.TrimSpace(d.Text) == "" {
		return validationf("el texto no puede estar vacío")
	}
	if math.IsNaN(d.StartTime) || math.IsInf(d.StartTime, 0) ||
		math.IsNaN(d.EndTime) || math.IsInf(d.EndTime, 0) {
		return validationf("los tiempos deben ser numéricos")
	}
	if d.StartTime < 0 || d.EndTime < 0 {
		return validationf("los tiempos no pueden ser negativos")
	}
	if d.StartTime >= d.EndTime {
		return validationf("el tiempo de inicio debe ser menor al tiempo de fin")
	}
	return nil
}

// FormatTime renders seconds as MM:SS.
func FormatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	m := int(seconds) / 60
	s := int(seconds) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

// RenderText produces the canonical structured text: one line per
// segment, "MM:SS,Speaker,Text", with newlines flattened to spaces.
func (s *Structure) RenderText() string {
	lines := make([]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "Desconocido"
		}
		text := strings.NewReplacer("\n", " ", "\r", " ").Replace(seg.Text)
		lines = append(lines, FormatTime(seg.StartTime)+","+speaker+","+text)
	}
	return strings.Join(lines, "\n")
}

// Stats are the display statistics derived from the current structure.
type Stats struct {
	SegmentCount  int
	SpeakerCount  int
	TotalDuration float64 // sum of segment durations, seconds
	LastEdited    string
}

// ComputeStats derives counts and totals for the statistics panel.
func (s *Structure) ComputeStats() Stats {
	st := Stats{
		SegmentCount: len(s.Segments),
		SpeakerCount: len(s.Header.SpeakerMap),
	}
	var total float64
	for _, seg := range s.Segments {
		total += seg.Duration
	}
	st.TotalDuration = round2(total)
	if v, ok := s.Metadata[MetaLastEdited].(string); ok {
		st.LastEdited = v
	}
	return st
}

// touch refreshes derived text and metadata after a mutation.
func (s *Structure) touch(user string, now time.Time) {
	s.RenderedText = s.RenderText()
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	edited := 0
	for _, seg := range s.Segments {
		if seg.Edited {
			edited++
		}
	}
	s.Metadata[MetaLastEdited] = now.UTC().Format(time.RFC3339)
	if user != "" {
		s.Metadata[MetaLastEditedBy] = user
	}
	s.Metadata[MetaTotalSegments] = len(s.Segments)
	s.Metadata[MetaEditedSegments] = edited
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
