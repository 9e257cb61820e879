package structure

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 8, 14, 10, 30, 0, 0, time.UTC)

func sampleStructure() *Structure {
	s := &Structure{
		Header: Header{SpeakerMap: map[string]string{
			"SPEAKER_00": "Alcalde",
			"SPEAKER_01": "Secretario",
		}},
		Segments: []Segment{
			{Speaker: "Alcalde", Text: "Buenos días, damos inicio a la sesión.", StartTime: 0, EndTime: 15.5, Duration: 15.5},
			{Speaker: "Secretario", Text: "Se verificará el quórum reglamentario.", StartTime: 16, EndTime: 28.3, Duration: 12.3},
			{Speaker: "Alcalde", Text: "Se aprueba el orden del día.", StartTime: 29, EndTime: 45.2, Duration: 16.2},
		},
		Metadata: map[string]any{},
	}
	s.RenderedText = s.RenderText()
	return s
}

// ── ValidateDraft ────────────────────────────────────────────────────

func TestValidateDraft(t *testing.T) {
	tests := []struct {
		name    string
		draft   Draft
		wantErr bool
	}{
		{"valid", Draft{Speaker: "Alcalde", Text: "hola", StartTime: 1, EndTime: 2}, false},
		{"empty_speaker", Draft{Speaker: "  ", Text: "hola", StartTime: 1, EndTime: 2}, true},
		{"empty_text", Draft{Speaker: "Alcalde", Text: "\t\n", StartTime: 1, EndTime: 2}, true},
		{"start_equals_end", Draft{Speaker: "A", Text: "x", StartTime: 5, EndTime: 5}, true},
		{"start_after_end", Draft{Speaker: "A", Text: "x", StartTime: 10, EndTime: 5}, true},
		{"negative_start", Draft{Speaker: "A", Text: "x", StartTime: -1, EndTime: 5}, true},
		{"zero_start_ok", Draft{Speaker: "A", Text: "x", StartTime: 0, EndTime: 0.1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDraft(tt.draft)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDraft(%+v) error = %v, wantErr %v", tt.draft, err, tt.wantErr)
			}
			if err != nil {
				if _, ok := err.(*ValidationError); !ok {
					t.Errorf("error type = %T, want *ValidationError", err)
				}
			}
		})
	}
}

// ── FormatTime / RenderText ──────────────────────────────────────────

func TestFormatTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00"},
		{5.9, "00:05"},
		{65, "01:05"},
		{600, "10:00"},
		{3599, "59:59"},
		{-3, "00:00"},
	}
	for _, tt := range tests {
		if got := FormatTime(tt.seconds); got != tt.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestRenderText(t *testing.T) {
	s := sampleStructure()
	want := "00:00,Alcalde,Buenos días, damos inicio a la sesión.\n" +
		"00:16,Secretario,Se verificará el quórum reglamentario.\n" +
		"00:29,Alcalde,Se aprueba el orden del día."
	if got := s.RenderText(); got != want {
		t.Errorf("RenderText =\n%q\nwant\n%q", got, want)
	}

	t.Run("newlines_flattened", func(t *testing.T) {
		s := &Structure{Segments: []Segment{{Speaker: "A", Text: "línea\nuno\r\ndos", StartTime: 0, EndTime: 1}}}
		if got := s.RenderText(); got != "00:00,A,línea uno  dos" {
			t.Errorf("RenderText = %q", got)
		}
	})

	t.Run("empty_structure", func(t *testing.T) {
		if got := Empty().RenderText(); got != "" {
			t.Errorf("RenderText = %q, want empty", got)
		}
	})
}

// ── Clone / Normalize ────────────────────────────────────────────────

func TestClone(t *testing.T) {
	s := sampleStructure()
	c := s.Clone()

	c.Segments[0].Text = "modificado"
	c.Header.SpeakerMap["SPEAKER_00"] = "Otro"
	c.Metadata["x"] = 1

	if s.Segments[0].Text == "modificado" {
		t.Error("Clone shares segment backing array")
	}
	if s.Header.SpeakerMap["SPEAKER_00"] != "Alcalde" {
		t.Error("Clone shares speaker map")
	}
	if _, ok := s.Metadata["x"]; ok {
		t.Error("Clone shares metadata map")
	}
}

func TestNormalize(t *testing.T) {
	s := &Structure{}
	s.Normalize()
	if s.Header.SpeakerMap == nil || s.Segments == nil || s.Metadata == nil {
		t.Errorf("Normalize left nil fields: %+v", s)
	}
}

// ── Stats ────────────────────────────────────────────────────────────

func TestComputeStats(t *testing.T) {
	s := sampleStructure()
	s.Metadata[MetaLastEdited] = "2025-08-14T10:30:00Z"
	st := s.ComputeStats()
	if st.SegmentCount != 3 {
		t.Errorf("SegmentCount = %d, want 3", st.SegmentCount)
	}
	if st.SpeakerCount != 2 {
		t.Errorf("SpeakerCount = %d, want 2", st.SpeakerCount)
	}
	// Durations sum to 44; the silence gaps between segments do not count.
	if st.TotalDuration != 44 {
		t.Errorf("TotalDuration = %v, want 44", st.TotalDuration)
	}
	if st.LastEdited != "2025-08-14T10:30:00Z" {
		t.Errorf("LastEdited = %q", st.LastEdited)
	}
}
