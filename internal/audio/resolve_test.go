package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "2026", "sesiones")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(nested, "sesion_12.mp3")
	if err := os.WriteFile(file, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		audioDir   string
		storedPath string
		want       string
	}{
		{
			name:       "relative path under audio dir",
			audioDir:   dir,
			storedPath: filepath.Join("2026", "sesiones", "sesion_12.mp3"),
			want:       file,
		},
		{
			name:       "absolute path from another deployment",
			audioDir:   dir,
			storedPath: "/app/media/2026/sesiones/sesion_12.mp3",
			want:       file,
		},
		{
			name:       "absolute path on this machine",
			audioDir:   "",
			storedPath: file,
			want:       file,
		},
		{
			name:       "missing file",
			audioDir:   dir,
			storedPath: "2026/sesiones/nope.mp3",
			want:       "",
		},
		{
			name:       "empty stored path",
			audioDir:   dir,
			storedPath: "",
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveFile(tt.audioDir, tt.storedPath)
			if got != tt.want {
				t.Errorf("ResolveFile() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDropFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantID      int64
		wantVariant string
		wantOK      bool
	}{
		{"12_original.mp3", 12, "original", true},
		{"99_procesado.wav", 99, "procesado", true},
		{"12_final.mp3", 0, "", false},
		{"original.mp3", 0, "", false},
		{"abc_original.mp3", 0, "", false},
		{"0_original.mp3", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, variant, ok := ParseDropFilename(tt.name)
			if id != tt.wantID || variant != tt.wantVariant || ok != tt.wantOK {
				t.Errorf("ParseDropFilename(%q) = (%d, %q, %v), want (%d, %q, %v)",
					tt.name, id, variant, ok, tt.wantID, tt.wantVariant, tt.wantOK)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.mp3", "audio/mpeg"},
		{"a.WAV", "audio/wav"},
		{"a.m4a", "audio/mp4"},
		{"a.ogg", "audio/ogg"},
		{"a.flac", "audio/flac"},
		{"a.bin", "audio/mpeg"},
	}
	for _, tt := range tests {
		if got := ContentType(tt.path); got != tt.want {
			t.Errorf("ContentType(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
