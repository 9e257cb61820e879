package api

import (
	"net/http/httptest"
	"testing"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", "/x", 50, 0, false},
		{"explicit", "/x?limit=10&offset=20", 10, 20, false},
		{"limit_not_a_number", "/x?limit=abc", 0, 0, true},
		{"limit_zero", "/x?limit=0", 0, 0, true},
		{"negative_offset", "/x?offset=-1", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.url, nil)
			p, err := ParsePagination(req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want %d/%d", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, 400, "algo salió mal")
	if rec.Code != 400 {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	want := "{\"exito\":false,\"error\":\"algo salió mal\"}\n"
	if rec.Body.String() != want {
		t.Errorf("got body %q, want %q", rec.Body.String(), want)
	}
}
