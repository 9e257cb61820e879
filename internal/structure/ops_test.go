package structure

import (
	"testing"
)

// ── ApplyEdit ────────────────────────────────────────────────────────

func TestApplyEdit(t *testing.T) {
	t.Run("replaces_only_target_segment", func(t *testing.T) {
		s := sampleStructure()
		before0, before2 := s.Segments[0], s.Segments[2]

		seg, err := s.ApplyEdit(1, Draft{Speaker: "Secretario", Text: "Quorum confirmed", StartTime: 16, EndTime: 28.3}, "admin", testNow)
		if err != nil {
			t.Fatalf("ApplyEdit: %v", err)
		}
		if seg.Text != "Quorum confirmed" {
			t.Errorf("Text = %q", seg.Text)
		}
		if !seg.Edited || seg.EditedAt == "" {
			t.Errorf("segment not stamped edited: %+v", seg)
		}
		if s.Segments[0] != before0 || s.Segments[2] != before2 {
			t.Error("sibling segments changed")
		}
		if s.Metadata[MetaTotalSegments] != 3 {
			t.Errorf("metadata total = %v", s.Metadata[MetaTotalSegments])
		}
		if s.Metadata[MetaEditedSegments] != 1 {
			t.Errorf("metadata edited = %v", s.Metadata[MetaEditedSegments])
		}
	})

	t.Run("recomputes_rendered_text", func(t *testing.T) {
		s := sampleStructure()
		if _, err := s.ApplyEdit(0, Draft{Speaker: "Alcalde", Text: "Texto nuevo", StartTime: 0, EndTime: 10}, "", testNow); err != nil {
			t.Fatalf("ApplyEdit: %v", err)
		}
		if want := s.RenderText(); s.RenderedText != want {
			t.Errorf("RenderedText not refreshed")
		}
	})

	t.Run("out_of_range", func(t *testing.T) {
		s := sampleStructure()
		for _, idx := range []int{-1, 3, 99} {
			if _, err := s.ApplyEdit(idx, Draft{Speaker: "A", Text: "x", StartTime: 0, EndTime: 1}, "", testNow); err == nil {
				t.Errorf("index %d: expected error", idx)
			}
		}
	})

	t.Run("invalid_draft_leaves_state", func(t *testing.T) {
		s := sampleStructure()
		before := s.Segments[1]
		if _, err := s.ApplyEdit(1, Draft{Speaker: "X", Text: "y", StartTime: 10, EndTime: 5}, "", testNow); err == nil {
			t.Fatal("expected validation error")
		}
		if s.Segments[1] != before {
			t.Error("segment mutated on invalid draft")
		}
	})

	t.Run("duration_rounded", func(t *testing.T) {
		s := sampleStructure()
		seg, err := s.ApplyEdit(0, Draft{Speaker: "A", Text: "x", StartTime: 1.111, EndTime: 2.345}, "", testNow)
		if err != nil {
			t.Fatalf("ApplyEdit: %v", err)
		}
		if seg.Duration != 1.23 {
			t.Errorf("Duration = %v, want 1.23", seg.Duration)
		}
	})
}

// ── Insert ───────────────────────────────────────────────────────────

func TestInsert(t *testing.T) {
	draft := Draft{Speaker: "Concejal", Text: "Solicito la palabra.", StartTime: 46, EndTime: 51}

	t.Run("nil_position_appends", func(t *testing.T) {
		s := sampleStructure()
		seg, pos, err := s.Insert(draft, nil, "admin", testNow)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if pos != 3 || len(s.Segments) != 4 {
			t.Errorf("pos = %d, len = %d", pos, len(s.Segments))
		}
		if seg.SpeakerKey != "MANUAL_CONCEJAL" {
			t.Errorf("SpeakerKey = %q", seg.SpeakerKey)
		}
		if seg.CreatedAt == "" {
			t.Error("CreatedAt not stamped")
		}
	})

	t.Run("position_shifts_occupant", func(t *testing.T) {
		s := sampleStructure()
		wasAtOne := s.Segments[1]
		pos := 1
		_, final, err := s.Insert(draft, &pos, "", testNow)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if final != 1 {
			t.Errorf("final = %d, want 1", final)
		}
		if s.Segments[1].Speaker != "Concejal" {
			t.Errorf("segment at 1 = %+v", s.Segments[1])
		}
		if s.Segments[2] != wasAtOne {
			t.Error("former occupant of 1 is not at 2")
		}
	})

	t.Run("oversized_position_appends", func(t *testing.T) {
		s := sampleStructure()
		pos := 50
		_, final, err := s.Insert(draft, &pos, "", testNow)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if final != 3 {
			t.Errorf("final = %d, want 3", final)
		}
	})

	t.Run("negative_position_rejected", func(t *testing.T) {
		s := sampleStructure()
		pos := -1
		if _, _, err := s.Insert(draft, &pos, "", testNow); err == nil {
			t.Error("expected error")
		}
	})
}

// ── Delete ───────────────────────────────────────────────────────────

func TestDelete(t *testing.T) {
	t.Run("shifts_following_segments", func(t *testing.T) {
		s := sampleStructure()
		wasAtOne := s.Segments[1]
		removed, err := s.Delete(0, "admin", testNow)
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if removed.Speaker != "Alcalde" {
			t.Errorf("removed = %+v", removed)
		}
		if len(s.Segments) != 2 {
			t.Errorf("len = %d, want 2", len(s.Segments))
		}
		if s.Segments[0] != wasAtOne {
			t.Error("former segment 1 is not at index 0")
		}
	})

	t.Run("out_of_range", func(t *testing.T) {
		s := sampleStructure()
		if _, err := s.Delete(3, "", testNow); err == nil {
			t.Error("expected error")
		}
	})
}

// ── Reorder ──────────────────────────────────────────────────────────

func TestReorder(t *testing.T) {
	t.Run("valid_permutation", func(t *testing.T) {
		s := sampleStructure()
		first := s.Segments[0]
		if err := s.Reorder([]int{2, 0, 1}, "", testNow); err != nil {
			t.Fatalf("Reorder: %v", err)
		}
		if s.Segments[1] != first {
			t.Error("segment 0 not moved to position 1")
		}
	})

	t.Run("wrong_length", func(t *testing.T) {
		s := sampleStructure()
		if err := s.Reorder([]int{0, 1}, "", testNow); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("duplicate_index", func(t *testing.T) {
		s := sampleStructure()
		if err := s.Reorder([]int{0, 0, 1}, "", testNow); err == nil {
			t.Error("expected error")
		}
	})
}

// ── Speaker operations ───────────────────────────────────────────────

func TestSpeakerOps(t *testing.T) {
	t.Run("add", func(t *testing.T) {
		s := sampleStructure()
		if err := s.AddSpeaker("", "Concejal 1", "", testNow); err != nil {
			t.Fatalf("AddSpeaker: %v", err)
		}
		if s.Header.SpeakerMap["MANUAL_CONCEJAL 1"] != "Concejal 1" {
			t.Errorf("map = %v", s.Header.SpeakerMap)
		}
	})

	t.Run("add_duplicate_name", func(t *testing.T) {
		s := sampleStructure()
		if err := s.AddSpeaker("", "Alcalde", "", testNow); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("rename_propagates", func(t *testing.T) {
		s := sampleStructure()
		if err := s.RenameSpeaker("SPEAKER_00", "Alcaldesa", "", testNow); err != nil {
			t.Fatalf("RenameSpeaker: %v", err)
		}
		for i, seg := range s.Segments {
			if seg.Speaker == "Alcalde" {
				t.Errorf("segment %d still has old name", i)
			}
		}
		if s.Segments[0].Speaker != "Alcaldesa" {
			t.Errorf("segment 0 speaker = %q", s.Segments[0].Speaker)
		}
	})

	t.Run("remove_with_segments_refused", func(t *testing.T) {
		s := sampleStructure()
		if err := s.RemoveSpeaker("SPEAKER_00", "", testNow); err == nil {
			t.Error("expected error: speaker has segments")
		}
	})

	t.Run("remove_unreferenced", func(t *testing.T) {
		s := sampleStructure()
		s.Header.SpeakerMap["SPEAKER_02"] = "Invitado"
		if err := s.RemoveSpeaker("SPEAKER_02", "", testNow); err != nil {
			t.Fatalf("RemoveSpeaker: %v", err)
		}
		if _, ok := s.Header.SpeakerMap["SPEAKER_02"]; ok {
			t.Error("speaker not removed")
		}
	})
}

// ── Replace (bulk save) ──────────────────────────────────────────────

func TestReplace(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := sampleStructure()
		incoming := sampleStructure()
		incoming.Segments = incoming.Segments[:1]
		if err := s.Replace(incoming, "admin", testNow); err != nil {
			t.Fatalf("Replace: %v", err)
		}
		if len(s.Segments) != 1 {
			t.Errorf("len = %d, want 1", len(s.Segments))
		}
		if s.Metadata[MetaTotalSegments] != 1 {
			t.Errorf("metadata total = %v", s.Metadata[MetaTotalSegments])
		}
	})

	t.Run("invalid_segment_rejected", func(t *testing.T) {
		s := sampleStructure()
		incoming := sampleStructure()
		incoming.Segments[1].StartTime = 99
		incoming.Segments[1].EndTime = 1
		if err := s.Replace(incoming, "", testNow); err == nil {
			t.Error("expected error")
		}
		if len(s.Segments) != 3 {
			t.Error("structure mutated on invalid bulk save")
		}
	})
}
