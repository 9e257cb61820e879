package structure

import (
	"strings"
	"time"
)

// Mutation operations. Each validates first, mutates the structure in
// place, and refreshes the derived text and metadata. Segments are
// addressed by zero-based position; a delete or insert shifts every
// following index.

// ApplyEdit replaces the segment at index i with the validated draft,
// preserving the segment's speaker key and creation stamp.
func (s *Structure) ApplyEdit(i int, d Draft, user string, now time.Time) (*Segment, error) {
	if err := ValidateDraft(d); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(s.Segments) {
		return nil, validationf("índice de segmento inválido")
	}
	seg := &s.Segments[i]
	seg.Speaker = strings.TrimSpace(d.Speaker)
	seg.Text = strings.TrimSpace(d.Text)
	seg.StartTime = d.StartTime
	seg.EndTime = d.EndTime
	seg.Duration = round2(d.EndTime - d.StartTime)
	seg.Edited = true
	seg.EditedAt = now.UTC().Format(time.RFC3339)
	s.touch(user, now)
	return seg, nil
}

// Insert adds a new segment built from the validated draft. A nil
// position, or one past the end, appends. Returns the final position.
func (s *Structure) Insert(d Draft, pos *int, user string, now time.Time) (*Segment, int, error) {
	if err := ValidateDraft(d); err != nil {
		return nil, 0, err
	}
	speaker := strings.TrimSpace(d.Speaker)
	seg := Segment{
		Speaker:    speaker,
		SpeakerKey: "MANUAL_" + strings.ToUpper(speaker),
		Text:       strings.TrimSpace(d.Text),
		StartTime:  d.StartTime,
		EndTime:    d.EndTime,
		Duration:   round2(d.EndTime - d.StartTime),
		Edited:     true,
		CreatedAt:  now.UTC().Format(time.RFC3339),
	}

	final := len(s.Segments)
	if pos == nil || *pos >= len(s.Segments) {
		s.Segments = append(s.Segments, seg)
	} else {
		if *pos < 0 {
			return nil, 0, validationf("posición inválida")
		}
		final = *pos
		s.Segments = append(s.Segments, Segment{})
		copy(s.Segments[final+1:], s.Segments[final:])
		s.Segments[final] = seg
	}
	s.touch(user, now)
	return &s.Segments[final], final, nil
}

// Delete removes the segment at index i. Following segments shift down
// by one.
func (s *Structure) Delete(i int, user string, now time.Time) (Segment, error) {
	if i < 0 || i >= len(s.Segments) {
		return Segment{}, validationf("índice de segmento inválido")
	}
	removed := s.Segments[i]
	s.Segments = append(s.Segments[:i], s.Segments[i+1:]...)
	s.touch(user, now)
	return removed, nil
}

// Reorder rearranges segments to follow order, which must be a
// permutation of the current indices.
func (s *Structure) Reorder(order []int, user string, now time.Time) error {
	if len(order) != len(s.Segments) {
		return validationf("el orden debe incluir todos los segmentos")
	}
	seen := make([]bool, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(order) || seen[idx] {
			return validationf("orden inválido: no es una permutación")
		}
		seen[idx] = true
	}
	reordered := make([]Segment, len(s.Segments))
	for newPos, oldPos := range order {
		reordered[newPos] = s.Segments[oldPos]
	}
	s.Segments = reordered
	s.touch(user, now)
	return nil
}

// AddSpeaker registers a new display name under the given key.
func (s *Structure) AddSpeaker(key, name string, user string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return validationf("el nombre del hablante no puede estar vacío")
	}
	if key == "" {
		key = "MANUAL_" + strings.ToUpper(name)
	}
	for _, existing := range s.Header.SpeakerMap {
		if existing == name {
			return validationf("ya existe un hablante con ese nombre")
		}
	}
	s.Header.SpeakerMap[key] = name
	s.touch(user, now)
	return nil
}

// RenameSpeaker changes a speaker's display name and propagates the
// new name through every segment attributed to the old one.
func (s *Structure) RenameSpeaker(key, newName string, user string, now time.Time) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return validationf("el nuevo nombre no puede estar vacío")
	}
	oldName, ok := s.Header.SpeakerMap[key]
	if !ok {
		return validationf("hablante no encontrado")
	}
	s.Header.SpeakerMap[key] = newName
	for i := range s.Segments {
		if s.Segments[i].Speaker == oldName {
			s.Segments[i].Speaker = newName
		}
	}
	s.touch(user, now)
	return nil
}

// RemoveSpeaker deletes a speaker from the map. Refused while any
// segment still references the display name.
func (s *Structure) RemoveSpeaker(key string, user string, now time.Time) error {
	name, ok := s.Header.SpeakerMap[key]
	if !ok {
		return validationf("hablante no encontrado")
	}
	for _, seg := range s.Segments {
		if seg.Speaker == name {
			return validationf("el hablante tiene segmentos asignados")
		}
	}
	delete(s.Header.SpeakerMap, key)
	s.touch(user, now)
	return nil
}

// Replace swaps in a full structure (bulk save), validating every
// segment before accepting anything.
func (s *Structure) Replace(incoming *Structure, user string, now time.Time) error {
	incoming.Normalize()
	for i, seg := range incoming.Segments {
		d := Draft{Speaker: seg.Speaker, Text: seg.Text, StartTime: seg.StartTime, EndTime: seg.EndTime}
		if err := ValidateDraft(d); err != nil {
			return validationf("segmento %d: %s", i, err.Error())
		}
	}
	s.Header = Header{SpeakerMap: make(map[string]string, len(incoming.Header.SpeakerMap))}
	for k, v := range incoming.Header.SpeakerMap {
		s.Header.SpeakerMap[k] = v
	}
	s.Segments = make([]Segment, len(incoming.Segments))
	copy(s.Segments, incoming.Segments)
	for i := range s.Segments {
		s.Segments[i].Duration = round2(s.Segments[i].EndTime - s.Segments[i].StartTime)
	}
	s.Metadata = make(map[string]any, len(incoming.Metadata))
	for k, v := range incoming.Metadata {
		s.Metadata[k] = v
	}
	s.touch(user, now)
	return nil
}
