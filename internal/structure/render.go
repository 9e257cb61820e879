package structure

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// PaletteSize is the number of distinct speaker colors. Two speakers
// beyond the tenth distinct entry share a color; this is a presentation
// convenience, not an identity guarantee.
const PaletteSize = 10

// RenderRecord is the per-segment view the rendering surface consumes.
type RenderRecord struct {
	Index      int     `json:"index"`
	Speaker    string  `json:"hablante"`
	Text       string  `json:"texto"`
	StartTime  float64 `json:"inicio"`
	EndTime    float64 `json:"fin"`
	Duration   float64 `json:"duracion"`
	TimeLabel  string  `json:"etiqueta_tiempo"`
	ColorIndex int     `json:"color"`
}

// RenderRecords produces one record per segment, in order. Rendering is
// a pure function of the structure: calling it twice without an
// intervening mutation yields identical records.
func (s *Structure) RenderRecords() []RenderRecord {
	// Speaker position among the map's display names decides the color.
	positions := speakerPositions(s.Header.SpeakerMap)

	records := make([]RenderRecord, 0, len(s.Segments))
	for i, seg := range s.Segments {
		duration := seg.EndTime - seg.StartTime
		color, ok := positions[seg.Speaker]
		if !ok {
			// Speaker missing from the map: stable hash fallback.
			h := fnv.New32a()
			h.Write([]byte(seg.Speaker))
			color = int(h.Sum32() % PaletteSize)
		}
		records = append(records, RenderRecord{
			Index:      i,
			Speaker:    seg.Speaker,
			Text:       seg.Text,
			StartTime:  seg.StartTime,
			EndTime:    seg.EndTime,
			Duration:   duration,
			TimeLabel:  fmt.Sprintf("%s - %s (%.1fs)", FormatTime(seg.StartTime), FormatTime(seg.EndTime), duration),
			ColorIndex: color % PaletteSize,
		})
	}
	return records
}

func speakerPositions(speakerMap map[string]string) map[string]int {
	keys := make([]string, 0, len(speakerMap))
	for k := range speakerMap {
		keys = append(keys, k)
	}
	// Go maps have no insertion order; sorted keys give a deterministic
	// speaker ordering across renders.
	sort.Strings(keys)
	positions := make(map[string]int, len(keys))
	for i, k := range keys {
		name := speakerMap[k]
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}
	return positions
}
