// Package events distributes structure-mutation and operation-state
// events to SSE subscribers, with a ring buffer for replay on reconnect.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published on the bus.
const (
	TypeSegmentEdited   = "segmento_editado"
	TypeSegmentAdded    = "segmento_agregado"
	TypeSegmentDeleted  = "segmento_eliminado"
	TypeSpeakersChanged = "hablantes_actualizados"
	TypeStructureSaved  = "estructura_guardada"
	TypeOperationUpdate = "operacion_actualizada"
	TypeAudioReceived   = "audio_recibido"
)

// Event is one bus event as delivered to SSE clients.
type Event struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	TranscriptionID int64           `json:"transcripcion_id,omitempty"`
	Timestamp       string          `json:"timestamp"`
	Data            json.RawMessage `json:"data"`
}

// Filter restricts which events a subscriber receives. Empty fields
// match everything.
type Filter struct {
	Types            []string
	TranscriptionIDs []int64
}

// Bus provides pub-sub event distribution for SSE subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64

	ring     []Event
	ringSize int
	ringHead int
	ringMu   sync.RWMutex
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// NewBus creates an event bus with the given ring buffer size.
func NewBus(ringSize int) *Bus {
	return &Bus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers a new subscriber and returns a channel and cancel function.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
	return ch, cancel
}

// ReplaySince returns buffered events since the given event ID.
func (b *Bus) ReplaySince(lastEventID string, filter Filter) []Event {
	b.ringMu.RLock()
	defer b.ringMu.RUnlock()

	var events []Event
	found := lastEventID == ""

	for i := 0; i < b.ringSize; i++ {
		idx := (b.ringHead + i) % b.ringSize
		e := b.ring[idx]
		if e.ID == "" {
			continue
		}
		if !found {
			if e.ID == lastEventID {
				found = true
			}
			continue
		}
		if matchesFilter(e, filter) {
			events = append(events, e)
		}
	}
	return events
}

// Publish sends an event to all matching subscribers and adds it to the
// ring buffer. Slow subscribers drop events rather than block.
func (b *Bus) Publish(eventType string, transcriptionID int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	seq := b.seq.Add(1)
	event := Event{
		ID:              fmt.Sprintf("%d-%d", time.Now().UnixMilli(), seq),
		Type:            eventType,
		TranscriptionID: transcriptionID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Data:            data,
	}

	b.ringMu.Lock()
	b.ring[b.ringHead] = event
	b.ringHead = (b.ringHead + 1) % b.ringSize
	b.ringMu.Unlock()

	b.mu.RLock()
	for _, sub := range b.subscribers {
		if matchesFilter(event, sub.filter) {
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
	b.mu.RUnlock()
}

func matchesFilter(e Event, f Filter) bool {
	if len(f.Types) > 0 {
		match := false
		for _, t := range f.Types {
			if strings.TrimSpace(t) == e.Type {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if len(f.TranscriptionIDs) > 0 && e.TranscriptionID != 0 {
		match := false
		for _, id := range f.TranscriptionIDs {
			if id == e.TranscriptionID {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}
