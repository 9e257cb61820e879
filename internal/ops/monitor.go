// Package ops polls the operations endpoints so a dashboard can follow
// processing jobs without holding an SSE connection.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Operation mirrors one processing job as the API reports it.
type Operation struct {
	ID              int64  `json:"id"`
	TranscriptionID *int64 `json:"transcripcion_id,omitempty"`
	Type            string `json:"tipo"`
	State           string `json:"estado"`
	Progress        int    `json:"progreso"`
	Message         string `json:"mensaje,omitempty"`
}

// Snapshot is one poll result. Changed holds the IDs whose state moved
// since the previous poll, so the view can highlight them.
type Snapshot struct {
	Operations []Operation
	Summary    map[string]int
	Changed    []int64
}

// Monitor polls the operations API on a fixed interval.
type Monitor struct {
	baseURL  string
	token    string
	client   *http.Client
	interval time.Duration
	onUpdate func(Snapshot)
	log      zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// Poll may run concurrently with the Start loop; the state diff
	// is the only shared piece.
	statesMu   sync.Mutex
	lastStates map[int64]string
}

// NewMonitor builds a monitor for the API at baseURL polling every
// interval. onUpdate runs on the monitor goroutine after each
// successful poll.
func NewMonitor(baseURL, token string, interval time.Duration, onUpdate func(Snapshot), log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		baseURL:    baseURL,
		token:      token,
		client:     &http.Client{Timeout: 10 * time.Second},
		interval:   interval,
		onUpdate:   onUpdate,
		log:        log.With().Str("component", "ops-monitor").Logger(),
		lastStates: make(map[int64]string),
	}
}

// Start polls immediately, then on every tick until Stop.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.poll(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.poll(ctx)
			}
		}
	}()
}

// Stop halts polling and waits for the loop to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

// Poll fetches one snapshot on demand, outside the polling loop.
func (m *Monitor) Poll(ctx context.Context) (Snapshot, error) {
	return m.fetch(ctx)
}

func (m *Monitor) poll(ctx context.Context) {
	snap, err := m.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.log.Warn().Err(err).Msg("operations poll failed")
		}
		return
	}
	if m.onUpdate != nil {
		m.onUpdate(snap)
	}
}

func (m *Monitor) fetch(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	var opsBody struct {
		Exito      bool        `json:"exito"`
		Error      string      `json:"error"`
		Operations []Operation `json:"operaciones"`
	}
	if err := m.get(ctx, "/api/v1/operations?limit=100", &opsBody); err != nil {
		return snap, err
	}
	if !opsBody.Exito {
		return snap, fmt.Errorf("operations endpoint: %s", opsBody.Error)
	}
	snap.Operations = opsBody.Operations

	var sumBody struct {
		Exito   bool           `json:"exito"`
		Summary map[string]int `json:"resumen"`
	}
	if err := m.get(ctx, "/api/v1/operations/summary", &sumBody); err != nil {
		return snap, err
	}
	snap.Summary = sumBody.Summary

	// Diff against the previous poll.
	states := make(map[int64]string, len(snap.Operations))
	m.statesMu.Lock()
	for _, op := range snap.Operations {
		states[op.ID] = op.State
		if prev, seen := m.lastStates[op.ID]; seen && prev != op.State {
			snap.Changed = append(snap.Changed, op.ID)
		}
	}
	m.lastStates = states
	m.statesMu.Unlock()

	return snap, nil
}

func (m *Monitor) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return err
	}
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
