package database

import (
	"context"
	"time"
)

// Operation is one server-side processing job (transcription, diarization,
// acta generation) as shown on the operations dashboard.
type Operation struct {
	ID              int64      `json:"id"`
	TranscriptionID *int64     `json:"transcripcion_id,omitempty"`
	Type            string     `json:"tipo"`
	State           string     `json:"estado"`
	Progress        int        `json:"progreso"`
	Message         string     `json:"mensaje,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ListOperations returns operations, newest activity first.
func (db *DB) ListOperations(ctx context.Context, limit, offset int) ([]Operation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, transcripcion_id, tipo, estado, progreso, mensaje,
			started_at, finished_at, updated_at
		FROM operaciones
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(
			&op.ID, &op.TranscriptionID, &op.Type, &op.State, &op.Progress,
			&op.Message, &op.StartedAt, &op.FinishedAt, &op.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	if result == nil {
		result = []Operation{}
	}
	return result, rows.Err()
}

// OperationSummary counts operations per state for the dashboard header.
func (db *DB) OperationSummary(ctx context.Context) (map[string]int, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT estado, count(*) FROM operaciones GROUP BY estado
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := map[string]int{}
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		summary[state] = count
	}
	return summary, rows.Err()
}
