package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/btoaldas/actas-ia/internal/structure"
)

var (
	// ErrNotFound is returned when a transcription does not exist.
	ErrNotFound = errors.New("transcripción no encontrada")

	// ErrVersionConflict is returned when a structure update carries a
	// stale version: another mutation landed since the caller's read.
	ErrVersionConflict = errors.New("conflicto de versión: la estructura fue modificada")
)

// EditRecord describes one mutation for the edit history.
type EditRecord struct {
	Type        string
	Description string
	User        string
	Before      any
	After       any
}

// GetStructure loads the conversation structure and its version.
func (db *DB) GetStructure(ctx context.Context, id int64) (*structure.Structure, int64, error) {
	var raw []byte
	var version int64
	err := db.Pool.QueryRow(ctx, `
		SELECT estructura, version FROM transcripciones WHERE id = $1
	`, id).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	var s structure.Structure
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, 0, fmt.Errorf("estructura corrupta: %w", err)
	}
	s.Normalize()
	return &s, version, nil
}

// SaveStructure persists the structure with a compare-and-swap on the
// version counter, recording the mutation in the edit history in the
// same transaction. Returns ErrVersionConflict when expectedVersion is
// stale and the new version on success.
func (db *DB) SaveStructure(ctx context.Context, id int64, s *structure.Structure, expectedVersion int64, rec EditRecord) (int64, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return 0, fmt.Errorf("serializar estructura: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var newVersion int64
	err = tx.QueryRow(ctx, `
		UPDATE transcripciones
		SET estructura = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3
		RETURNING version
	`, id, raw, expectedVersion).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing row from a stale version.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM transcripciones WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("guardar estructura: %w", err)
	}

	before, err := json.Marshal(rec.Before)
	if err != nil {
		return 0, fmt.Errorf("serializar historial: %w", err)
	}
	after, err := json.Marshal(rec.After)
	if err != nil {
		return 0, fmt.Errorf("serializar historial: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO historial_edicion (transcripcion_id, tipo_edicion, descripcion, usuario, datos_anteriores, datos_nuevos)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, rec.Type, rec.Description, rec.User, before, after)
	if err != nil {
		return 0, fmt.Errorf("insertar historial: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return newVersion, nil
}

// EditHistoryEntry is one row of a transcription's edit history.
type EditHistoryEntry struct {
	ID          int64           `json:"id"`
	Type        string          `json:"tipo_edicion"`
	Description string          `json:"descripcion"`
	User        string          `json:"usuario"`
	Before      json.RawMessage `json:"datos_anteriores,omitempty"`
	After       json.RawMessage `json:"datos_nuevos,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

// ListEditHistory returns a transcription's edit history, newest first.
func (db *DB) ListEditHistory(ctx context.Context, id int64, limit int) ([]EditHistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tipo_edicion, descripcion, usuario, datos_anteriores, datos_nuevos,
			to_char(created_at, 'YYYY-MM-DD"T"HH24:MI:SSOF')
		FROM historial_edicion
		WHERE transcripcion_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EditHistoryEntry
	for rows.Next() {
		var e EditHistoryEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.Description, &e.User, &e.Before, &e.After, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if result == nil {
		result = []EditHistoryEntry{}
	}
	return result, rows.Err()
}

// AudioPaths holds the stored audio file locations for a transcription.
type AudioPaths struct {
	Original  string
	Processed string
}

// GetAudioPaths returns the audio file paths for a transcription.
func (db *DB) GetAudioPaths(ctx context.Context, id int64) (AudioPaths, error) {
	var p AudioPaths
	err := db.Pool.QueryRow(ctx, `
		SELECT COALESCE(audio_path, ''), COALESCE(procesado_path, '')
		FROM transcripciones WHERE id = $1
	`, id).Scan(&p.Original, &p.Processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// SetAudioPath records where a transcription's recording landed.
// variant is original or procesado.
func (db *DB) SetAudioPath(ctx context.Context, id int64, variant, path string) error {
	column := "audio_path"
	if variant == "procesado" {
		column = "procesado_path"
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE transcripciones SET `+column+` = $2, updated_at = now() WHERE id = $1
	`, id, path)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
