package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/btoaldas/actas-ia/internal/audit"
)

// InsertFrontendEvents stores a batch of frontend activity events.
// Batches arrive from the audit collector, already redacted.
func (db *DB) InsertFrontendEvents(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(events))
	for _, e := range events {
		occurred := e.OccurredAt
		if occurred.IsZero() {
			occurred = time.Now().UTC()
		}
		rows = append(rows, []any{
			e.Type, e.Category, e.Page, e.Element, e.User, e.Session, e.Data, occurred,
		})
	}

	_, err := db.Pool.CopyFrom(ctx,
		pgx.Identifier{"eventos_frontend"},
		[]string{"tipo", "categoria", "pagina", "elemento", "usuario", "sesion", "datos", "ocurrido_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insertar eventos frontend: %w", err)
	}
	return nil
}
