package editor

import (
	"context"

	"github.com/btoaldas/actas-ia/internal/structure"
)

// FetchResult is the store's answer to a structure read.
type FetchResult struct {
	Structure *structure.Structure
	Version   int64
}

// MutationResult carries the canonical server state after an accepted
// mutation. The controller adopts these values verbatim instead of
// trusting its own draft.
type MutationResult struct {
	Segment       *structure.Segment
	Position      int
	TotalSegments int
	RenderedText  string
	Metadata      map[string]any
	Version       int64
}

// StructureStore is the remote persistence the editor talks to.
// Failures are *ServerError (store said no), *NetworkError (store
// unreachable or off-contract), or *structure.ValidationError when the
// store rejected the input as invalid.
type StructureStore interface {
	Fetch(ctx context.Context, id int64) (*FetchResult, error)
	EditSegment(ctx context.Context, id int64, index int, d structure.Draft) (*MutationResult, error)
	AddSegment(ctx context.Context, id int64, d structure.Draft, position *int) (*MutationResult, error)
	DeleteSegment(ctx context.Context, id int64, index int) (*MutationResult, error)
	SaveStructure(ctx context.Context, id int64, s *structure.Structure, version int64) (*MutationResult, error)
}
