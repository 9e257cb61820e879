// Package editor implements the segment editing session of a
// transcription: it owns an in-memory conversation structure, mediates
// every read and write against a StructureStore, and tracks unsaved
// state for the view layer.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/btoaldas/actas-ia/internal/structure"
)

// State is the load lifecycle of a Controller.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

// NotificationSink receives the user-visible outcome of operations.
// Every failure path ends in exactly one Error call.
type NotificationSink interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

// AudioCue plays a time range of the recording behind the session.
type AudioCue interface {
	PlayRange(startTime, endTime float64) error
}

// ConfirmFunc asks the user to confirm a destructive action.
type ConfirmFunc func(msg string) bool

// EditContext is the segment snapshot held open while an edit surface
// is active.
type EditContext struct {
	Index   int
	Segment structure.Segment
}

// Controller is one editing session over one transcription. Mutations
// serialize behind the session mutex, so responses always apply in
// issue order.
type Controller struct {
	store    StructureStore
	notify   NotificationSink
	audio    AudioCue
	confirm  ConfirmFunc
	onRender func([]structure.RenderRecord)
	log      zerolog.Logger

	mu       sync.Mutex
	id       int64
	state    State
	dirty    bool
	version  int64
	original *structure.Structure
	current  *structure.Structure
	editing  *EditContext
}

// Options configures the collaborators of a Controller. Notify, Audio,
// Confirm, and OnRender may be nil; nil Confirm accepts everything.
type Options struct {
	Notify   NotificationSink
	Audio    AudioCue
	Confirm  ConfirmFunc
	OnRender func([]structure.RenderRecord)
}

// New builds an unloaded controller over the given store.
func New(store StructureStore, opts Options, log zerolog.Logger) *Controller {
	return &Controller{
		store:    store,
		notify:   opts.Notify,
		audio:    opts.Audio,
		confirm:  opts.Confirm,
		onRender: opts.OnRender,
		log:      log.With().Str("component", "segment-editor").Logger(),
		state:    StateUnloaded,
	}
}

func (c *Controller) notifySuccess(msg string) {
	if c.notify != nil {
		c.notify.Success(msg)
	}
}

func (c *Controller) notifyError(msg string) {
	if c.notify != nil {
		c.notify.Error(msg)
	}
}

func (c *Controller) notifyInfo(msg string) {
	if c.notify != nil {
		c.notify.Info(msg)
	}
}

// render recomputes the view records and pushes them out. Caller holds c.mu.
func (c *Controller) render() {
	if c.onRender != nil {
		c.onRender(c.current.RenderRecords())
	}
}

// Load fetches the structure and makes it the working copy. A
// transport failure still leaves the session usable: the controller
// falls back to an empty structure and returns the NetworkError so the
// view can show its error state.
func (c *Controller) Load(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.id = id
	c.state = StateLoading

	res, err := c.store.Fetch(ctx, id)
	if err != nil {
		var nerr *NetworkError
		if errors.As(err, &nerr) {
			c.log.Warn().Err(err).Int64("id", id).Msg("load failed, falling back to empty structure")
			c.current = structure.Empty()
			c.original = structure.Empty()
			c.version = 0
			c.dirty = false
			c.editing = nil
			c.state = StateLoaded
			c.render()
			c.notifyError("No se pudo cargar la transcripción")
			return err
		}
		c.state = StateUnloaded
		c.notifyError(err.Error())
		return err
	}

	c.current = res.Structure
	c.original = res.Structure.Clone()
	c.version = res.Version
	c.dirty = false
	c.editing = nil
	c.state = StateLoaded
	c.render()
	return nil
}

// State returns the load lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dirty reports whether a server-acknowledged mutation is pending a
// bulk save.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Version returns the structure version adopted from the last
// successful store response.
func (c *Controller) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Current returns a deep copy of the working structure.
func (c *Controller) Current() *structure.Structure {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.Clone()
}

// Render returns the view records for the working structure, one per
// segment in order.
func (c *Controller) Render() []structure.RenderRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.RenderRecords()
}

// Stats derives the statistics panel values from the working structure.
func (c *Controller) Stats() structure.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return structure.Stats{}
	}
	return c.current.ComputeStats()
}

// EditSegment opens an edit surface over the segment at index. No
// network call happens until the edit is committed.
func (c *Controller) EditSegment(index int) (*EditContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkIndex(index); err != nil {
		c.notifyError(err.Error())
		return nil, err
	}
	c.editing = &EditContext{Index: index, Segment: c.current.Segments[index]}
	snapshot := *c.editing
	return &snapshot, nil
}

// Editing returns the open edit context, or nil.
func (c *Controller) Editing() *EditContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == nil {
		return nil
	}
	snapshot := *c.editing
	return &snapshot
}

// CancelEdit closes the edit surface without touching the structure.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = nil
}

// CommitSegmentEdit validates the draft, submits it, and on success
// adopts the server's canonical segment, rendered text, and metadata.
// Validation failures abort before any network call.
func (c *Controller) CommitSegmentEdit(ctx context.Context, draft structure.Draft) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editing == nil {
		err := &structure.ValidationError{Msg: "no hay ningún segmento en edición"}
		c.notifyError(err.Msg)
		return err
	}
	index := c.editing.Index

	if err := structure.ValidateDraft(draft); err != nil {
		c.notifyError(err.Error())
		return err
	}
	if err := c.checkIndex(index); err != nil {
		c.notifyError(err.Error())
		return err
	}

	res, err := c.store.EditSegment(ctx, c.id, index, draft)
	if err != nil {
		c.notifyError(err.Error())
		return err
	}

	c.current.Segments[index] = *res.Segment
	c.adopt(res)
	c.editing = nil
	c.render()
	c.notifySuccess("Segmento actualizado")
	return nil
}

// AddSegment validates the draft and inserts the server's canonical
// segment at the server-returned position. A nil position appends.
func (c *Controller) AddSegment(ctx context.Context, draft structure.Draft, position *int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		err := &structure.ValidationError{Msg: "estructura no cargada"}
		c.notifyError(err.Msg)
		return err
	}
	if err := structure.ValidateDraft(draft); err != nil {
		c.notifyError(err.Error())
		return err
	}
	if position != nil && *position < 0 {
		err := &structure.ValidationError{Msg: "posición inválida"}
		c.notifyError(err.Msg)
		return err
	}

	res, err := c.store.AddSegment(ctx, c.id, draft, position)
	if err != nil {
		c.notifyError(err.Error())
		return err
	}

	pos := res.Position
	if pos < 0 || pos > len(c.current.Segments) {
		pos = len(c.current.Segments)
	}
	c.current.Segments = append(c.current.Segments, structure.Segment{})
	copy(c.current.Segments[pos+1:], c.current.Segments[pos:])
	c.current.Segments[pos] = *res.Segment
	c.adopt(res)
	c.render()
	c.notifySuccess("Segmento agregado")
	return nil
}

// DeleteSegment removes the segment at index after user confirmation.
// Following indices shift down; an open edit on the deleted segment or
// a later one is invalidated.
func (c *Controller) DeleteSegment(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkIndex(index); err != nil {
		c.notifyError(err.Error())
		return err
	}

	if c.confirm != nil && !c.confirm(fmt.Sprintf("¿Eliminar el segmento %d? Esta acción no se puede deshacer.", index)) {
		return nil
	}

	res, err := c.store.DeleteSegment(ctx, c.id, index)
	if err != nil {
		c.notifyError(err.Error())
		return err
	}

	c.current.Segments = append(c.current.Segments[:index], c.current.Segments[index+1:]...)
	if c.editing != nil && c.editing.Index >= index {
		c.editing = nil
	}
	c.adopt(res)
	c.render()
	c.notifySuccess("Segmento eliminado")
	return nil
}

// SaveAll submits the whole working structure as a bulk save. Success
// clears the dirty flag and refreshes the load snapshot.
func (c *Controller) SaveAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		err := &structure.ValidationError{Msg: "estructura no cargada"}
		c.notifyError(err.Msg)
		return err
	}
	if !c.dirty {
		c.notifyInfo("No hay cambios pendientes")
		return nil
	}

	res, err := c.store.SaveStructure(ctx, c.id, c.current, c.version)
	if err != nil {
		c.notifyError(err.Error())
		return err
	}

	if res.RenderedText != "" {
		c.current.RenderedText = res.RenderedText
	}
	if res.Metadata != nil {
		c.current.Metadata = res.Metadata
	}
	c.version = res.Version
	c.dirty = false
	c.original = c.current.Clone()
	c.render()
	c.notifySuccess("Estructura guardada")
	return nil
}

// PlaySegment seeks the audio player to the segment's time range.
func (c *Controller) PlaySegment(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkIndex(index); err != nil {
		c.notifyError(err.Error())
		return err
	}
	if c.audio == nil {
		return nil
	}
	seg := c.current.Segments[index]
	if err := c.audio.PlayRange(seg.StartTime, seg.EndTime); err != nil {
		c.notifyError("No se pudo reproducir el segmento")
		return err
	}
	return nil
}

// DefaultDraft suggests times for a new segment: the last segment's
// end as start, five seconds later as end.
func (c *Controller) DefaultDraft() structure.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := structure.Draft{EndTime: 5}
	if c.current == nil || len(c.current.Segments) == 0 {
		return d
	}
	last := c.current.Segments[len(c.current.Segments)-1]
	d.StartTime = last.EndTime
	d.EndTime = last.EndTime + 5
	return d
}

// adopt takes over the canonical derived state from an accepted
// mutation. Caller holds c.mu.
func (c *Controller) adopt(res *MutationResult) {
	c.current.RenderedText = res.RenderedText
	if res.Metadata != nil {
		c.current.Metadata = res.Metadata
	}
	c.version = res.Version
	c.dirty = true
}

// checkIndex validates a segment index against the working structure.
// Caller holds c.mu.
func (c *Controller) checkIndex(index int) error {
	if c.current == nil {
		return &structure.ValidationError{Msg: "estructura no cargada"}
	}
	if index < 0 || index >= len(c.current.Segments) {
		return &structure.ValidationError{Msg: "segmento inválido"}
	}
	return nil
}
