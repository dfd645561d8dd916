// Package importer turns one resolved API response into committed records.
//
// A Processor knows one document family: how to split a response into
// sub-entities, how to name each one, and how to copy its fields onto a
// record. The Driver runs every processor through the same sequence:
//
//	resolve    find or create the record for each sub-entity's natural key
//	transcribe copy fields, look up references, stage child collections
//	commit     create staged children, save records, drop superseded children
//
// Nothing is written until every sub-entity has transcribed. Failures are
// logged and reported in the Outcome; Process never returns an error.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/openleg"
	"github.com/nysenate/openleg-sync/internal/store"
	apperrors "github.com/nysenate/openleg-sync/pkg/errors"
	"github.com/nysenate/openleg-sync/pkg/logger"
	"github.com/nysenate/openleg-sync/pkg/metrics"
)

// Source describes where a processor's items live in the API.
type Source interface {
	// Endpoint is the resource family, e.g. "bills".
	Endpoint() string
	// ItemParams are the query parameters used when fetching one item.
	ItemParams() map[string]string
	// UpdateResource maps one update token to the item's resource path.
	UpdateResource(token json.RawMessage) (openleg.Path, error)
}

// Processor is the per-family capability set. E is the sub-entity type the
// response explodes into.
type Processor[E any] interface {
	Source
	ID() string
	Kind() legislation.Kind
	Explode(resp openleg.Response) ([]E, error)
	NaturalKey(e E) (string, error)
	Transcribe(ctx context.Context, tx *Transcription, rec *legislation.Record, e E) error
}

// ItemProcessor is what the scheduler drives.
type ItemProcessor interface {
	Source
	ID() string
	Kind() legislation.Kind
	Process(ctx context.Context, resp openleg.Response) Outcome
}

// Outcome reports what one Process call did. Records is set only on success;
// Keys lists the natural keys reached before any failure.
type Outcome struct {
	Success bool
	Records []*legislation.Record
	Keys    []string
	Err     error
}

// Deps are the collaborators shared by every driver.
type Deps struct {
	Store      store.DocumentStore
	References store.ReferenceResolver
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Driver adapts a Processor into an ItemProcessor.
type Driver[E any] struct {
	Processor[E]
	deps   Deps
	logger *slog.Logger
}

// New wires p to its collaborators.
func New[E any](p Processor[E], deps Deps) *Driver[E] {
	base := deps.Logger
	if base == nil {
		base = slog.Default()
	}
	return &Driver[E]{
		Processor: p,
		deps:      deps,
		logger:    base.With("component", "importer", "processor", p.ID()),
	}
}

// Process imports every sub-entity of resp or none of them.
func (d *Driver[E]) Process(ctx context.Context, resp openleg.Response) Outcome {
	log := logger.Enrich(ctx, d.logger)
	out := d.process(ctx, log, resp)
	d.deps.Metrics.ItemProcessed(d.ID(), out.Success)
	if !out.Success {
		log.Error("import failed", "keys", out.Keys, "error", out.Err)
		return out
	}
	log.Info("import committed", "keys", out.Keys, "records", len(out.Records))
	return out
}

func (d *Driver[E]) process(ctx context.Context, log *slog.Logger, resp openleg.Response) Outcome {
	if resp == nil {
		return failed(nil, apperrors.New(apperrors.ErrInvalidPayload, apperrors.CategoryPermanent, "nil response"))
	}
	if !resp.Success() {
		return failed(nil, apperrors.Newf(apperrors.ErrInvalidPayload, apperrors.CategoryPermanent,
			"api reported failure: %s", resp.Message()))
	}

	entities, err := d.Explode(resp)
	if err != nil {
		return failed(nil, fmt.Errorf("%w: exploding response: %v", apperrors.ErrTranscription, err))
	}

	tx := NewTranscription(d.deps)
	var (
		keys    []string
		records []*legislation.Record
		byKey   = make(map[string]*legislation.Record)
		// snapshots holds the stored state of records that existed
		// before this call, for restoring after a partial commit.
		snapshots = make(map[string]*legislation.Record)
	)
	for i, e := range entities {
		key, err := d.NaturalKey(e)
		if err != nil {
			log.Error("sub-entity has no usable natural key", "index", i, "error", err)
			return failed(keys, fmt.Errorf("%w: natural key of sub-entity %d: %v", apperrors.ErrTranscription, i, err))
		}

		rec, ok := byKey[key]
		if !ok {
			var existed bool
			rec, existed, err = d.resolve(ctx, key)
			if err != nil {
				return failed(append(keys, key), err)
			}
			if existed {
				snapshots[rec.ID] = rec.Clone()
			}
			byKey[key] = rec
			keys = append(keys, key)
			records = append(records, rec)
		}

		itemCtx := logger.WithItem(ctx, d.ID(), key)
		if err := d.Transcribe(itemCtx, tx, rec, e); err != nil {
			log.Error("transcription failed", "key", key, "error", err)
			return failed(keys, fmt.Errorf("%w: %s: %w", apperrors.ErrTranscription, key, err))
		}
	}

	if err := d.commit(ctx, log, tx, records, snapshots); err != nil {
		return failed(keys, err)
	}

	saved := make([]*legislation.Record, len(records))
	for i, rec := range records {
		saved[i] = rec.Clone()
	}
	return Outcome{Success: true, Records: saved, Keys: keys}
}

// resolve finds the stored record for key or creates an unsaved one. existed
// reports which.
func (d *Driver[E]) resolve(ctx context.Context, key string) (rec *legislation.Record, existed bool, err error) {
	rec, err = d.deps.Store.Find(ctx, d.Kind(), key)
	switch {
	case err == nil:
		return rec, true, nil
	case errors.Is(err, store.ErrNotFound):
		return legislation.NewRecord(d.Kind(), key), false, nil
	default:
		return nil, false, fmt.Errorf("%w: finding %s %q: %w", apperrors.ErrPersistence, d.Kind(), key, err)
	}
}

// commit persists staged children and records. New children go in first so
// a record never points at children that do not exist; superseded children
// are deleted only once every record save has succeeded. When a save fails,
// records already saved in this call are put back to their snapshots.
func (d *Driver[E]) commit(ctx context.Context, log *slog.Logger, tx *Transcription, records []*legislation.Record, snapshots map[string]*legislation.Record) error {
	created := tx.newChildren()
	if len(created) > 0 {
		if err := d.deps.Store.CreateChildren(ctx, created); err != nil {
			d.discard(ctx, log, childIDs(created))
			return fmt.Errorf("%w: creating children: %w", apperrors.ErrPersistence, err)
		}
	}

	for i, rec := range records {
		if err := d.deps.Store.Save(ctx, rec); err != nil {
			var orphans []string
			for _, unsaved := range records[i:] {
				orphans = append(orphans, tx.newChildIDsOf(unsaved.ID)...)
			}
			orphans = append(orphans, d.rollback(ctx, log, tx, records[:i], snapshots)...)
			d.discard(ctx, log, orphans)
			return fmt.Errorf("%w: saving %s %q: %w", apperrors.ErrPersistence, rec.Kind, rec.Title, err)
		}
		d.deps.Metrics.RecordWritten(string(rec.Kind))
	}

	for _, c := range tx.staged {
		d.deps.Metrics.ChildrenReplaced(c.collection)
	}
	if old := tx.supersededChildren(); len(old) > 0 {
		if err := d.deps.Store.DeleteChildren(ctx, old); err != nil {
			log.Warn("superseded children left in store", "count", len(old), "error", err)
		}
	}
	return nil
}

// rollback restores saved records to their snapshots and returns the child
// ids nothing points at any more. A record that cannot be restored keeps its
// new children and gives up its previous ones. A record created by this call
// has no snapshot and stays as saved.
func (d *Driver[E]) rollback(ctx context.Context, log *slog.Logger, tx *Transcription, saved []*legislation.Record, snapshots map[string]*legislation.Record) []string {
	var unreferenced []string
	for _, rec := range saved {
		snap, ok := snapshots[rec.ID]
		if !ok {
			log.Warn("record created before failure kept", "title", rec.Title)
			continue
		}
		if err := d.deps.Store.Save(ctx, snap.Clone()); err != nil {
			log.Warn("could not restore record", "title", rec.Title, "error", err)
			unreferenced = append(unreferenced, tx.previousChildIDsOf(rec.ID)...)
			continue
		}
		unreferenced = append(unreferenced, tx.newChildIDsOf(rec.ID)...)
	}
	return unreferenced
}

func (d *Driver[E]) discard(ctx context.Context, log *slog.Logger, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := d.deps.Store.DeleteChildren(ctx, ids); err != nil {
		log.Warn("could not remove uncommitted children", "count", len(ids), "error", err)
	}
}

func failed(keys []string, err error) Outcome {
	return Outcome{Success: false, Keys: keys, Err: err}
}

func childIDs(children []*legislation.ChildRecord) []string {
	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return ids
}
