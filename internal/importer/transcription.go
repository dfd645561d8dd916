package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/store"
	"github.com/nysenate/openleg-sync/pkg/logger"
)

// Transcription is the scratch space of one Process call. Processors use it
// to resolve references and stage child collections; nothing it holds is
// written until the driver commits.
type Transcription struct {
	deps   Deps
	staged []*stagedCollection
}

// NewTranscription returns an empty transcription over deps. The driver
// creates one per Process call.
func NewTranscription(deps Deps) *Transcription {
	return &Transcription{deps: deps}
}

type stagedCollection struct {
	recordID   string
	collection string
	children   []*legislation.ChildRecord
	// previous holds the ids the record pointed at before this call.
	previous []string
}

// Reference looks up one reference entry by name. A blank name or an entry
// that does not exist yields nil; the miss is logged as a warning. Only
// lookup failures are returned as errors.
func (t *Transcription) Reference(ctx context.Context, table, name string) (*legislation.Reference, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	ref, err := t.deps.References.FindReference(ctx, table, name)
	if errors.Is(err, store.ErrNotFound) {
		logger.Enrich(ctx, t.deps.logger()).Warn("reference not found", "table", table, "name", name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s %q: %w", table, name, err)
	}
	return ref, nil
}

// References resolves names in order, dropping misses and entries already
// seen.
func (t *Transcription) References(ctx context.Context, table string, names []string) ([]*legislation.Reference, error) {
	var out []*legislation.Reference
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		ref, err := t.Reference(ctx, table, name)
		if err != nil {
			return nil, err
		}
		if ref == nil || seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		out = append(out, ref)
	}
	return out, nil
}

// RecordsByTitle finds existing records of kind by title. Titles that are not
// in the store are absent from the result and not an error.
func (t *Transcription) RecordsByTitle(ctx context.Context, kind legislation.Kind, titles []string) (map[string]*legislation.Record, error) {
	if len(titles) == 0 {
		return map[string]*legislation.Record{}, nil
	}
	found, err := t.deps.Store.FindRecordsByTitles(ctx, kind, dedupe(titles))
	if err != nil {
		return nil, fmt.Errorf("finding %s records by title: %w", kind, err)
	}
	return found, nil
}

// ReplaceChildren stages attrs as the complete new content of rec's
// collection. The previous members are deleted after commit. Calling it
// again for the same record and collection within one Process call replaces
// the staged set.
func (t *Transcription) ReplaceChildren(rec *legislation.Record, collection string, kind legislation.ChildKind, attrs []legislation.Attrs) []*legislation.ChildRecord {
	children := make([]*legislation.ChildRecord, len(attrs))
	ids := make([]string, len(attrs))
	for i, a := range attrs {
		children[i] = legislation.NewChild(rec, kind, a)
		ids[i] = children[i].ID
	}

	entry := t.find(rec.ID, collection)
	if entry == nil {
		entry = &stagedCollection{
			recordID:   rec.ID,
			collection: collection,
			previous:   append([]string(nil), rec.Children[collection]...),
		}
		t.staged = append(t.staged, entry)
	}
	entry.children = children

	if rec.Children == nil {
		rec.Children = map[string][]string{}
	}
	rec.Children[collection] = ids
	return children
}

// RefIDs returns the ids of refs in order.
func RefIDs(refs []*legislation.Reference) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	return ids
}

func (t *Transcription) find(recordID, collection string) *stagedCollection {
	for _, s := range t.staged {
		if s.recordID == recordID && s.collection == collection {
			return s
		}
	}
	return nil
}

func (t *Transcription) newChildren() []*legislation.ChildRecord {
	var out []*legislation.ChildRecord
	for _, s := range t.staged {
		out = append(out, s.children...)
	}
	return out
}

func (t *Transcription) newChildIDsOf(recordID string) []string {
	var out []string
	for _, s := range t.staged {
		if s.recordID == recordID {
			out = append(out, childIDs(s.children)...)
		}
	}
	return out
}

func (t *Transcription) previousChildIDsOf(recordID string) []string {
	var out []string
	for _, s := range t.staged {
		if s.recordID == recordID {
			out = append(out, s.previous...)
		}
	}
	return out
}

func (t *Transcription) supersededChildren() []string {
	var out []string
	for _, s := range t.staged {
		out = append(out, s.previous...)
	}
	return out
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
