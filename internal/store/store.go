// Package store declares the document store and reference lookups the
// importer writes through. Implementations live in the memory and sqlstore
// subpackages.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/nysenate/openleg-sync/internal/legislation"
)

// ErrNotFound is returned when a record or reference does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateTitle is returned when saving a record whose (kind, title) is
// already held by a record with another id.
var ErrDuplicateTitle = errors.New("duplicate record title")

// DocumentStore persists records and their child records.
type DocumentStore interface {
	// Find returns the record of kind with the given title, or ErrNotFound.
	Find(ctx context.Context, kind legislation.Kind, title string) (*legislation.Record, error)
	// Save inserts or updates rec by id.
	Save(ctx context.Context, rec *legislation.Record) error
	CreateChildren(ctx context.Context, children []*legislation.ChildRecord) error
	LoadChildren(ctx context.Context, ids []string) ([]*legislation.ChildRecord, error)
	DeleteChildren(ctx context.Context, ids []string) error
	// FindRecordsByTitles returns the records of kind whose titles are in
	// titles, keyed by title. Missing titles are absent from the map.
	FindRecordsByTitles(ctx context.Context, kind legislation.Kind, titles []string) (map[string]*legislation.Record, error)
}

// ReferenceResolver looks up reference entries by name.
type ReferenceResolver interface {
	// FindReference returns the entry of table matching name after
	// NormalizeName, or ErrNotFound.
	FindReference(ctx context.Context, table, name string) (*legislation.Reference, error)
}

// NormalizeName folds case and collapses whitespace so that reference names
// from different feeds compare equal.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
