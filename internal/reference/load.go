package reference

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nysenate/openleg-sync/internal/legislation"
)

// Writer stores reference entries. The SQL store implements it.
type Writer interface {
	UpsertReference(ctx context.Context, ref legislation.Reference) error
}

type entry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Parse reads a reference file: a mapping from table name to a list of
// {id, name} entries. JSON input is accepted too. Entries come back ordered
// by table, then in file order.
func Parse(r io.Reader) ([]legislation.Reference, error) {
	var tables map[string][]entry
	if err := yaml.NewDecoder(r).Decode(&tables); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing reference file: %w", err)
	}

	names := make([]string, 0, len(tables))
	for t := range tables {
		names = append(names, t)
	}
	sort.Strings(names)

	var out []legislation.Reference
	for _, table := range names {
		for i, e := range tables[table] {
			id, name := strings.TrimSpace(e.ID), strings.TrimSpace(e.Name)
			if id == "" || name == "" {
				return nil, fmt.Errorf("%s entry %d: id and name are required", table, i+1)
			}
			out = append(out, legislation.Reference{Table: table, ID: id, Name: name})
		}
	}
	return out, nil
}

// Load upserts refs and returns the tables it touched.
func Load(ctx context.Context, w Writer, refs []legislation.Reference) ([]string, error) {
	var tables []string
	seen := map[string]bool{}
	for _, ref := range refs {
		if err := w.UpsertReference(ctx, ref); err != nil {
			return tables, fmt.Errorf("storing %s %q: %w", ref.Table, ref.ID, err)
		}
		if !seen[ref.Table] {
			seen[ref.Table] = true
			tables = append(tables, ref.Table)
		}
	}
	return tables, nil
}
