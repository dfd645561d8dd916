// Package legislation defines the local documents the importer produces:
// records keyed by kind and title, the child records they own, and the
// read-only reference entries they point at.
package legislation

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies a record family. The pair (Kind, Title) is unique.
type Kind string

const (
	KindBill       Kind = "bill"
	KindAgenda     Kind = "agenda"
	KindCalendar   Kind = "calendar"
	KindTranscript Kind = "transcript"
	KindHearing    Kind = "public_hearing"
)

// ChildKind identifies the shape of a child record.
type ChildKind string

const (
	ChildVote            ChildKind = "vote"
	ChildCalendarSection ChildKind = "calendar_section"
)

// Reference tables.
const (
	TableCommittee = "committee"
	TableSenator   = "senator"
)

// Record is a persisted document identified by its natural key (Title) within
// a Kind. Refs holds ids of reference entries or other records per logical
// role; Children holds the ids of owned child records per collection.
type Record struct {
	ID        string
	Kind      Kind
	Title     string
	Attrs     Attrs
	Refs      map[string][]string
	Children  map[string][]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord returns an unsaved record with a fresh id.
func NewRecord(kind Kind, title string) *Record {
	return &Record{
		ID:       uuid.NewString(),
		Kind:     kind,
		Title:    title,
		Refs:     map[string][]string{},
		Children: map[string][]string{},
	}
}

// SetRef replaces the ids held under role. An empty ids slice clears it.
func (r *Record) SetRef(role string, ids ...string) {
	if r.Refs == nil {
		r.Refs = map[string][]string{}
	}
	if len(ids) == 0 {
		delete(r.Refs, role)
		return
	}
	r.Refs[role] = append([]string(nil), ids...)
}

// Ref returns the first id held under role, or "".
func (r *Record) Ref(role string) string {
	if ids := r.Refs[role]; len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Attrs = CloneAttrs(r.Attrs)
	out.Refs = cloneIDMap(r.Refs)
	out.Children = cloneIDMap(r.Children)
	return &out
}

// ChildRecord is a member of one of a record's child collections.
type ChildRecord struct {
	ID       string
	ParentID string
	Kind     ChildKind
	Attrs    Attrs
}

// NewChild returns an unsaved child record owned by parent.
func NewChild(parent *Record, kind ChildKind, attrs Attrs) *ChildRecord {
	return &ChildRecord{
		ID:       uuid.NewString(),
		ParentID: parent.ID,
		Kind:     kind,
		Attrs:    attrs,
	}
}

// Clone returns a deep copy of c.
func (c *ChildRecord) Clone() *ChildRecord {
	if c == nil {
		return nil
	}
	out := *c
	out.Attrs = CloneAttrs(c.Attrs)
	return &out
}

// Reference is an externally maintained lookup entry such as a committee or
// a senator.
type Reference struct {
	Table string
	ID    string
	Name  string
}

func cloneIDMap(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}
