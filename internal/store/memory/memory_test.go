package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/store"
)

var _ store.DocumentStore = (*Store)(nil)
var _ store.ReferenceResolver = (*Store)(nil)

func TestSaveFindAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Find(ctx, legislation.KindBill, "2023-S1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rec := legislation.NewRecord(legislation.KindBill, "2023-S1")
	rec.Attrs = legislation.BillAttrs{Session: 2023, PrintNo: "S1"}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Find(ctx, legislation.KindBill, "2023-S1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.False(t, got.CreatedAt.IsZero())

	got.Title = "mutated"
	again, err := s.Find(ctx, legislation.KindBill, "2023-S1")
	require.NoError(t, err)
	assert.Equal(t, "2023-S1", again.Title)
}

func TestSaveRejectsDuplicateTitle(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Save(ctx, legislation.NewRecord(legislation.KindBill, "2023-S1")))

	err := s.Save(ctx, legislation.NewRecord(legislation.KindBill, "2023-S1"))
	assert.ErrorIs(t, err, store.ErrDuplicateTitle)

	assert.NoError(t, s.Save(ctx, legislation.NewRecord(legislation.KindAgenda, "2023-S1")))
}

func TestChildrenLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	parent := legislation.NewRecord(legislation.KindCalendar, "2023-1")
	a := legislation.NewChild(parent, legislation.ChildCalendarSection, legislation.CalendarSection{SectionType: legislation.SectionFloor})
	b := legislation.NewChild(parent, legislation.ChildCalendarSection, legislation.CalendarSection{SectionType: legislation.SectionActiveList})

	require.NoError(t, s.CreateChildren(ctx, []*legislation.ChildRecord{a, b}))
	assert.Error(t, s.CreateChildren(ctx, []*legislation.ChildRecord{a}))

	loaded, err := s.LoadChildren(ctx, []string{b.ID, a.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, b.ID, loaded[0].ID)

	require.NoError(t, s.DeleteChildren(ctx, []string{a.ID}))
	assert.Equal(t, 1, s.ChildCount())
}

func TestHooksInjectFailures(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("disk full")
	s.SaveHook = func(*legislation.Record) error { return boom }

	err := s.Save(ctx, legislation.NewRecord(legislation.KindBill, "x"))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Records(legislation.KindBill))
}

func TestReferencesMatchNormalizedNames(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.AddReference(legislation.TableCommittee, "c-fin", "Finance")

	ref, err := s.FindReference(ctx, legislation.TableCommittee, "  FINANCE ")
	require.NoError(t, err)
	assert.Equal(t, "c-fin", ref.ID)

	_, err = s.FindReference(ctx, legislation.TableSenator, "Finance")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindRecordsByTitles(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, title := range []string{"2023-S1", "2023-S2"} {
		require.NoError(t, s.Save(ctx, legislation.NewRecord(legislation.KindBill, title)))
	}
	got, err := s.FindRecordsByTitles(ctx, legislation.KindBill, []string{"2023-S1", "2023-S9"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "2023-S1")
}
