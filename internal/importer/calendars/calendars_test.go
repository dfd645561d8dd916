package calendars

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/openleg"
	"github.com/nysenate/openleg-sync/internal/store/memory"
)

const calendar12 = `{
	"success": true,
	"responseType": "calendar",
	"result": {
		"year": 2023,
		"calendarNumber": 12,
		"calDate": "2023-03-01",
		"releaseDateTime": "2023-02-28T17:00:00",
		"floorCalendar": {
			"version": "floor",
			"releaseDateTime": "2023-02-28T17:00:00",
			"entriesBySection": {"items": {
				"THIRD_READING": {"items": [
					{"basePrintNo": "S300", "session": 2023, "version": "", "billCalNo": 30, "sectionType": "THIRD_READING"},
					{"basePrintNo": "S100", "session": 2023, "version": "A", "billCalNo": 10, "sectionType": "THIRD_READING", "billHigh": true}
				], "size": 2},
				"ORDER_OF_THE_FIRST_REPORT": {"items": [
					{"basePrintNo": "S200", "session": 2023, "version": "", "billCalNo": 20, "sectionType": "ORDER_OF_THE_FIRST_REPORT"}
				], "size": 1}
			}}
		},
		"supplementalCalendars": {"items": {}, "size": 0},
		"activeLists": {"items": {
			"7": {"sequenceNumber": 7, "notes": "Active list A", "entries": {"items": [
				{"basePrintNo": "S100", "session": 2023, "version": "A", "billCalNo": 10},
				{"basePrintNo": "S300", "session": 2023, "version": "", "billCalNo": 30}
			], "size": 2}}
		}, "size": 1}
	}
}`

func response(t *testing.T, raw string) openleg.Response {
	t.Helper()
	var p openleg.Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return openleg.NewGeneric(p)
}

func TestCalendarSections(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s100a := legislation.NewRecord(legislation.KindBill, "2023-S100A")
	require.NoError(t, mem.Save(ctx, s100a))

	d := importer.New[Calendar](New(nil), importer.Deps{Store: mem, References: mem})
	out := d.Process(ctx, response(t, calendar12))
	require.True(t, out.Success, out.Err)
	assert.Equal(t, []string{"2023-12"}, out.Keys)

	recs := mem.Records(legislation.KindCalendar)
	require.Len(t, recs, 1)
	assert.Equal(t, "2023-03-01", recs[0].Attrs.(legislation.CalendarAttrs).CalDate)

	kids, err := mem.LoadChildren(ctx, recs[0].Children[Collection])
	require.NoError(t, err)
	require.Len(t, kids, 2)

	floor := kids[0].Attrs.(legislation.CalendarSection)
	assert.Equal(t, legislation.SectionFloor, floor.SectionType)
	require.Len(t, floor.Entries, 3)
	assert.Equal(t, "2023-S100A", floor.Entries[0].BillTitle)
	assert.Equal(t, s100a.ID, floor.Entries[0].BillID)
	assert.True(t, floor.Entries[0].HighBill)
	assert.Equal(t, []int{1, 2, 3}, []int{floor.Entries[0].Sequence, floor.Entries[1].Sequence, floor.Entries[2].Sequence})
	assert.Empty(t, floor.Entries[1].BillID, "unimported bills stay unlinked")

	active := kids[1].Attrs.(legislation.CalendarSection)
	assert.Equal(t, legislation.SectionActiveList, active.SectionType)
	assert.Equal(t, "7", active.Version)
	assert.Equal(t, 7, active.Sequence)
	require.Len(t, active.Entries, 2)
	assert.Equal(t, "2023-S300", active.Entries[1].BillTitle)
}

const calendarWithSupplementals = `{
	"success": true,
	"responseType": "calendar",
	"result": {
		"year": 2023,
		"calendarNumber": 14,
		"calDate": "2023-03-08",
		"floorCalendar": {
			"version": "floor",
			"entriesBySection": {"items": {
				"THIRD_READING": {"items": [
					{"basePrintNo": "S100", "session": 2023, "billCalNo": 10, "sectionType": "THIRD_READING"}
				], "size": 1}
			}}
		},
		"supplementalCalendars": {"items": {
			"B": {"version": "B", "entriesBySection": {"items": {
				"THIRD_READING": {"items": [
					{"basePrintNo": "S500", "session": 2023, "billCalNo": 50, "sectionType": "THIRD_READING"}
				], "size": 1}
			}}},
			"A": {"version": "A", "entriesBySection": {"items": {
				"THIRD_READING": {"items": [
					{"basePrintNo": "S410", "session": 2023, "billCalNo": 41, "sectionType": "THIRD_READING"},
					{"basePrintNo": "S400", "session": 2023, "billCalNo": 40, "sectionType": "THIRD_READING"}
				], "size": 2}
			}}}
		}, "size": 2},
		"activeLists": {"items": {
			"2": {"sequenceNumber": 1, "entries": {"items": [
				{"basePrintNo": "S400", "session": 2023, "billCalNo": 40}
			], "size": 1}},
			"1": {"sequenceNumber": 1, "entries": {"items": [
				{"basePrintNo": "S100", "session": 2023, "billCalNo": 10},
				{"basePrintNo": "S500", "session": 2023, "billCalNo": 50}
			], "size": 2}},
			"0": {"sequenceNumber": 0, "entries": {"items": [], "size": 0}}
		}, "size": 3}
	}
}`

func TestSupplementalCalendarSections(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	d := importer.New[Calendar](New(nil), importer.Deps{Store: mem, References: mem})
	out := d.Process(ctx, response(t, calendarWithSupplementals))
	require.True(t, out.Success, out.Err)

	recs := mem.Records(legislation.KindCalendar)
	require.Len(t, recs, 1)
	kids, err := mem.LoadChildren(ctx, recs[0].Children[Collection])
	require.NoError(t, err)
	require.Len(t, kids, 6)

	type want struct {
		kind    string
		version string
		seq     int
		entries int
	}
	expected := []want{
		{legislation.SectionFloor, "", 0, 1},
		{legislation.SectionSupplemental, "A", 0, 2},
		{legislation.SectionSupplemental, "B", 0, 1},
		{legislation.SectionActiveList, "0", 0, 0},
		{legislation.SectionActiveList, "1", 1, 2},
		{legislation.SectionActiveList, "2", 1, 1},
	}
	for i, w := range expected {
		s := kids[i].Attrs.(legislation.CalendarSection)
		assert.Equal(t, w.kind, s.SectionType, "section %d", i)
		assert.Equal(t, w.version, s.Version, "section %d", i)
		assert.Equal(t, w.seq, s.Sequence, "section %d", i)
		assert.Len(t, s.Entries, w.entries, "section %d", i)
	}

	supA := kids[1].Attrs.(legislation.CalendarSection)
	assert.Equal(t, "2023-S400", supA.Entries[0].BillTitle, "entries ordered by calendar number")
	assert.Equal(t, 40, supA.Entries[0].CalNo)
}

func TestResyncReplacesSections(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	d := importer.New[Calendar](New(nil), importer.Deps{Store: mem, References: mem})

	require.True(t, d.Process(ctx, response(t, calendar12)).Success)
	require.True(t, d.Process(ctx, response(t, calendar12)).Success)
	assert.Equal(t, 2, mem.ChildCount())
}

func TestNaturalKeyAndUpdateResource(t *testing.T) {
	p := New(nil)
	_, err := p.NaturalKey(Calendar{Year: 2023})
	assert.Error(t, err)

	path, err := p.UpdateResource(json.RawMessage(`{"calendarId": {"year": 2023, "calendarNumber": 12}}`))
	require.NoError(t, err)
	assert.Equal(t, "2023/12", path.String())
}
