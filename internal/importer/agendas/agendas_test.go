package agendas

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/importer/votes"
	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/openleg"
	"github.com/nysenate/openleg-sync/internal/store/memory"
)

const week4 = `{
	"success": true,
	"responseType": "agenda",
	"result": {
		"id": {"number": 4, "year": 2023},
		"weekOf": "2023-01-23",
		"committeeAgendas": {"items": [
			{
				"committeeId": {"chamber": "SENATE", "name": "Finance"},
				"addenda": {"items": [
					{
						"addendumId": "",
						"modifiedDateTime": "2023-01-20T09:00:00",
						"meeting": {"chair": "John Smith", "location": "Room 124 CAP", "meetingDateTime": "2023-01-24T10:00:00"},
						"bills": {"items": [{"billId": {"basePrintNo": "S100", "session": 2023, "version": ""}}, {"billId": {"basePrintNo": "S200", "session": 2023, "version": "A"}}], "size": 2}
					},
					{
						"addendumId": "A",
						"hasVotes": true,
						"meeting": {"meetingDateTime": "2023-01-24T10:00:00"},
						"bills": {"items": [], "size": 0},
						"voteInfo": {"votesList": {"items": [
							{"bill": {"basePrintNo": "S100", "session": 2023, "version": ""},
							 "vote": {"version": "", "voteType": "COMMITTEE", "voteDate": "2023-01-24", "sequenceNo": 1,
							          "memberVotes": {"items": {"AYE": {"items": [{"shortName": "SMITH"}], "size": 1}}}}}
						], "size": 1}}
					}
				], "size": 2}
			},
			{
				"committeeId": {"chamber": "SENATE", "name": "Ethics and Internal Governance"},
				"addenda": {"items": [
					{"addendumId": "", "meeting": {"meetingDateTime": "2023-01-25T11:30:00"}}
				], "size": 1}
			}
		], "size": 2}
	}
}`

func response(t *testing.T, raw string) openleg.Response {
	t.Helper()
	var p openleg.Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return openleg.NewGeneric(p)
}

func TestOneRecordPerCommitteeAddendum(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	mem.AddReference(legislation.TableCommittee, "com-fin", "Finance")
	mem.AddReference(legislation.TableCommittee, "com-eth", "Ethics and Internal Governance")
	s100 := legislation.NewRecord(legislation.KindBill, "2023-S100")
	require.NoError(t, mem.Save(ctx, s100))

	d := importer.New[Addendum](New(nil), importer.Deps{Store: mem, References: mem})
	out := d.Process(ctx, response(t, week4))
	require.True(t, out.Success, out.Err)
	assert.Equal(t, []string{
		"2023-4-Finance-2023-01-24T10:00",
		"2023-4-Finance-2023-01-24T10:00-A",
		"2023-4-Ethics and Internal Governance-2023-01-25T11:30",
	}, out.Keys)

	base, err := mem.Find(ctx, legislation.KindAgenda, "2023-4-Finance-2023-01-24T10:00")
	require.NoError(t, err)
	attrs := base.Attrs.(legislation.AgendaAttrs)
	assert.Equal(t, "Room 124 CAP", attrs.Location)
	assert.Equal(t, 10, attrs.MeetingDateTime.Hour())
	assert.Equal(t, []string{"2023-S100", "2023-S200A"}, attrs.BillTitles)
	assert.Equal(t, []string{s100.ID}, base.Refs[RoleBills], "only imported bills are linked")
	assert.Equal(t, "com-fin", base.Ref(RoleCommittee))
	assert.Empty(t, base.Children[votes.Collection])

	addA, err := mem.Find(ctx, legislation.KindAgenda, "2023-4-Finance-2023-01-24T10:00-A")
	require.NoError(t, err)
	kids, err := mem.LoadChildren(ctx, addA.Children[votes.Collection])
	require.NoError(t, err)
	require.Len(t, kids, 1)
	tally := kids[0].Attrs.(legislation.VoteTally)
	assert.Equal(t, "2023-S100", tally.BillTitle)
	assert.Equal(t, s100.ID, tally.BillID)
	assert.Equal(t, "com-fin", tally.CommitteeID)
	assert.Equal(t, 1, tally.Counts[legislation.VoteAye])
}

func TestMissingCommitteeStillCommits(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	logs := &bytes.Buffer{}
	log := slog.New(slog.NewJSONHandler(logs, nil))

	d := importer.New[Addendum](New(nil), importer.Deps{Store: mem, References: mem, Logger: log})
	out := d.Process(ctx, response(t, week4))
	require.True(t, out.Success, out.Err)

	recs := mem.Records(legislation.KindAgenda)
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.NotContains(t, rec.Refs, RoleCommittee)
	}
	assert.Contains(t, logs.String(), `"msg":"reference not found"`)
	assert.Contains(t, logs.String(), `"name":"Finance"`)
}

func TestNaturalKeyRequiresMeetingTime(t *testing.T) {
	p := New(nil)
	_, err := p.NaturalKey(Addendum{
		ID:        agendaID{Number: 4, Year: 2023},
		Committee: openleg.CommitteeID{Name: "Finance"},
	})
	assert.Error(t, err)
}

func TestUpdateResource(t *testing.T) {
	path, err := New(nil).UpdateResource(json.RawMessage(`{"agendaId": {"number": 4, "year": 2023}}`))
	require.NoError(t, err)
	assert.Equal(t, "2023/4", path.String())

	_, err = New(nil).UpdateResource(json.RawMessage(`{}`))
	assert.Error(t, err)
}
