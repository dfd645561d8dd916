// Package agendas imports weekly committee agendas. A week's agenda becomes
// one record per committee addendum.
package agendas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/importer/votes"
	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/openleg"
	"github.com/nysenate/openleg-sync/pkg/logger"
)

// Reference roles held on agenda records.
const (
	RoleCommittee = "committee"
	RoleBills     = "bills"
)

// titleLayout renders the meeting time inside record titles.
const titleLayout = "2006-01-02T15:04"

type agendaID struct {
	Number int `json:"number"`
	Year   int `json:"year"`
}

type meeting struct {
	Chair           string `json:"chair"`
	Location        string `json:"location"`
	MeetingDateTime string `json:"meetingDateTime"`
	Notes           string `json:"notes"`
}

type agendaBill struct {
	BillID  openleg.BillID `json:"billId"`
	Message string         `json:"message"`
}

type voteEntry struct {
	Bill *openleg.BillID `json:"bill"`
	Vote openleg.Vote    `json:"vote"`
}

type addendum struct {
	AddendumID       string                   `json:"addendumId"`
	ModifiedDateTime string                   `json:"modifiedDateTime"`
	HasVotes         bool                     `json:"hasVotes"`
	Meeting          meeting                  `json:"meeting"`
	Bills            openleg.List[agendaBill] `json:"bills"`
	VoteInfo         *struct {
		VotesList openleg.List[voteEntry] `json:"votesList"`
	} `json:"voteInfo"`
}

type committeeAgenda struct {
	CommitteeID openleg.CommitteeID    `json:"committeeId"`
	Addenda     openleg.List[addendum] `json:"addenda"`
}

type agenda struct {
	ID               agendaID                      `json:"id"`
	WeekOf           string                        `json:"weekOf"`
	CommitteeAgendas openleg.List[committeeAgenda] `json:"committeeAgendas"`
}

// Addendum is one committee's addendum within a week's agenda.
type Addendum struct {
	ID        agendaID
	Committee openleg.CommitteeID
	Addendum  addendum
}

// Processor imports agendas.
type Processor struct {
	// Location interprets meeting timestamps; UTC when nil.
	Location *time.Location
}

// New returns the agendas processor.
func New(loc *time.Location) *Processor { return &Processor{Location: loc} }

func (*Processor) ID() string                    { return "agendas" }
func (*Processor) Kind() legislation.Kind        { return legislation.KindAgenda }
func (*Processor) Endpoint() string              { return "agendas" }
func (*Processor) ItemParams() map[string]string { return nil }

// UpdateResource maps an agenda update token to /{year}/{number}.
func (*Processor) UpdateResource(token json.RawMessage) (openleg.Path, error) {
	var t struct {
		AgendaID agendaID `json:"agendaId"`
		ID       agendaID `json:"id"`
	}
	if err := json.Unmarshal(token, &t); err != nil {
		return nil, fmt.Errorf("decoding agenda update token: %w", err)
	}
	id := t.AgendaID
	if id.Year == 0 {
		id = t.ID
	}
	if id.Year == 0 || id.Number == 0 {
		return nil, errors.New("agenda update token has no id")
	}
	return openleg.P(strconv.Itoa(id.Year), strconv.Itoa(id.Number)), nil
}

// Explode yields every (committee, addendum) pair of the week.
func (*Processor) Explode(resp openleg.Response) ([]Addendum, error) {
	var a agenda
	if err := json.Unmarshal(resp.Result(), &a); err != nil {
		return nil, fmt.Errorf("decoding agenda: %w", err)
	}
	var out []Addendum
	for _, ca := range a.CommitteeAgendas.Items {
		for _, add := range ca.Addenda.Items {
			out = append(out, Addendum{ID: a.ID, Committee: ca.CommitteeID, Addendum: add})
		}
	}
	return out, nil
}

// NaturalKey is {year}-{week}-{committee}-{meeting}, suffixed with
// -{addendum} for non-empty addenda.
func (p *Processor) NaturalKey(a Addendum) (string, error) {
	committee := strings.TrimSpace(a.Committee.Name)
	if a.ID.Year == 0 || a.ID.Number == 0 || committee == "" {
		return "", fmt.Errorf("agenda addendum is missing year, week or committee (year=%d, week=%d, committee=%q)", a.ID.Year, a.ID.Number, a.Committee.Name)
	}
	when, err := p.meetingTime(a.Addendum.Meeting.MeetingDateTime)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%d-%d-%s-%s", a.ID.Year, a.ID.Number, committee, when.Format(titleLayout))
	if add := strings.TrimSpace(a.Addendum.AddendumID); add != "" {
		key += "-" + add
	}
	return key, nil
}

func (p *Processor) Transcribe(ctx context.Context, tx *importer.Transcription, rec *legislation.Record, a Addendum) error {
	log := logger.FromContext(ctx)
	add := a.Addendum

	when, err := p.meetingTime(add.Meeting.MeetingDateTime)
	if err != nil {
		return err
	}
	attrs := legislation.AgendaAttrs{
		Year:            a.ID.Year,
		Week:            a.ID.Number,
		Committee:       strings.TrimSpace(a.Committee.Name),
		Addendum:        strings.TrimSpace(add.AddendumID),
		Chair:           add.Meeting.Chair,
		Location:        add.Meeting.Location,
		MeetingDateTime: when,
		Notes:           add.Meeting.Notes,
		HasVotes:        add.HasVotes,
	}
	if add.ModifiedDateTime != "" {
		if ts, err := openleg.ParseDateTime(add.ModifiedDateTime, p.Location); err == nil {
			attrs.ModifiedAt = ts
		} else {
			log.Warn("unparseable addendum modification time", "value", add.ModifiedDateTime)
		}
	}

	committee, err := tx.Reference(ctx, legislation.TableCommittee, attrs.Committee)
	if err != nil {
		return err
	}
	if committee != nil {
		rec.SetRef(RoleCommittee, committee.ID)
	} else {
		rec.SetRef(RoleCommittee)
	}

	for _, b := range add.Bills.Items {
		attrs.BillTitles = append(attrs.BillTitles, b.BillID.Title())
	}
	linked, err := tx.RecordsByTitle(ctx, legislation.KindBill, attrs.BillTitles)
	if err != nil {
		return err
	}
	var billIDs []string
	for _, title := range attrs.BillTitles {
		if b, ok := linked[title]; ok {
			billIDs = append(billIDs, b.ID)
		}
	}
	rec.SetRef(RoleBills, billIDs...)

	var tallies []legislation.VoteTally
	if add.VoteInfo != nil {
		for _, entry := range add.VoteInfo.VotesList.Items {
			roll := entry.Vote
			if roll.BillID == nil {
				roll.BillID = entry.Bill
			}
			if roll.Committee == nil {
				roll.Committee = &a.Committee
			}
			tallies = append(tallies, votes.Tally(roll))
		}
		var titles []string
		for _, t := range tallies {
			titles = append(titles, t.BillTitle)
		}
		voted, err := tx.RecordsByTitle(ctx, legislation.KindBill, titles)
		if err != nil {
			return err
		}
		for i := range tallies {
			if b, ok := voted[tallies[i].BillTitle]; ok {
				tallies[i].BillID = b.ID
			}
		}
	}
	if _, err := votes.StageTallies(ctx, tx, rec, tallies); err != nil {
		return fmt.Errorf("staging votes: %w", err)
	}

	rec.Attrs = attrs
	return nil
}

func (p *Processor) meetingTime(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("agenda addendum has no meeting time")
	}
	return openleg.ParseDateTime(raw, p.Location)
}
