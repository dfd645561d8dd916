// Package calendars imports floor calendars. Each calendar number becomes a
// record whose sections collection holds the floor calendar, every
// supplemental and every active list.
package calendars

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/openleg"
	"github.com/nysenate/openleg-sync/pkg/logger"
)

// Collection is the child collection calendar sections are stored under.
const Collection = "sections"

type entry struct {
	openleg.BillID
	BillCalNo   int    `json:"billCalNo"`
	SectionType string `json:"sectionType"`
	BillHigh    bool   `json:"billHigh"`
}

type supplemental struct {
	Version          string                           `json:"version"`
	ReleaseDateTime  string                           `json:"releaseDateTime"`
	EntriesBySection openleg.Map[openleg.List[entry]] `json:"entriesBySection"`
}

type activeList struct {
	SequenceNumber  int                 `json:"sequenceNumber"`
	Notes           string              `json:"notes"`
	ReleaseDateTime string              `json:"releaseDateTime"`
	Entries         openleg.List[entry] `json:"entries"`
}

// Calendar is the decoded calendar view.
type Calendar struct {
	Year                  int                       `json:"year"`
	CalendarNumber        int                       `json:"calendarNumber"`
	CalDate               string                    `json:"calDate"`
	ReleaseDateTime       string                    `json:"releaseDateTime"`
	FloorCalendar         *supplemental             `json:"floorCalendar"`
	SupplementalCalendars openleg.Map[supplemental] `json:"supplementalCalendars"`
	ActiveLists           openleg.Map[activeList]   `json:"activeLists"`
}

// Processor imports calendars.
type Processor struct {
	Location *time.Location
}

// New returns the calendars processor.
func New(loc *time.Location) *Processor { return &Processor{Location: loc} }

func (*Processor) ID() string             { return "calendars" }
func (*Processor) Kind() legislation.Kind { return legislation.KindCalendar }
func (*Processor) Endpoint() string       { return "calendars" }

func (*Processor) ItemParams() map[string]string {
	return map[string]string{"full": "true"}
}

// UpdateResource maps a calendar update token to /{year}/{calendarNumber}.
func (*Processor) UpdateResource(token json.RawMessage) (openleg.Path, error) {
	var t struct {
		CalendarID struct {
			Year           int `json:"year"`
			CalendarNumber int `json:"calendarNumber"`
		} `json:"calendarId"`
	}
	if err := json.Unmarshal(token, &t); err != nil {
		return nil, fmt.Errorf("decoding calendar update token: %w", err)
	}
	if t.CalendarID.Year == 0 || t.CalendarID.CalendarNumber == 0 {
		return nil, errors.New("calendar update token has no calendar id")
	}
	return openleg.P(strconv.Itoa(t.CalendarID.Year), strconv.Itoa(t.CalendarID.CalendarNumber)), nil
}

func (*Processor) Explode(resp openleg.Response) ([]Calendar, error) {
	var c Calendar
	if err := json.Unmarshal(resp.Result(), &c); err != nil {
		return nil, fmt.Errorf("decoding calendar: %w", err)
	}
	return []Calendar{c}, nil
}

// NaturalKey is {year}-{calendarNumber}.
func (*Processor) NaturalKey(c Calendar) (string, error) {
	if c.Year == 0 || c.CalendarNumber == 0 {
		return "", fmt.Errorf("calendar is missing year or number (year=%d, number=%d)", c.Year, c.CalendarNumber)
	}
	return fmt.Sprintf("%d-%d", c.Year, c.CalendarNumber), nil
}

func (p *Processor) Transcribe(ctx context.Context, tx *importer.Transcription, rec *legislation.Record, c Calendar) error {
	attrs := legislation.CalendarAttrs{
		Year:           c.Year,
		CalendarNumber: c.CalendarNumber,
		CalDate:        c.CalDate,
		ReleasedAt:     p.parse(ctx, c.ReleaseDateTime),
	}

	var sections []legislation.CalendarSection
	if c.FloorCalendar != nil {
		sections = append(sections, p.section(ctx, legislation.SectionFloor, *c.FloorCalendar))
	}
	for _, v := range sortedKeys(c.SupplementalCalendars.Items) {
		sections = append(sections, p.section(ctx, legislation.SectionSupplemental, c.SupplementalCalendars.Items[v]))
	}

	// Lists sharing a sequence number stay in key order.
	keys := sortedKeys(c.ActiveLists.Items)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.ActiveLists.Items[keys[i]].SequenceNumber < c.ActiveLists.Items[keys[j]].SequenceNumber
	})
	for _, k := range keys {
		l := c.ActiveLists.Items[k]
		sections = append(sections, legislation.CalendarSection{
			SectionType: legislation.SectionActiveList,
			Version:     k,
			Sequence:    l.SequenceNumber,
			ReleasedAt:  p.parse(ctx, l.ReleaseDateTime),
			Notes:       l.Notes,
			Entries:     entries(l.Entries.Items),
		})
	}

	if err := link(ctx, tx, sections); err != nil {
		return err
	}

	children := make([]legislation.Attrs, len(sections))
	for i, s := range sections {
		children[i] = s
	}
	tx.ReplaceChildren(rec, Collection, legislation.ChildCalendarSection, children)
	rec.Attrs = attrs
	return nil
}

func (p *Processor) section(ctx context.Context, kind string, s supplemental) legislation.CalendarSection {
	var all []entry
	for _, name := range sortedKeys(s.EntriesBySection.Items) {
		all = append(all, s.EntriesBySection.Items[name].Items...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].BillCalNo < all[j].BillCalNo })
	version := s.Version
	if kind == legislation.SectionFloor {
		version = ""
	}
	return legislation.CalendarSection{
		SectionType: kind,
		Version:     version,
		ReleasedAt:  p.parse(ctx, s.ReleaseDateTime),
		Entries:     entries(all),
	}
}

func (p *Processor) parse(ctx context.Context, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ts, err := openleg.ParseDateTime(raw, p.Location)
	if err != nil {
		logger.FromContext(ctx).Warn("unparseable calendar release time", "value", raw)
	}
	return ts
}

// link resolves every entry's bill title against existing bill records.
func link(ctx context.Context, tx *importer.Transcription, sections []legislation.CalendarSection) error {
	var titles []string
	for _, s := range sections {
		for _, e := range s.Entries {
			titles = append(titles, e.BillTitle)
		}
	}
	found, err := tx.RecordsByTitle(ctx, legislation.KindBill, titles)
	if err != nil {
		return err
	}
	for i := range sections {
		for j := range sections[i].Entries {
			if b, ok := found[sections[i].Entries[j].BillTitle]; ok {
				sections[i].Entries[j].BillID = b.ID
			}
		}
	}
	return nil
}

func entries(in []entry) []legislation.CalendarEntry {
	out := make([]legislation.CalendarEntry, len(in))
	for i, e := range in {
		out[i] = legislation.CalendarEntry{
			BillTitle:   e.BillID.Title(),
			CalNo:       e.BillCalNo,
			SectionType: e.SectionType,
			Sequence:    i + 1,
			HighBill:    e.BillHigh,
		}
	}
	return out
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
