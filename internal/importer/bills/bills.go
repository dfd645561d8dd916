// Package bills imports bills. Every amendment version of a bill becomes its
// own record titled {session}-{basePrintNo}{version}.
package bills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/importer/votes"
	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/openleg"
	"github.com/nysenate/openleg-sync/pkg/logger"
)

// Reference roles held on bill records.
const (
	RoleSponsor       = "sponsor"
	RoleCoSponsors    = "coSponsors"
	RoleMultiSponsors = "multiSponsors"
	RoleSubstitutedBy = "substitutedBy"
)

type sponsor struct {
	Member *openleg.Member `json:"member"`
	Budget bool            `json:"budget"`
	Rules  bool            `json:"rules"`
}

type billType struct {
	Chamber    string `json:"chamber"`
	Desc       string `json:"desc"`
	Resolution bool   `json:"resolution"`
}

type status struct {
	StatusType    string `json:"statusType"`
	StatusDesc    string `json:"statusDesc"`
	ActionDate    string `json:"actionDate"`
	CommitteeName string `json:"committeeName"`
}

type action struct {
	Date       string `json:"date"`
	Chamber    string `json:"chamber"`
	SequenceNo int    `json:"sequenceNo"`
	Text       string `json:"text"`
}

type amendment struct {
	Version       string                       `json:"version"`
	PublishDate   string                       `json:"publishDate"`
	SameAs        openleg.List[openleg.BillID] `json:"sameAs"`
	Memo          string                       `json:"memo"`
	LawSection    string                       `json:"lawSection"`
	LawCode       string                       `json:"lawCode"`
	ActClause     string                       `json:"actClause"`
	FullText      string                       `json:"fullText"`
	CoSponsors    openleg.List[openleg.Member] `json:"coSponsors"`
	MultiSponsors openleg.List[openleg.Member] `json:"multiSponsors"`
	UniBill       bool                         `json:"uniBill"`
	Stricken      bool                         `json:"stricken"`
}

type bill struct {
	BasePrintNo       string                       `json:"basePrintNo"`
	Session           int                          `json:"session"`
	PrintNo           string                       `json:"printNo"`
	BillType          billType                     `json:"billType"`
	Title             string                       `json:"title"`
	ActiveVersion     string                       `json:"activeVersion"`
	PublishedDateTime string                       `json:"publishedDateTime"`
	SubstitutedBy     *openleg.BillID              `json:"substitutedBy"`
	Sponsor           *sponsor                     `json:"sponsor"`
	Summary           string                       `json:"summary"`
	Status            *status                      `json:"status"`
	Milestones        openleg.List[status]         `json:"milestones"`
	AmendmentVersions openleg.List[string]         `json:"amendmentVersions"`
	Amendments        openleg.Map[amendment]       `json:"amendments"`
	Votes             openleg.List[openleg.Vote]   `json:"votes"`
	Actions           openleg.List[action]         `json:"actions"`
	PreviousVersions  openleg.List[openleg.BillID] `json:"previousVersions"`
}

// Version is one amendment version of a bill, the unit that becomes a
// record.
type Version struct {
	Bill      *bill
	Version   string
	Amendment *amendment
}

// Processor imports bills. Location applies to the API's zoneless
// timestamps; nil means UTC.
type Processor struct {
	Location *time.Location
}

// New returns the bills processor.
func New(loc *time.Location) *Processor { return &Processor{Location: loc} }

func (*Processor) ID() string             { return "bills" }
func (*Processor) Kind() legislation.Kind { return legislation.KindBill }
func (*Processor) Endpoint() string       { return "bills" }

func (*Processor) ItemParams() map[string]string {
	return map[string]string{"view": "default", "fullTextFormat": "PLAIN"}
}

// UpdateResource maps a bill update token to /{session}/{basePrintNo}.
func (*Processor) UpdateResource(token json.RawMessage) (openleg.Path, error) {
	var t struct {
		ID openleg.BillID `json:"id"`
	}
	if err := json.Unmarshal(token, &t); err != nil {
		return nil, fmt.Errorf("decoding bill update token: %w", err)
	}
	if t.ID.Session == 0 || t.ID.BasePrintNo == "" {
		return nil, errors.New("bill update token has no id")
	}
	return openleg.P(strconv.Itoa(t.ID.Session), t.ID.BasePrintNo), nil
}

// Explode yields one Version per listed amendment version. When the API
// lists no versions the base version alone is imported.
func (*Processor) Explode(resp openleg.Response) ([]Version, error) {
	var b bill
	if err := json.Unmarshal(resp.Result(), &b); err != nil {
		return nil, fmt.Errorf("decoding bill: %w", err)
	}
	versions := b.AmendmentVersions.Items
	if len(versions) == 0 {
		versions = []string{""}
	}

	out := make([]Version, 0, len(versions))
	seen := make(map[string]bool, len(versions))
	for _, v := range versions {
		v = strings.TrimSpace(v)
		if seen[v] {
			continue
		}
		seen[v] = true
		ver := Version{Bill: &b, Version: v}
		if a, ok := b.Amendments.Items[v]; ok {
			ver.Amendment = &a
		}
		out = append(out, ver)
	}
	return out, nil
}

// NaturalKey is {session}-{basePrintNo}{version}, e.g. "2023-S100A".
func (*Processor) NaturalKey(v Version) (string, error) {
	base := strings.TrimSpace(v.Bill.BasePrintNo)
	if v.Bill.Session <= 0 || base == "" {
		return "", fmt.Errorf("bill is missing session or base print number (session=%d, basePrintNo=%q)", v.Bill.Session, v.Bill.BasePrintNo)
	}
	return fmt.Sprintf("%d-%s%s", v.Bill.Session, base, v.Version), nil
}

func (p *Processor) Transcribe(ctx context.Context, tx *importer.Transcription, rec *legislation.Record, v Version) error {
	log := logger.FromContext(ctx)
	b := v.Bill

	attrs := legislation.BillAttrs{
		Session:       b.Session,
		BasePrintNo:   b.BasePrintNo,
		PrintNo:       b.BasePrintNo + v.Version,
		Version:       v.Version,
		ActiveVersion: b.ActiveVersion,
		Chamber:       b.BillType.Chamber,
		BillType:      b.BillType.Desc,
		Title:         b.Title,
		Summary:       b.Summary,
	}
	if b.PublishedDateTime != "" {
		if ts, err := openleg.ParseDateTime(b.PublishedDateTime, p.Location); err == nil {
			attrs.PublishedAt = ts
		} else {
			log.Warn("unparseable bill publish time", "value", b.PublishedDateTime)
		}
	}
	if b.Status != nil {
		attrs.Status = b.Status.StatusType
		attrs.StatusDate = b.Status.ActionDate
		attrs.Committee = b.Status.CommitteeName
	}
	for _, m := range b.Milestones.Items {
		attrs.Milestones = append(attrs.Milestones, legislation.Milestone{
			Status:        m.StatusType,
			Description:   m.StatusDesc,
			ActionDate:    m.ActionDate,
			CommitteeName: m.CommitteeName,
		})
	}
	for _, a := range b.Actions.Items {
		attrs.Actions = append(attrs.Actions, legislation.BillAction{
			Date: a.Date, Chamber: a.Chamber, SequenceNo: a.SequenceNo, Text: a.Text,
		})
	}
	sort.SliceStable(attrs.Actions, func(i, j int) bool { return attrs.Actions[i].SequenceNo < attrs.Actions[j].SequenceNo })
	for _, prev := range b.PreviousVersions.Items {
		attrs.PreviousVersions = append(attrs.PreviousVersions, prev.Title())
	}

	var coSponsors, multiSponsors []openleg.Member
	if a := v.Amendment; a != nil {
		attrs.LawSection = a.LawSection
		attrs.LawCode = a.LawCode
		attrs.ActClause = a.ActClause
		attrs.Memo = a.Memo
		attrs.FullText = a.FullText
		attrs.Stricken = a.Stricken
		attrs.Uni = a.UniBill
		for _, same := range a.SameAs.Items {
			attrs.SameAs = append(attrs.SameAs, same.Title())
		}
		coSponsors = a.CoSponsors.Items
		multiSponsors = a.MultiSponsors.Items
	} else {
		log.Warn("amendment body missing for version", "version", v.Version)
	}

	if err := p.substitution(ctx, tx, rec, &attrs, b.SubstitutedBy); err != nil {
		return err
	}
	if err := p.sponsors(ctx, tx, rec, b.Sponsor, coSponsors, multiSponsors); err != nil {
		return err
	}

	var rolls []openleg.Vote
	for _, roll := range b.Votes.Items {
		if strings.TrimSpace(roll.Version) == v.Version {
			rolls = append(rolls, roll)
		}
	}
	if _, err := votes.Stage(ctx, tx, rec, rolls); err != nil {
		return fmt.Errorf("staging votes: %w", err)
	}

	rec.Attrs = attrs
	return nil
}

func (*Processor) substitution(ctx context.Context, tx *importer.Transcription, rec *legislation.Record, attrs *legislation.BillAttrs, target *openleg.BillID) error {
	rec.SetRef(RoleSubstitutedBy)
	if target == nil || target.BasePrintNo == "" {
		return nil
	}
	title := target.Title()
	attrs.SubstitutedBy = title
	found, err := tx.RecordsByTitle(ctx, legislation.KindBill, []string{title})
	if err != nil {
		return err
	}
	if sub, ok := found[title]; ok {
		rec.SetRef(RoleSubstitutedBy, sub.ID)
		return nil
	}
	logger.FromContext(ctx).Warn("substitution target not imported yet", "target", title)
	return nil
}

func (*Processor) sponsors(ctx context.Context, tx *importer.Transcription, rec *legislation.Record, main *sponsor, co, multi []openleg.Member) error {
	rec.SetRef(RoleSponsor)
	if main != nil && main.Member != nil {
		ref, err := tx.Reference(ctx, legislation.TableSenator, main.Member.Name())
		if err != nil {
			return err
		}
		if ref != nil {
			rec.SetRef(RoleSponsor, ref.ID)
		}
	}

	for role, members := range map[string][]openleg.Member{RoleCoSponsors: co, RoleMultiSponsors: multi} {
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.Name())
		}
		refs, err := tx.References(ctx, legislation.TableSenator, names)
		if err != nil {
			return err
		}
		rec.SetRef(role, importer.RefIDs(refs)...)
	}
	return nil
}
