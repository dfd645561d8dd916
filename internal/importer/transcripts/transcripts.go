// Package transcripts imports floor session transcripts and public hearing
// transcripts. Each item becomes exactly one record.
package transcripts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/openleg"
)

// RoleCommittees holds a hearing's committee references.
const RoleCommittees = "committees"

// keyLayout renders session timestamps in transcript titles.
const keyLayout = "2006-01-02T15:04:05"

// Transcript is the decoded floor transcript view.
type Transcript struct {
	DateTime    string `json:"dateTime"`
	SessionType string `json:"sessionType"`
	Location    string `json:"location"`
	Text        string `json:"text"`
}

// Processor imports floor transcripts.
type Processor struct {
	Location *time.Location
}

// New returns the transcripts processor.
func New(loc *time.Location) *Processor { return &Processor{Location: loc} }

func (*Processor) ID() string                    { return "transcripts" }
func (*Processor) Kind() legislation.Kind        { return legislation.KindTranscript }
func (*Processor) Endpoint() string              { return "transcripts" }
func (*Processor) ItemParams() map[string]string { return nil }

// UpdateResource maps a transcript update token to /{dateTime}.
func (*Processor) UpdateResource(token json.RawMessage) (openleg.Path, error) {
	var t struct {
		DateTime string `json:"dateTime"`
	}
	if err := json.Unmarshal(token, &t); err != nil {
		return nil, fmt.Errorf("decoding transcript update token: %w", err)
	}
	if strings.TrimSpace(t.DateTime) == "" {
		return nil, errors.New("transcript update token has no dateTime")
	}
	return openleg.P(t.DateTime), nil
}

func (*Processor) Explode(resp openleg.Response) ([]Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(resp.Result(), &t); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	return []Transcript{t}, nil
}

// NaturalKey is the session timestamp at second precision.
func (p *Processor) NaturalKey(t Transcript) (string, error) {
	when, err := p.when(t)
	if err != nil {
		return "", err
	}
	return when.Format(keyLayout), nil
}

func (p *Processor) Transcribe(_ context.Context, _ *importer.Transcription, rec *legislation.Record, t Transcript) error {
	when, err := p.when(t)
	if err != nil {
		return err
	}
	rec.Attrs = legislation.TranscriptAttrs{
		DateTime:    when,
		SessionType: strings.TrimSpace(t.SessionType),
		Location:    strings.TrimSpace(t.Location),
		Text:        t.Text,
	}
	return nil
}

func (p *Processor) when(t Transcript) (time.Time, error) {
	if strings.TrimSpace(t.DateTime) == "" {
		return time.Time{}, errors.New("transcript has no session timestamp")
	}
	return openleg.ParseDateTime(t.DateTime, p.Location)
}

type hearingCommittee struct {
	Name    string `json:"name"`
	Chamber string `json:"chamber"`
	Type    string `json:"type"`
}

// Hearing is the decoded public hearing view.
type Hearing struct {
	ID         json.Number                    `json:"id"`
	Title      string                         `json:"title"`
	Address    string                         `json:"address"`
	Date       string                         `json:"date"`
	StartTime  string                         `json:"startTime"`
	EndTime    string                         `json:"endTime"`
	Committees openleg.List[hearingCommittee] `json:"committees"`
	Text       string                         `json:"text"`
}

// HearingProcessor imports public hearings.
type HearingProcessor struct{}

// NewHearings returns the public hearings processor.
func NewHearings() *HearingProcessor { return &HearingProcessor{} }

func (*HearingProcessor) ID() string                    { return "hearings" }
func (*HearingProcessor) Kind() legislation.Kind        { return legislation.KindHearing }
func (*HearingProcessor) Endpoint() string              { return "hearings" }
func (*HearingProcessor) ItemParams() map[string]string { return nil }

// UpdateResource maps a hearing update token to /{id}.
func (*HearingProcessor) UpdateResource(token json.RawMessage) (openleg.Path, error) {
	var t struct {
		HearingID struct {
			ID json.Number `json:"id"`
		} `json:"hearingId"`
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(token, &t); err != nil {
		return nil, fmt.Errorf("decoding hearing update token: %w", err)
	}
	id := t.HearingID.ID
	if id == "" {
		id = t.ID
	}
	if id == "" {
		return nil, errors.New("hearing update token has no id")
	}
	return openleg.P(id.String()), nil
}

func (*HearingProcessor) Explode(resp openleg.Response) ([]Hearing, error) {
	var h Hearing
	if err := json.Unmarshal(resp.Result(), &h); err != nil {
		return nil, fmt.Errorf("decoding hearing: %w", err)
	}
	return []Hearing{h}, nil
}

// NaturalKey is the API's hearing identifier.
func (*HearingProcessor) NaturalKey(h Hearing) (string, error) {
	id := strings.TrimSpace(h.ID.String())
	if id == "" {
		return "", errors.New("hearing has no id")
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return "", fmt.Errorf("hearing id %q is not numeric", id)
	}
	return id, nil
}

func (*HearingProcessor) Transcribe(ctx context.Context, tx *importer.Transcription, rec *legislation.Record, h Hearing) error {
	attrs := legislation.HearingAttrs{
		HearingID: h.ID.String(),
		Title:     strings.TrimSpace(h.Title),
		Address:   strings.TrimSpace(h.Address),
		Date:      h.Date,
		StartTime: h.StartTime,
		EndTime:   h.EndTime,
		Text:      h.Text,
	}
	names := make([]string, 0, len(h.Committees.Items))
	for _, c := range h.Committees.Items {
		names = append(names, c.Name)
		attrs.Committees = append(attrs.Committees, strings.TrimSpace(c.Name))
	}
	refs, err := tx.References(ctx, legislation.TableCommittee, names)
	if err != nil {
		return err
	}
	rec.SetRef(RoleCommittees, importer.RefIDs(refs)...)
	rec.Attrs = attrs
	return nil
}
