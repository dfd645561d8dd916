package legislation

import "time"

// Attrs is the kind-specific payload of a record or child record.
type Attrs interface {
	AttrsKind() string
}

// BillAttrs describes one amendment version of a bill.
type BillAttrs struct {
	Session          int          `json:"session"`
	BasePrintNo      string       `json:"basePrintNo"`
	PrintNo          string       `json:"printNo"`
	Version          string       `json:"version"`
	ActiveVersion    string       `json:"activeVersion,omitempty"`
	Chamber          string       `json:"chamber,omitempty"`
	BillType         string       `json:"billType,omitempty"`
	Title            string       `json:"title,omitempty"`
	Summary          string       `json:"summary,omitempty"`
	PublishedAt      time.Time    `json:"publishedAt"`
	Status           string       `json:"status,omitempty"`
	StatusDate       string       `json:"statusDate,omitempty"`
	Committee        string       `json:"committee,omitempty"`
	LawSection       string       `json:"lawSection,omitempty"`
	LawCode          string       `json:"lawCode,omitempty"`
	ActClause        string       `json:"actClause,omitempty"`
	Memo             string       `json:"memo,omitempty"`
	FullText         string       `json:"fullText,omitempty"`
	Stricken         bool         `json:"stricken,omitempty"`
	Uni              bool         `json:"uni,omitempty"`
	SameAs           []string     `json:"sameAs,omitempty"`
	PreviousVersions []string     `json:"previousVersions,omitempty"`
	Milestones       []Milestone  `json:"milestones,omitempty"`
	Actions          []BillAction `json:"actions,omitempty"`
	SubstitutedBy    string       `json:"substitutedBy,omitempty"`
}

func (BillAttrs) AttrsKind() string { return string(KindBill) }

// Milestone is one step of a bill's progress.
type Milestone struct {
	Status        string `json:"status"`
	Description   string `json:"description,omitempty"`
	ActionDate    string `json:"actionDate,omitempty"`
	CommitteeName string `json:"committeeName,omitempty"`
}

// BillAction is one entry of a bill's action history.
type BillAction struct {
	Date       string `json:"date"`
	Chamber    string `json:"chamber,omitempty"`
	SequenceNo int    `json:"sequenceNo"`
	Text       string `json:"text"`
}

// AgendaAttrs describes one committee meeting addendum of a weekly agenda.
type AgendaAttrs struct {
	Year            int       `json:"year"`
	Week            int       `json:"week"`
	Committee       string    `json:"committee"`
	Addendum        string    `json:"addendum,omitempty"`
	Chair           string    `json:"chair,omitempty"`
	Location        string    `json:"location,omitempty"`
	MeetingDateTime time.Time `json:"meetingDateTime"`
	Notes           string    `json:"notes,omitempty"`
	ModifiedAt      time.Time `json:"modifiedAt"`
	HasVotes        bool      `json:"hasVotes,omitempty"`
	BillTitles      []string  `json:"billTitles,omitempty"`
}

func (AgendaAttrs) AttrsKind() string { return string(KindAgenda) }

// CalendarAttrs describes one floor calendar number.
type CalendarAttrs struct {
	Year           int       `json:"year"`
	CalendarNumber int       `json:"calendarNumber"`
	CalDate        string    `json:"calDate,omitempty"`
	ReleasedAt     time.Time `json:"releasedAt"`
}

func (CalendarAttrs) AttrsKind() string { return string(KindCalendar) }

// TranscriptAttrs describes a floor session transcript.
type TranscriptAttrs struct {
	DateTime    time.Time `json:"dateTime"`
	SessionType string    `json:"sessionType,omitempty"`
	Location    string    `json:"location,omitempty"`
	Text        string    `json:"text,omitempty"`
}

func (TranscriptAttrs) AttrsKind() string { return string(KindTranscript) }

// HearingAttrs describes a public hearing transcript.
type HearingAttrs struct {
	HearingID  string   `json:"hearingId"`
	Title      string   `json:"title,omitempty"`
	Address    string   `json:"address,omitempty"`
	Date       string   `json:"date,omitempty"`
	StartTime  string   `json:"startTime,omitempty"`
	EndTime    string   `json:"endTime,omitempty"`
	Committees []string `json:"committees,omitempty"`
	Text       string   `json:"text,omitempty"`
}

func (HearingAttrs) AttrsKind() string { return string(KindHearing) }

// Vote buckets as the API names them.
const (
	VoteExcused            = "EXC"
	VoteAyeWithReservation = "AYEWR"
	VoteAye                = "AYE"
	VoteNay                = "NAY"
	VoteAbstained          = "ABD"
	VoteAbsent             = "ABS"
)

// VoteBuckets lists the vote buckets in display order.
var VoteBuckets = []string{VoteExcused, VoteAyeWithReservation, VoteAye, VoteNay, VoteAbstained, VoteAbsent}

// VoteTally is one voting session on a bill version.
type VoteTally struct {
	VoteType      string              `json:"voteType"`
	VoteDate      string              `json:"voteDate"`
	Version       string              `json:"version"`
	Sequence      int                 `json:"sequence"`
	CommitteeID   string              `json:"committeeId,omitempty"`
	CommitteeName string              `json:"committeeName,omitempty"`
	BillTitle     string              `json:"billTitle,omitempty"`
	BillID        string              `json:"billId,omitempty"`
	Counts        map[string]int      `json:"counts"`
	Members       map[string][]string `json:"members,omitempty"`
}

func (VoteTally) AttrsKind() string { return string(ChildVote) }

// Total returns the number of recorded votes across all buckets.
func (v VoteTally) Total() int {
	n := 0
	for _, c := range v.Counts {
		n += c
	}
	return n
}

// Calendar section types.
const (
	SectionFloor        = "floor"
	SectionSupplemental = "supplemental"
	SectionActiveList   = "active_list"
)

// CalendarSection is one floor, supplemental or active-list part of a
// calendar, with its ordered bill entries.
type CalendarSection struct {
	SectionType string          `json:"sectionType"`
	Version     string          `json:"version,omitempty"`
	Sequence    int             `json:"sequence,omitempty"`
	ReleasedAt  time.Time       `json:"releasedAt"`
	Notes       string          `json:"notes,omitempty"`
	Entries     []CalendarEntry `json:"entries"`
}

func (CalendarSection) AttrsKind() string { return string(ChildCalendarSection) }

// CalendarEntry places one bill in a calendar section. Sequence is the
// 1-based position within the section; BillID is empty when the bill has not
// been imported yet.
type CalendarEntry struct {
	BillID      string `json:"billId,omitempty"`
	BillTitle   string `json:"billTitle"`
	CalNo       int    `json:"calNo"`
	SectionType string `json:"sectionType,omitempty"`
	Sequence    int    `json:"sequence"`
	HighBill    bool   `json:"highBill,omitempty"`
}
