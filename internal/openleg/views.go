package openleg

import (
	"encoding/json"
	"strconv"
	"strings"
)

// List is the {"items": [...], "size": n} wrapper the API puts around every
// collection.
type List[T any] struct {
	Items []T `json:"items"`
	Size  int `json:"size"`
}

// Map is the {"items": {...}, "size": n} wrapper used for keyed collections
// such as amendments by version.
type Map[T any] struct {
	Items map[string]T `json:"items"`
	Size  int          `json:"size"`
}

// BillID identifies a bill print number within a session.
type BillID struct {
	BasePrintNo string `json:"basePrintNo"`
	PrintNo     string `json:"printNo,omitempty"`
	Session     int    `json:"session"`
	Version     string `json:"version,omitempty"`
}

// BaseTitle is the local title of the base bill, e.g. "2023-S100".
func (b BillID) BaseTitle() string {
	return strconv.Itoa(b.Session) + "-" + strings.TrimSpace(b.BasePrintNo)
}

// Title is the local title of the specific amendment version, e.g.
// "2023-S100A". It falls back to the print number when the version is not
// set separately.
func (b BillID) Title() string {
	if b.Version != "" || b.PrintNo == "" {
		return b.BaseTitle() + strings.TrimSpace(b.Version)
	}
	return strconv.Itoa(b.Session) + "-" + strings.TrimSpace(b.PrintNo)
}

// Member is a legislator as embedded in bills and votes.
type Member struct {
	MemberID  int    `json:"memberId"`
	ShortName string `json:"shortName"`
	FullName  string `json:"fullName"`
	Chamber   string `json:"chamber,omitempty"`
}

// Name is the best available display name.
func (m Member) Name() string {
	if m.FullName != "" {
		return m.FullName
	}
	return m.ShortName
}

// CommitteeID names a committee within a chamber.
type CommitteeID struct {
	Chamber string `json:"chamber"`
	Name    string `json:"name"`
}

// Vote is one roll call as the API reports it.
type Vote struct {
	Version     string            `json:"version"`
	VoteType    string            `json:"voteType"`
	VoteDate    string            `json:"voteDate"`
	SequenceNo  int               `json:"sequenceNo"`
	Committee   *CommitteeID      `json:"committee"`
	BillID      *BillID           `json:"billId"`
	MemberVotes Map[List[Member]] `json:"memberVotes"`
}

// DecodeItems unmarshals a List wrapper's items. Null or absent wrappers
// yield nil.
func DecodeItems[T any](raw json.RawMessage) ([]T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var l List[T]
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return l.Items, nil
}
