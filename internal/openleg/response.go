package openleg

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/nysenate/openleg-sync/pkg/errors"
)

// Response is the read-only view every resolved payload satisfies.
type Response interface {
	Success() bool
	Message() string
	Type() string
	Result() json.RawMessage
	Total() int
	Raw() Payload
}

// envelope is the common shape of every API response.
type envelope struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	ResponseType string          `json:"responseType"`
	Result       json.RawMessage `json:"result"`
	Total        *int            `json:"total"`
	OffsetStart  int             `json:"offsetStart"`
	OffsetEnd    int             `json:"offsetEnd"`
	Limit        int             `json:"limit"`
	FromDateTime string          `json:"fromDateTime"`
	ToDateTime   string          `json:"toDateTime"`
}

func decodeEnvelope(p Payload) (envelope, error) {
	var env envelope
	raw, err := json.Marshal(p)
	if err != nil {
		return env, fmt.Errorf("%w: re-encoding payload: %v", apperrors.ErrInvalidPayload, err)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", apperrors.ErrInvalidPayload, err)
	}
	return env, nil
}

// Generic is the untyped Response. It never fails to construct: fields that
// are absent or of the wrong shape read as zero values.
type Generic struct {
	raw          Payload
	success      bool
	message      string
	responseType string
	result       json.RawMessage
	total        int
}

// NewGeneric wraps p without validating it.
func NewGeneric(p Payload) *Generic {
	g := &Generic{raw: p}
	if p == nil {
		return g
	}
	_ = json.Unmarshal(p["success"], &g.success)
	_ = json.Unmarshal(p["message"], &g.message)
	_ = json.Unmarshal(p["responseType"], &g.responseType)
	g.result = p["result"]
	if err := json.Unmarshal(p["total"], &g.total); err != nil {
		g.total = 0
	}
	return g
}

func (g *Generic) Success() bool           { return g.success }
func (g *Generic) Message() string         { return g.message }
func (g *Generic) Type() string            { return g.responseType }
func (g *Generic) Result() json.RawMessage { return g.result }
func (g *Generic) Raw() Payload            { return g.raw }

// Total returns the declared total, or 0 when the payload carries none.
func (g *Generic) Total() int { return g.total }

// ItemResponse wraps a single-item payload.
type ItemResponse struct {
	*Generic
}

// NewItemResponse validates that p has a well formed envelope.
func NewItemResponse(p Payload) (Response, error) {
	if _, err := decodeEnvelope(p); err != nil {
		return nil, err
	}
	return &ItemResponse{Generic: NewGeneric(p)}, nil
}

// DecodeResult unmarshals the result object into v.
func (r *ItemResponse) DecodeResult(v any) error {
	if len(r.result) == 0 || string(r.result) == "null" {
		return fmt.Errorf("%w: response has no result", apperrors.ErrInvalidPayload)
	}
	if err := json.Unmarshal(r.result, v); err != nil {
		return fmt.Errorf("%w: decoding result: %v", apperrors.ErrInvalidPayload, err)
	}
	return nil
}

// listResult is the paged shape shared by search and update responses.
type listResult struct {
	Items []json.RawMessage `json:"items"`
	Size  int               `json:"size"`
}

// SearchResponse wraps a paged list of search results.
type SearchResponse struct {
	*Generic
	offsetStart int
	offsetEnd   int
	limit       int
	items       []json.RawMessage
}

// NewSearchResponse validates the paging fields and the result list.
func NewSearchResponse(p Payload) (Response, error) {
	env, err := decodeEnvelope(p)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(env.Result)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{
		Generic:     NewGeneric(p),
		offsetStart: env.OffsetStart,
		offsetEnd:   env.OffsetEnd,
		limit:       env.Limit,
		items:       items,
	}, nil
}

func (r *SearchResponse) OffsetStart() int         { return r.offsetStart }
func (r *SearchResponse) OffsetEnd() int           { return r.offsetEnd }
func (r *SearchResponse) Limit() int               { return r.limit }
func (r *SearchResponse) Items() []json.RawMessage { return r.items }

// HasMore reports whether a page after this one exists.
func (r *SearchResponse) HasMore() bool {
	return r.offsetEnd > 0 && r.offsetEnd < r.total
}

// NextOffset is the 1-based offset of the following page.
func (r *SearchResponse) NextOffset() int {
	return r.offsetEnd + 1
}

// UpdateResponse wraps a paged list of update tokens over a time window.
type UpdateResponse struct {
	*SearchResponse
	from time.Time
	to   time.Time
}

// NewUpdateResponse validates the window bounds in addition to paging.
// Window timestamps carry no zone and are read as UTC.
func NewUpdateResponse(p Payload) (Response, error) {
	return newUpdateResponse(p, nil)
}

// UpdateResponseIn is NewUpdateResponse with window timestamps read in loc.
func UpdateResponseIn(loc *time.Location) Constructor {
	return func(p Payload) (Response, error) { return newUpdateResponse(p, loc) }
}

func newUpdateResponse(p Payload, loc *time.Location) (Response, error) {
	r, err := NewSearchResponse(p)
	if err != nil {
		return nil, err
	}
	env, _ := decodeEnvelope(p)
	out := &UpdateResponse{SearchResponse: r.(*SearchResponse)}
	if env.FromDateTime != "" {
		if out.from, err = ParseDateTime(env.FromDateTime, loc); err != nil {
			return nil, fmt.Errorf("%w: fromDateTime: %v", apperrors.ErrInvalidPayload, err)
		}
	}
	if env.ToDateTime != "" {
		if out.to, err = ParseDateTime(env.ToDateTime, loc); err != nil {
			return nil, fmt.Errorf("%w: toDateTime: %v", apperrors.ErrInvalidPayload, err)
		}
	}
	return out, nil
}

func (r *UpdateResponse) FromDateTime() time.Time { return r.from }
func (r *UpdateResponse) ToDateTime() time.Time   { return r.to }

func decodeList(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list listResult
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: result is not a list: %v", apperrors.ErrInvalidPayload, err)
	}
	return list.Items, nil
}
