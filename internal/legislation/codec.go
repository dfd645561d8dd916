package legislation

import (
	"encoding/json"
	"fmt"
)

// EncodeAttrs serializes attributes for storage. Nil attributes encode as
// JSON null.
func EncodeAttrs(a Attrs) ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a)
}

// DecodeAttrs restores attributes previously written by EncodeAttrs for the
// given kind (a record Kind or a ChildKind).
func DecodeAttrs(kind string, data []byte) (Attrs, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var err error
	switch kind {
	case string(KindBill):
		var a BillAttrs
		err = json.Unmarshal(data, &a)
		return a, wrapDecode(kind, err)
	case string(KindAgenda):
		var a AgendaAttrs
		err = json.Unmarshal(data, &a)
		return a, wrapDecode(kind, err)
	case string(KindCalendar):
		var a CalendarAttrs
		err = json.Unmarshal(data, &a)
		return a, wrapDecode(kind, err)
	case string(KindTranscript):
		var a TranscriptAttrs
		err = json.Unmarshal(data, &a)
		return a, wrapDecode(kind, err)
	case string(KindHearing):
		var a HearingAttrs
		err = json.Unmarshal(data, &a)
		return a, wrapDecode(kind, err)
	case string(ChildVote):
		var a VoteTally
		err = json.Unmarshal(data, &a)
		return a, wrapDecode(kind, err)
	case string(ChildCalendarSection):
		var a CalendarSection
		err = json.Unmarshal(data, &a)
		return a, wrapDecode(kind, err)
	default:
		return nil, fmt.Errorf("unknown attribute kind %q", kind)
	}
}

func wrapDecode(kind string, err error) error {
	if err != nil {
		return fmt.Errorf("decoding %s attributes: %w", kind, err)
	}
	return nil
}

// CloneAttrs deep-copies a through the codec.
func CloneAttrs(a Attrs) Attrs {
	if a == nil {
		return nil
	}
	data, err := EncodeAttrs(a)
	if err != nil {
		return a
	}
	out, err := DecodeAttrs(a.AttrsKind(), data)
	if err != nil {
		return a
	}
	return out
}
