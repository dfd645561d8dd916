// Package benchmark contains Go benchmarks for response resolution and the
// import pipeline, measuring throughput and allocation behaviour.
package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/importer/bills"
	"github.com/nysenate/openleg-sync/internal/importer/calendars"
	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/openleg"
	"github.com/nysenate/openleg-sync/internal/store/memory"
)

func billPayload(b *testing.B, versions int) openleg.Payload {
	b.Helper()
	names := make([]string, versions)
	amendments := make([]string, versions)
	for i := range names {
		v := ""
		if i > 0 {
			v = string(rune('A' + i - 1))
		}
		names[i] = fmt.Sprintf("%q", v)
		amendments[i] = fmt.Sprintf(`%q: {"version": %q, "lawSection": "Education Law",
			"coSponsors": {"items": [{"fullName": "Jane Doe"}], "size": 1}}`, v, v)
	}
	raw := fmt.Sprintf(`{"success": true, "responseType": "bill", "result": {
		"basePrintNo": "S100", "session": 2023, "title": "Relates to school bus safety",
		"sponsor": {"member": {"fullName": "John Smith"}},
		"amendmentVersions": {"items": [%s], "size": %d},
		"amendments": {"items": {%s}, "size": %d},
		"votes": {"items": [{"version": "", "voteType": "FLOOR", "voteDate": "2023-02-01", "sequenceNo": 1,
			"memberVotes": {"items": {"AYE": {"items": [], "size": 60}, "NAY": {"items": [], "size": 2}}}}], "size": 1}
	}}`, strings.Join(names, ","), versions, strings.Join(amendments, ","), versions)

	var p openleg.Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		b.Fatal(err)
	}
	return p
}

func seededStore() *memory.Store {
	mem := memory.New()
	mem.AddReference(legislation.TableSenator, "sen-smith", "John Smith")
	mem.AddReference(legislation.TableSenator, "sen-doe", "Jane Doe")
	return mem
}

// BenchmarkResolveItem measures envelope decoding and constructor lookup for
// a single-item response.
func BenchmarkResolveItem(b *testing.B) {
	reg := openleg.DefaultRegistry(nil, nil)
	p := billPayload(b, 1)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp := reg.Resolve(p, "bills", openleg.CategoryItem)
		if !resp.Success() {
			b.Fatal(resp.Message())
		}
	}
}

// BenchmarkBillResync measures re-importing one bill with five amendment
// versions. Every iteration after the first updates existing records and
// replaces their vote children.
func BenchmarkBillResync(b *testing.B) {
	ctx := context.Background()
	mem := seededStore()
	d := importer.New[bills.Version](bills.New(nil), importer.Deps{Store: mem, References: mem})
	resp := openleg.NewGeneric(billPayload(b, 5))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if out := d.Process(ctx, resp); !out.Success {
			b.Fatal(out.Err)
		}
	}
}

// BenchmarkCalendarImport measures a floor calendar of 200 entries split
// across four sections.
func BenchmarkCalendarImport(b *testing.B) {
	ctx := context.Background()
	sections := []string{"THIRD_READING", "ORDER_OF_THE_FIRST_REPORT", "STARRED_ON_THIRD_READING", "ADVANCE_TO_THIRD_READING"}
	groups := make([]string, len(sections))
	for s, name := range sections {
		entries := make([]string, 50)
		for i := range entries {
			calNo := s*50 + i + 1
			entries[i] = fmt.Sprintf(`{"basePrintNo": "S%d", "session": 2023, "billCalNo": %d, "sectionType": %q}`, calNo, calNo, name)
		}
		groups[s] = fmt.Sprintf(`%q: {"items": [%s], "size": 50}`, name, strings.Join(entries, ","))
	}
	raw := fmt.Sprintf(`{"success": true, "responseType": "calendar", "result": {
		"year": 2023, "calendarNumber": 12, "calDate": "2023-03-01",
		"floorCalendar": {"entriesBySection": {"items": {%s}}},
		"supplementalCalendars": {"items": {}}, "activeLists": {"items": {}}
	}}`, strings.Join(groups, ","))
	var p openleg.Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		b.Fatal(err)
	}

	mem := memory.New()
	d := importer.New[calendars.Calendar](calendars.New(nil), importer.Deps{Store: mem, References: mem})
	resp := openleg.NewGeneric(p)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if out := d.Process(ctx, resp); !out.Success {
			b.Fatal(out.Err)
		}
	}
}
