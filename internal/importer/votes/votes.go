// Package votes converts API roll calls into vote-tally child records. Bills
// and agendas stage the same collection shape through it.
package votes

import (
	"context"
	"sort"
	"strings"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/openleg"
)

// Collection is the child collection name vote tallies are stored under.
const Collection = "votes"

// Tally converts one roll call. Buckets outside the known set are kept so
// that a new vote code is not silently dropped.
func Tally(v openleg.Vote) legislation.VoteTally {
	t := legislation.VoteTally{
		VoteType: strings.ToUpper(strings.TrimSpace(v.VoteType)),
		VoteDate: v.VoteDate,
		Version:  v.Version,
		Sequence: v.SequenceNo,
		Counts:   make(map[string]int, len(legislation.VoteBuckets)),
	}
	for _, bucket := range legislation.VoteBuckets {
		t.Counts[bucket] = 0
	}
	for code, members := range v.MemberVotes.Items {
		bucket := strings.ToUpper(strings.TrimSpace(code))
		names := make([]string, 0, len(members.Items))
		for _, m := range members.Items {
			if n := m.Name(); n != "" {
				names = append(names, n)
			}
		}
		count := len(members.Items)
		if count == 0 {
			count = members.Size
		}
		t.Counts[bucket] += count
		if len(names) > 0 {
			if t.Members == nil {
				t.Members = make(map[string][]string)
			}
			t.Members[bucket] = append(t.Members[bucket], names...)
		}
	}
	if v.BillID != nil {
		t.BillTitle = v.BillID.Title()
	}
	if v.Committee != nil {
		t.CommitteeName = v.Committee.Name
	}
	return t
}

// Stage builds tallies for rolls and stages them with StageTallies.
func Stage(ctx context.Context, tx *importer.Transcription, rec *legislation.Record, rolls []openleg.Vote) ([]legislation.VoteTally, error) {
	tallies := make([]legislation.VoteTally, 0, len(rolls))
	for _, roll := range rolls {
		tallies = append(tallies, Tally(roll))
	}
	return StageTallies(ctx, tx, rec, tallies)
}

// StageTallies resolves each committee vote's committee reference and stages
// tallies as rec's complete vote collection in date/sequence order.
func StageTallies(ctx context.Context, tx *importer.Transcription, rec *legislation.Record, tallies []legislation.VoteTally) ([]legislation.VoteTally, error) {
	for i := range tallies {
		if tallies[i].CommitteeName == "" {
			continue
		}
		ref, err := tx.Reference(ctx, legislation.TableCommittee, tallies[i].CommitteeName)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			tallies[i].CommitteeID = ref.ID
		}
	}
	sort.SliceStable(tallies, func(i, j int) bool {
		if tallies[i].VoteDate != tallies[j].VoteDate {
			return tallies[i].VoteDate < tallies[j].VoteDate
		}
		return tallies[i].Sequence < tallies[j].Sequence
	})

	attrs := make([]legislation.Attrs, len(tallies))
	for i, t := range tallies {
		attrs[i] = t
	}
	tx.ReplaceChildren(rec, Collection, legislation.ChildVote, attrs)
	return tallies, nil
}
