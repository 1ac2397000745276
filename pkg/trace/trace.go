// Package trace turns flat event rows into one symbol-profile record per
// case.
package trace

import (
	"sort"
	"time"

	"github.com/logflow/tracesim/internal/model"
	"github.com/logflow/tracesim/pkg/alias"
	tserrors "github.com/logflow/tracesim/pkg/errors"
)

// Record is the compact representation of one case.
// len(Profile) == len(TBTWList) always holds.
type Record struct {
	CaseID    string
	Profile   string
	TBTW      float64
	TBTWList  []float64
	StartTime time.Time
}

// Len returns the number of events in the trace.
func (r Record) Len() int {
	return len(r.Profile)
}

// Clone returns a copy that shares no memory with r.
func (r Record) Clone() Record {
	r.TBTWList = append([]float64(nil), r.TBTWList...)
	return r
}

// Reformat groups events by case, orders every case by start time and
// builds its record. Records are returned ordered by start time; cases
// starting at the same instant keep case-id order. The input is not
// modified.
func Reformat(events []model.RawEvent, tbl *alias.Table) ([]Record, error) {
	byCase := make(map[string][]int)
	for i := range events {
		id := events[i].CaseID
		byCase[id] = append(byCase[id], i)
	}

	cases := make([]string, 0, len(byCase))
	for id := range byCase {
		cases = append(cases, id)
	}
	sort.Strings(cases)

	records := make([]Record, 0, len(cases))
	for _, id := range cases {
		idx := byCase[id]
		sort.SliceStable(idx, func(a, b int) bool {
			return events[idx[a]].Start.Before(events[idx[b]].Start)
		})

		profile := make([]byte, 0, len(idx))
		rec := Record{
			CaseID:    id,
			TBTWList:  make([]float64, 0, len(idx)),
			StartTime: events[idx[0]].Start,
		}
		for _, i := range idx {
			ev := &events[i]
			sym, ok := tbl.Symbol(ev)
			if !ok {
				return nil, tserrors.New(tserrors.CodeUnknownSymbol, "event has no alias").
					WithContext("case", id).
					WithContext("activity", ev.Activity)
			}
			profile = append(profile, sym)
			rec.TBTW += ev.TBTW
			rec.TBTWList = append(rec.TBTWList, ev.TBTW)
		}
		rec.Profile = string(profile)
		records = append(records, rec)
	}

	sort.SliceStable(records, func(a, b int) bool {
		return records[a].StartTime.Before(records[b].StartTime)
	})
	return records, nil
}

// Profiles returns the profiles of records, mostly for diagnostics.
func Profiles(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Profile
	}
	return out
}
