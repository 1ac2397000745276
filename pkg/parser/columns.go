package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/logflow/tracesim/internal/model"
)

// Well-known spellings tried after the configured column name.
var (
	caseIDNames   = []string{"caseid", "case_id", "case:concept:name", "Case ID", "CaseID"}
	activityNames = []string{"task", "activity", "concept:name", "Activity"}
	resourceNames = []string{"role", "resource", "user", "org:resource", "Resource"}
	startNames    = []string{"start_timestamp", "time:timestamp", "timestamp", "Timestamp"}
	endNames      = []string{"end_timestamp", "complete_timestamp"}
)

// Columns maps the fields of a tabular row onto a RawEvent.
type Columns struct {
	header   []string
	caseID   int
	activity int
	resource int // -1 when absent
	start    int
	end      int // == start when absent
	tbtw     int // -1 when absent
	layout   string
}

// ResolveColumns locates the configured columns in a header row.
func ResolveColumns(header []string, cfg Config) (*Columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	find := func(configured string, fallbacks []string) int {
		if configured != "" {
			if i, ok := idx[configured]; ok {
				return i
			}
		}
		for _, name := range fallbacks {
			if i, ok := idx[name]; ok {
				return i
			}
		}
		return -1
	}
	missing := func(name string) error {
		return fmt.Errorf("%w: %q (header: %s)", ErrMissingColumn, name, strings.Join(header, ","))
	}

	cs := &Columns{header: header, layout: cfg.TimestampFormat, tbtw: -1}
	if cs.caseID = find(cfg.CaseIDColumn, caseIDNames); cs.caseID < 0 {
		return nil, missing(cfg.CaseIDColumn)
	}
	if cs.activity = find(cfg.ActivityColumn, activityNames); cs.activity < 0 {
		return nil, missing(cfg.ActivityColumn)
	}
	if cs.start = find(cfg.StartColumn, startNames); cs.start < 0 {
		return nil, missing(cfg.StartColumn)
	}
	if cs.end = find(cfg.EndColumn, endNames); cs.end < 0 {
		cs.end = cs.start
	}
	cs.resource = find(cfg.ResourceColumn, resourceNames)
	if cfg.TBTWColumn != "" {
		if cs.tbtw = find(cfg.TBTWColumn, nil); cs.tbtw < 0 {
			return nil, missing(cfg.TBTWColumn)
		}
	}
	return cs, nil
}

// Event builds a RawEvent from one row. Row numbers are 1-based and
// count the header.
func (cs *Columns) Event(fields []string, row int) (*model.RawEvent, error) {
	get := func(i int) string {
		if i >= 0 && i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}

	ev := &model.RawEvent{
		CaseID:   get(cs.caseID),
		Activity: get(cs.activity),
		Resource: get(cs.resource),
	}
	if ev.CaseID == "" {
		return nil, fmt.Errorf("%w: row %d has no case id", ErrMissingColumn, row)
	}

	var err error
	if ev.Start, err = ParseTimestamp(get(cs.start), cs.layout); err != nil {
		return nil, fmt.Errorf("row %d: %w", row, err)
	}
	ev.End = ev.Start
	if cs.end != cs.start {
		if v := get(cs.end); v != "" {
			if ev.End, err = ParseTimestamp(v, cs.layout); err != nil {
				return nil, fmt.Errorf("row %d: %w", row, err)
			}
		}
	}
	if cs.tbtw >= 0 {
		v := get(cs.tbtw)
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: row %d: tbtw %q", ErrInvalidNumber, row, v)
		}
		ev.TBTW = f
	}

	for i, name := range cs.header {
		switch i {
		case cs.caseID, cs.activity, cs.resource, cs.start, cs.end, cs.tbtw:
			continue
		}
		if v := get(i); v != "" {
			ev.SetAttribute(name, v)
		}
	}
	return ev, nil
}
