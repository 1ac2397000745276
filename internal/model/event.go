// Package model defines core data structures for tracesim.
package model

import "time"

// RawEvent represents a single row of an event log.
type RawEvent struct {
	// CaseID identifies the process instance (trace).
	CaseID string

	// Activity is the event name/activity label.
	Activity string

	// Resource is the actor/role performing the activity. Empty when the
	// log carries no resource column.
	Resource string

	// Start and End bound the event. Single-timestamp logs set End = Start.
	Start time.Time
	End   time.Time

	// TBTW is the time elapsed before this event in its case, in seconds.
	// It is 0 for the first event of a case.
	TBTW float64

	// Attributes holds the remaining columns.
	Attributes map[string]string
}

// Attribute returns the value of a named attribute. The well-known names
// resolve to the dedicated fields.
func (e *RawEvent) Attribute(name string) string {
	v, _ := e.LookupAttribute(name)
	return v
}

// LookupAttribute is Attribute that also reports whether the event carries
// the attribute. Well-known names always resolve.
func (e *RawEvent) LookupAttribute(name string) (string, bool) {
	switch name {
	case "activity", "task", "concept:name":
		return e.Activity, true
	case "resource", "role", "user", "org:resource":
		return e.Resource, true
	case "caseid", "case_id", "case:concept:name":
		return e.CaseID, true
	}
	v, ok := e.Attributes[name]
	return v, ok
}

// SetAttribute stores an extra column value.
func (e *RawEvent) SetAttribute(key, value string) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
}
