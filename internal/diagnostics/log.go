// Package diagnostics accumulates the non-fatal, run-scoped findings the
// core produces while ingesting and projecting: rejected writes,
// unresolved constraint patterns, and conflicting declarations (spec.md
// §7 "Propagation policy", §9 open question on ConflictingDeclaration).
//
// Diagnostics are never errors — spec.md §4.5 is explicit that an
// unresolved pattern is "warning-level... recorded, never fatal" — but
// they must not be silently dropped either, per the original
// implementation's diagnostics-log behavior (SPEC_FULL.md §3).
package diagnostics

// Severity classifies a diagnostic entry.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Kind identifies the category of diagnostic.
type Kind string

const (
	KindRejectedWrite        Kind = "rejected_write"
	KindUnresolvedPattern    Kind = "unresolved_pattern"
	KindConflictingDeclare   Kind = "conflicting_declaration"
	KindStagePartiallyFailed Kind = "stage_partially_failed"
	KindWatchError           Kind = "watch_error"
)

// Entry is a single diagnostic record.
type Entry struct {
	// Sequence is a monotonic per-run counter, assigned by Log.Append, so
	// diagnostics can be replayed in the order they were raised even
	// though stage execution order may vary run to run.
	Sequence int

	Kind     Kind
	Severity Severity
	Message  string

	// EntityID and Field optionally identify the subject of the
	// diagnostic (e.g. the entity a write was rejected for).
	EntityID string
	Field    string
}

// Log is an append-only, per-run diagnostics accumulator.
type Log struct {
	entries []Entry
}

// NewLog creates an empty diagnostics log.
func NewLog() *Log {
	return &Log{}
}

// Append records a new diagnostic entry, assigning it the next sequence
// number.
func (l *Log) Append(kind Kind, severity Severity, message, entityID, field string) {
	l.entries = append(l.entries, Entry{
		Sequence: len(l.entries) + 1,
		Kind:     kind,
		Severity: severity,
		Message:  message,
		EntityID: entityID,
		Field:    field,
	})
}

// Entries returns every recorded diagnostic, oldest first. The returned
// slice is a copy.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// CountBySeverity returns how many recorded entries have the given
// severity.
func (l *Log) CountBySeverity(sev Severity) int {
	n := 0
	for _, e := range l.entries {
		if e.Severity == sev {
			n++
		}
	}
	return n
}
