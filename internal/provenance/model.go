// Package provenance implements the Provenance Ledger (spec.md §4.2): for
// every writable field on every node or edge, it holds the current record
// plus a bounded, chronological history. Records are append-only; the
// "current" pointer is always the most recently appended record.
//
// The Ledger is a sibling of the Graph Store, not a property of nodes or
// edges (spec.md §9 "Global mutable state") — this keeps Node/Edge small
// and the ledger's retention policy independent of graph size.
package provenance

// Stage identifies which ingestion stage produced a write.
type Stage string

const (
	StageRtl         Stage = "rtl"
	StageSynthesis   Stage = "synthesis"
	StageConstraints Stage = "constraints"
	StageFloorplan   Stage = "floorplan"
	StageTiming      Stage = "timing"
	StageBoard       Stage = "board"
)

// stageRank orders stages ascending: Rtl < Synthesis < Constraints <
// Floorplan < Timing < Board (spec.md §4.3 precedence lattice, stage tie
// break). Every Stage variant must appear here — no default fallthrough.
var stageRank = map[Stage]int{
	StageRtl:         0,
	StageSynthesis:   1,
	StageConstraints: 2,
	StageFloorplan:   3,
	StageTiming:      4,
	StageBoard:       5,
}

// Rank returns the stage's position in the precedence lattice, higher is
// more authoritative. Panics on an unrecognized Stage so new variants are
// never silently misranked.
func (s Stage) Rank() int {
	r, ok := stageRank[s]
	if !ok {
		panic("provenance: unhandled Stage in Rank: " + string(s))
	}
	return r
}

// Source identifies how a value was produced.
type Source string

const (
	SourceInferred     Source = "inferred"
	SourceAnalyzed     Source = "analyzed"
	SourceDeclared     Source = "declared"
	SourceUserOverride Source = "user_override"
)

// sourceRank orders sources ascending: Inferred < Analyzed < Declared <
// UserOverride (spec.md §4.3).
var sourceRank = map[Source]int{
	SourceInferred:     0,
	SourceAnalyzed:     1,
	SourceDeclared:     2,
	SourceUserOverride: 3,
}

// Rank returns the source's position in the precedence lattice, higher is
// more authoritative. Panics on an unrecognized Source.
func (s Source) Rank() int {
	r, ok := sourceRank[s]
	if !ok {
		panic("provenance: unhandled Source in Rank: " + string(s))
	}
	return r
}

// Record is a single provenance entry for one (entity, field) write.
type Record struct {
	Value  any
	Stage  Stage
	Source Source

	// OriginFile and OriginLine are optional pointers back to the artifact
	// that produced this value (empty/zero when not applicable).
	OriginFile string
	OriginLine int

	// Sequence is a monotonically increasing logical clock assigned by the
	// caller (internal/updater), never wall-clock time — spec.md §4.4
	// requires stage-order independence under "a stable per-ingestor
	// sequence, not wall time" so that re-running a deterministic pipeline
	// in any stage order converges to the same field values.
	Sequence int64
}

// Compare reports whether this record's (Source, Stage) precedence exceeds,
// ties, or falls short of other's, per spec.md §4.3: primary key is
// Source rank, secondary is Stage rank, tertiary is Sequence.
//
// Returns >0 if r outranks other, 0 if exactly tied (same Source, Stage,
// and Sequence), <0 otherwise.
func (r Record) Compare(other Record) int {
	if d := r.Source.Rank() - other.Source.Rank(); d != 0 {
		return d
	}
	if d := r.Stage.Rank() - other.Stage.Rank(); d != 0 {
		return d
	}
	if r.Sequence != other.Sequence {
		if r.Sequence > other.Sequence {
			return 1
		}
		return -1
	}
	return 0
}
