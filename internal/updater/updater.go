// Package updater implements the Graph Updater (spec.md §4.3): the only
// component permitted to mutate field values on nodes and edges. Every
// write is gated by the (source, stage) precedence lattice and recorded
// in the Provenance Ledger.
package updater

import (
	"fmt"
	"sort"

	"github.com/Benny93/dkg-go/internal/diagnostics"
	"github.com/Benny93/dkg-go/internal/graph"
	"github.com/Benny93/dkg-go/internal/provenance"
)

// Outcome is the result of a single UpdateField call.
type Outcome int

const (
	// Applied means the write succeeded and is now the current record.
	Applied Outcome = iota
	// Rejected means a lower-ranked write was discarded; the store and
	// ledger are unchanged.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result reports what happened to a write and the field's current record
// immediately afterward (whether or not this write was the one that set
// it).
type Result struct {
	Outcome Outcome
	Current provenance.Record
}

// Origin optionally attributes a write to a location in a source artifact.
type Origin struct {
	File string
	Line int
}

// Updater is the precedence-gated writer over a graph.Store, backed by a
// provenance.Ledger. It holds no other state: the Store and Ledger remain
// explicit values owned by the caller (spec.md §9).
type Updater struct {
	store  *graph.Store
	ledger *provenance.Ledger
	diag   *diagnostics.Log
}

// New creates an Updater over the given store and ledger.
func New(store *graph.Store, ledger *provenance.Ledger) *Updater {
	return &Updater{store: store, ledger: ledger}
}

// SetDiagnostics installs the log that rejected writes and conflicting
// declarations are recorded to (spec.md §7 "Propagation policy"). Writes
// made before this is called, or when it is never called, are not
// recorded anywhere but the ledger.
func (u *Updater) SetDiagnostics(diag *diagnostics.Log) {
	u.diag = diag
}

// UpdateField applies a precedence-gated write to entityID's field.
//
// Returns UnknownFieldError if field is not registered or does not apply
// to the entity's kind, NoSuchEntityError if entityID is absent from the
// store, or TypeMismatchError if newValue's type doesn't match field's
// declared type (hard errors, per spec.md §4.3 — never a silent reject).
// Otherwise returns a Result describing whether the write was Applied or
// Rejected.
func (u *Updater) UpdateField(entityID, field string, newValue any, source provenance.Source, stage provenance.Stage, origin Origin) (Result, error) {
	spec, ok := fieldRegistry[field]
	if !ok {
		return Result{}, &UnknownFieldError{EntityID: entityID, Field: field}
	}

	node := u.store.GetNode(entityID)
	edge := u.store.GetEdge(entityID)
	if node == nil && edge == nil {
		return Result{}, &NoSuchEntityError{EntityID: entityID}
	}

	if node != nil && !spec.onNode {
		return Result{}, &UnknownFieldError{EntityID: entityID, Field: field}
	}
	if edge != nil && !spec.onEdge {
		return Result{}, &UnknownFieldError{EntityID: entityID, Field: field}
	}

	if !spec.kind.matches(newValue) {
		return Result{}, &TypeMismatchError{EntityID: entityID, Field: field, Want: spec.kind.String(), Got: newValue}
	}

	candidate := provenance.Record{
		Value:      newValue,
		Stage:      stage,
		Source:     source,
		OriginFile: origin.File,
		OriginLine: origin.Line,
		Sequence:   u.ledger.NextSequence(),
	}

	current, hasCurrent := u.ledger.Current(entityID, field)

	if hasCurrent && current.Source == provenance.SourceDeclared && candidate.Source == provenance.SourceDeclared &&
		current.Stage == candidate.Stage && current.Value != candidate.Value {
		u.logDiagnostic(diagnostics.KindConflictingDeclare, diagnostics.SeverityWarn,
			fmt.Sprintf("conflicting declared values for %s.%s: %v then %v", entityID, field, current.Value, candidate.Value),
			entityID, field)
	}

	if hasCurrent && candidate.Compare(current) < 0 {
		u.logDiagnostic(diagnostics.KindRejectedWrite, diagnostics.SeverityWarn,
			fmt.Sprintf("rejected write to %s.%s: %v (source=%s stage=%s) outranked by current %v (source=%s stage=%s)",
				entityID, field, newValue, source, stage, current.Value, current.Source, current.Stage),
			entityID, field)
		return Result{Outcome: Rejected, Current: current}, nil
	}

	if node != nil {
		spec.setNode(node, newValue)
	} else {
		spec.setEdge(edge, newValue)
	}
	u.ledger.Append(entityID, field, candidate)

	return Result{Outcome: Applied, Current: candidate}, nil
}

func (u *Updater) logDiagnostic(kind diagnostics.Kind, severity diagnostics.Severity, message, entityID, field string) {
	if u.diag == nil {
		return
	}
	u.diag.Append(kind, severity, message, entityID, field)
}

// BatchUpdateClockDomains applies the same (source, stage) clock_domain
// write across many entities. Entities are visited in sorted id order so
// the sequence numbers assigned — and therefore tie-break outcomes — are
// deterministic regardless of map iteration order (spec.md §4.4 stage
// determinism).
func (u *Updater) BatchUpdateClockDomains(values map[string]string, source provenance.Source, stage provenance.Stage) (map[string]Result, error) {
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string]Result, len(ids))
	for _, id := range ids {
		res, err := u.UpdateField(id, "clock_domain", values[id], source, stage, Origin{})
		if err != nil {
			return out, err
		}
		out[id] = res
	}
	return out, nil
}

// TimingValues bundles the optional scalars a single timing record may
// carry for one entity (spec.md §4.3 batch_update_timing).
type TimingValues struct {
	Delay    *float64
	Slack    *float64
	Arrival  *float64
	Required *float64
}

// BatchUpdateTiming applies delay/slack/arrival/required writes at
// (source=Analyzed, stage=Timing) across many entities in one call. Only
// the fields applicable to the entity's kind are written: Delay applies
// to edges only, Arrival/Required to nodes only, Slack to either. A field
// left nil for an entity is simply skipped, not rejected.
func (u *Updater) BatchUpdateTiming(values map[string]TimingValues) (map[string][]Result, error) {
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string][]Result, len(ids))
	for _, id := range ids {
		tv := values[id]
		var results []Result

		isEdge := u.store.GetEdge(id) != nil

		if tv.Slack != nil {
			r, err := u.UpdateField(id, "slack", *tv.Slack, provenance.SourceAnalyzed, provenance.StageTiming, Origin{})
			if err != nil {
				return out, err
			}
			results = append(results, r)
		}
		if isEdge {
			if tv.Delay != nil {
				r, err := u.UpdateField(id, "delay", *tv.Delay, provenance.SourceAnalyzed, provenance.StageTiming, Origin{})
				if err != nil {
					return out, err
				}
				results = append(results, r)
			}
		} else {
			if tv.Arrival != nil {
				r, err := u.UpdateField(id, "arrival_time", *tv.Arrival, provenance.SourceAnalyzed, provenance.StageTiming, Origin{})
				if err != nil {
					return out, err
				}
				results = append(results, r)
			}
			if tv.Required != nil {
				r, err := u.UpdateField(id, "required_time", *tv.Required, provenance.SourceAnalyzed, provenance.StageTiming, Origin{})
				if err != nil {
					return out, err
				}
				results = append(results, r)
			}
		}

		out[id] = results
	}
	return out, nil
}
