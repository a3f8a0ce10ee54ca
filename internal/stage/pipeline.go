// Package stage implements the Stage Pipeline (spec.md §4.4): it orders
// ingestion of heterogeneous artifacts into the Graph Store, one stage at
// a time, with per-stage ingestors run sequentially in registration
// order. This ordering is what makes the Updater's Sequence tiebreaker
// (internal/provenance) a total order, which in turn makes re-running a
// stage with deterministic ingestors idempotent (spec.md §5 "Ordering
// guarantees").
package stage

import (
	"context"
	"fmt"

	"github.com/Benny93/dkg-go/internal/diagnostics"
	"github.com/Benny93/dkg-go/internal/graph"
	"github.com/Benny93/dkg-go/internal/provenance"
	"github.com/Benny93/dkg-go/internal/updater"
)

// Ingestor translates one artifact kind into Updater/Store writes for a
// single stage. Implementations are the "external collaborators" spec.md
// §1 places out of scope for the core (RTL/netlist JSON parsing, SDC/XDC
// tokenization, timing report parsing, ...) — this package only defines
// the seam they plug into.
type Ingestor interface {
	// Name identifies the ingestor for diagnostics and progress reporting.
	Name() string

	// Ingest performs one pass of writes against store/upd. A structural
	// error (graph.DuplicateIDError, graph.DanglingEndpointError,
	// updater.TypeMismatchError, updater.NoSuchEntityError) halts this
	// ingestor but not the stage; the Pipeline records it and continues
	// with the next registered ingestor.
	Ingest(ctx context.Context, store *graph.Store, upd *updater.Updater, diag *diagnostics.Log) error
}

// ErrInterrupted is returned by RunStage when the context is cancelled
// between ingestors (spec.md §5 "Cancellation and timeouts").
var ErrInterrupted = fmt.Errorf("stage: interrupted")

// ProgressCallback is invoked before and after each ingestor runs.
type ProgressCallback func(stg provenance.Stage, ingestorName string, progress float64)

// Pipeline orders ingestion across the six artifact stages.
type Pipeline struct {
	store     *graph.Store
	updater   *updater.Updater
	diag      *diagnostics.Log
	ingestors map[provenance.Stage][]Ingestor
	completed map[provenance.Stage]bool
	progress  ProgressCallback
}

// New creates a Pipeline wired to the given store, updater, and
// diagnostics log.
func New(store *graph.Store, upd *updater.Updater, diag *diagnostics.Log) *Pipeline {
	return &Pipeline{
		store:     store,
		updater:   upd,
		diag:      diag,
		ingestors: make(map[provenance.Stage][]Ingestor),
		completed: make(map[provenance.Stage]bool),
	}
}

// SetProgress installs a callback invoked around each ingestor's run.
func (p *Pipeline) SetProgress(cb ProgressCallback) {
	p.progress = cb
}

// RegisterIngestor appends ing to the ordered list of ingestors for stg.
// Registration order is execution order within the stage (spec.md §5).
func (p *Pipeline) RegisterIngestor(stg provenance.Stage, ing Ingestor) {
	p.ingestors[stg] = append(p.ingestors[stg], ing)
}

// Completed reports whether RunStage has been called for stg at least
// once.
func (p *Pipeline) Completed(stg provenance.Stage) bool {
	return p.completed[stg]
}

// CompletedStages returns every stage marked completed, in no particular
// order. Used by internal/snapshot to persist stage-completion state.
func (p *Pipeline) CompletedStages() []provenance.Stage {
	out := make([]provenance.Stage, 0, len(p.completed))
	for stg, done := range p.completed {
		if done {
			out = append(out, stg)
		}
	}
	return out
}

// MarkCompleted records stg as completed without running any ingestors.
// Used by internal/snapshot when reloading persisted stage-completion
// state.
func (p *Pipeline) MarkCompleted(stg provenance.Stage) {
	p.completed[stg] = true
}

// RunStage invokes every ingestor registered for stg, in registration
// order. Running a stage twice re-runs its ingestors — by the Updater's
// precedence rule, only equal-or-higher-ranked writes change state, so
// re-runs are idempotent provided ingestors are deterministic (spec.md
// §4.4). Returns the count of ingestors that completed without a
// structural error, and whether the stage was partially failed.
func (p *Pipeline) RunStage(ctx context.Context, stg provenance.Stage) (ok int, partiallyFailed bool, err error) {
	ingestors := p.ingestors[stg]

	for _, ing := range ingestors {
		select {
		case <-ctx.Done():
			return ok, partiallyFailed, ErrInterrupted
		default:
		}

		if p.progress != nil {
			p.progress(stg, ing.Name(), 0.0)
		}

		if ierr := ing.Ingest(ctx, p.store, p.updater, p.diag); ierr != nil {
			partiallyFailed = true
			p.diag.Append(
				diagnostics.KindStagePartiallyFailed,
				diagnostics.SeverityError,
				fmt.Sprintf("ingestor %q failed: %v", ing.Name(), ierr),
				"", "",
			)
			if p.progress != nil {
				p.progress(stg, ing.Name(), 1.0)
			}
			continue
		}

		ok++
		if p.progress != nil {
			p.progress(stg, ing.Name(), 1.0)
		}
	}

	p.completed[stg] = true
	return ok, partiallyFailed, nil
}

// RunAll runs every nominal stage in spec.md's canonical order (Rtl,
// Synthesis, Constraints, Floorplan, Timing, Board). Stages may also be
// run individually and out of order via RunStage — the precedence rule
// guarantees eventual consistency regardless of order (spec.md §4.4).
func (p *Pipeline) RunAll(ctx context.Context) error {
	order := []provenance.Stage{
		provenance.StageRtl,
		provenance.StageSynthesis,
		provenance.StageConstraints,
		provenance.StageFloorplan,
		provenance.StageTiming,
		provenance.StageBoard,
	}
	for _, stg := range order {
		if _, _, err := p.RunStage(ctx, stg); err != nil {
			return err
		}
	}
	return nil
}
