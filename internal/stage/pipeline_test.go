package stage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/dkg-go/internal/diagnostics"
	"github.com/Benny93/dkg-go/internal/graph"
	"github.com/Benny93/dkg-go/internal/provenance"
	"github.com/Benny93/dkg-go/internal/updater"
)

type fakeIngestor struct {
	name string
	run  func(ctx context.Context, store *graph.Store, upd *updater.Updater, diag *diagnostics.Log) error
	hits int
}

func (f *fakeIngestor) Name() string { return f.name }

func (f *fakeIngestor) Ingest(ctx context.Context, store *graph.Store, upd *updater.Updater, diag *diagnostics.Log) error {
	f.hits++
	if f.run != nil {
		return f.run(ctx, store, upd, diag)
	}
	return nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *graph.Store) {
	t.Helper()
	store := graph.NewStore()
	require.NoError(t, store.AddNode(&graph.Node{ID: "n1", HierPath: "top/n1", Class: graph.ClassClockDomain}))
	ledger := provenance.NewLedger(0)
	upd := updater.New(store, ledger)
	diag := diagnostics.NewLog()
	return New(store, upd, diag), store
}

func TestPipeline_RunStage_OrdersIngestorsByRegistration(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t)

	var order []string
	a := &fakeIngestor{name: "a", run: func(ctx context.Context, store *graph.Store, upd *updater.Updater, diag *diagnostics.Log) error {
		order = append(order, "a")
		return nil
	}}
	b := &fakeIngestor{name: "b", run: func(ctx context.Context, store *graph.Store, upd *updater.Updater, diag *diagnostics.Log) error {
		order = append(order, "b")
		return nil
	}}
	p.RegisterIngestor(provenance.StageRtl, a)
	p.RegisterIngestor(provenance.StageRtl, b)

	ok, partiallyFailed, err := p.RunStage(context.Background(), provenance.StageRtl)
	require.NoError(t, err)
	assert.False(t, partiallyFailed)
	assert.Equal(t, 2, ok)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.True(t, p.Completed(provenance.StageRtl))
}

func TestPipeline_RunStage_FailedIngestorMarksPartialAndContinues(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t)

	failing := &fakeIngestor{name: "failing", run: func(ctx context.Context, store *graph.Store, upd *updater.Updater, diag *diagnostics.Log) error {
		return fmt.Errorf("boom")
	}}
	ok := &fakeIngestor{name: "ok"}
	p.RegisterIngestor(provenance.StageSynthesis, failing)
	p.RegisterIngestor(provenance.StageSynthesis, ok)

	okCount, partiallyFailed, err := p.RunStage(context.Background(), provenance.StageSynthesis)
	require.NoError(t, err)
	assert.True(t, partiallyFailed)
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, ok.hits)
	assert.Equal(t, 1, p.diag.CountBySeverity(diagnostics.SeverityError))
}

func TestPipeline_RunStage_Interrupted(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p.RegisterIngestor(provenance.StageTiming, &fakeIngestor{name: "never"})

	_, _, err := p.RunStage(ctx, provenance.StageTiming)
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestPipeline_RunStage_RerunIsIdempotentUnderPrecedence(t *testing.T) {
	t.Parallel()
	p, store := newTestPipeline(t)

	writer := &fakeIngestor{name: "writer", run: func(ctx context.Context, store *graph.Store, upd *updater.Updater, diag *diagnostics.Log) error {
		_, err := upd.UpdateField("n1", "clock_domain", "clk", provenance.SourceInferred, provenance.StageRtl, updater.Origin{})
		return err
	}}
	p.RegisterIngestor(provenance.StageRtl, writer)

	_, _, err := p.RunStage(context.Background(), provenance.StageRtl)
	require.NoError(t, err)
	_, _, err = p.RunStage(context.Background(), provenance.StageRtl)
	require.NoError(t, err)

	assert.Equal(t, "clk", store.GetNode("n1").ClockDomain)
	assert.Equal(t, 2, writer.hits)
}

func TestPipeline_RunAll_RunsEveryCanonicalStage(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t)

	stages := []provenance.Stage{
		provenance.StageRtl,
		provenance.StageSynthesis,
		provenance.StageConstraints,
		provenance.StageFloorplan,
		provenance.StageTiming,
		provenance.StageBoard,
	}
	hits := make(map[provenance.Stage]int)
	for _, stg := range stages {
		stg := stg
		p.RegisterIngestor(stg, &fakeIngestor{name: string(stg), run: func(ctx context.Context, store *graph.Store, upd *updater.Updater, diag *diagnostics.Log) error {
			hits[stg]++
			return nil
		}})
	}

	require.NoError(t, p.RunAll(context.Background()))

	for _, stg := range stages {
		assert.Equal(t, 1, hits[stg])
		assert.True(t, p.Completed(stg))
	}
}
