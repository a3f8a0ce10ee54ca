package updater

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/dkg-go/internal/diagnostics"
	"github.com/Benny93/dkg-go/internal/graph"
	"github.com/Benny93/dkg-go/internal/provenance"
)

func newTestUpdater(t *testing.T) (*Updater, *graph.Store) {
	t.Helper()
	store := graph.NewStore()
	require.NoError(t, store.AddNode(&graph.Node{ID: "n1", HierPath: "top/n1", Class: graph.ClassClockDomain}))
	ledger := provenance.NewLedger(0)
	return New(store, ledger), store
}

// TestUpdateField_S1Precedence is spec.md §8 scenario S1.
func TestUpdateField_S1Precedence(t *testing.T) {
	t.Parallel()

	u, store := newTestUpdater(t)

	_, err := u.UpdateField("n1", "clock_domain", "clk", provenance.SourceInferred, provenance.StageRtl, Origin{})
	require.NoError(t, err)

	res, err := u.UpdateField("n1", "clock_domain", "sys_clk", provenance.SourceDeclared, provenance.StageConstraints, Origin{})
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Outcome)

	res, err = u.UpdateField("n1", "clock_domain", "clk", provenance.SourceInferred, provenance.StageRtl, Origin{})
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome)

	assert.Equal(t, "sys_clk", store.GetNode("n1").ClockDomain)

	hist := make([]string, 0)
	for _, r := range ledgerHistory(t, u, "n1", "clock_domain") {
		hist = append(hist, r.Value.(string))
	}
	assert.GreaterOrEqual(t, len(hist), 3)
}

// TestUpdateField_S2UserOverride is spec.md §8 scenario S2.
func TestUpdateField_S2UserOverride(t *testing.T) {
	t.Parallel()

	u, store := newTestUpdater(t)

	_, err := u.UpdateField("n1", "clock_domain", "clk", provenance.SourceInferred, provenance.StageRtl, Origin{})
	require.NoError(t, err)
	_, err = u.UpdateField("n1", "clock_domain", "sys_clk", provenance.SourceDeclared, provenance.StageConstraints, Origin{})
	require.NoError(t, err)

	res, err := u.UpdateField("n1", "clock_domain", "my_clk", provenance.SourceUserOverride, provenance.StageConstraints, Origin{})
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Outcome)

	res, err = u.UpdateField("n1", "clock_domain", "sys_clk", provenance.SourceDeclared, provenance.StageConstraints, Origin{})
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome)

	assert.Equal(t, "my_clk", store.GetNode("n1").ClockDomain)
}

func TestUpdateField_NoSuchEntity(t *testing.T) {
	t.Parallel()
	u, _ := newTestUpdater(t)

	_, err := u.UpdateField("missing", "clock_domain", "clk", provenance.SourceInferred, provenance.StageRtl, Origin{})

	var nse *NoSuchEntityError
	assert.ErrorAs(t, err, &nse)
}

func TestUpdateField_TypeMismatch(t *testing.T) {
	t.Parallel()
	u, _ := newTestUpdater(t)

	_, err := u.UpdateField("n1", "clock_domain", 42, provenance.SourceInferred, provenance.StageRtl, Origin{})

	var mismatch *TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestUpdateField_UnknownFieldForEntityKind(t *testing.T) {
	t.Parallel()
	u, _ := newTestUpdater(t)

	// "delay" only applies to edges.
	_, err := u.UpdateField("n1", "delay", 1.5, provenance.SourceAnalyzed, provenance.StageTiming, Origin{})

	var unk *UnknownFieldError
	assert.ErrorAs(t, err, &unk)
}

func TestBatchUpdateClockDomains(t *testing.T) {
	t.Parallel()
	u, store := newTestUpdater(t)
	require.NoError(t, store.AddNode(&graph.Node{ID: "n2", HierPath: "top/n2", Class: graph.ClassClockDomain}))

	results, err := u.BatchUpdateClockDomains(map[string]string{
		"n1": "clk_a",
		"n2": "clk_b",
	}, provenance.SourceDeclared, provenance.StageConstraints)
	require.NoError(t, err)

	assert.Equal(t, Applied, results["n1"].Outcome)
	assert.Equal(t, Applied, results["n2"].Outcome)
	assert.Equal(t, "clk_a", store.GetNode("n1").ClockDomain)
	assert.Equal(t, "clk_b", store.GetNode("n2").ClockDomain)
}

func TestBatchUpdateTiming_SkipsInapplicableFields(t *testing.T) {
	t.Parallel()
	u, store := newTestUpdater(t)
	require.NoError(t, store.AddNode(&graph.Node{ID: "ff1", HierPath: "top/ff1", Class: graph.ClassFlipFlop}))
	require.NoError(t, store.AddEdge(&graph.Edge{ID: "e1", Source: "n1", Target: "ff1", RelType: graph.RelData}))

	slack := -0.5
	delay := 1.2
	arrival := 3.4

	results, err := u.BatchUpdateTiming(map[string]TimingValues{
		"ff1": {Slack: &slack, Arrival: &arrival},
		"e1":  {Slack: &slack, Delay: &delay},
	})
	require.NoError(t, err)

	assert.Len(t, results["ff1"], 2)
	assert.Len(t, results["e1"], 2)
	require.NotNil(t, store.GetNode("ff1").Slack)
	assert.Equal(t, -0.5, *store.GetNode("ff1").Slack)
	require.NotNil(t, store.GetNode("ff1").ArrivalTime)
	require.NotNil(t, store.GetEdge("e1").Delay)
	assert.Equal(t, 1.2, *store.GetEdge("e1").Delay)
}

func TestUpdateField_RejectedWriteLogsDiagnostic(t *testing.T) {
	t.Parallel()
	u, _ := newTestUpdater(t)
	diag := diagnostics.NewLog()
	u.SetDiagnostics(diag)

	_, err := u.UpdateField("n1", "clock_domain", "sys_clk", provenance.SourceDeclared, provenance.StageConstraints, Origin{})
	require.NoError(t, err)

	res, err := u.UpdateField("n1", "clock_domain", "clk", provenance.SourceInferred, provenance.StageRtl, Origin{})
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome)

	entries := diag.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, diagnostics.KindRejectedWrite, entries[0].Kind)
	assert.Equal(t, diagnostics.SeverityWarn, entries[0].Severity)
	assert.Equal(t, "n1", entries[0].EntityID)
	assert.Equal(t, "clock_domain", entries[0].Field)
}

func TestUpdateField_ConflictingDeclareLogsDiagnostic(t *testing.T) {
	t.Parallel()
	u, store := newTestUpdater(t)
	diag := diagnostics.NewLog()
	u.SetDiagnostics(diag)

	res, err := u.UpdateField("n1", "clock_domain", "clk_a", provenance.SourceDeclared, provenance.StageConstraints, Origin{})
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Outcome)

	res, err = u.UpdateField("n1", "clock_domain", "clk_b", provenance.SourceDeclared, provenance.StageConstraints, Origin{})
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Outcome, "same-rank declared write still wins by sequence tie-break")
	assert.Equal(t, "clk_b", store.GetNode("n1").ClockDomain)

	entries := diag.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, diagnostics.KindConflictingDeclare, entries[0].Kind)
	assert.Equal(t, diagnostics.SeverityWarn, entries[0].Severity)
}

func TestUpdateField_NoDiagnosticsLogIsOptional(t *testing.T) {
	t.Parallel()
	u, _ := newTestUpdater(t)

	_, err := u.UpdateField("n1", "clock_domain", "sys_clk", provenance.SourceDeclared, provenance.StageConstraints, Origin{})
	require.NoError(t, err)
	res, err := u.UpdateField("n1", "clock_domain", "clk", provenance.SourceInferred, provenance.StageRtl, Origin{})
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome)
}

func ledgerHistory(t *testing.T, u *Updater, entityID, field string) []provenance.Record {
	t.Helper()
	return u.ledger.History(entityID, field)
}
