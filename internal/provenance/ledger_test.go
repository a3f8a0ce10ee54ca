package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_CurrentEmpty(t *testing.T) {
	t.Parallel()

	l := NewLedger(0)
	_, ok := l.Current("n1", "clock_domain")
	assert.False(t, ok)
}

func TestLedger_AppendAndCurrent(t *testing.T) {
	t.Parallel()

	l := NewLedger(0)
	l.Append("n1", "clock_domain", Record{Value: "clk", Source: SourceInferred, Stage: StageRtl, Sequence: 1})
	l.Append("n1", "clock_domain", Record{Value: "sys_clk", Source: SourceDeclared, Stage: StageConstraints, Sequence: 2})

	cur, ok := l.Current("n1", "clock_domain")
	require.True(t, ok)
	assert.Equal(t, "sys_clk", cur.Value)

	hist := l.History("n1", "clock_domain")
	require.Len(t, hist, 2)
	assert.Equal(t, "clk", hist[0].Value)
	assert.Equal(t, "sys_clk", hist[1].Value)
}

func TestLedger_BoundedDepth(t *testing.T) {
	t.Parallel()

	l := NewLedger(2)
	for i := 0; i < 5; i++ {
		l.Append("n1", "slack", Record{Value: i, Sequence: int64(i)})
	}

	hist := l.History("n1", "slack")
	require.Len(t, hist, 2)
	assert.Equal(t, 3, hist[0].Value)
	assert.Equal(t, 4, hist[1].Value)
}

func TestLedger_NextSequenceMonotonic(t *testing.T) {
	t.Parallel()

	l := NewLedger(0)
	a := l.NextSequence()
	b := l.NextSequence()
	assert.Less(t, a, b)
}

func TestRecord_Compare(t *testing.T) {
	t.Parallel()

	userOverride := Record{Source: SourceUserOverride, Stage: StageConstraints, Sequence: 1}
	declared := Record{Source: SourceDeclared, Stage: StageBoard, Sequence: 99}

	assert.Positive(t, userOverride.Compare(declared))
	assert.Negative(t, declared.Compare(userOverride))

	tieOnSource := Record{Source: SourceDeclared, Stage: StageConstraints, Sequence: 1}
	tieOnStage := Record{Source: SourceDeclared, Stage: StageTiming, Sequence: 2}
	assert.Negative(t, tieOnSource.Compare(tieOnStage))

	equalRank := Record{Source: SourceDeclared, Stage: StageConstraints, Sequence: 5}
	laterWrite := Record{Source: SourceDeclared, Stage: StageConstraints, Sequence: 6}
	assert.Negative(t, equalRank.Compare(laterWrite))
	assert.Zero(t, equalRank.Compare(equalRank))
}

func TestLedger_FastForwardSequence(t *testing.T) {
	t.Parallel()

	l := NewLedger(0)
	l.NextSequence() // seq=1

	l.FastForwardSequence(10)
	assert.Equal(t, int64(11), l.NextSequence())

	l.FastForwardSequence(3) // lower than current, no-op
	assert.Equal(t, int64(12), l.NextSequence())
}

func TestStageRank_PanicsOnUnknown(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { _ = Stage("bogus").Rank() })
}

func TestSourceRank_PanicsOnUnknown(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { _ = Source("bogus").Rank() })
}
