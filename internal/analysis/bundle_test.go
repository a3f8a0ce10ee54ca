package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Benny93/dkg-go/internal/view"
)

func TestAttachAndGet_RoundTrip(t *testing.T) {
	t.Parallel()
	sn := &view.SuperNode{ID: "s1", Analysis: map[string]any{}}

	Attach(sn, KindTiming, 42)

	v, ok := Get(sn, KindTiming)
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestGet_MissingKindReturnsFalse(t *testing.T) {
	t.Parallel()
	sn := &view.SuperNode{ID: "s1", Analysis: map[string]any{}}

	_, ok := Get(sn, KindTiming)
	assert.False(t, ok)
}

func TestAttach_ReanalysisReplacesWholeValue(t *testing.T) {
	t.Parallel()
	se := &view.SuperEdge{ID: "e1", Analysis: map[string]any{}}

	Attach(se, KindTiming, map[string]float64{"max_delay": 1.0})
	Attach(se, KindTiming, map[string]float64{"max_delay": 2.0})

	v, ok := Get(se, KindTiming)
	assert.True(t, ok)
	assert.Equal(t, map[string]float64{"max_delay": 2.0}, v)
}
