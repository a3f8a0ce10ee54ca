package query

import (
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/dkg-go/internal/graph"
)

func TestTokenizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple", "reg", []string{"reg"}},
		{"camel", "ClockGenModule", []string{"clockgenmodule", "clock", "gen", "module"}},
		{"hierPath", "top/cpu/alu_core", []string{"top/cpu/alu_core", "top", "cpu", "alu_core", "alu", "core"}},
		{"withBitIndex", "data3", []string{"data3", "data", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tokenizeName(tt.input)
			for _, want := range tt.want {
				assert.Contains(t, got, want)
			}
		})
	}
}

func openTestNameIndex(t *testing.T) *NameIndex {
	t.Helper()
	opts := badger.DefaultOptions(filepath.Join(t.TempDir(), "badger")).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewNameIndex(db)
}

func TestNameIndex_IndexAndSearch(t *testing.T) {
	t.Parallel()

	idx := openTestNameIndex(t)
	require.NoError(t, idx.IndexNode(&graph.Node{ID: "n1", HierPath: "top/clk_gen", LocalName: "clk_gen"}))
	require.NoError(t, idx.IndexNode(&graph.Node{ID: "n2", HierPath: "top/data_reg", LocalName: "data_reg"}))

	ids, err := idx.SearchNodeIDs("clk", 10)
	require.NoError(t, err)
	assert.Contains(t, ids, "n1")
	assert.NotContains(t, ids, "n2")
}

func TestNameIndex_ReindexReplacesOldTokens(t *testing.T) {
	t.Parallel()

	idx := openTestNameIndex(t)
	require.NoError(t, idx.IndexNode(&graph.Node{ID: "n1", LocalName: "old_name"}))
	require.NoError(t, idx.IndexNode(&graph.Node{ID: "n1", LocalName: "new_name"}))

	ids, err := idx.SearchNodeIDs("old_name", 10)
	require.NoError(t, err)
	assert.NotContains(t, ids, "n1")

	ids, err = idx.SearchNodeIDs("new_name", 10)
	require.NoError(t, err)
	assert.Contains(t, ids, "n1")
}

func TestNameIndex_RemoveNode(t *testing.T) {
	t.Parallel()

	idx := openTestNameIndex(t)
	require.NoError(t, idx.IndexNode(&graph.Node{ID: "n1", LocalName: "mux_sel"}))
	require.NoError(t, idx.RemoveNode("n1"))

	ids, err := idx.SearchNodeIDs("mux_sel", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNameIndex_SearchRanksByFrequency(t *testing.T) {
	t.Parallel()

	idx := openTestNameIndex(t)
	require.NoError(t, idx.IndexNode(&graph.Node{ID: "hot", HierPath: "top/bram_bram", LocalName: "bram_bram"}))
	require.NoError(t, idx.IndexNode(&graph.Node{ID: "cold", HierPath: "top/bram", LocalName: "bram"}))

	ids, err := idx.SearchNodeIDs("bram", 10)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "hot", ids[0])
}
