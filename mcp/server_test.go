package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/dkg-go/internal/graph"
)

func newTestStore(t *testing.T) *graph.Store {
	t.Helper()
	store := graph.NewStore()

	worstSlack := -0.75
	require.NoError(t, store.AddNode(&graph.Node{
		ID: "ff1", HierPath: "top/cpu/ff1", LocalName: "ff1", Class: graph.ClassFlipFlop,
	}))
	require.NoError(t, store.AddNode(&graph.Node{
		ID: "lut1", HierPath: "top/cpu/lut1", LocalName: "lut1", Class: graph.ClassLut, Slack: &worstSlack,
	}))
	require.NoError(t, store.AddNode(&graph.Node{
		ID: "ff2", HierPath: "top/cpu/ff2", LocalName: "ff2", Class: graph.ClassFlipFlop,
	}))
	require.NoError(t, store.AddEdge(&graph.Edge{
		ID: "e1", Source: "ff1", Target: "lut1", RelType: graph.RelData,
	}))
	require.NoError(t, store.AddEdge(&graph.Edge{
		ID: "e2", Source: "lut1", Target: "ff2", RelType: graph.RelData,
	}))
	return store
}

func TestServer_ListTools(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)
	tools := s.ListTools()
	assert.NotEmpty(t, tools)

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"dkg_search", "dkg_context", "dkg_paths", "dkg_critical_nodes", "dkg_view", "dkg_alerts"} {
		assert.True(t, names[want], "expected tool %q", want)
	}
}

func TestServer_ListResources(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)
	resources := s.ListResources()
	assert.Len(t, resources, 2)
}

func TestServer_CallTool_Search(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	out, err := s.CallTool(context.Background(), "dkg_search", map[string]any{"class": "flip_flop"})
	require.NoError(t, err)
	assert.Contains(t, out, "ff1")
	assert.Contains(t, out, "ff2")
	assert.NotContains(t, out, "lut1")
}

func TestServer_CallTool_Context(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	out, err := s.CallTool(context.Background(), "dkg_context", map[string]any{"node_id": "lut1", "depth": float64(2)})
	require.NoError(t, err)
	assert.Contains(t, out, "ff1")
	assert.Contains(t, out, "ff2")
}

func TestServer_CallTool_ContextUnknownNode(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	out, err := s.CallTool(context.Background(), "dkg_context", map[string]any{"node_id": "nope"})
	require.NoError(t, err)
	assert.Contains(t, out, "not found")
}

func TestServer_CallTool_Paths(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	out, err := s.CallTool(context.Background(), "dkg_paths", map[string]any{"source": "ff1", "target": "ff2"})
	require.NoError(t, err)
	assert.Contains(t, out, "ff1")
	assert.Contains(t, out, "ff2")
}

func TestServer_CallTool_PathsShortest(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	out, err := s.CallTool(context.Background(), "dkg_paths", map[string]any{"source": "ff1", "target": "ff2", "shortest": true})
	require.NoError(t, err)
	assert.Contains(t, out, "Shortest path")
	assert.Contains(t, out, "ff1")
	assert.Contains(t, out, "ff2")
}

func TestServer_CallTool_CriticalNodes(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	out, err := s.CallTool(context.Background(), "dkg_critical_nodes", map[string]any{"threshold": float64(0), "limit": float64(5)})
	require.NoError(t, err)
	assert.Contains(t, out, "lut1")
}

func TestServer_CallTool_UnknownTool(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	_, err := s.CallTool(context.Background(), "not_a_tool", nil)
	assert.Error(t, err)
}

func TestServer_ReadResource_Overview(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	out, err := s.ReadResource(context.Background(), "dkg://overview")
	require.NoError(t, err)
	assert.Contains(t, out, "Nodes: 3")
	assert.Contains(t, out, "Edges: 2")
}

func TestServer_ReadResource_Schema(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	out, err := s.ReadResource(context.Background(), "dkg://schema")
	require.NoError(t, err)
	assert.Contains(t, out, "flip_flop")
}

func TestServer_ReadResource_Unknown(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	_, err := s.ReadResource(context.Background(), "dkg://nope")
	assert.Error(t, err)
}

func TestServer_HandleRequest_Initialize(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	resp := s.handleRequest(context.Background(), map[string]any{"method": "initialize", "id": float64(1)})
	require.NotNil(t, resp)
	assert.Equal(t, float64(1), resp["id"])
	assert.Contains(t, resp, "result")
}

func TestServer_HandleRequest_ToolsCall(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	req := map[string]any{
		"method": "tools/call",
		"id":     float64(2),
		"params": map[string]any{
			"name":      "dkg_search",
			"arguments": map[string]any{"class": "flip_flop"},
		},
	}
	resp := s.handleRequest(context.Background(), req)
	require.NotNil(t, resp)
	assert.Contains(t, resp, "result")
}

func TestServer_HandleRequest_UnknownMethod(t *testing.T) {
	t.Parallel()
	s := NewServer(newTestStore(t), nil)

	resp := s.handleRequest(context.Background(), map[string]any{"method": "bogus", "id": float64(3)})
	require.NotNil(t, resp)
	assert.Contains(t, resp, "error")
}
