// Package mcp exposes the Query Engine and Analysis Bundle API over the
// Model Context Protocol so an AI coding assistant can interrogate a
// design knowledge graph snapshot directly.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/dkg-go/internal/graph"
	"github.com/Benny93/dkg-go/internal/query"
	"github.com/Benny93/dkg-go/internal/timing"
	"github.com/Benny93/dkg-go/internal/view"
)

// Server is a hand-rolled JSON-RPC-over-stdio MCP server fronting a
// graph.Store's Query Engine. It does not use the SDK's built-in
// transport, only its type definitions (mcp.Implementation et al), the
// same way the teacher's code plugged the SDK in only for shape.
type Server struct {
	store *graph.Store
	eng   *query.Engine
	impl  *mcpsdk.Implementation
}

// Tool describes one callable MCP tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Resource describes one readable MCP resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// NewServer wraps a graph.Store's Query Engine, optionally backed by a
// BadgerDB handle for the name-index accelerator (nil disables it).
func NewServer(store *graph.Store, db *badger.DB) *Server {
	eng := query.New(store)
	if db != nil {
		eng.SetNameIndex(query.NewNameIndex(db))
	}
	return &Server{
		store: store,
		eng:   eng,
		impl:  &mcpsdk.Implementation{Name: "dkg-go", Version: "1.0.0"},
	}
}

// ListTools returns the tools this server exposes.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "dkg_search",
			Description: "Search design entities by class, name pattern, hierarchy prefix, or slack",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"class":       map[string]any{"type": "string", "description": "EntityClass filter, e.g. flip_flop"},
					"name":        map[string]any{"type": "string", "description": "Shell-wildcard pattern against local name"},
					"hier_prefix": map[string]any{"type": "string", "description": "Hierarchy path prefix"},
					"slack_max":   map[string]any{"type": "number", "description": "Only entities with slack at or below this"},
					"limit":       map[string]any{"type": "integer", "description": "Maximum results", "default": 20},
				},
			},
		},
		{
			Name:        "dkg_name_search",
			Description: "Ranked free-text search over hierarchy path and local name tokens",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}, "limit": map[string]any{"type": "integer", "default": 20}},
				"required":   []string{"query"},
			},
		},
		{
			Name:        "dkg_context",
			Description: "Show the upstream/downstream neighborhood of a node id",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"node_id": map[string]any{"type": "string"}, "depth": map[string]any{"type": "integer", "default": 2}},
				"required":   []string{"node_id"},
			},
		},
		{
			Name:        "dkg_paths",
			Description: "Find paths or the shortest path between two node ids",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"source":    map[string]any{"type": "string"},
					"target":    map[string]any{"type": "string"},
					"max_depth": map[string]any{"type": "integer", "default": 6},
					"shortest":  map[string]any{"type": "boolean", "default": false},
					"weight":    map[string]any{"type": "string", "enum": []string{"hops", "delay"}, "default": "hops", "description": "Edge cost function for shortest, ignored otherwise"},
				},
				"required": []string{"source", "target"},
			},
		},
		{
			Name:        "dkg_critical_nodes",
			Description: "List the nodes with the worst timing slack",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"threshold": map[string]any{"type": "number", "default": 0}, "limit": map[string]any{"type": "integer", "default": 10}},
			},
		},
		{
			Name:        "dkg_view",
			Description: "Build a SuperGraph abstraction and summarize its SuperNodes/SuperEdges",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"kind":    map[string]any{"type": "string", "enum": []string{"structural", "connectivity", "physical"}, "default": "connectivity"},
					"context": map[string]any{"type": "string", "enum": []string{"design", "simulation"}, "default": "design"},
				},
			},
		},
		{
			Name:        "dkg_alerts",
			Description: "Generate timing alerts against a connectivity view",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"clock_period_ns": map[string]any{"type": "number", "default": 10}},
			},
		},
	}
}

// ListResources returns the resources this server exposes.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{URI: "dkg://overview", Name: "Graph Overview", Description: "Summary statistics for the current snapshot", MimeType: "text/plain"},
		{URI: "dkg://schema", Name: "Entity Schema", Description: "EntityClass and RelationType reference", MimeType: "text/plain"},
	}
}

// CallTool dispatches a tool invocation by name.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "dkg_search":
		return s.toolSearch(args)
	case "dkg_name_search":
		return s.toolNameSearch(args)
	case "dkg_context":
		return s.toolContext(args)
	case "dkg_paths":
		return s.toolPaths(ctx, args)
	case "dkg_critical_nodes":
		return s.toolCriticalNodes(args)
	case "dkg_view":
		return s.toolView(ctx, args)
	case "dkg_alerts":
		return s.toolAlerts(ctx, args)
	default:
		return "", fmt.Errorf("mcp: unknown tool %q", name)
	}
}

// ReadResource dispatches a resource read by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "dkg://overview":
		return s.resourceOverview(), nil
	case "dkg://schema":
		return s.resourceSchema(), nil
	default:
		return "", fmt.Errorf("mcp: unknown resource %q", uri)
	}
}

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func argFloat(args map[string]any, key string, def float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return def
}

func argFloatPtr(args map[string]any, key string) *float64 {
	if v, ok := args[key].(float64); ok {
		return &v
	}
	return nil
}

func argInt(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func (s *Server) toolSearch(args map[string]any) (string, error) {
	filter := query.NodeFilter{
		NamePattern: argString(args, "name"),
		HierPrefix:  argString(args, "hier_prefix"),
		SlackMax:    argFloatPtr(args, "slack_max"),
	}
	if cls := argString(args, "class"); cls != "" {
		class := graph.EntityClass(cls)
		filter.Class = &class
	}

	results := s.eng.SearchNodes(filter)
	limit := argInt(args, "limit", 20)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return formatNodes(results), nil
}

func (s *Server) toolNameSearch(args map[string]any) (string, error) {
	q := argString(args, "query")
	if q == "" {
		return "", fmt.Errorf("mcp: dkg_name_search requires a query")
	}
	results, err := s.eng.SearchByName(q, argInt(args, "limit", 20))
	if err != nil {
		return "", fmt.Errorf("mcp: name search: %w", err)
	}
	return formatNodes(results), nil
}

func (s *Server) toolContext(args map[string]any) (string, error) {
	nodeID := argString(args, "node_id")
	n := s.store.GetNode(nodeID)
	if n == nil {
		return fmt.Sprintf("Node %q not found.", nodeID), nil
	}

	depth := argInt(args, "depth", 2)
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Context for %s (%s)\n\n", n.HierPath, n.Class)

	fanin := s.eng.Fanin(nodeID, depth)
	fmt.Fprintf(&sb, "### Upstream (%d)\n", len(fanin))
	for _, u := range fanin {
		fmt.Fprintf(&sb, "- %s (%s)\n", u.HierPath, u.Class)
	}

	fanout := s.eng.Fanout(nodeID, depth)
	fmt.Fprintf(&sb, "\n### Downstream (%d)\n", len(fanout))
	for _, d := range fanout {
		fmt.Fprintf(&sb, "- %s (%s)\n", d.HierPath, d.Class)
	}

	return sb.String(), nil
}

func (s *Server) toolPaths(ctx context.Context, args map[string]any) (string, error) {
	src := argString(args, "source")
	dst := argString(args, "target")
	if src == "" || dst == "" {
		return "", fmt.Errorf("mcp: dkg_paths requires source and target")
	}

	if argBool(args, "shortest", false) {
		weight := query.WeightHops
		if argString(args, "weight") == "delay" {
			weight = query.WeightDelay
		}
		path, cost, found, err := s.eng.ShortestPath(ctx, src, dst, weight)
		if err != nil {
			return "", fmt.Errorf("mcp: shortest path: %w", err)
		}
		if !found {
			return fmt.Sprintf("No path found from %s to %s.", src, dst), nil
		}
		return fmt.Sprintf("Shortest path (cost %.3f): %s", cost, strings.Join(path, " -> ")), nil
	}

	paths, err := s.eng.FindPaths(ctx, src, dst, argInt(args, "max_depth", 6), nil)
	if err != nil {
		return "", fmt.Errorf("mcp: find paths: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Sprintf("No paths found from %s to %s.", src, dst), nil
	}
	var sb strings.Builder
	for i, p := range paths {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.Join(p, " -> "))
	}
	return sb.String(), nil
}

func (s *Server) toolCriticalNodes(args map[string]any) (string, error) {
	nodes := s.eng.CriticalNodes(argFloat(args, "threshold", 0), argInt(args, "limit", 10))
	if len(nodes) == 0 {
		return "No critical nodes found.", nil
	}
	var sb strings.Builder
	for i, n := range nodes {
		fmt.Fprintf(&sb, "%d. %s (%s) slack=%.3f\n", i+1, n.HierPath, n.Class, *n.Slack)
	}
	return sb.String(), nil
}

func (s *Server) toolView(ctx context.Context, args map[string]any) (string, error) {
	kind := argString(args, "kind")
	if kind == "" {
		kind = "connectivity"
	}
	vctx := argString(args, "context")
	if vctx == "" {
		vctx = "design"
	}

	builder := view.New(s.store)
	sg, err := builder.Build(ctx, view.ViewKind(kind), view.Context(vctx))
	if err != nil {
		return "", fmt.Errorf("mcp: building view: %w", err)
	}

	byClass := make(map[view.SuperClass]int)
	for _, sn := range sg.Nodes {
		byClass[sn.Class]++
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, string(class))
	}
	sort.Strings(classes)

	var sb strings.Builder
	fmt.Fprintf(&sb, "## View: %s / %s\n\n", kind, vctx)
	fmt.Fprintf(&sb, "SuperNodes: %d\n", len(sg.Nodes))
	fmt.Fprintf(&sb, "SuperEdges: %d\n", len(sg.Edges))
	for _, class := range classes {
		fmt.Fprintf(&sb, "  %s: %d\n", class, byClass[view.SuperClass(class)])
	}
	return sb.String(), nil
}

func (s *Server) toolAlerts(ctx context.Context, args map[string]any) (string, error) {
	builder := view.New(s.store)
	sg, err := builder.Build(ctx, view.ViewConnectivity, view.ContextDesign)
	if err != nil {
		return "", fmt.Errorf("mcp: building view: %w", err)
	}

	agg := timing.New(s.store)
	alerts := agg.GenerateAlerts(sg, argFloat(args, "clock_period_ns", 10))
	if len(alerts) == 0 {
		return "No timing alerts.", nil
	}
	var sb strings.Builder
	for _, a := range alerts {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", a.Severity, a.EntityRef, a.Reason)
	}
	return sb.String(), nil
}

func formatNodes(nodes []*graph.Node) string {
	if len(nodes) == 0 {
		return "No results found."
	}
	var sb strings.Builder
	for i, n := range nodes {
		fmt.Fprintf(&sb, "%d. %s (%s)", i+1, n.HierPath, n.Class)
		if n.Slack != nil {
			fmt.Fprintf(&sb, " slack=%.3f", *n.Slack)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (s *Server) resourceOverview() string {
	var sb strings.Builder
	sb.WriteString("# Design Knowledge Graph Overview\n\n")
	fmt.Fprintf(&sb, "Nodes: %d\n", s.store.NodeCount())
	fmt.Fprintf(&sb, "Edges: %d\n", s.store.EdgeCount())
	classes := []graph.EntityClass{
		graph.ClassModuleInstance, graph.ClassRtlBlock, graph.ClassFlipFlop, graph.ClassLut,
		graph.ClassMux, graph.ClassDsp, graph.ClassBram, graph.ClassIoPort, graph.ClassPackagePin,
		graph.ClassPblock, graph.ClassBoardConnector, graph.ClassClockDomain, graph.ClassFsm,
	}
	sb.WriteString("\nBy class:\n")
	for _, c := range classes {
		if n := s.store.CountNodesByClass(c); n > 0 {
			fmt.Fprintf(&sb, "  %s: %d\n", c, n)
		}
	}
	return sb.String()
}

func (s *Server) resourceSchema() string {
	return strings.Join([]string{
		"# Entity classes",
		"module_instance, rtl_block, flip_flop, lut, mux, dsp, bram,",
		"io_port, package_pin, pblock, board_connector, clock_domain, fsm",
		"",
		"# Relation types",
		"data, clock, reset, parameter, constraint, physical_mapping",
	}, "\n")
}

// Run drives a JSON-RPC-over-stdio loop, reading one request object per
// line from stdin and writing one response object per line to stdout.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(stdout)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req map[string]any
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			_ = enc.Encode(errorResponse(nil, -32700, "parse error"))
			continue
		}

		resp := s.handleRequest(ctx, req)
		if resp != nil {
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("mcp: writing response: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mcp: reading requests: %w", err)
	}
	return nil
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	case "notifications/initialized":
		return nil
	default:
		return errorResponse(id, -32601, fmt.Sprintf("method not found: %s", method))
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    s.impl.Name,
				"version": s.impl.Version,
			},
		},
	}
}

func (s *Server) handleToolsList(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"tools": s.ListTools(),
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	text, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
		},
	}
}

func (s *Server) handleResourcesList(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"resources": s.ListResources(),
		},
	}
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	uri, _ := params["uri"].(string)

	text, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"contents": []map[string]any{
				{"uri": uri, "mimeType": "text/plain", "text": text},
			},
		},
	}
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
