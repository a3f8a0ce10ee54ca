// Package view implements the View Builder (spec.md §4.7): a
// policy-driven, three-cycle rewriter that transforms the fused Graph
// Store into an abstracted SuperGraph — promoting, merging, or
// eliminating nodes per a (context, view, entity class) policy table
// while preserving signal-level connectivity through edge rewriting.
package view

import "github.com/Benny93/dkg-go/internal/graph"

// SuperClass tags the abstraction role a SuperNode plays.
type SuperClass string

const (
	SuperAtomic             SuperClass = "atomic"
	SuperModuleCluster      SuperClass = "module_cluster"
	SuperCombinationalCloud SuperClass = "combinational_cloud"
	SuperConstraintGroup    SuperClass = "constraint_group"
	SuperEliminated         SuperClass = "eliminated"
)

// SuperNode is a SuperGraph vertex: a set of original nodes collapsed
// under one abstraction tag.
type SuperNode struct {
	ID    string
	Class SuperClass

	// Members holds the original node ids, sorted ascending — the sort
	// order is what the deterministic id hash is computed over (spec.md
	// §4.7 "Determinism").
	Members []string

	// Attributes carries abstraction-time aggregate metadata (e.g. the
	// partition key it was built from).
	Attributes map[string]any

	// Analysis is the keyed bundle the Analysis Bundle API (internal/
	// analysis) attaches metrics to. Never read or written by the view
	// builder itself (spec.md §3 "Analysis bundles never influence
	// structure").
	Analysis map[string]any
}

// SuperEdge is a SuperGraph edge: one or more original edges crossing the
// boundary between two SuperNodes, aggregated.
type SuperEdge struct {
	ID     string
	Source string // SuperNode id
	Target string // SuperNode id

	// MemberEdges holds the original edge ids folded into this SuperEdge.
	MemberEdges []string

	// RelType is the majority relation type among member edges, ties
	// broken by graph.CanonicalRelationOrder (spec.md §4.7 "Edge
	// rewrite").
	RelType RelationType

	// FlowHistogram counts member edges by flow type.
	FlowHistogram map[FlowType]int

	Attributes map[string]any
	Analysis   map[string]any
}

// RelationType and FlowType alias the graph package's so callers of this
// package don't need a second import for type signatures that only ever
// hold values produced by internal/graph.
type RelationType = graph.RelationType
type FlowType = graph.FlowType

// SuperGraph is an immutable snapshot abstraction of a graph.Store for
// one (View, Context) pair (spec.md §3 "SuperGraphs are immutable
// snapshots").
type SuperGraph struct {
	View    ViewKind
	Context Context

	Nodes map[string]*SuperNode
	Edges map[string]*SuperEdge

	// nodeToSuper maps an original node id to the SuperNode id it belongs
	// to. Absent means the node was eliminated.
	nodeToSuper map[string]string

	// DroppedEdges holds the ids of original edges that could not be
	// rewritten onto any SuperEdge (both-eliminated-endpoint chains with
	// no resolvable non-eliminated endpoint within the follow depth, or
	// resolved to a self-loop).
	DroppedEdges []string
}

// SupernodeOf returns the SuperNode id that nodeID belongs to, or ""
// if nodeID was eliminated (or unknown).
func (g *SuperGraph) SupernodeOf(nodeID string) (string, bool) {
	id, ok := g.nodeToSuper[nodeID]
	return id, ok
}

// Bundle exposes the keyed analysis map for the Analysis Bundle API
// (internal/analysis). The view builder itself never reads or writes it.
func (n *SuperNode) Bundle() map[string]any { return n.Analysis }

// Bundle exposes the keyed analysis map for the Analysis Bundle API.
func (e *SuperEdge) Bundle() map[string]any { return e.Analysis }
