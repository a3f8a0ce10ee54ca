package view

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/Benny93/dkg-go/internal/graph"
)

// ErrInterrupted is returned by Build when ctx is cancelled between
// cycles of the three-cycle algorithm (spec.md §5 "Cancellation and
// timeouts").
var ErrInterrupted = errors.New("view: interrupted")

// DefaultFollowDepth bounds how far edge rewriting follows through
// eliminated nodes before giving up (spec.md §4.7 "Edge rewrite").
const DefaultFollowDepth = 8

// Builder runs the three-cycle rewrite for one (view, context) pair
// against a fixed graph.Store snapshot.
type Builder struct {
	store       *graph.Store
	followDepth int
}

// New creates a Builder over store.
func New(store *graph.Store) *Builder {
	return &Builder{store: store, followDepth: DefaultFollowDepth}
}

// SetFollowDepth overrides DefaultFollowDepth.
func (b *Builder) SetFollowDepth(depth int) {
	b.followDepth = depth
}

// Build runs the Promote, Merge, and Eliminate cycles followed by edge
// rewriting, producing an immutable SuperGraph (spec.md §4.7).
func (b *Builder) Build(ctx context.Context, vk ViewKind, vctx Context) (*SuperGraph, error) {
	nodes := b.store.AllNodes()

	policies := make(map[string]NodePolicy, len(nodes))
	for _, n := range nodes {
		policies[n.ID] = applyOverrides(vctx, n, lookupPolicy(vctx, vk, n.Class))
	}

	sg := &SuperGraph{
		View:        vk,
		Context:     vctx,
		Nodes:       make(map[string]*SuperNode),
		Edges:       make(map[string]*SuperEdge),
		nodeToSuper: make(map[string]string),
	}

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	b.promoteCycle(nodes, policies, sg)

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	b.mergeCycle(nodes, policies, sg)

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	// Eliminate cycle: nodes with ActionEliminate policy simply have no
	// entry in sg.nodeToSuper; nothing further to record here. Their
	// edges become passthrough candidates in the rewrite below.

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	b.rewriteEdges(vk, policies, sg)

	return sg, nil
}

func checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrInterrupted
	default:
		return nil
	}
}

func (b *Builder) promoteCycle(nodes []*graph.Node, policies map[string]NodePolicy, sg *SuperGraph) {
	// Sorted for deterministic iteration; the id hash only depends on
	// Members, but sorted processing keeps behavior reproducible for
	// debugging.
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	for _, n := range nodes {
		p := policies[n.ID]
		if p.Action != ActionPromote {
			continue
		}
		sn := &SuperNode{
			ID:         hashMembers([]string{n.ID}),
			Class:      p.Class,
			Members:    []string{n.ID},
			Attributes: map[string]any{},
			Analysis:   map[string]any{},
		}
		sg.Nodes[sn.ID] = sn
		sg.nodeToSuper[n.ID] = sn.ID
	}
}

func (b *Builder) mergeCycle(nodes []*graph.Node, policies map[string]NodePolicy, sg *SuperGraph) {
	groups := make(map[string][]string) // partition key -> member node ids

	// ModuleCluster and ConstraintGroup partition by a simple key lookup.
	var combinationalMerge []*graph.Node
	for _, n := range nodes {
		p := policies[n.ID]
		if p.Action != ActionMerge {
			continue
		}
		switch p.Class {
		case SuperModuleCluster:
			key := "module_cluster:" + parentHierPath(n.HierPath)
			groups[key] = append(groups[key], n.ID)
		case SuperConstraintGroup:
			key := "constraint_group:" + b.constraintGroupKey(n)
			groups[key] = append(groups[key], n.ID)
		case SuperCombinationalCloud:
			combinationalMerge = append(combinationalMerge, n)
		}
	}

	for _, key := range b.combinationalComponents(combinationalMerge) {
		groups[key.key] = key.members
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		members := groups[key]
		if len(members) == 0 {
			continue
		}
		sort.Strings(members)
		class := classFromGroupKey(key)
		sn := &SuperNode{
			ID:         hashMembers(members),
			Class:      class,
			Members:    members,
			Attributes: map[string]any{"partition_key": key},
			Analysis:   map[string]any{},
		}
		sg.Nodes[sn.ID] = sn
		for _, m := range members {
			sg.nodeToSuper[m] = sn.ID
		}
	}
}

func classFromGroupKey(key string) SuperClass {
	switch {
	case strings.HasPrefix(key, "module_cluster:"):
		return SuperModuleCluster
	case strings.HasPrefix(key, "constraint_group:"):
		return SuperConstraintGroup
	case strings.HasPrefix(key, "combinational_cloud:"):
		return SuperCombinationalCloud
	default:
		panic("view: unrecognized partition key prefix: " + key)
	}
}

func parentHierPath(hierPath string) string {
	hierPath = strings.Trim(hierPath, "/")
	idx := strings.LastIndex(hierPath, "/")
	if idx < 0 {
		return ""
	}
	return hierPath[:idx]
}

// constraintGroupKey resolves the partition key for a ConstraintGroup
// merge node: its declared "constraint_group" attribute if present,
// otherwise the id of the Pblock it maps to via a PhysicalMapping edge
// (spec.md §4.7 "ConstraintGroup → key is a declared constraint group id
// (attribute), else by shared Pblock").
func (b *Builder) constraintGroupKey(n *graph.Node) string {
	if v, ok := n.Attributes["constraint_group"].(string); ok && v != "" {
		return "attr:" + v
	}
	for _, e := range b.store.OutEdges(n.ID, graph.RelPhysicalMapping) {
		if target := b.store.GetNode(e.Target); target != nil && target.Class == graph.ClassPblock {
			return "pblock:" + target.ID
		}
	}
	for _, e := range b.store.InEdges(n.ID, graph.RelPhysicalMapping) {
		if source := b.store.GetNode(e.Source); source != nil && source.Class == graph.ClassPblock {
			return "pblock:" + source.ID
		}
	}
	return "unassigned"
}

type componentGroup struct {
	key     string
	members []string
}

// combinationalComponents partitions merge-pending CombinationalCloud
// nodes into their maximal connected components joined by Combinational-
// flow edges whose endpoints are both in the merge set (spec.md §4.7).
func (b *Builder) combinationalComponents(nodes []*graph.Node) []componentGroup {
	if len(nodes) == 0 {
		return nil
	}
	mergeSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		mergeSet[n.ID] = true
	}

	parent := make(map[string]string, len(nodes))
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for _, n := range nodes {
		parent[n.ID] = n.ID
	}
	for _, n := range nodes {
		for _, e := range b.store.OutEdges(n.ID) {
			if e.FlowType == graph.FlowCombinational && mergeSet[e.Target] {
				union(n.ID, e.Target)
			}
		}
	}

	components := make(map[string][]string)
	for _, n := range nodes {
		root := find(n.ID)
		components[root] = append(components[root], n.ID)
	}

	roots := make([]string, 0, len(components))
	for r := range components {
		roots = append(roots, r)
	}
	sort.Strings(roots)

	out := make([]componentGroup, 0, len(roots))
	for _, r := range roots {
		members := components[r]
		sort.Strings(members)
		out = append(out, componentGroup{key: "combinational_cloud:" + hashMembers(members), members: members})
	}
	return out
}

// rewriteEdges implements spec.md §4.7 step 4. For each original edge it
// resolves both endpoints to SuperNode ids (following through eliminated
// nodes along same-relation-type edges up to the configured depth),
// folds the edge into an existing or new SuperEdge, and drops self-loops
// and edges with no resolvable endpoint.
func (b *Builder) rewriteEdges(vk ViewKind, policies map[string]NodePolicy, sg *SuperGraph) {
	edges := b.store.AllEdges()
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	type aggState struct {
		relCounts map[graph.RelationType]int
	}
	agg := make(map[string]*aggState)

	for _, e := range edges {
		superSrc, okSrc := b.resolveEndpoint(e.Source, e.RelType, sg.nodeToSuper)
		superDst, okDst := b.resolveEndpoint(e.Target, e.RelType, sg.nodeToSuper)
		if !okSrc || !okDst || superSrc == superDst {
			sg.DroppedEdges = append(sg.DroppedEdges, e.ID)
			continue
		}

		key := superSrc + "\x00" + superDst
		se, exists := sg.Edges[key]
		if !exists {
			se = &SuperEdge{
				ID:            hashSuperEdgeID(superSrc, superDst),
				Source:        superSrc,
				Target:        superDst,
				FlowHistogram: make(map[graph.FlowType]int),
				Attributes:    map[string]any{},
				Analysis:      map[string]any{},
			}
			sg.Edges[key] = se
			agg[key] = &aggState{relCounts: make(map[graph.RelationType]int)}
		}
		se.MemberEdges = append(se.MemberEdges, e.ID)
		se.FlowHistogram[e.FlowType]++
		agg[key].relCounts[e.RelType]++
	}

	// Re-key by final SuperEdge id and settle the majority relation type.
	finalEdges := make(map[string]*SuperEdge, len(sg.Edges))
	for key, se := range sg.Edges {
		se.RelType = majorityRelType(agg[key].relCounts)
		sort.Strings(se.MemberEdges)
		finalEdges[se.ID] = se
	}
	sg.Edges = finalEdges
	sort.Strings(sg.DroppedEdges)
}

// resolveEndpoint returns the SuperNode id for nodeID, following through
// eliminated nodes along edges of relType (either direction) up to
// followDepth hops if nodeID itself has no SuperNode.
func (b *Builder) resolveEndpoint(nodeID string, relType graph.RelationType, nodeToSuper map[string]string) (string, bool) {
	if id, ok := nodeToSuper[nodeID]; ok {
		return id, true
	}

	visited := map[string]bool{nodeID: true}
	frontier := []string{nodeID}
	for depth := 0; depth < b.followDepth; depth++ {
		var next []string
		for _, id := range frontier {
			for _, e := range b.store.OutEdges(id, relType) {
				if super, ok := nodeToSuper[e.Target]; ok {
					return super, true
				}
				if !visited[e.Target] {
					visited[e.Target] = true
					next = append(next, e.Target)
				}
			}
			for _, e := range b.store.InEdges(id, relType) {
				if super, ok := nodeToSuper[e.Source]; ok {
					return super, true
				}
				if !visited[e.Source] {
					visited[e.Source] = true
					next = append(next, e.Source)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	return "", false
}

// majorityRelType picks the relation type with the highest member count,
// breaking ties by graph.CanonicalRelationOrder (spec.md §4.7).
func majorityRelType(counts map[graph.RelationType]int) graph.RelationType {
	best := graph.RelationType("")
	bestCount := -1
	for _, rt := range graph.CanonicalRelationOrder() {
		c, ok := counts[rt]
		if !ok {
			continue
		}
		if c > bestCount {
			best = rt
			bestCount = c
		}
	}
	return best
}

// hashMembers computes SuperNode.ID as a deterministic hash of the
// sorted member-node id set (spec.md §4.7 "Determinism").
func hashMembers(members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return "sn_" + hex.EncodeToString(sum[:])[:16]
}

// hashSuperEdgeID computes a deterministic id for a SuperEdge from its
// resolved endpoint SuperNode ids.
func hashSuperEdgeID(source, target string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + target))
	return "se_" + hex.EncodeToString(sum[:])[:16]
}
