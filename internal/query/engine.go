// Package query implements the Query Engine (spec.md §4.8): a read-only
// surface over the Graph Store and SuperGraph snapshots. Every operation
// here is pure with respect to the store — none of them ever touch the
// Updater.
package query

import (
	"container/heap"
	"context"
	"errors"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Benny93/dkg-go/internal/graph"
	"github.com/Benny93/dkg-go/internal/view"
)

// ErrInterrupted is returned by the bounded-search operations when ctx is
// found cancelled during the search: FindPaths checks it at every step of
// its depth-first walk, ShortestPath before every queue pop (spec.md §5).
var ErrInterrupted = errors.New("query: interrupted")

// ErrNoNameIndex is returned by SearchByName when no NameIndex has been
// attached via SetNameIndex.
var ErrNoNameIndex = errors.New("query: no name index attached")

// Engine is a read-only query surface over a fixed graph.Store. It holds
// no SuperGraph; the Super-aware operations take one as an argument.
type Engine struct {
	store     *graph.Store
	nameIndex *NameIndex
}

// New creates an Engine over store.
func New(store *graph.Store) *Engine {
	return &Engine{store: store}
}

// SetNameIndex attaches the NameIndex that SearchByName reads. SearchNodes
// does not use it.
func (eng *Engine) SetNameIndex(idx *NameIndex) {
	eng.nameIndex = idx
}

// NodeFilter composes node-search predicates by intersection — a nil
// field is not applied (spec.md §4.8 "composition by intersection").
type NodeFilter struct {
	Class       *graph.EntityClass
	NamePattern string // shell-wildcard pattern against LocalName
	HierPrefix  string
	SlackMin    *float64
	SlackMax    *float64
	ClockDomain *string
	Predicate   func(*graph.Node) bool
}

// SearchNodes returns every node satisfying every non-nil criterion in f.
func (eng *Engine) SearchNodes(f NodeFilter) []*graph.Node {
	var candidates []*graph.Node
	switch {
	case f.HierPrefix != "":
		candidates = eng.store.NodesByHierPrefix(f.HierPrefix)
	case f.Class != nil:
		candidates = eng.store.NodesByClass(*f.Class)
	default:
		candidates = eng.store.AllNodes()
	}

	var out []*graph.Node
	for _, n := range candidates {
		if f.Class != nil && n.Class != *f.Class {
			continue
		}
		if f.NamePattern != "" {
			ok, err := doublestar.Match(f.NamePattern, n.LocalName)
			if err != nil || !ok {
				continue
			}
		}
		if f.SlackMin != nil && (n.Slack == nil || *n.Slack < *f.SlackMin) {
			continue
		}
		if f.SlackMax != nil && (n.Slack == nil || *n.Slack > *f.SlackMax) {
			continue
		}
		if f.ClockDomain != nil && n.ClockDomain != *f.ClockDomain {
			continue
		}
		if f.Predicate != nil && !f.Predicate(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// SearchByName ranks nodes by full-text relevance against query over
// hier_path/local_name, using the attached NameIndex
// accelerator. Unlike SearchNodes's NamePattern (an exact shell-wildcard
// match), this is a ranked substring/token search meant for interactive
// lookup when the caller doesn't know the exact name. Returns nil,
// ErrNoNameIndex if no index was attached via SetNameIndex.
func (eng *Engine) SearchByName(query string, limit int) ([]*graph.Node, error) {
	if eng.nameIndex == nil {
		return nil, ErrNoNameIndex
	}
	ids, err := eng.nameIndex.SearchNodeIDs(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*graph.Node, 0, len(ids))
	for _, id := range ids {
		if n := eng.store.GetNode(id); n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// EdgeFilter composes edge-search predicates symmetrically to NodeFilter.
type EdgeFilter struct {
	RelType           *graph.RelationType
	FlowType          *graph.FlowType
	SignalNamePattern string
	ClockDomain       *string
	Predicate         func(*graph.Edge) bool
}

// SearchEdges returns every edge satisfying every non-nil criterion in f.
func (eng *Engine) SearchEdges(f EdgeFilter) []*graph.Edge {
	var candidates []*graph.Edge
	if f.RelType != nil {
		candidates = eng.store.EdgesByRelType(*f.RelType)
	} else {
		candidates = eng.store.AllEdges()
	}

	var out []*graph.Edge
	for _, e := range candidates {
		if f.RelType != nil && e.RelType != *f.RelType {
			continue
		}
		if f.FlowType != nil && e.FlowType != *f.FlowType {
			continue
		}
		if f.SignalNamePattern != "" {
			ok, err := doublestar.Match(f.SignalNamePattern, e.SignalName)
			if err != nil || !ok {
				continue
			}
		}
		if f.ClockDomain != nil && e.ClockDomain != *f.ClockDomain {
			continue
		}
		if f.Predicate != nil && !f.Predicate(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FindPaths enumerates every simple path (no repeated node) from src to
// dst of at most maxDepth edges. followPredicate, if non-nil, restricts
// which edges may be traversed. Visits each edge at most once per path,
// keeping total work O(V + E·maxDepth) for practical graphs (spec.md
// §4.8).
func (eng *Engine) FindPaths(ctx context.Context, src, dst string, maxDepth int, followPredicate func(*graph.Edge) bool) ([][]string, error) {
	var paths [][]string
	visited := map[string]bool{src: true}
	path := []string{src}

	var walk func(depth int, current string) error
	walk = func(depth int, current string) error {
		select {
		case <-ctx.Done():
			return ErrInterrupted
		default:
		}
		if current == dst && len(path) > 1 {
			cp := make([]string, len(path))
			copy(cp, path)
			paths = append(paths, cp)
			return nil
		}
		if depth >= maxDepth {
			return nil
		}
		for _, e := range eng.store.OutEdges(current) {
			if followPredicate != nil && !followPredicate(e) {
				continue
			}
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			path = append(path, e.Target)
			if err := walk(depth+1, e.Target); err != nil {
				return err
			}
			path = path[:len(path)-1]
			visited[e.Target] = false
		}
		return nil
	}

	if err := walk(0, src); err != nil {
		return nil, err
	}
	return paths, nil
}

// Weight selects the edge cost function for ShortestPath.
type Weight string

const (
	WeightHops  Weight = "hops"
	WeightDelay Weight = "delay"
)

type pqItem struct {
	nodeID string
	cost   float64
	path   []string
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].cost < pq[j].cost }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)         { *pq = append(*pq, x.(*pqItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// ShortestPath runs Dijkstra's algorithm with the given edge weight
// function (hops: every edge costs 1; delay: edge.Delay, treating a nil
// delay as 0). Returns the path, its total cost, and whether dst was
// reachable.
func (eng *Engine) ShortestPath(ctx context.Context, src, dst string, weight Weight) ([]string, float64, bool, error) {
	pq := &priorityQueue{{nodeID: src, cost: 0, path: []string{src}}}
	heap.Init(pq)
	best := map[string]float64{src: 0}

	for pq.Len() > 0 {
		select {
		case <-ctx.Done():
			return nil, 0, false, ErrInterrupted
		default:
		}

		item := heap.Pop(pq).(*pqItem)
		if item.nodeID == dst {
			return item.path, item.cost, true, nil
		}
		if c, ok := best[item.nodeID]; ok && item.cost > c {
			continue
		}
		for _, e := range eng.store.OutEdges(item.nodeID) {
			cost := edgeCost(e, weight)
			next := item.cost + cost
			if c, ok := best[e.Target]; ok && c <= next {
				continue
			}
			best[e.Target] = next
			np := make([]string, len(item.path)+1)
			copy(np, item.path)
			np[len(item.path)] = e.Target
			heap.Push(pq, &pqItem{nodeID: e.Target, cost: next, path: np})
		}
	}
	return nil, 0, false, nil
}

func edgeCost(e *graph.Edge, weight Weight) float64 {
	switch weight {
	case WeightDelay:
		if e.Delay != nil {
			return *e.Delay
		}
		return 0
	case WeightHops:
		return 1
	default:
		panic("query: unhandled Weight in edgeCost: " + string(weight))
	}
}

// Fanout returns every node reachable from src within depth hops
// (excluding src itself).
func (eng *Engine) Fanout(src string, depth int) []*graph.Node {
	return eng.bfsFrom(src, depth, eng.store.OutEdges, func(e *graph.Edge) string { return e.Target })
}

// Fanin returns every node that can reach dst within depth hops
// (excluding dst itself).
func (eng *Engine) Fanin(dst string, depth int) []*graph.Node {
	return eng.bfsFrom(dst, depth, eng.store.InEdges, func(e *graph.Edge) string { return e.Source })
}

func (eng *Engine) bfsFrom(start string, depth int, edgesOf func(string, ...graph.RelationType) []*graph.Edge, endpoint func(*graph.Edge) string) []*graph.Node {
	visited := map[string]bool{start: true}
	frontier := []string{start}
	var out []*graph.Node
	for d := 0; d < depth; d++ {
		var next []string
		for _, id := range frontier {
			for _, e := range edgesOf(id) {
				other := endpoint(e)
				if visited[other] {
					continue
				}
				visited[other] = true
				if n := eng.store.GetNode(other); n != nil {
					out = append(out, n)
				}
				next = append(next, other)
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	return out
}

// CriticalNodes returns every node whose slack is at or below threshold,
// sorted ascending by slack, limited to topN results if topN > 0.
func (eng *Engine) CriticalNodes(threshold float64, topN int) []*graph.Node {
	var out []*graph.Node
	for _, n := range eng.store.AllNodes() {
		if n.Slack != nil && *n.Slack <= threshold {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Slack < *out[j].Slack })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// FindSuperNodes returns every SuperNode in sg matching the optional
// superClass and hasTiming filters.
func FindSuperNodes(sg *view.SuperGraph, superClass *view.SuperClass, hasTiming *bool) []*view.SuperNode {
	var out []*view.SuperNode
	ids := make([]string, 0, len(sg.Nodes))
	for id := range sg.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sn := sg.Nodes[id]
		if superClass != nil && sn.Class != *superClass {
			continue
		}
		if hasTiming != nil {
			_, has := sn.Analysis["timing"]
			if has != *hasTiming {
				continue
			}
		}
		out = append(out, sn)
	}
	return out
}

// SupernodeOf returns the SuperNode nodeID belongs to in sg.
func SupernodeOf(sg *view.SuperGraph, nodeID string) (*view.SuperNode, bool) {
	id, ok := sg.SupernodeOf(nodeID)
	if !ok {
		return nil, false
	}
	return sg.Nodes[id], true
}
