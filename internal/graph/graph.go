// Package graph provides the in-memory Graph Store (spec.md §4.1) for the
// DKG fusion engine.
//
// It is a lightweight, map-backed directed graph that stores Node and Edge
// instances with O(1) lookups by id. Secondary indexes on entity class,
// relation type, hierarchy prefix, and adjacency ensure that queries scale
// linearly with the result set rather than with the total graph size.
//
// Store is the read/create surface only: field-level mutation is mediated
// exclusively by internal/updater.Updater (spec.md §4.1, §4.3, §9 "Global
// mutable state" — the store is an explicit value, never an ambient
// singleton).
package graph

import (
	"strings"
	"sync"
)

// Store is an in-memory directed graph of design entities and their
// relations.
//
// Nodes and edges are keyed by their id string. All query methods are
// backed by secondary indexes so that lookups by entity class, relation
// type, hierarchy prefix, or adjacency are O(result) rather than O(graph).
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Edge

	// Secondary indexes — kept in sync by AddNode/AddEdge.
	byClass   map[EntityClass]map[string]*Node
	byRelType map[RelationType]map[string]*Edge
	outgoing  map[string]map[string]*Edge
	incoming  map[string]map[string]*Edge
	prefix    *pathTrie
}

// NewStore creates a new empty Graph Store.
func NewStore() *Store {
	return &Store{
		nodes:     make(map[string]*Node),
		edges:     make(map[string]*Edge),
		byClass:   make(map[EntityClass]map[string]*Node),
		byRelType: make(map[RelationType]map[string]*Edge),
		outgoing:  make(map[string]map[string]*Edge),
		incoming:  make(map[string]map[string]*Edge),
		prefix:    newPathTrie(),
	}
}

// NodeCount returns the number of nodes without list materialization.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges without list materialization.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// CountNodesByClass returns the count of nodes with the given entity class.
func (s *Store) CountNodesByClass(class EntityClass) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byClass[class])
}

// AddNode adds a node to the store. Returns *DuplicateIDError if a node
// with this id already exists — ingestors must remove (via Compact, see
// below) before re-adding, never silently overwrite, so that provenance
// stays attributable to the original creation.
func (s *Store) AddNode(n *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[n.ID]; exists {
		return &DuplicateIDError{ID: n.ID}
	}

	s.nodes[n.ID] = n
	if s.byClass[n.Class] == nil {
		s.byClass[n.Class] = make(map[string]*Node)
	}
	s.byClass[n.Class][n.ID] = n
	s.prefix.insert(n.HierPath, n.ID)
	return nil
}

// GetNode returns the node with the given id, or nil if it does not exist.
func (s *Store) GetNode(id string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id]
}

// AddEdge adds an edge to the store. Returns *DuplicateIDError if an edge
// with this id already exists, or *DanglingEndpointError if either
// endpoint is absent (spec.md §3 Edge invariant).
func (s *Store) AddEdge(e *Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.edges[e.ID]; exists {
		return &DuplicateIDError{ID: e.ID}
	}
	if _, ok := s.nodes[e.Source]; !ok {
		return &DanglingEndpointError{EdgeID: e.ID, EndpointID: e.Source}
	}
	if _, ok := s.nodes[e.Target]; !ok {
		return &DanglingEndpointError{EdgeID: e.ID, EndpointID: e.Target}
	}

	s.edges[e.ID] = e

	if s.byRelType[e.RelType] == nil {
		s.byRelType[e.RelType] = make(map[string]*Edge)
	}
	s.byRelType[e.RelType][e.ID] = e

	if s.outgoing[e.Source] == nil {
		s.outgoing[e.Source] = make(map[string]*Edge)
	}
	s.outgoing[e.Source][e.ID] = e

	if s.incoming[e.Target] == nil {
		s.incoming[e.Target] = make(map[string]*Edge)
	}
	s.incoming[e.Target][e.ID] = e

	return nil
}

// GetEdge returns the edge with the given id, or nil if it does not exist.
func (s *Store) GetEdge(id string) *Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges[id]
}

// Compact drops every node and edge not named in keepNodeIDs/keepEdgeIDs
// and rebuilds every secondary index from the retained set. An edge is
// also dropped if either endpoint was dropped, even if its own id is in
// keepEdgeIDs. This is the only way entities are ever removed from the
// store (spec.md §3 "Lifecycle") — callers run it once after a full
// re-ingest pass has repopulated the stages, passing the ids that
// reappeared in that pass.
func (s *Store) Compact(keepNodeIDs, keepEdgeIDs map[string]bool) (removedNodes, removedEdges []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.nodes {
		if !keepNodeIDs[id] {
			removedNodes = append(removedNodes, id)
		}
	}
	for id := range s.edges {
		if !keepEdgeIDs[id] {
			removedEdges = append(removedEdges, id)
		}
	}
	if len(removedNodes) == 0 && len(removedEdges) == 0 {
		return nil, nil
	}

	newNodes := make(map[string]*Node, len(keepNodeIDs))
	newByClass := make(map[EntityClass]map[string]*Node)
	newPrefix := newPathTrie()
	for id, n := range s.nodes {
		if !keepNodeIDs[id] {
			continue
		}
		newNodes[id] = n
		if newByClass[n.Class] == nil {
			newByClass[n.Class] = make(map[string]*Node)
		}
		newByClass[n.Class][id] = n
		newPrefix.insert(n.HierPath, id)
	}

	newEdges := make(map[string]*Edge, len(keepEdgeIDs))
	newByRelType := make(map[RelationType]map[string]*Edge)
	newOutgoing := make(map[string]map[string]*Edge)
	newIncoming := make(map[string]map[string]*Edge)
	for id, e := range s.edges {
		if !keepEdgeIDs[id] {
			continue
		}
		_, srcKept := newNodes[e.Source]
		_, tgtKept := newNodes[e.Target]
		if !srcKept || !tgtKept {
			removedEdges = append(removedEdges, id)
			continue
		}
		newEdges[id] = e
		if newByRelType[e.RelType] == nil {
			newByRelType[e.RelType] = make(map[string]*Edge)
		}
		newByRelType[e.RelType][id] = e
		if newOutgoing[e.Source] == nil {
			newOutgoing[e.Source] = make(map[string]*Edge)
		}
		newOutgoing[e.Source][id] = e
		if newIncoming[e.Target] == nil {
			newIncoming[e.Target] = make(map[string]*Edge)
		}
		newIncoming[e.Target][id] = e
	}

	s.nodes = newNodes
	s.byClass = newByClass
	s.prefix = newPrefix
	s.edges = newEdges
	s.byRelType = newByRelType
	s.outgoing = newOutgoing
	s.incoming = newIncoming
	return removedNodes, removedEdges
}

// NodesByClass returns all nodes with the given entity class.
func (s *Store) NodesByClass(class EntityClass) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes, ok := s.byClass[class]
	if !ok {
		return nil
	}
	result := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		result = append(result, n)
	}
	return result
}

// NodesByHierPrefix returns all nodes whose HierPath is the given prefix
// or a descendant of it ('/'-segment aligned, not a raw string prefix).
func (s *Store) NodesByHierPrefix(prefix string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.prefix.collect(prefix)
	result := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.nodes[id]; ok {
			result = append(result, n)
		}
	}
	return result
}

// EdgesByRelType returns all edges with the given relation type.
func (s *Store) EdgesByRelType(relType RelationType) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges, ok := s.byRelType[relType]
	if !ok {
		return nil
	}
	result := make([]*Edge, 0, len(edges))
	for _, e := range edges {
		result = append(result, e)
	}
	return result
}

// OutEdges returns edges originating from the given node id. If relType is
// provided, only edges of that type are returned.
func (s *Store) OutEdges(nodeID string, relType ...RelationType) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByType(s.outgoing[nodeID], relType...)
}

// InEdges returns edges targeting the given node id. If relType is
// provided, only edges of that type are returned.
func (s *Store) InEdges(nodeID string, relType ...RelationType) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByType(s.incoming[nodeID], relType...)
}

func filterByType(edges map[string]*Edge, relType ...RelationType) []*Edge {
	if len(edges) == 0 {
		return nil
	}
	if len(relType) == 0 || relType[0] == "" {
		result := make([]*Edge, 0, len(edges))
		for _, e := range edges {
			result = append(result, e)
		}
		return result
	}
	result := make([]*Edge, 0)
	for _, e := range edges {
		if e.RelType == relType[0] {
			result = append(result, e)
		}
	}
	return result
}

// HasIncoming returns true if the node has any incoming edge of the given
// relation type.
func (s *Store) HasIncoming(nodeID string, relType RelationType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.incoming[nodeID] {
		if e.RelType == relType {
			return true
		}
	}
	return false
}

// OutDegree returns the number of outgoing edges of a node (used by the
// Timing Aggregator's fanout statistics, spec.md §4.6).
func (s *Store) OutDegree(nodeID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outgoing[nodeID])
}

// AllNodes returns every node in the store. The slice is a snapshot copy;
// mutating it does not affect the store.
func (s *Store) AllNodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		result = append(result, n)
	}
	return result
}

// AllEdges returns every edge in the store. The slice is a snapshot copy.
func (s *Store) AllEdges() []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		result = append(result, e)
	}
	return result
}

// Stats returns a summary of graph size.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int{
		"nodes": len(s.nodes),
		"edges": len(s.edges),
	}
}

// pathTrie is a prefix trie over '/'-joined hier_path segments, letting
// NodesByHierPrefix avoid a full table scan (spec.md §9 "Pattern matching
// performance" applies equally to hierarchy prefix queries).
type pathTrie struct {
	children map[string]*pathTrie
	ids      []string // node ids whose HierPath terminates exactly here
}

func newPathTrie() *pathTrie {
	return &pathTrie{children: make(map[string]*pathTrie)}
}

func (t *pathTrie) insert(hierPath, id string) {
	node := t
	for _, seg := range splitHierPath(hierPath) {
		child, ok := node.children[seg]
		if !ok {
			child = newPathTrie()
			node.children[seg] = child
		}
		node = child
	}
	node.ids = append(node.ids, id)
}

func (t *pathTrie) collect(prefix string) []string {
	node := t
	for _, seg := range splitHierPath(prefix) {
		child, ok := node.children[seg]
		if !ok {
			return nil
		}
		node = child
	}
	var out []string
	node.walk(&out)
	return out
}

func (t *pathTrie) walk(out *[]string) {
	*out = append(*out, t.ids...)
	for _, child := range t.children {
		child.walk(out)
	}
}

func splitHierPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
