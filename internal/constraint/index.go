package constraint

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Benny93/dkg-go/internal/graph"
)

// candidateKey pairs a matchable string with the node it came from, so
// the index can hold all three match fields (hier_path, local_name,
// canonical_name) in one sorted structure per spec.md §9 "build a
// prefix/suffix index over hier_path and local_name once per ingestion,
// reuse across a constraint file".
type candidateKey struct {
	key  string
	node *graph.Node
}

// patternIndex lets a wildcard pattern narrow its scan to the entries
// sharing its literal prefix (the run of characters before the first '*'
// or '?'), instead of testing every node in the store.
type patternIndex struct {
	entries []candidateKey // sorted by key
}

func buildPatternIndex(store *graph.Store) *patternIndex {
	nodes := store.AllNodes()
	entries := make([]candidateKey, 0, len(nodes)*3)
	for _, n := range nodes {
		entries = append(entries, candidateKey{key: n.HierPath, node: n})
		if n.LocalName != "" {
			entries = append(entries, candidateKey{key: n.LocalName, node: n})
		}
		canonical, _ := n.Attributes["canonical_name"].(string)
		if canonical != "" {
			entries = append(entries, candidateKey{key: canonical, node: n})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return &patternIndex{entries: entries}
}

// match returns every node whose hier_path, local_name, or canonical_name
// matches pattern (spec.md §4.5 "Pattern language" — a match against any
// one field is sufficient; the three are tried in that order but the
// result set is a union, since matching is "sufficient" not "first-hit").
func (idx *patternIndex) match(pattern string) []*graph.Node {
	lo, hi := idx.prefixRange(literalPrefix(pattern))

	seen := make(map[string]bool)
	var out []*graph.Node
	for _, e := range idx.entries[lo:hi] {
		ok, err := doublestar.Match(pattern, e.key)
		if err != nil || !ok {
			continue
		}
		if seen[e.node.ID] {
			continue
		}
		seen[e.node.ID] = true
		out = append(out, e.node)
	}
	return out
}

// literalPrefix returns the run of pattern characters before the first
// wildcard ('*' or '?').
func literalPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*?")
	if idx < 0 {
		return pattern
	}
	return pattern[:idx]
}

// prefixRange returns the [lo, hi) slice bounds of entries whose key
// starts with prefix, via binary search over the sorted entries.
func (idx *patternIndex) prefixRange(prefix string) (int, int) {
	if prefix == "" {
		return 0, len(idx.entries)
	}
	lo := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].key >= prefix
	})
	upperBound := prefix[:len(prefix)-1] + string(prefix[len(prefix)-1]+1)
	hi := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].key >= upperBound
	})
	return lo, hi
}
