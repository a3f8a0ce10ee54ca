package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/dkg-go/internal/graph"
)

// Key prefixes for the full-text name index.
const (
	prefixFTSToken = "fts:t:"
	prefixFTSMeta  = "fts:m:"
)

var (
	wordSplitPattern  = regexp.MustCompile(`[_./\-\s\[\]]+`)
	camelCasePattern  = regexp.MustCompile(`([a-z])([A-Z])`)
	alphaDigitPattern = regexp.MustCompile(`([a-zA-Z])(\d)`)
	digitAlphaPattern = regexp.MustCompile(`(\d)([a-zA-Z])`)
)

// tokenizeName splits a node's naming fields into searchable tokens,
// handling the separators and casing conventions hierarchical design
// names actually use: '/' and '_' path/bus separators, CamelCase module
// names, and numeric bit-index suffixes ("data_reg[3]" -> "data", "reg",
// "3"). Each '/'-separated path segment is also kept whole as a token
// ("top/cpu/alu_core" -> "alu_core" as well as "alu" and "core").
func tokenizeName(text string) []string {
	if text == "" {
		return nil
	}

	tokens := make(map[string]bool)
	tokens[strings.ToLower(text)] = true

	for _, part := range wordSplitPattern.Split(text, -1) {
		if part != "" {
			tokens[strings.ToLower(part)] = true
		}
	}

	for _, field := range strings.Fields(text) {
		for _, seg := range strings.Split(field, "/") {
			if seg != "" {
				tokens[strings.ToLower(seg)] = true
			}
		}
	}

	spaced := camelCasePattern.ReplaceAllString(text, "$1 $2")
	for _, part := range strings.Fields(spaced) {
		tokens[strings.ToLower(part)] = true
	}

	numSplit := alphaDigitPattern.ReplaceAllString(text, "$1 $2")
	numSplit = digitAlphaPattern.ReplaceAllString(numSplit, "$1 $2")
	for _, part := range strings.Fields(numSplit) {
		tokens[strings.ToLower(part)] = true
	}

	out := make([]string, 0, len(tokens))
	for t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// NameIndex is a BadgerDB-backed inverted index over node naming fields
// (hier_path, local_name), read by Engine.SearchByName. SearchNodes does
// not consult it: its NamePattern is always a doublestar shell-wildcard
// match over the candidate nodes.
type NameIndex struct {
	db *badger.DB
}

// NewNameIndex wraps an already-open BadgerDB handle. The caller owns the
// handle's lifecycle (internal/snapshot.Store or a dedicated index file).
func NewNameIndex(db *badger.DB) *NameIndex {
	return &NameIndex{db: db}
}

// IndexNode (re-)indexes a node's naming fields, replacing any tokens
// previously recorded for the same node id.
func (idx *NameIndex) IndexNode(n *graph.Node) error {
	txn := idx.db.NewTransaction(true)
	defer txn.Discard()

	if err := idx.deleteNodeTokens(txn, n.ID); err != nil {
		return fmt.Errorf("query: clearing old name index entries for %s: %w", n.ID, err)
	}

	text := n.HierPath + " " + n.LocalName
	freq := make(map[string]int)
	for _, part := range wordSplitPattern.Split(strings.ToLower(text), -1) {
		if part != "" {
			freq[part]++
		}
	}
	for _, tok := range tokenizeName(text) {
		if freq[tok] == 0 {
			freq[tok] = 1
		}
	}
	for tok, count := range freq {
		key := prefixFTSToken + tok + ":" + n.ID
		if err := txn.Set([]byte(key), []byte(strconv.Itoa(count))); err != nil {
			return fmt.Errorf("query: writing name token %q for %s: %w", tok, n.ID, err)
		}
	}

	metaKey := prefixFTSMeta + n.ID
	if err := txn.Set([]byte(metaKey), []byte(n.LocalName)); err != nil {
		return fmt.Errorf("query: writing name index metadata for %s: %w", n.ID, err)
	}

	return txn.Commit()
}

// RemoveNode deletes every indexed token and the metadata entry for a
// node id, used when a node is dropped by Store.Compact.
func (idx *NameIndex) RemoveNode(nodeID string) error {
	txn := idx.db.NewTransaction(true)
	defer txn.Discard()

	if err := idx.deleteNodeTokens(txn, nodeID); err != nil {
		return err
	}
	if err := txn.Delete([]byte(prefixFTSMeta + nodeID)); err != nil {
		return err
	}
	return txn.Commit()
}

func (idx *NameIndex) deleteNodeTokens(txn *badger.Txn, nodeID string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixFTSToken)
	it := txn.NewIterator(opts)
	defer it.Close()

	suffix := ":" + nodeID
	var stale [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		if strings.HasSuffix(string(key), suffix) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// SearchNodeIDs returns node ids matching the given plain-text substring
// query, ranked by descending term frequency. This is a candidate-set
// narrower, not a replacement for NodeFilter's exact semantics — callers
// are expected to still apply NodeFilter to the returned ids.
func (idx *NameIndex) SearchNodeIDs(query string, limit int) ([]string, error) {
	tokens := tokenizeName(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	scores := make(map[string]float64)

	txn := idx.db.NewTransaction(false)
	defer txn.Discard()

	for _, tok := range tokens {
		prefix := prefixFTSToken + tok + ":"
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			nodeID := strings.TrimPrefix(string(item.Key()), prefix)

			var freq int
			if err := item.Value(func(val []byte) error {
				freq, _ = strconv.Atoi(string(val))
				return nil
			}); err != nil {
				it.Close()
				return nil, fmt.Errorf("query: reading name token frequency: %w", err)
			}
			scores[nodeID] += float64(freq)
		}
		it.Close()
	}

	ranked := make([]scoredNode, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, scoredNode{id: id, score: score})
	}
	sortScoredDesc(ranked)

	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.id)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type scoredNode struct {
	id    string
	score float64
}

func sortScoredDesc(items []scoredNode) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].score > items[j-1].score; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
