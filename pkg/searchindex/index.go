// Package searchindex implements the Tool Search Index: a BM25 (Okapi)
// ranking over deferred tools' names and descriptions, with a raw
// token-overlap fallback for corpora too small for IDF to separate terms.
//
// The ranking function itself is hand-rolled rather than imported because
// no BM25 library turned up anywhere in the retrieved Go corpus — even
// neoz-picoclaw, which needs the same ranking, hand-rolls it
// (pkg/tools/bm25.go). This implementation generalizes that one by also
// splitting on underscores, since MCP tool names are conventionally
// underscore_separated.
package searchindex

import (
	"math"
	"sort"
	"strings"

	"mcpflow/pkg/chatmsg"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Tokenize lowercases s and splits on runs of whitespace or underscores,
// dropping empty tokens.
func Tokenize(s string) []string {
	lower := strings.ToLower(s)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '_' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return fields
}

// Index is a BM25 index over a fixed set of ServerTool documents. It is
// built once per Chat call over that call's deferred tools and never
// mutated afterward.
type Index struct {
	entries  []chatmsg.ServerTool
	docs     [][]string
	docLens  []int
	avgDL    float64
	byName   map[string]int
	byServer map[string][]int
	servers  []string
}

// New builds an Index over entries. An empty entries slice produces a
// degenerate index whose Search always returns no results.
func New(entries []chatmsg.ServerTool) *Index {
	idx := &Index{
		entries: entries,
		docs:    make([][]string, len(entries)),
		docLens: make([]int, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}

	byServer := make(map[string][]int)
	var serverOrder []string
	var totalLen int
	for i, e := range entries {
		doc := Tokenize(e.Tool.Name + " " + e.Tool.Description)
		idx.docs[i] = doc
		idx.docLens[i] = len(doc)
		totalLen += len(doc)
		idx.byName[e.Tool.Name] = i

		if _, ok := byServer[e.Server]; !ok {
			serverOrder = append(serverOrder, e.Server)
		}
		byServer[e.Server] = append(byServer[e.Server], i)
	}
	idx.byServer = byServer
	idx.servers = serverOrder

	if len(entries) > 0 {
		idx.avgDL = float64(totalLen) / float64(len(entries))
	}

	return idx
}

// Search ranks indexed tools against query, optionally restricted to
// serverFilter, and returns at most max results. BM25 scores are computed
// lazily per query; if every document scores zero (a common degeneracy in
// very small corpora) it falls back to raw token-overlap counts.
func (idx *Index) Search(query string, max int, serverFilter *string) []chatmsg.ServerTool {
	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 || len(idx.entries) == 0 {
		return nil
	}

	scores := idx.bm25Scores(queryTerms)

	type scored struct {
		index int
		score float64
	}
	var results []scored
	for i, s := range scores {
		if s > 0 {
			results = append(results, scored{index: i, score: s})
		}
	}

	if len(results) == 0 {
		queryTokenSet := make(map[string]bool, len(queryTerms))
		for _, t := range queryTerms {
			queryTokenSet[t] = true
		}
		for i, doc := range idx.docs {
			overlap := 0
			seen := make(map[string]bool)
			for _, t := range doc {
				if queryTokenSet[t] && !seen[t] {
					overlap++
					seen[t] = true
				}
			}
			if overlap > 0 {
				results = append(results, scored{index: i, score: float64(overlap)})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	var out []chatmsg.ServerTool
	for _, r := range results {
		entry := idx.entries[r.index]
		if serverFilter != nil && entry.Server != *serverFilter {
			continue
		}
		out = append(out, entry)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func (idx *Index) bm25Scores(queryTerms []string) []float64 {
	n := float64(len(idx.entries))

	idf := make(map[string]float64, len(queryTerms))
	for _, term := range queryTerms {
		if _, done := idf[term]; done {
			continue
		}
		df := 0
		for _, doc := range idx.docs {
			for _, tok := range doc {
				if tok == term {
					df++
					break
				}
			}
		}
		idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
	}

	scores := make([]float64, len(idx.entries))
	for i, doc := range idx.docs {
		tf := make(map[string]int, len(doc))
		for _, tok := range doc {
			tf[tok]++
		}
		dl := float64(idx.docLens[i])
		var score float64
		for _, term := range queryTerms {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			denom := f + bm25K1*(1-bm25B+bm25B*dl/idx.avgDL)
			score += idf[term] * (f * (bm25K1 + 1)) / denom
		}
		scores[i] = score
	}
	return scores
}

// GetByServer returns every indexed tool belonging to server, in the
// order it was added to the index.
func (idx *Index) GetByServer(server string) []chatmsg.ServerTool {
	indices := idx.byServer[server]
	out := make([]chatmsg.ServerTool, len(indices))
	for i, di := range indices {
		out[i] = idx.entries[di]
	}
	return out
}

// GetByNames looks up exact tool names. Duplicate names in the input
// produce duplicate entries in found; names not indexed come back in
// notFound.
func (idx *Index) GetByNames(names []string) (found []chatmsg.ServerTool, notFound []string) {
	for _, name := range names {
		if i, ok := idx.byName[name]; ok {
			found = append(found, idx.entries[i])
		} else {
			notFound = append(notFound, name)
		}
	}
	return found, notFound
}

// Len returns the number of indexed tools.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// ServerNames returns the servers with at least one indexed tool, in
// first-seen order.
func (idx *Index) ServerNames() []string {
	out := make([]string, len(idx.servers))
	copy(out, idx.servers)
	return out
}
