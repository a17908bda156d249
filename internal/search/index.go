package search

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// SearchResult is one training report close to a query
type SearchResult struct {
	ID       int64   `json:"id"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Index is an approximate nearest neighbour index over feature rows. Rows are
// keyed by insertion order, so reports sharing an id are all kept. Safe for
// concurrent use.
type Index struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[int]
	entries []entry
	dim     int
}

type entry struct {
	id       int64
	category string
}

// NewIndex creates an empty cosine index. m is the maximum number of
// neighbours per node and efSearch the candidate list size at query time.
func NewIndex(m, efSearch int) *Index {
	graph := hnsw.NewGraph[int]()
	graph.Distance = hnsw.CosineDistance
	graph.M = m
	graph.Ml = 0.25
	graph.EfSearch = efSearch
	return &Index{graph: graph}
}

// Add indexes vec under id. Rows without any known term have no direction
// and are skipped; Add reports whether the row was indexed.
func (ix *Index) Add(id int64, category string, vec []float64) (bool, error) {
	if norm(vec) == 0 {
		return false, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vec)
	}
	if len(vec) != ix.dim {
		return false, fmt.Errorf("vector has %d dimensions, index has %d", len(vec), ix.dim)
	}

	ix.graph.Add(hnsw.MakeNode(len(ix.entries), toFloat32(vec)))
	ix.entries = append(ix.entries, entry{id: id, category: category})
	return true, nil
}

// Search returns up to k indexed rows most similar to vec, best first.
func (ix *Index) Search(vec []float64, k int) []SearchResult {
	if k <= 0 || norm(vec) == 0 {
		return nil
	}

	// hnsw does not promise that concurrent searches are safe.
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.graph.Len() == 0 || len(vec) != ix.dim {
		return nil
	}

	nodes := ix.graph.Search(toFloat32(vec), k)
	results := make([]SearchResult, 0, len(nodes))
	for _, node := range nodes {
		e := ix.entries[node.Key]
		results = append(results, SearchResult{
			ID:       e.id,
			Category: e.category,
			Score:    CosineSimilarity(vec, toFloat64(node.Value)),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// Len returns the number of indexed rows
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph.Len()
}

// CosineSimilarity calculates the cosine similarity between two vectors
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
