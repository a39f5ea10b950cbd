package facematch

import (
	"math/rand"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-folio/internal/recognition"
)

const (
	// indexMaxNeighbors (M) is the maximum number of neighbors per node.
	indexMaxNeighbors = 16

	// indexSeed makes level assignment reproducible across runs.
	indexSeed = 1
)

// referenceIndex wraps an HNSW graph over reference embeddings for nearest lookups.
// Keys are positions in the reference slice.
type referenceIndex struct {
	graph *hnsw.Graph[int]
	refs  []ReferenceEntry
	keys  []int
	dim   int
}

// newReferenceIndex builds the index using the oracle's distance.
// Entries whose dimension differs from the first entry are left out.
func newReferenceIndex(refs []ReferenceEntry, distance func(a, b recognition.Embedding) float64) *referenceIndex {
	g := hnsw.NewGraph[int]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Rng = rand.New(rand.NewSource(indexSeed))
	g.Distance = func(a, b []float32) float32 {
		return float32(distance(toEmbedding(a), toEmbedding(b)))
	}

	idx := &referenceIndex{graph: g, refs: refs}
	for i, ref := range refs {
		if len(ref.Embedding) == 0 {
			continue
		}
		if idx.dim == 0 {
			idx.dim = len(ref.Embedding)
		}
		if len(ref.Embedding) != idx.dim {
			continue
		}
		g.Add(hnsw.MakeNode(i, ref.Embedding.Float32()))
		idx.keys = append(idx.keys, i)
	}
	// Reference sets are small, so the search visits every node and stays exact.
	g.EfSearch = max(g.EfSearch, len(idx.keys))
	return idx
}

// candidates returns every indexed reference position, nearest first as ranked
// by the graph. Positions the graph search did not reach are appended in
// reference order.
func (idx *referenceIndex) candidates(query recognition.Embedding) []int {
	if len(idx.keys) == 0 || len(query) != idx.dim {
		return nil
	}
	nodes := idx.graph.Search(query.Float32(), len(idx.keys))
	out := make([]int, 0, len(idx.keys))
	seen := make(map[int]bool, len(idx.keys))
	for _, n := range nodes {
		if !seen[n.Key] {
			seen[n.Key] = true
			out = append(out, n.Key)
		}
	}
	for _, key := range idx.keys {
		if !seen[key] {
			out = append(out, key)
		}
	}
	return out
}

func toEmbedding(v []float32) recognition.Embedding {
	out := make(recognition.Embedding, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
