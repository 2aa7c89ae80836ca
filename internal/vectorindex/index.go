// Package vectorindex holds the corpus embeddings and their path mapping as
// one logical table and answers exact top-k cosine queries over it.
//
// An Index is immutable once built or loaded; concurrent Search calls need
// no locking.
package vectorindex

import (
	"container/heap"
	"fmt"
	"math"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
	"github.com/google/uuid"
)

// Hit is one search result: the corpus position of a stored vector and its
// cosine similarity to the query.
type Hit struct {
	Position int
	Score    float64
}

// Index is a flat store of N unit-length D-dimensional vectors with a
// positionally aligned list of document paths.
type Index struct {
	dim       int
	vectors   []float32
	paths     []string
	buildID   uuid.UUID
	createdAt time.Time
}

// Build copies and L2-normalizes vectors in the order given and pairs them
// with paths. Every vector must share the length of the first.
func Build(vectors [][]float32, paths []string) (*Index, error) {
	if len(vectors) != len(paths) {
		return nil, fmt.Errorf("%w: %d vectors but %d paths", apperrors.ErrInvalidInput, len(vectors), len(paths))
	}
	idx := &Index{
		paths:     append([]string(nil), paths...),
		buildID:   uuid.New(),
		createdAt: time.Now().UTC().Truncate(time.Second),
	}
	if len(vectors) == 0 {
		return idx, nil
	}
	idx.dim = len(vectors[0])
	if idx.dim == 0 {
		return nil, fmt.Errorf("%w: zero-length embedding", apperrors.ErrInvalidInput)
	}
	idx.vectors = make([]float32, 0, len(vectors)*idx.dim)
	for i, v := range vectors {
		if len(v) != idx.dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				apperrors.ErrDimensionMismatch, i, len(v), idx.dim)
		}
		start := len(idx.vectors)
		idx.vectors = append(idx.vectors, v...)
		if !Normalize(idx.vectors[start:]) {
			return nil, fmt.Errorf("%w: vector %d (%s) has zero norm", apperrors.ErrInvalidInput, i, paths[i])
		}
	}
	return idx, nil
}

// Normalize scales v to unit length in place. It reports false, leaving v
// untouched, when v has zero norm.
func Normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return false
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return true
}

// Search returns the top min(k, N) positions by descending cosine score.
// Equal scores are ordered by ascending position.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", apperrors.ErrInvalidInput, k)
	}
	n := idx.Len()
	if n == 0 {
		return []Hit{}, nil
	}
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			apperrors.ErrDimensionMismatch, len(query), idx.dim)
	}
	q := append([]float32(nil), query...)
	if !Normalize(q) {
		return nil, fmt.Errorf("%w: query vector has zero norm", apperrors.ErrInvalidInput)
	}

	k = min(k, n)
	h := make(hitHeap, 0, k)
	for pos := 0; pos < n; pos++ {
		hit := Hit{Position: pos, Score: idx.dot(q, pos)}
		if len(h) < k {
			heap.Push(&h, hit)
			continue
		}
		if worse(h[0], hit) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}

	out := make([]Hit, len(h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Hit)
	}
	return out, nil
}

func (idx *Index) dot(q []float32, pos int) float64 {
	row := idx.vectors[pos*idx.dim : (pos+1)*idx.dim]
	var s float64
	for i, x := range row {
		s += float64(x) * float64(q[i])
	}
	return s
}

// Len is the number of stored vectors.
func (idx *Index) Len() int { return len(idx.paths) }

// Dimension is D, or 0 for an empty index.
func (idx *Index) Dimension() int { return idx.dim }

// Path returns the document path mapped to position pos.
func (idx *Index) Path(pos int) string { return idx.paths[pos] }

// BuildID identifies the build that produced this index. It is shared by the
// vector and mapping artifacts and used to key derived caches.
func (idx *Index) BuildID() string { return idx.buildID.String() }

func (idx *Index) CreatedAt() time.Time { return idx.createdAt }

// worse reports whether a ranks below b.
func worse(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Position > b.Position
}

// hitHeap keeps the current top-k with the worst hit at the root.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
