package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
)

func randomVectors(r *rand.Rand, n, dim int) ([][]float32, []string) {
	vecs := make([][]float32, n)
	paths := make([]string, n)
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(r.NormFloat64())
		}
		vecs[i] = v
		paths[i] = fmt.Sprintf("docs/doc_%03d.txt", i)
	}
	return vecs, paths
}

func TestBuildNormalizes(t *testing.T) {
	idx, err := Build([][]float32{{3, 4}, {0, 2}}, []string{"a.txt", "b.txt"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Len() != 2 || idx.Dimension() != 2 {
		t.Fatalf("Len=%d Dimension=%d", idx.Len(), idx.Dimension())
	}
	v := idx.vectors[:idx.dim]
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("vector 0 = %v, want [0.6 0.8]", v)
	}
	if idx.Path(1) != "b.txt" {
		t.Errorf("Path(1) = %q", idx.Path(1))
	}
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	in := [][]float32{{3, 4}}
	if _, err := Build(in, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if in[0][0] != 3 {
		t.Errorf("input mutated: %v", in[0])
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float32
		paths   []string
		want    error
	}{
		{"dimension mismatch", [][]float32{{1, 0}, {1, 0, 0}}, []string{"a", "b"}, apperrors.ErrDimensionMismatch},
		{"length mismatch", [][]float32{{1, 0}}, []string{"a", "b"}, apperrors.ErrInvalidInput},
		{"zero vector", [][]float32{{1, 0}, {0, 0}}, []string{"a", "b"}, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.vectors, tt.paths)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Build err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSearchReturnsMinKN(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	vecs, paths := randomVectors(r, 4, 16)
	idx, err := Build(vecs, paths)
	if err != nil {
		t.Fatal(err)
	}
	q := vecs[2]
	for _, k := range []int{1, 3, 4, 10} {
		hits, err := idx.Search(q, k)
		if err != nil {
			t.Fatalf("Search k=%d: %v", k, err)
		}
		if want := min(k, 4); len(hits) != want {
			t.Errorf("k=%d: got %d hits, want %d", k, len(hits), want)
		}
		for i := 1; i < len(hits); i++ {
			if hits[i-1].Score < hits[i].Score {
				t.Errorf("k=%d: scores not non-increasing at %d: %v", k, i, hits)
			}
		}
	}
}

func TestSearchExactMatchRanksFirst(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	vecs, paths := randomVectors(r, 50, 32)
	idx, _ := Build(vecs, paths)
	hits, err := idx.Search(vecs[17], 3)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Position != 17 {
		t.Errorf("top hit = %d, want 17", hits[0].Position)
	}
	if math.Abs(hits[0].Score-1) > 1e-5 {
		t.Errorf("self score = %f, want 1", hits[0].Score)
	}
}

func TestSearchTieBreakByPosition(t *testing.T) {
	vecs := [][]float32{{0, 1}, {1, 0}, {0, 1}, {1, 0}, {2, 0}}
	idx, _ := Build(vecs, []string{"a", "b", "c", "d", "e"})
	hits, err := idx.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 3, 4}
	for i, h := range hits {
		if h.Position != want[i] {
			t.Fatalf("positions = %v, want %v", hits, want)
		}
	}
}

func TestSearchErrors(t *testing.T) {
	idx, _ := Build([][]float32{{1, 0}}, []string{"a"})
	if _, err := idx.Search([]float32{1, 0}, 0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("k=0 err = %v, want ErrInvalidInput", err)
	}
	if _, err := idx.Search([]float32{1, 0}, -2); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("k<0 err = %v, want ErrInvalidInput", err)
	}
	if _, err := idx.Search([]float32{1, 0, 0}, 1); !errors.Is(err, apperrors.ErrDimensionMismatch) {
		t.Errorf("dim err = %v, want ErrDimensionMismatch", err)
	}
	if _, err := idx.Search([]float32{0, 0}, 1); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("zero query err = %v, want ErrInvalidInput", err)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, err := Build(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search([]float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("Search on empty index: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits on empty index", len(hits))
	}
	if _, err := idx.Search([]float32{1}, 0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("k=0 on empty index err = %v, want ErrInvalidInput", err)
	}
}

func BenchmarkSearch(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	vecs, paths := randomVectors(r, 10000, 384)
	idx, _ := Build(vecs, paths)
	q := vecs[42]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Search(q, 10); err != nil {
			b.Fatal(err)
		}
	}
}
