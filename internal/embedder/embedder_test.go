package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEncodeIsNormalizedAndDeterministic(t *testing.T) {
	h := NewHash(128)
	a, err := h.Encode(context.Background(), "Quarterly invoices are due on the fifth")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, _ := h.Encode(context.Background(), "Quarterly invoices are due on the fifth")
	if len(a) != 128 {
		t.Fatalf("len = %d, want 128", len(a))
	}
	if math.Abs(norm(a)-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", norm(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Encode not deterministic at %d", i)
		}
	}
}

func TestHashSimilarity(t *testing.T) {
	h := NewHash(256)
	ctx := context.Background()
	q, _ := h.Encode(ctx, "how do I reset my password")
	near, _ := h.Encode(ctx, "To reset a password, open account settings")
	far, _ := h.Encode(ctx, "The cafeteria serves lunch at noon")
	if dot(q, near) <= dot(q, far) {
		t.Errorf("expected related text to score higher: near=%f far=%f", dot(q, near), dot(q, far))
	}
}

func TestHashRejectsEmpty(t *testing.T) {
	h := NewHash(16)
	for _, text := range []string{"", "   \n\t"} {
		if _, err := h.Encode(context.Background(), text); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("Encode(%q) err = %v, want ErrInvalidInput", text, err)
		}
	}
}

func TestHashStopWordsOnly(t *testing.T) {
	h := NewHash(32)
	v, err := h.Encode(context.Background(), "what is it")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if math.Abs(norm(v)-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", norm(v))
	}
}

func TestNewFactory(t *testing.T) {
	e, err := New(config.EmbedderConfig{Type: "hash", Dimension: 48})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Dimension() != 48 {
		t.Errorf("Dimension = %d", e.Dimension())
	}

	t.Setenv("EMBED_TEST_KEY", "")
	_, err = New(config.EmbedderConfig{Type: "openai", APIKeyEnv: "EMBED_TEST_KEY", Dimension: 8})
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Errorf("missing key err = %v, want ErrConfiguration", err)
	}
	_, err = New(config.EmbedderConfig{Type: "word2vec", Dimension: 8})
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Errorf("unknown type err = %v, want ErrConfiguration", err)
	}
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeEmbeddingServer answers with vectors whose first component encodes
// the input position, listing results in reverse order.
func fakeEmbeddingServer(t *testing.T, dim int, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dim)
			vec[0] = float64(len(req.Input[i]))
			vec[1] = 1
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
}

func TestOpenAIEncodeBatchPreservesOrder(t *testing.T) {
	calls := 0
	srv := fakeEmbeddingServer(t, 4, &calls)
	defer srv.Close()

	e := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "m", Dimension: 4, BatchSize: 2})
	texts := []string{"a", "bbb", "cc", "dddd", "e"}
	vecs, err := e.EncodeBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 batches", calls)
	}
	for i, v := range vecs {
		l := float64(len(texts[i]))
		want := l / math.Sqrt(l*l+1)
		if math.Abs(float64(v[0])-want) > 1e-5 {
			t.Errorf("vec[%d][0] = %f, want %f", i, v[0], want)
		}
	}
}

func TestOpenAIDimensionMismatch(t *testing.T) {
	calls := 0
	srv := fakeEmbeddingServer(t, 3, &calls)
	defer srv.Close()

	e := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "m", Dimension: 8})
	_, err := e.Encode(context.Background(), "hello")
	if !errors.Is(err, apperrors.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestOpenAIRejectsEmptyWithoutCalling(t *testing.T) {
	calls := 0
	srv := fakeEmbeddingServer(t, 4, &calls)
	defer srv.Close()

	e := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Dimension: 4})
	if _, err := e.EncodeBatch(context.Background(), []string{"ok", " "}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if calls != 0 {
		t.Errorf("server called %d times", calls)
	}
}
