package pipeline

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/raphaelgruber/ragbench/internal/db"
	"github.com/raphaelgruber/ragbench/internal/llm"
	"github.com/raphaelgruber/ragbench/internal/models"
)

const fakeDim = 32

// wordEmbedder hashes lower-cased words into a bag-of-words vector.
type wordEmbedder struct {
	model string
	calls int
}

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	v := make([]float32, fakeDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,?!'")))
		v[h.Sum32()%fakeDim]++
	}
	return v, nil
}

func (e *wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (e *wordEmbedder) Model() string {
	if e.model == "" {
		return "fake-embed"
	}
	return e.model
}

func (e *wordEmbedder) Dimension() int { return fakeDim }

// memStore keeps passages in memory and ranks them by cosine similarity.
type memStore struct {
	mu         sync.Mutex
	docs       map[string]models.Document
	vecs       map[string][]float32
	collection *db.Collection
	dimension  int
	wiped      bool
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]models.Document{}, vecs: map[string][]float32{}}
}

func (s *memStore) InitSchema(_ context.Context, dimension int) error {
	s.dimension = dimension
	return nil
}

func (s *memStore) UpsertPassages(_ context.Context, docs []models.Document, embeddings [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range docs {
		s.docs[d.ID] = d
		s.vecs[d.ID] = embeddings[i]
	}
	return nil
}

func (s *memStore) SearchPassages(_ context.Context, q []float32, k int) ([]models.ScoredPassage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hits []models.ScoredPassage
	for id, d := range s.docs {
		hits = append(hits, models.ScoredPassage{Title: d.Title, Content: d.Content, Position: d.Position, Score: cosine(q, s.vecs[id])})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *memStore) CountPassages(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs), nil
}

func (s *memStore) SaveCollection(_ context.Context, col db.Collection) error {
	s.collection = &col
	return nil
}

func (s *memStore) GetCollection(context.Context, string) (*db.Collection, error) {
	return s.collection, nil
}

func (s *memStore) WipeData(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = map[string]models.Document{}
	s.vecs = map[string][]float32{}
	s.collection = nil
	s.wiped = true
	return nil
}

func (s *memStore) DropIndex(context.Context) error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// scriptedChat answers from a function of the user prompt.
type scriptedChat struct {
	answer func(user string) (string, error)
	calls  int
}

func (c *scriptedChat) Generate(_ context.Context, messages []models.Message) (llm.Completion, error) {
	c.calls++
	content, err := c.answer(messages[len(messages)-1].Content)
	if err != nil {
		return llm.Completion{}, err
	}
	return llm.Completion{Content: content, InputTokens: len(messages[len(messages)-1].Content), OutputTokens: len(content)}, nil
}

func (c *scriptedChat) Model() string { return "fake-llama" }
