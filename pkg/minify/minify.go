package minify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/elattma/mimo-core-sub000/pkg/ai"
	"github.com/elattma/mimo-core-sub000/pkg/model"

	"github.com/pkoukk/tiktoken-go"
)

// ErrContentTooLarge reports a budget that cannot be met even after full
// minification: the single most relevant chunk alone exceeds it. Callers
// surface this as a distinct condition instead of truncating further.
var ErrContentTooLarge = errors.New("content too large for token budget")

const defaultEncoding = "o200k_base"

// Distance selects the metric used to rank blocks against the request
// embedding.
type Distance string

const (
	DistanceEuclidean Distance = "euclidean"
	DistanceCosine    Distance = "cosine"
)

// Minifier orders candidate blocks by embedding distance to the request
// and trims the set until it fits a token budget, preserving the most
// relevant material.
type Minifier struct {
	ai       ai.Client
	distance Distance
	encoding string

	counterOnce sync.Once
	counter     func(string) int
	counterErr  error
}

type NewMinifierParams struct {
	AI       ai.Client
	Distance Distance

	// Encoding names the tiktoken encoding used for token accounting.
	Encoding string

	// Counter overrides the tokenizer, mainly for tests.
	Counter func(string) int
}

func NewMinifier(params NewMinifierParams) *Minifier {
	if params.Distance == "" {
		params.Distance = DistanceEuclidean
	}
	if params.Encoding == "" {
		params.Encoding = defaultEncoding
	}
	return &Minifier{
		ai:       params.AI,
		distance: params.Distance,
		encoding: params.Encoding,
		counter:  params.Counter,
	}
}

type scoredChunk struct {
	chunk  model.Chunk
	dist   float64
	tokens int
}

type scoredBlock struct {
	block      *model.Block
	chunks     []scoredChunk
	dist       float64
	propTokens int
}

func (b *scoredBlock) tokens() int {
	total := b.propTokens
	for _, c := range b.chunks {
		total += c.tokens
	}
	return total
}

// Minify sorts blocks (and chunks within a block) by distance to the
// request embedding, nearest first, then trims from the least-relevant end
// until the total token count fits the budget. The most relevant block is
// never dropped whole; if it alone exceeds the budget its least-relevant
// chunks go one at a time. Distance ties keep input order.
func (m *Minifier) Minify(ctx context.Context, request string, blocks []*model.Block, budget int) ([]*model.Block, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("token budget must be positive, got %d", budget)
	}
	if len(blocks) == 0 {
		return blocks, nil
	}

	count, err := m.tokenCounter()
	if err != nil {
		return nil, err
	}

	requestEmbedding, err := m.ai.GenerateEmbedding(ctx, []byte(request))
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}

	scored, err := m.score(ctx, blocks, requestEmbedding, count)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].dist < scored[j].dist
	})
	for _, sb := range scored {
		sort.SliceStable(sb.chunks, func(i, j int) bool {
			return sb.chunks[i].dist < sb.chunks[j].dist
		})
	}

	total := 0
	for _, sb := range scored {
		total += sb.tokens()
	}

	for len(scored) > 1 && total > budget {
		last := scored[len(scored)-1]
		scored = scored[:len(scored)-1]
		total -= last.tokens()
	}

	if total > budget {
		sb := scored[0]
		for len(sb.chunks) > 1 && total > budget {
			last := sb.chunks[len(sb.chunks)-1]
			sb.chunks = sb.chunks[:len(sb.chunks)-1]
			total -= last.tokens
		}
		if total > budget {
			return nil, ErrContentTooLarge
		}
	}

	out := make([]*model.Block, 0, len(scored))
	for _, sb := range scored {
		chunks := make([]model.Chunk, 0, len(sb.chunks))
		for _, c := range sb.chunks {
			chunks = append(chunks, c.chunk)
		}
		sb.block.Chunks = chunks
		out = append(out, sb.block)
	}
	return out, nil
}

// score embeds every chunk text in one batched call and assigns
// per-chunk and per-block distances. A block's distance is that of its
// nearest chunk; property-only blocks are embedded on their serialized
// content.
func (m *Minifier) score(ctx context.Context, blocks []*model.Block, requestEmbedding []float32, count func(string) int) ([]*scoredBlock, error) {
	inputs := make([][]byte, 0, len(blocks))
	for _, b := range blocks {
		if len(b.Chunks) == 0 {
			inputs = append(inputs, []byte(b.ContentText()))
			continue
		}
		for _, c := range b.Chunks {
			inputs = append(inputs, []byte(c.Text))
		}
	}

	embeddings, err := m.ai.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embedding candidates: %w", err)
	}
	if len(embeddings) != len(inputs) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(embeddings), len(inputs))
	}

	scored := make([]*scoredBlock, 0, len(blocks))
	next := 0
	for _, b := range blocks {
		sb := &scoredBlock{block: b}
		if len(b.Properties) > 0 {
			sb.propTokens = count(model.RenderProperties(b.Label, b.Properties))
		}

		if len(b.Chunks) == 0 {
			sb.dist = m.dist(requestEmbedding, embeddings[next])
			next++
			scored = append(scored, sb)
			continue
		}

		sb.dist = math.Inf(1)
		for _, c := range b.Chunks {
			d := m.dist(requestEmbedding, embeddings[next])
			next++
			sb.chunks = append(sb.chunks, scoredChunk{
				chunk:  c,
				dist:   d,
				tokens: count(c.Text),
			})
			if d < sb.dist {
				sb.dist = d
			}
		}
		scored = append(scored, sb)
	}
	return scored, nil
}

func (m *Minifier) dist(a, b []float32) float64 {
	if m.distance == DistanceCosine {
		return cosineDistance(a, b)
	}
	return euclideanDistance(a, b)
}

func (m *Minifier) tokenCounter() (func(string) int, error) {
	m.counterOnce.Do(func() {
		if m.counter != nil {
			return
		}
		enc, err := tiktoken.GetEncoding(m.encoding)
		if err != nil {
			m.counterErr = fmt.Errorf("loading encoding %s: %w", m.encoding, err)
			return
		}
		m.counter = func(text string) int {
			return len(enc.Encode(text, nil, nil))
		}
	})
	return m.counter, m.counterErr
}

func euclideanDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
