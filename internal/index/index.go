// Package index holds the hybrid retrieval index over filing chunks: a bleve
// in-memory BM25 index fused with cosine similarity over OpenAI embedding
// vectors. When no embedder is available the index degrades to BM25 only.
package index

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/finlegal/tenkdraft/models"
	"github.com/finlegal/tenkdraft/provider"
)

const rrfK = 60 // reciprocal-rank-fusion constant

const embedBatchSize = 64

// Embedder is the slice of the provider the index needs. Nil means BM25-only.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type embedVec struct {
	docID string
	vec   []float32
}

type Index struct {
	bleve    bleve.Index
	embedder Embedder

	mu      sync.RWMutex
	meta    map[string]models.Chunk
	vectors []embedVec
	vecPos  map[string]int
}

func New(embedder Embedder) (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating bleve index: %w", err)
	}
	return &Index{
		bleve:    idx,
		embedder: embedder,
		meta:     make(map[string]models.Chunk),
		vecPos:   make(map[string]int),
	}, nil
}

// AddFiling chunks each tracked section of a filing and indexes the chunks.
// Chunks from an earlier version of the same ticker's filing are removed
// first, so a refreshed filing fully supersedes the old one.
func (ix *Index) AddFiling(ctx context.Context, f *models.Filing) error {
	if err := ix.removeSuperseded(f.Ticker, f.ContentHash); err != nil {
		return err
	}
	var chunks []models.Chunk
	for key, text := range f.Sections {
		name := models.SectionNames[key]
		if name == "" {
			name = key
		}
		for i, piece := range makeChunks(text, 2000, 200) {
			chunks = append(chunks, models.Chunk{
				DocID:       fmt.Sprintf("%s#%s#%d", f.ContentHash, key, i),
				Ticker:      f.Ticker,
				CompanyName: f.CompanyName,
				SectionKey:  key,
				SectionName: name,
				FilingDate:  f.FilingDate,
				Text:        piece,
				ChunkIndex:  i,
				ContentHash: f.ContentHash,
			})
		}
	}
	return ix.AddChunks(ctx, chunks)
}

// AddChunks indexes pre-built chunks, embedding them in batches when an
// embedder is configured. Embedding failure downgrades to BM25-only for the
// affected batch rather than failing the build.
func (ix *Index) AddChunks(ctx context.Context, chunks []models.Chunk) error {
	for _, c := range chunks {
		ix.mu.Lock()
		ix.meta[c.DocID] = c
		ix.mu.Unlock()
		if err := ix.bleve.Index(c.DocID, c); err != nil {
			return fmt.Errorf("indexing chunk %s: %w", c.DocID, err)
		}
	}
	if ix.embedder == nil {
		return nil
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vecs, err := ix.embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			log.Printf("[INDEX] embedding batch failed, chunks stay BM25-only: %v", err)
			continue
		}
		ix.mu.Lock()
		for i, v := range vecs {
			id := batch[i].DocID
			// Re-adding a refreshed filing replaces its vector in place.
			if pos, ok := ix.vecPos[id]; ok {
				ix.vectors[pos] = embedVec{docID: id, vec: v}
				continue
			}
			ix.vecPos[id] = len(ix.vectors)
			ix.vectors = append(ix.vectors, embedVec{docID: id, vec: v})
		}
		ix.mu.Unlock()
	}
	return nil
}

// removeSuperseded drops every chunk of the ticker whose content hash differs
// from keepHash, from bleve, the metadata map, and the vector table.
func (ix *Index) removeSuperseded(ticker, keepHash string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	stale := make(map[string]bool)
	for id, c := range ix.meta {
		if strings.EqualFold(c.Ticker, ticker) && c.ContentHash != keepHash {
			stale[id] = true
		}
	}
	if len(stale) == 0 {
		return nil
	}

	for id := range stale {
		if err := ix.bleve.Delete(id); err != nil {
			return fmt.Errorf("deleting stale chunk %s: %w", id, err)
		}
		delete(ix.meta, id)
	}

	kept := ix.vectors[:0]
	pos := make(map[string]int, len(ix.vectors))
	for _, v := range ix.vectors {
		if stale[v.docID] {
			continue
		}
		pos[v.docID] = len(kept)
		kept = append(kept, v)
	}
	ix.vectors = kept
	ix.vecPos = pos
	return nil
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.meta)
}

// Search runs hybrid retrieval filtered by ticker and optionally a section
// key. When a section filter yields nothing, the search retries unfiltered
// across the ticker's filing.
func (ix *Index) Search(ctx context.Context, query, ticker, sectionKey string, k int) ([]models.SearchHit, error) {
	if k <= 0 {
		k = 8
	}
	hits, err := ix.search(ctx, query, ticker, sectionKey, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && sectionKey != "" {
		return ix.search(ctx, query, ticker, "", k)
	}
	return hits, nil
}

func (ix *Index) search(ctx context.Context, query, ticker, sectionKey string, k int) ([]models.SearchHit, error) {
	keyword, err := ix.bm25Search(query, ticker, sectionKey, k)
	if err != nil {
		return nil, err
	}

	var vector []models.SearchHit
	if ix.embedder != nil {
		qvecs, err := ix.embedder.CreateEmbedding(ctx, []string{query})
		if err != nil || len(qvecs) == 0 {
			log.Printf("[INDEX] query embedding failed, using BM25 only: %v", err)
		} else {
			vector = ix.vectorSearch(qvecs[0], ticker, sectionKey, k)
		}
	}
	if len(vector) == 0 {
		if len(keyword) > k {
			keyword = keyword[:k]
		}
		return keyword, nil
	}
	return fuseRRF(keyword, vector, k), nil
}

func (ix *Index) matches(c models.Chunk, ticker, sectionKey string) bool {
	if ticker != "" && !strings.EqualFold(c.Ticker, ticker) {
		return false
	}
	if sectionKey != "" && c.SectionKey != sectionKey {
		return false
	}
	return true
}

func (ix *Index) bm25Search(q, ticker, sectionKey string, k int) ([]models.SearchHit, error) {
	query := bleve.NewQueryStringQuery(q)
	// Over-fetch so post-filtering by ticker/section still fills k.
	searchReq := bleve.NewSearchRequestOptions(query, k*10, 0, false)
	res, err := ix.bleve.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []models.SearchHit
	for _, hit := range res.Hits {
		c, ok := ix.meta[hit.ID]
		if !ok || !ix.matches(c, ticker, sectionKey) {
			continue
		}
		out = append(out, models.SearchHit{Chunk: c, Score: hit.Score, Rank: len(out) + 1})
		if len(out) >= k {
			break
		}
	}
	// BM25 scores are unbounded; express each hit's similarity relative to
	// the best match so downstream scoring sees a [0,1] value.
	if len(out) > 0 && out[0].Score > 0 {
		top := out[0].Score
		for i := range out {
			out[i].Similarity = out[i].Score / top
		}
	}
	return out, nil
}

func (ix *Index) vectorSearch(q []float32, ticker, sectionKey string, k int) []models.SearchHit {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	type scored struct {
		id    string
		score float64
	}
	var scoreds []scored
	for _, v := range ix.vectors {
		c, ok := ix.meta[v.docID]
		if !ok || !ix.matches(c, ticker, sectionKey) {
			continue
		}
		scoreds = append(scoreds, scored{id: v.docID, score: cosine(q, v.vec)})
	}
	sort.Slice(scoreds, func(i, j int) bool { return scoreds[i].score > scoreds[j].score })

	var out []models.SearchHit
	for _, sc := range scoreds {
		sim := sc.score
		if sim < 0 {
			sim = 0
		}
		out = append(out, models.SearchHit{Chunk: ix.meta[sc.id], Score: sc.score, Rank: len(out) + 1, Similarity: sim})
		if len(out) >= k {
			break
		}
	}
	return out
}

func fuseRRF(a, b []models.SearchHit, k int) []models.SearchHit {
	type agg struct {
		item  models.SearchHit
		score float64
	}
	m := map[string]*agg{}
	add := func(list []models.SearchHit) {
		for _, h := range list {
			x, ok := m[h.Chunk.DocID]
			if !ok {
				x = &agg{item: h}
				m[h.Chunk.DocID] = x
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
			// Fusion reorders, it must not dilute the similarity signal.
			if h.Similarity > x.item.Similarity {
				x.item.Similarity = h.Similarity
			}
		}
	}
	add(a)
	add(b)

	items := make([]*agg, 0, len(m))
	for _, v := range m {
		items = append(items, v)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].score > items[j].score })

	if k > len(items) {
		k = len(items)
	}
	out := make([]models.SearchHit, 0, k)
	for i := 0; i < k; i++ {
		h := items[i].item
		h.Score = items[i].score
		h.Rank = i + 1
		out = append(out, h)
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// makeChunks splits text into fixed-size character windows with overlap.
// Window boundaries snap back to the nearest whitespace so words stay whole.
func makeChunks(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 2000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}
		cut := end
		for cut > start && !isSpace(text[cut-1]) {
			cut--
		}
		if cut == start {
			cut = end
		}
		piece := strings.TrimSpace(text[start:cut])
		if piece != "" {
			chunks = append(chunks, piece)
		}
		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

var _ Embedder = provider.Provider(nil)
