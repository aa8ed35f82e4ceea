package hypothesis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/claimbank/internal/vectorstore"
)

// fakeVectorStore is an in-memory vectorstore.Store that ranks by word
// overlap instead of embeddings, which makes similarity deterministic and
// easy to reason about in tests. Error fields inject one-shot or sticky
// failures.
type fakeVectorStore struct {
	mu   sync.Mutex
	docs map[string]vectorstore.Document

	addErr    error
	searchErr error
	// failuresLeft makes injected errors one-shot when positive: each
	// failing call decrements it and the error clears at zero.
	failuresLeft int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{docs: make(map[string]vectorstore.Document)}
}

func (f *fakeVectorStore) consumeFailure(err error) error {
	if err == nil {
		return nil
	}
	if f.failuresLeft > 0 {
		f.failuresLeft--
		if f.failuresLeft == 0 {
			f.addErr = nil
			f.searchErr = nil
		}
	}
	return err
}

func (f *fakeVectorStore) Add(_ context.Context, docs []vectorstore.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumeFailure(f.addErr); err != nil {
		return err
	}
	if len(docs) == 0 {
		return vectorstore.ErrEmptyDocuments
	}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return nil
}

func (f *fakeVectorStore) Get(_ context.Context, id string) (*vectorstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrDocumentNotFound, id)
	}
	return &doc, nil
}

func (f *fakeVectorStore) Search(_ context.Context, query string, k int, where map[string]string) ([]vectorstore.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.consumeFailure(f.searchErr); err != nil {
		return nil, err
	}
	var results []vectorstore.SearchResult
	for _, doc := range f.docs {
		if !metadataMatches(doc.Metadata, where) {
			continue
		}
		results = append(results, vectorstore.SearchResult{
			ID:       doc.ID,
			Content:  doc.Content,
			Score:    wordOverlap(query, doc.Content),
			Metadata: doc.Metadata,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (f *fakeVectorStore) Delete(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeVectorStore) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs), nil
}

func (f *fakeVectorStore) Close() error { return nil }

func metadataMatches(metadata, where map[string]string) bool {
	for key, want := range where {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// wordOverlap is the Jaccard similarity of the two texts' word sets.
func wordOverlap(a, b string) float32 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	var shared int
	for word := range setA {
		if _, ok := setB[word]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float32(shared) / float32(union)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		set[word] = struct{}{}
	}
	return set
}

var _ vectorstore.Store = (*fakeVectorStore)(nil)

// insight builds a supporting pattern insight with the given novelty.
func insight(claim string, novelty float64, anchors ...string) Insight {
	return Insight{
		Type:         DiscoveryPattern,
		Claim:        claim,
		NoveltyScore: novelty,
		AnchorRefs:   anchors,
	}
}

// contesting builds a contradiction insight against the given claim.
func contesting(claim string, novelty float64, anchors ...string) Insight {
	ins := insight(claim, novelty, anchors...)
	ins.Type = DiscoveryContradiction
	return ins
}
