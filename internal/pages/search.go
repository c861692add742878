package pages

import (
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
)

type searchDoc struct {
	Prompt   string `json:"prompt"`
	SiteType string `json:"site_type"`
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
}

// searchIndex is an in-memory full-text index over page metadata. It is
// rebuilt from index.json on first use and kept current by Save.
type searchIndex struct {
	mu    sync.RWMutex
	bleve bleve.Index
	meta  map[string]Metadata
}

func newSearchIndex(entries []Metadata) (*searchIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	s := &searchIndex{bleve: idx, meta: make(map[string]Metadata, len(entries))}
	batch := idx.NewBatch()
	for _, m := range entries {
		s.meta[m.PageID] = m
		if err := batch.Index(m.PageID, docFor(m)); err != nil {
			return nil, err
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, err
	}
	return s, nil
}

func docFor(m Metadata) searchDoc {
	return searchDoc{Prompt: m.Prompt, SiteType: m.SiteType, Title: m.Title, Excerpt: m.Excerpt}
}

func (s *searchIndex) add(m Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[m.PageID] = m
	return s.bleve.Index(m.PageID, docFor(m))
}

func (s *searchIndex) search(q string, limit int) ([]Metadata, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), limit, 0, false)
	res, err := s.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Metadata, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if m, ok := s.meta[hit.ID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
