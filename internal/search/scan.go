package search

import (
	"sort"
	"strings"
	"sync"
)

// Scan is the fallback Searcher: it holds the same entity records in memory
// and answers with case-insensitive substring matching. Good enough to keep
// search working while Meilisearch is down.
type Scan struct {
	mu    sync.RWMutex
	byDoc map[string][]EntityRecord
}

// NewScan creates an empty scan index.
func NewScan() *Scan {
	return &Scan{byDoc: map[string][]EntityRecord{}}
}

// Healthy always returns true; the scan index lives in process memory.
func (s *Scan) Healthy() bool {
	return true
}

// SetDocument replaces the records for one document.
func (s *Scan) SetDocument(documentID string, records []EntityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(records) == 0 {
		delete(s.byDoc, documentID)
		return
	}
	s.byDoc[documentID] = records
}

// RemoveDocument drops a document's records.
func (s *Scan) RemoveDocument(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byDoc, documentID)
}

// Records returns the current records for a document.
func (s *Scan) Records(documentID string) []EntityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]EntityRecord(nil), s.byDoc[documentID]...)
}

// Search ranks name-prefix matches above name matches above snippet matches.
func (s *Scan) Search(q Query) ([]Result, int, error) {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	type ranked struct {
		r    Result
		rank int
	}

	s.mu.RLock()
	var hits []ranked
	for docID, records := range s.byDoc {
		if q.FilterDocumentID != "" && q.FilterDocumentID != docID {
			continue
		}
		for _, rec := range records {
			if q.FilterType != "" && string(q.FilterType) != rec.Type {
				continue
			}
			name := strings.ToLower(rec.Name)
			snippet := strings.ToLower(rec.Snippet)
			rank := 0
			switch {
			case strings.HasPrefix(name, text):
				rank = 3
			case strings.Contains(name, text):
				rank = 2
			case strings.Contains(snippet, text):
				rank = 1
			default:
				continue
			}
			hits = append(hits, ranked{
				r: Result{
					Type:       ResultType(rec.Type),
					ID:         rec.EntityID,
					Title:      rec.Name,
					Snippet:    rec.Snippet,
					DocumentID: rec.DocumentID,
				},
				rank: rank,
			})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank > hits[j].rank
		}
		return hits[i].r.Title < hits[j].r.Title
	})

	total := len(hits)
	if offset >= total {
		return []Result{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	results := make([]Result, 0, end-offset)
	for _, h := range hits[offset:end] {
		results = append(results, h.r)
	}
	return results, total, nil
}
