package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory scan index. Both sides are fed from the same extracted records,
// so falling back only changes ranking, not coverage.
type Service struct {
	meili *Meili
	scan  *Scan
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, scan *Scan) *Service {
	if scan == nil {
		scan = NewScan()
	}
	return &Service{meili: meili, scan: scan}
}

// Search tries Meilisearch if healthy, otherwise falls back to the scan index.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to scan: %v", err)
	}

	results, total, err := s.scan.Search(q)
	if err != nil {
		log.Printf("search: scan error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDocument extracts the entity records from a document text and updates
// both indexes. The Meilisearch push is fire-and-forget; records that vanished
// since the last snapshot are deleted by id.
func (s *Service) IndexDocument(documentID, text string) {
	records := ExtractRecords(documentID, text)

	previous := s.scan.Records(documentID)
	s.scan.SetDocument(documentID, records)

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	stale := staleIDs(previous, records)
	go func() {
		if err := s.meili.IndexRecords(records); err != nil {
			log.Printf("search: index document %s: %v", documentID, err)
		}
		if len(stale) > 0 {
			if err := s.meili.DeleteRecords(stale); err != nil {
				log.Printf("search: prune records for %s: %v", documentID, err)
			}
		}
	}()
}

// DeleteDocument removes all of a document's records from both indexes.
func (s *Service) DeleteDocument(documentID string) {
	previous := s.scan.Records(documentID)
	s.scan.RemoveDocument(documentID)

	if s.meili == nil || !s.meili.Healthy() || len(previous) == 0 {
		return
	}
	ids := make([]string, 0, len(previous))
	for _, r := range previous {
		ids = append(ids, r.ID)
	}
	go func() {
		if err := s.meili.DeleteRecords(ids); err != nil {
			log.Printf("search: delete document %s: %v", documentID, err)
		}
	}()
}

// ReindexAll rebuilds both indexes from scratch. Called during startup once
// the documents have been loaded from the store.
func (s *Service) ReindexAll(texts map[string]string) {
	for documentID, text := range texts {
		s.IndexDocument(documentID, text)
	}
}

func staleIDs(previous, current []EntityRecord) []string {
	keep := make(map[string]bool, len(current))
	for _, r := range current {
		keep[r.ID] = true
	}
	var stale []string
	for _, r := range previous {
		if !keep[r.ID] {
			stale = append(stale, r.ID)
		}
	}
	return stale
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
