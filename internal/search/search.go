// Package search indexes the entities embedded in document texts so users
// can find data objects, tags, diagrams, tests and hub notes across all
// documents. Meilisearch serves queries when reachable; an in-memory scan
// over the same records answers otherwise.
package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDataObject     ResultType = "dataObject"
	ResultTag            ResultType = "tag"
	ResultSystemFlow     ResultType = "systemFlow"
	ResultTestDefinition ResultType = "testDefinition"
	ResultHubNote        ResultType = "hubNote"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	DocumentID string     `json:"documentId"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterDocumentID string
	Limit            int
	Offset           int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// EntityRecord is the data indexed per embedded entity. The record id is
// namespaced with the document id so the same entity id in two documents
// never collides.
type EntityRecord struct {
	ID         string `json:"id"`
	EntityID   string `json:"entityId"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	Snippet    string `json:"snippet"`
	DocumentID string `json:"documentId"`
}
