package search

import (
	"testing"
)

const textWithoutTags = `# Checkout #flow#
- Cart review <!-- do:do-1 -->

---

` + "```data-objects" + `
{
  "nextId": 2,
  "objects": [
    {"id": "do-1", "name": "Cart", "data": {"attributes": [
      {"id": "attr-1", "name": "Total", "type": "text"}
    ]}}
  ]
}
` + "```" + `
`

const sampleText = textWithoutTags + `
` + "```tag-store" + `
{
  "nextGroupId": 2, "nextTagId": 2,
  "groups": [{"id": "tg-1", "name": "Actors"}],
  "tags": [{"id": "tag-1", "name": "customer", "groupId": "tg-1"}]
}
` + "```" + `
`

func TestExtractRecords(t *testing.T) {
	records := ExtractRecords("doc-1", sampleText)

	byID := map[string]EntityRecord{}
	for _, r := range records {
		byID[r.ID] = r
	}

	obj, ok := byID["doc-1:do-1"]
	if !ok {
		t.Fatalf("data object record missing, got %+v", records)
	}
	if obj.Type != string(ResultDataObject) || obj.Name != "Cart" {
		t.Errorf("object record = %+v", obj)
	}
	if obj.Snippet != "Total" {
		t.Errorf("object snippet = %q, want attribute names", obj.Snippet)
	}

	tag, ok := byID["doc-1:tag-1"]
	if !ok {
		t.Fatal("tag record missing")
	}
	if tag.Name != "customer" || tag.Snippet != "Actors" {
		t.Errorf("tag record = %+v", tag)
	}
}

func TestScanSearchRanksNameAboveSnippet(t *testing.T) {
	scan := NewScan()
	scan.SetDocument("doc-1", []EntityRecord{
		{ID: "doc-1:do-1", EntityID: "do-1", Type: "dataObject", Name: "Order", Snippet: "Total", DocumentID: "doc-1"},
		{ID: "doc-1:do-2", EntityID: "do-2", Type: "dataObject", Name: "Invoice", Snippet: "Order ref", DocumentID: "doc-1"},
	})

	results, total, err := scan.Search(Query{Text: "order"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if results[0].ID != "do-1" {
		t.Errorf("name match should rank first, got %s", results[0].ID)
	}
}

func TestScanSearchFilters(t *testing.T) {
	scan := NewScan()
	scan.SetDocument("doc-1", []EntityRecord{
		{ID: "doc-1:do-1", EntityID: "do-1", Type: "dataObject", Name: "Order", DocumentID: "doc-1"},
	})
	scan.SetDocument("doc-2", []EntityRecord{
		{ID: "doc-2:tag-1", EntityID: "tag-1", Type: "tag", Name: "ordering", DocumentID: "doc-2"},
	})

	results, _, err := scan.Search(Query{Text: "order", FilterType: ResultTag})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "tag-1" {
		t.Errorf("type filter results = %+v", results)
	}

	results, _, err = scan.Search(Query{Text: "order", FilterDocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "do-1" {
		t.Errorf("document filter results = %+v", results)
	}
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	svc := NewService(nil, nil)
	svc.IndexDocument("doc-1", sampleText)

	resp := svc.Search(Query{Text: "cart"})
	if resp.Total != 1 || resp.Results[0].ID != "do-1" {
		t.Errorf("response = %+v", resp)
	}

	svc.DeleteDocument("doc-1")
	resp = svc.Search(Query{Text: "cart"})
	if resp.Total != 0 {
		t.Errorf("total after delete = %d", resp.Total)
	}
	if resp.Results == nil {
		t.Error("results should be non-nil")
	}
}

func TestIndexDocumentReplacesRecords(t *testing.T) {
	svc := NewService(nil, nil)
	svc.IndexDocument("doc-1", sampleText)

	// Re-index with the tag store removed; its records must disappear.
	svc.IndexDocument("doc-1", textWithoutTags)

	resp := svc.Search(Query{Text: "customer"})
	if resp.Total != 0 {
		t.Errorf("stale tag record still searchable: %+v", resp)
	}
	resp = svc.Search(Query{Text: "cart"})
	if resp.Total != 1 {
		t.Errorf("surviving record lost: %+v", resp)
	}
}
