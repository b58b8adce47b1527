package block

import (
	"strings"
	"testing"
)

const doc = `# Title
- line one

---

` + "```data-objects" + `
{"nextId": 1, "objects": []}
` + "```" + `

` + "```tag-store" + `
{"nextGroupId": 1}
` + "```" + `
`

func TestReadAbsent(t *testing.T) {
	if Read(doc, "no-such-block") != nil {
		t.Fatal("absent block read as present")
	}
}

func TestReadMalformedBodyIsAbsent(t *testing.T) {
	text := "---\n```broken\n{not json\n```\n"
	if Read(text, "broken") != nil {
		t.Fatal("malformed body read as present")
	}
	var v map[string]any
	if ReadInto(text, "broken", &v) {
		t.Fatal("ReadInto accepted malformed body")
	}
}

func TestReadInto(t *testing.T) {
	var v struct {
		NextID int `json:"nextId"`
	}
	if !ReadInto(doc, "data-objects", &v) {
		t.Fatal("ReadInto failed")
	}
	if v.NextID != 1 {
		t.Errorf("nextId = %d", v.NextID)
	}
}

func TestWriteReplacesInPlace(t *testing.T) {
	next, err := Write(doc, "data-objects", map[string]any{"nextId": 2, "objects": []any{}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(next, `"nextId": 2`) {
		t.Error("new value not written")
	}
	// Surrounding text and the other block stay byte-identical.
	if !strings.Contains(next, "# Title\n- line one") {
		t.Error("content region changed")
	}
	if !strings.Contains(next, `{"nextGroupId": 1}`) {
		t.Error("sibling block changed")
	}
	if strings.Count(next, "```data-objects") != 1 {
		t.Error("block duplicated")
	}
}

func TestWriteValueEqualIsNoOp(t *testing.T) {
	next, err := Write(doc, "data-objects", map[string]any{"nextId": 1, "objects": []any{}})
	if err != nil {
		t.Fatal(err)
	}
	if next != doc {
		t.Error("value-equal write changed the text")
	}
}

func TestWriteAppendsSeparatorWhenAbsent(t *testing.T) {
	next, err := Write("# Title\n- line\n", "tag-store", map[string]any{"nextTagId": 1})
	if err != nil {
		t.Fatal(err)
	}
	if SeparatorIndex(next) == -1 {
		t.Fatal("no separator appended")
	}
	if Read(next, "tag-store") == nil {
		t.Fatal("block not written")
	}
	sep := SeparatorIndex(next)
	lines := strings.Split(next, "\n")
	for i := 0; i < sep; i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			t.Fatal("block landed in the content region")
		}
	}
}

func TestRemove(t *testing.T) {
	next := Remove(doc, "tag-store")
	if Read(next, "tag-store") != nil {
		t.Error("block still present")
	}
	if Read(next, "data-objects") == nil {
		t.Error("sibling block removed too")
	}
	if Remove(doc, "no-such-block") != doc {
		t.Error("removing an absent block changed the text")
	}
}

func TestSeparatorIgnoresFencedDashes(t *testing.T) {
	text := "```code\n---\n```\nbody\n---\nmeta"
	if got := SeparatorIndex(text); got != 4 {
		t.Errorf("separator at %d, want 4", got)
	}
}

func TestStrayFenceDoesNotShiftBlocks(t *testing.T) {
	text := "intro\n```\nplain fenced content\n```\n\n---\n\n```data-objects\n{\"nextId\": 3}\n```\n"
	var v struct {
		NextID int `json:"nextId"`
	}
	if !ReadInto(text, "data-objects", &v) || v.NextID != 3 {
		t.Fatalf("block not found past stray fence, nextId = %d", v.NextID)
	}
}

func TestWritePreservesCRLF(t *testing.T) {
	text := "# A\r\n- content line\r\n\r\n---\r\n\r\n```data-objects\r\n{\"nextId\": 1}\r\n```\r\n"
	next, err := Write(text, "data-objects", map[string]any{"nextId": 2})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(next, "# A\r\n- content line\r\n") {
		t.Errorf("content region lost its line endings: %q", next)
	}
	var v struct {
		NextID int `json:"nextId"`
	}
	if !ReadInto(next, "data-objects", &v) || v.NextID != 2 {
		t.Errorf("block not readable after write, nextId = %d", v.NextID)
	}
}

func TestWriteAppendsWithDocumentLineEnding(t *testing.T) {
	next, err := Write("# A\r\n- line\r\n", "tag-store", map[string]any{"nextTagId": 1})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(next, "# A\r\n- line") {
		t.Errorf("content region rewritten: %q", next)
	}
	if !strings.Contains(next, "\r\n---\r\n") {
		t.Errorf("separator not joined with the document's line ending: %q", next)
	}
	if Read(next, "tag-store") == nil {
		t.Error("block not written")
	}
}

func TestRemovePreservesCRLF(t *testing.T) {
	text := "# A\r\n\r\n---\r\n\r\n```tag-store\r\n{\"nextTagId\": 1}\r\n```\r\n"
	next := Remove(text, "tag-store")
	if Read(next, "tag-store") != nil {
		t.Error("block still present")
	}
	if !strings.Contains(next, "# A\r\n") {
		t.Errorf("content region lost its line endings: %q", next)
	}
}

func TestListDocumentOrder(t *testing.T) {
	blocks := List(doc)
	if len(blocks) != 2 {
		t.Fatalf("len = %d", len(blocks))
	}
	if blocks[0].Name != "data-objects" || blocks[1].Name != "tag-store" {
		t.Errorf("order = %q, %q", blocks[0].Name, blocks[1].Name)
	}
}
