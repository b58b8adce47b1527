package entity

import (
	"reflect"
	"strings"
	"testing"

	"tapestry/api/internal/anchor"
	"tapestry/api/internal/block"
	"tapestry/api/internal/doctree"
	"tapestry/api/internal/textdoc"
)

const sampleDoc = `# Checkout #flow#
- Cart review <!-- do:do-1 -->
- Payment hub #flowtab#
  - Card
  - Wallet

---

` + "```data-objects" + `
{
  "nextId": 2,
  "objects": [
    {"id": "do-1", "name": "Cart", "data": {"attributes": [
      {"id": "attr-1", "name": "Total", "type": "text"},
      {"id": "attr-2", "name": "State", "type": "status", "values": ["open", "paid"]}
    ]}}
  ]
}
` + "```" + `
`

func newDoc(t *testing.T, text string) *textdoc.Memory {
	t.Helper()
	return textdoc.NewMemory(text)
}

func TestDataObjectCreate(t *testing.T) {
	doc := newDoc(t, "")
	store := NewDataObjectStore(doc)

	obj := store.Create("Order")
	if obj == nil {
		t.Fatal("create returned nil")
	}
	if obj.ID != "do-1" || obj.Name != "Order" {
		t.Fatalf("got %q %q, want do-1 Order", obj.ID, obj.Name)
	}

	loaded := store.Load()
	if loaded.NextID != 2 {
		t.Errorf("nextId = %d, want 2", loaded.NextID)
	}
	if loaded.Find("do-1") == nil {
		t.Error("do-1 not persisted")
	}
}

func TestDataObjectCreateBlankName(t *testing.T) {
	doc := newDoc(t, sampleDoc)
	store := NewDataObjectStore(doc)

	if store.Create("   ") != nil {
		t.Fatal("blank name accepted")
	}
	if doc.Text() != sampleDoc {
		t.Error("rejected create mutated the document")
	}
}

func TestDataObjectIDsNeverReused(t *testing.T) {
	doc := newDoc(t, "")
	store := NewDataObjectStore(doc)

	store.Create("Order")
	second := store.Create("Invoice")
	if second.ID != "do-2" {
		t.Fatalf("second id = %q", second.ID)
	}
	if !store.Delete("do-2") {
		t.Fatal("delete failed")
	}
	third := store.Create("Shipment")
	if third.ID != "do-3" {
		t.Errorf("id reused after delete: got %q, want do-3", third.ID)
	}
}

func TestDataObjectRenameNoOp(t *testing.T) {
	doc := newDoc(t, sampleDoc)
	store := NewDataObjectStore(doc)

	before := doc.Text()
	if store.Rename("do-1", "Cart") {
		t.Error("value-equal rename reported a change")
	}
	if doc.Text() != before {
		t.Error("value-equal rename rewrote the document")
	}
	if store.Rename("do-404", "Ghost") {
		t.Error("unknown id rename reported a change")
	}
	if !store.Rename("do-1", "Basket") {
		t.Error("real rename reported no change")
	}
	if got := store.Load().Find("do-1").Name; got != "Basket" {
		t.Errorf("name = %q after rename", got)
	}
}

func TestDataObjectRoundTrip(t *testing.T) {
	doc := newDoc(t, sampleDoc)
	store := NewDataObjectStore(doc)

	loaded := store.Load()
	obj := loaded.Find("do-1")
	if obj == nil {
		t.Fatal("do-1 missing")
	}
	if len(obj.Attributes) != 2 {
		t.Fatalf("attributes = %d, want 2", len(obj.Attributes))
	}
	if obj.Attributes[1].Type != AttributeStatus {
		t.Errorf("attr-2 type = %q", obj.Attributes[1].Type)
	}
	if !reflect.DeepEqual(obj.Attributes[1].Values, []string{"open", "paid"}) {
		t.Errorf("attr-2 values = %v", obj.Attributes[1].Values)
	}

	// Writing back the loaded state must not disturb the text.
	before := doc.Text()
	if store.SetAttributes("do-1", obj.Attributes) {
		t.Error("value-equal attribute set reported a change")
	}
	if doc.Text() != before {
		t.Error("value-equal attribute set rewrote the document")
	}
}

func TestDataObjectDeleteCascades(t *testing.T) {
	text := sampleDoc + "\n```expanded-metadata-1\n{\"dataObjectId\": \"do-1\", \"dataObjectAttributeIds\": [\"attr-1\"]}\n```\n"
	doc := newDoc(t, text)
	store := NewDataObjectStore(doc)

	if !store.Delete("do-1") {
		t.Fatal("delete failed")
	}
	after := doc.Text()
	if strings.Contains(after, "<!-- do:do-1 -->") {
		t.Error("do anchor survived the delete")
	}
	var meta map[string]any
	if !block.ReadInto(after, "expanded-metadata-1", &meta) {
		t.Fatal("expanded metadata block lost")
	}
	if _, ok := meta["dataObjectId"]; ok {
		t.Error("binding still names the deleted object")
	}
	if store.Load().Find("do-1") != nil {
		t.Error("object still in store")
	}
}

func TestDataObjectAnchorsPreservedOnContentEdit(t *testing.T) {
	doc := newDoc(t, sampleDoc)

	doc.Transact(func(tx *textdoc.Tx) {
		lines := strings.Split(tx.Text(), "\n")
		lines[1] = anchor.RewriteContent(lines[1], "- Cart checkout")
		tx.SetText(strings.Join(lines, "\n"))
	})

	tree := doctree.Parse(doc.Text())
	n := tree.NodeAt(1)
	if n == nil {
		t.Fatal("line 1 lost")
	}
	if n.AttachedEntityID != "do-1" {
		t.Errorf("attached entity = %q after content edit", n.AttachedEntityID)
	}
	if n.Content != "- Cart checkout" {
		t.Errorf("content = %q", n.Content)
	}
}

func TestTagGroupLifecycle(t *testing.T) {
	doc := newDoc(t, "")
	store := NewTagStore(doc)

	g := store.CreateGroup("Actors")
	if g == nil || g.ID != "tg-1" {
		t.Fatalf("group = %+v", g)
	}
	tag := store.CreateTag(g.ID, "Customer")
	if tag == nil || tag.ID != "tag-1" || tag.GroupID != "tg-1" {
		t.Fatalf("tag = %+v", tag)
	}

	if !store.DeleteGroup("tg-1") {
		t.Fatal("delete group failed")
	}
	loaded := store.Load()
	moved := loaded.FindTag("tag-1")
	if moved == nil || moved.GroupID != UngroupedGroupID {
		t.Errorf("tag not moved to ungrouped: %+v", moved)
	}
	if store.DeleteGroup(UngroupedGroupID) {
		t.Error("ungrouped group deletable")
	}
}

func TestTagDeleteStripsAnchors(t *testing.T) {
	text := "- Login <!-- tags:tag-1,tag-2 -->\n- Logout <!-- tags:tag-1 -->\n\n---\n\n" +
		"```tag-store\n{\"nextGroupId\": 1, \"nextTagId\": 3, \"groups\": [], \"tags\": [" +
		"{\"id\": \"tag-1\", \"groupId\": \"tg-ungrouped\", \"name\": \"a\"}," +
		"{\"id\": \"tag-2\", \"groupId\": \"tg-ungrouped\", \"name\": \"b\"}]}\n```\n"
	doc := newDoc(t, text)
	store := NewTagStore(doc)

	if !store.DeleteTag("tag-1") {
		t.Fatal("delete failed")
	}
	lines := strings.Split(doc.Text(), "\n")
	if got, _ := anchor.Get(lines[0], anchor.KindTags); got != "tag-2" {
		t.Errorf("line 0 tags = %q, want tag-2", got)
	}
	if _, ok := anchor.Get(lines[1], anchor.KindTags); ok {
		t.Error("emptied tags anchor not removed")
	}
	if store.Load().FindTag("tag-1") != nil {
		t.Error("tag still in store")
	}
}

func TestTagCreateUnknownGroupFallsBack(t *testing.T) {
	doc := newDoc(t, "")
	store := NewTagStore(doc)

	tag := store.CreateTag("tg-404", "Stray")
	if tag == nil {
		t.Fatal("create returned nil")
	}
	if tag.GroupID != UngroupedGroupID {
		t.Errorf("group = %q, want %q", tag.GroupID, UngroupedGroupID)
	}
}

func TestSystemFlowLifecycle(t *testing.T) {
	doc := newDoc(t, "")
	store := NewSystemFlowStore(doc)

	f := store.Create("Checkout")
	if f == nil || f.ID != "sf-1" {
		t.Fatalf("flow = %+v", f)
	}
	if f.GridWidth != 12 || f.GridHeight != 8 {
		t.Errorf("default grid = %dx%d", f.GridWidth, f.GridHeight)
	}

	saved := store.Get("sf-1")
	saved.Boxes = append(saved.Boxes, FlowBox{ID: "box-1", Label: "Start", W: 2, H: 1, RunningNumber: -1})
	if !store.Save(saved) {
		t.Fatal("save reported no change")
	}
	if store.Save(saved) {
		t.Error("value-equal save reported a change")
	}

	if !store.Rename("sf-1", "Payment") {
		t.Fatal("rename failed")
	}
	if got := store.Load().Find("sf-1").Name; got != "Payment" {
		t.Errorf("name = %q", got)
	}

	if !store.Delete("sf-1") {
		t.Fatal("delete failed")
	}
	if strings.Contains(doc.Text(), "```systemflow-sf-1") {
		t.Error("content block survived the delete")
	}
	if store.Load().Find("sf-1") != nil {
		t.Error("index entry survived the delete")
	}
}

func TestTestDefinitionAttachStampsLine(t *testing.T) {
	doc := newDoc(t, sampleDoc)
	store := NewTestDefinitionStore(doc)

	td := store.Create("Cart can be paid")
	if td == nil || td.ID != "test-1" {
		t.Fatalf("test = %+v", td)
	}
	if !store.Attach("test-1", 1) {
		t.Fatal("attach failed")
	}

	tree := doctree.Parse(doc.Text())
	n := tree.NodeAt(1)
	if n == nil || n.RunningNumber < 0 {
		t.Fatal("line 1 not stamped with a running number")
	}
	got := store.Load().Find("test-1")
	if got.RunningNumber != n.RunningNumber || got.NodeID != n.ID {
		t.Errorf("stored binding = (%d, %q), line has (%d, %q)",
			got.RunningNumber, got.NodeID, n.RunningNumber, n.ID)
	}
}

func TestTestDefinitionRebindsThroughRunningNumber(t *testing.T) {
	doc := newDoc(t, sampleDoc)
	store := NewTestDefinitionStore(doc)

	store.Create("Wallet flow works")
	store.Attach("test-1", 4) // "  - Wallet"
	td := *store.Load().Find("test-1")

	// Remove a line above: the stored positional id now points past the last
	// structural line, so the running number has to rebind the reference.
	doc.Transact(func(tx *textdoc.Tx) {
		lines := strings.Split(tx.Text(), "\n")
		tx.SetText(strings.Join(append(lines[:1], lines[2:]...), "\n"))
	})

	tree := doctree.Parse(doc.Text())
	id, ok := store.ResolveNode(tree, td)
	if !ok {
		t.Fatal("reference did not resolve after delete above")
	}
	if id != doctree.NodeID(3) {
		t.Errorf("resolved to %q, want %q", id, doctree.NodeID(3))
	}
	if got := tree.Node(id).Content; got != "- Wallet" {
		t.Errorf("resolved line content = %q", got)
	}
}

func TestHubNoteOnlyOnHubs(t *testing.T) {
	doc := newDoc(t, sampleDoc)
	store := NewHubNoteStore(doc)

	if store.Create(1, "not a hub") != nil {
		t.Error("note accepted on a non-hub line")
	}
	note := store.Create(2, "Wallet only in EU")
	if note == nil || note.ID != "hub-1" {
		t.Fatalf("note = %+v", note)
	}
	if note.RunningNumber < 0 {
		t.Error("hub line not stamped")
	}

	if !store.Update("hub-1", "Wallet only in EU and UK") {
		t.Fatal("update failed")
	}
	if store.Update("hub-1", "Wallet only in EU and UK") {
		t.Error("value-equal update reported a change")
	}
	if !store.Delete("hub-1") {
		t.Fatal("delete failed")
	}
	if len(store.Load().Notes) != 0 {
		t.Error("note still in store")
	}
}

func TestConnectorLabelEndpoints(t *testing.T) {
	doc := newDoc(t, sampleDoc)
	store := NewConnectorLabelStore(doc)

	l := store.Create(1, 3, "on success")
	if l == nil || l.ID != "cl-1" {
		t.Fatalf("label = %+v", l)
	}
	if l.FromRN < 0 || l.ToRN < 0 || l.FromRN == l.ToRN {
		t.Fatalf("endpoint numbers = %d, %d", l.FromRN, l.ToRN)
	}

	doc.Transact(func(tx *textdoc.Tx) {
		tx.SetText("# Preamble\n" + tx.Text())
	})
	tree := doctree.Parse(doc.Text())
	stale := *store.Load().Find("cl-1")
	stale.FromNodeID = "node-900" // legacy data with ids from a long-gone layout
	stale.ToNodeID = "node-901"
	from, to := store.ResolveEndpoints(tree, stale)
	if from != doctree.NodeID(2) || to != doctree.NodeID(4) {
		t.Errorf("endpoints = (%q, %q), want (%q, %q)", from, to, doctree.NodeID(2), doctree.NodeID(4))
	}
}

func TestLoopTargetSetAndClear(t *testing.T) {
	doc := newDoc(t, sampleDoc)
	store := NewLoopTargetStore(doc)

	n := store.Set(4, 1, "retry payment")
	if n < 0 {
		t.Fatal("set failed")
	}
	got, ok := store.Get(n)
	if !ok {
		t.Fatal("target not persisted")
	}
	if got.Label != "retry payment" || got.TargetRN < 0 {
		t.Errorf("target = %+v", got)
	}

	before := doc.Text()
	if again := store.Set(4, 1, "retry payment"); again != n {
		t.Errorf("re-set returned %d, want %d", again, n)
	}
	if doc.Text() != before {
		t.Error("value-equal set rewrote the document")
	}

	tree := doctree.Parse(doc.Text())
	id, ok := store.ResolveTarget(tree, got)
	if !ok || id != doctree.NodeID(1) {
		t.Errorf("target resolved to %q", id)
	}

	if !store.Clear(n) {
		t.Fatal("clear failed")
	}
	if _, ok := store.Get(n); ok {
		t.Error("target survived clear")
	}
}

func TestLoadDegradesOnMalformedBlock(t *testing.T) {
	text := "- Line\n\n---\n\n```data-objects\n{not json\n```\n"
	store := LoadDataObjects(text)
	if store.NextID != 1 || len(store.Objects) != 0 {
		t.Errorf("malformed block loaded as %+v", store)
	}
}
