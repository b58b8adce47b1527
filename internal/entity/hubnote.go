package entity

import (
	"strconv"
	"strings"

	"tapestry/api/internal/block"
	"tapestry/api/internal/doctree"
	"tapestry/api/internal/resolver"
	"tapestry/api/internal/textdoc"
)

// HubNotesBlock persists the conditional hub-note store.
const HubNotesBlock = "conditional-hub-notes"

// HubNote is free-form prose attached to a conditional hub line. The note
// survives line moves through its running number; the captured content is the
// last-resort rebinding hint for legacy notes without one.
type HubNote struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	NodeID        string `json:"nodeId,omitempty"`
	RunningNumber int    `json:"rn"`
	Content       string `json:"content,omitempty"`
}

// HubNotes is the persisted store.
type HubNotes struct {
	NextID int       `json:"nextId"`
	Notes  []HubNote `json:"notes"`
}

// Find returns the note with the given id, or nil.
func (s HubNotes) Find(id string) *HubNote {
	for i := range s.Notes {
		if s.Notes[i].ID == id {
			return &s.Notes[i]
		}
	}
	return nil
}

// LoadHubNotes decodes the store, dropping malformed entries.
func LoadHubNotes(text string) HubNotes {
	var raw map[string]any
	block.ReadInto(text, HubNotesBlock, &raw)
	s := HubNotes{NextID: asInt(raw, "nextId")}
	if s.NextID < 1 {
		s.NextID = 1
	}
	for _, item := range asList(raw["notes"]) {
		m := asMap(item)
		id := strings.TrimSpace(asString(m, "id"))
		if id == "" {
			continue
		}
		n := HubNote{
			ID:            id,
			Text:          asString(m, "text"),
			NodeID:        asString(m, "nodeId"),
			Content:       asString(m, "content"),
			RunningNumber: -1,
		}
		if _, ok := m["rn"]; ok {
			n.RunningNumber = asInt(m, "rn")
		}
		s.Notes = append(s.Notes, n)
	}
	return s
}

func encodeHubNotes(s HubNotes) map[string]any {
	notes := make([]any, 0, len(s.Notes))
	for _, n := range s.Notes {
		nm := map[string]any{"id": n.ID, "text": n.Text}
		if n.NodeID != "" {
			nm["nodeId"] = n.NodeID
		}
		if n.RunningNumber >= 0 {
			nm["rn"] = n.RunningNumber
		}
		if n.Content != "" {
			nm["content"] = n.Content
		}
		notes = append(notes, nm)
	}
	return map[string]any{"nextId": s.NextID, "notes": notes}
}

// HubNoteStore runs hub-note operations against a document.
type HubNoteStore struct {
	doc textdoc.Document
}

// NewHubNoteStore wraps a document.
func NewHubNoteStore(doc textdoc.Document) *HubNoteStore {
	return &HubNoteStore{doc: doc}
}

// Load reads the current store.
func (s *HubNoteStore) Load() HubNotes {
	return LoadHubNotes(s.doc.Text())
}

// Create attaches a note to the hub line at lineIndex, stamping it with a
// hub-note running number when it has none. Blank text, out-of-range lines
// and non-hub lines are rejected.
func (s *HubNoteStore) Create(lineIndex int, text string) *HubNote {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var created *HubNote
	s.doc.Transact(func(tx *textdoc.Tx) {
		tree := doctree.Parse(tx.Text())
		node := tree.NodeAt(lineIndex)
		if node == nil || !node.IsHub {
			return
		}
		n := node.RunningNumber
		if n < 0 {
			n = resolver.AllocateAndStamp(tx, lineIndex, resolver.FamilyHubNote)
		}
		store := LoadHubNotes(tx.Text())
		note := HubNote{
			ID:            "hub-" + strconv.Itoa(store.NextID),
			Text:          text,
			NodeID:        node.ID,
			RunningNumber: n,
			Content:       node.Content,
		}
		store.NextID++
		store.Notes = append(store.Notes, note)
		if next, err := block.Write(tx.Text(), HubNotesBlock, encodeHubNotes(store)); err == nil {
			tx.SetText(next)
			created = &note
		}
	})
	return created
}

// Update replaces the note text. Unknown ids and equal text are no-ops.
func (s *HubNoteStore) Update(id, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadHubNotes(tx.Text())
		n := store.Find(id)
		if n == nil || n.Text == text {
			return
		}
		n.Text = text
		if next, err := block.Write(tx.Text(), HubNotesBlock, encodeHubNotes(store)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// ResolveNode rebinds the note's hub line against the current tree.
func (s *HubNoteStore) ResolveNode(tree *doctree.Tree, n HubNote) (string, bool) {
	return resolver.Resolve(tree, resolver.FamilyHubNote, resolver.Ref{
		NodeID:  n.NodeID,
		Number:  n.RunningNumber,
		Content: n.Content,
	})
}

// Delete removes the note. The running-number anchor stays on the line.
func (s *HubNoteStore) Delete(id string) bool {
	deleted := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadHubNotes(tx.Text())
		if store.Find(id) == nil {
			return
		}
		kept := store.Notes[:0]
		for _, n := range store.Notes {
			if n.ID != id {
				kept = append(kept, n)
			}
		}
		store.Notes = kept
		if next, err := block.Write(tx.Text(), HubNotesBlock, encodeHubNotes(store)); err == nil {
			tx.SetText(next)
			deleted = true
		}
	})
	return deleted
}
