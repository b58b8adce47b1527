package entity

import (
	"strconv"
	"strings"

	"tapestry/api/internal/block"
	"tapestry/api/internal/doctree"
	"tapestry/api/internal/resolver"
	"tapestry/api/internal/textdoc"
)

// ConnectorLabelsBlock persists labels on flow connectors between two
// structural lines.
const ConnectorLabelsBlock = "flow-connector-labels"

// ConnectorLabel annotates the connector drawn from one process line to
// another. Both endpoints are held by process-reference running numbers so
// the label follows the lines through edits.
type ConnectorLabel struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	FromNodeID string `json:"fromNodeId,omitempty"`
	FromRN     int    `json:"fromRn"`
	ToNodeID   string `json:"toNodeId,omitempty"`
	ToRN       int    `json:"toRn"`
}

// ConnectorLabels is the persisted store.
type ConnectorLabels struct {
	NextID int              `json:"nextId"`
	Labels []ConnectorLabel `json:"labels"`
}

// Find returns the label with the given id, or nil.
func (s ConnectorLabels) Find(id string) *ConnectorLabel {
	for i := range s.Labels {
		if s.Labels[i].ID == id {
			return &s.Labels[i]
		}
	}
	return nil
}

// LoadConnectorLabels decodes the store, dropping malformed entries.
func LoadConnectorLabels(text string) ConnectorLabels {
	var raw map[string]any
	block.ReadInto(text, ConnectorLabelsBlock, &raw)
	s := ConnectorLabels{NextID: asInt(raw, "nextId")}
	if s.NextID < 1 {
		s.NextID = 1
	}
	for _, item := range asList(raw["labels"]) {
		m := asMap(item)
		id := strings.TrimSpace(asString(m, "id"))
		if id == "" {
			continue
		}
		l := ConnectorLabel{
			ID:         id,
			Label:      asString(m, "label"),
			FromNodeID: asString(m, "fromNodeId"),
			ToNodeID:   asString(m, "toNodeId"),
			FromRN:     -1,
			ToRN:       -1,
		}
		if _, ok := m["fromRn"]; ok {
			l.FromRN = asInt(m, "fromRn")
		}
		if _, ok := m["toRn"]; ok {
			l.ToRN = asInt(m, "toRn")
		}
		s.Labels = append(s.Labels, l)
	}
	return s
}

func encodeConnectorLabels(s ConnectorLabels) map[string]any {
	labels := make([]any, 0, len(s.Labels))
	for _, l := range s.Labels {
		lm := map[string]any{"id": l.ID, "label": l.Label}
		if l.FromNodeID != "" {
			lm["fromNodeId"] = l.FromNodeID
		}
		if l.ToNodeID != "" {
			lm["toNodeId"] = l.ToNodeID
		}
		if l.FromRN >= 0 {
			lm["fromRn"] = l.FromRN
		}
		if l.ToRN >= 0 {
			lm["toRn"] = l.ToRN
		}
		labels = append(labels, lm)
	}
	return map[string]any{"nextId": s.NextID, "labels": labels}
}

// ConnectorLabelStore runs connector-label operations against a document.
type ConnectorLabelStore struct {
	doc textdoc.Document
}

// NewConnectorLabelStore wraps a document.
func NewConnectorLabelStore(doc textdoc.Document) *ConnectorLabelStore {
	return &ConnectorLabelStore{doc: doc}
}

// Load reads the current store.
func (s *ConnectorLabelStore) Load() ConnectorLabels {
	return LoadConnectorLabels(s.doc.Text())
}

// Create labels the connector from one structural line to another, stamping
// each endpoint with a process-reference running number when it lacks one.
// Blank labels and unknown lines are rejected.
func (s *ConnectorLabelStore) Create(fromLine, toLine int, label string) *ConnectorLabel {
	label = strings.TrimSpace(label)
	if label == "" || fromLine == toLine {
		return nil
	}
	var created *ConnectorLabel
	s.doc.Transact(func(tx *textdoc.Tx) {
		tree := doctree.Parse(tx.Text())
		from := tree.NodeAt(fromLine)
		to := tree.NodeAt(toLine)
		if from == nil || to == nil {
			return
		}
		fromRN := from.RunningNumber
		if fromRN < 0 {
			fromRN = resolver.AllocateAndStamp(tx, fromLine, resolver.FamilyProcRef)
		}
		toRN := to.RunningNumber
		if toRN < 0 {
			toRN = resolver.AllocateAndStamp(tx, toLine, resolver.FamilyProcRef)
		}
		store := LoadConnectorLabels(tx.Text())
		l := ConnectorLabel{
			ID:         "cl-" + strconv.Itoa(store.NextID),
			Label:      label,
			FromNodeID: from.ID,
			FromRN:     fromRN,
			ToNodeID:   to.ID,
			ToRN:       toRN,
		}
		store.NextID++
		store.Labels = append(store.Labels, l)
		if next, err := block.Write(tx.Text(), ConnectorLabelsBlock, encodeConnectorLabels(store)); err == nil {
			tx.SetText(next)
			created = &l
		}
	})
	return created
}

// Rename replaces the label text. Unknown ids and equal labels are no-ops.
func (s *ConnectorLabelStore) Rename(id, label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return false
	}
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadConnectorLabels(tx.Text())
		l := store.Find(id)
		if l == nil || l.Label == label {
			return
		}
		l.Label = label
		if next, err := block.Write(tx.Text(), ConnectorLabelsBlock, encodeConnectorLabels(store)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// ResolveEndpoints rebinds both endpoints against the current tree. An
// endpoint that cannot be rebound unambiguously comes back empty.
func (s *ConnectorLabelStore) ResolveEndpoints(tree *doctree.Tree, l ConnectorLabel) (from, to string) {
	from, _ = resolver.Resolve(tree, resolver.FamilyProcRef, resolver.Ref{NodeID: l.FromNodeID, Number: l.FromRN})
	to, _ = resolver.Resolve(tree, resolver.FamilyProcRef, resolver.Ref{NodeID: l.ToNodeID, Number: l.ToRN})
	return from, to
}

// Delete removes the label. Endpoint anchors stay on their lines.
func (s *ConnectorLabelStore) Delete(id string) bool {
	deleted := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadConnectorLabels(tx.Text())
		if store.Find(id) == nil {
			return
		}
		kept := store.Labels[:0]
		for _, l := range store.Labels {
			if l.ID != id {
				kept = append(kept, l)
			}
		}
		store.Labels = kept
		if next, err := block.Write(tx.Text(), ConnectorLabelsBlock, encodeConnectorLabels(store)); err == nil {
			tx.SetText(next)
			deleted = true
		}
	})
	return deleted
}
