package entity

import (
	"strconv"
	"strings"

	"tapestry/api/internal/block"
	"tapestry/api/internal/doctree"
	"tapestry/api/internal/resolver"
	"tapestry/api/internal/textdoc"
)

// Loop targets live one block per looping line, the block name keyed by the
// line's process-reference running number.
const LoopTargetBlockPrefix = "process-loop-"

// LoopTargetVersion is the current block schema version.
const LoopTargetVersion = 1

// LoopTarget records where a looping process line jumps back to.
type LoopTarget struct {
	Number       int    `json:"number"`
	TargetNodeID string `json:"targetNodeId,omitempty"`
	TargetRN     int    `json:"targetRn"`
	Label        string `json:"label"`
}

// LoadLoopTarget decodes the block for one running number. ok is false when
// the block is absent or malformed.
func LoadLoopTarget(text string, number int) (LoopTarget, bool) {
	var raw map[string]any
	if !block.ReadInto(text, LoopTargetBlockPrefix+strconv.Itoa(number), &raw) {
		return LoopTarget{}, false
	}
	t := LoopTarget{
		Number:       number,
		TargetNodeID: asString(raw, "targetNodeId"),
		Label:        asString(raw, "label"),
		TargetRN:     -1,
	}
	if _, ok := raw["targetRn"]; ok {
		t.TargetRN = asInt(raw, "targetRn")
	}
	return t, true
}

// LoadLoopTargets scans every loop-target block in the text.
func LoadLoopTargets(text string) []LoopTarget {
	var out []LoopTarget
	for _, b := range block.List(text) {
		rest, ok := strings.CutPrefix(b.Name, LoopTargetBlockPrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		if t, ok := LoadLoopTarget(text, n); ok {
			out = append(out, t)
		}
	}
	return out
}

func encodeLoopTarget(t LoopTarget) map[string]any {
	m := map[string]any{"version": LoopTargetVersion, "label": t.Label}
	if t.TargetNodeID != "" {
		m["targetNodeId"] = t.TargetNodeID
	}
	if t.TargetRN >= 0 {
		m["targetRn"] = t.TargetRN
	}
	return m
}

// LoopTargetStore runs loop-target operations against a document.
type LoopTargetStore struct {
	doc textdoc.Document
}

// NewLoopTargetStore wraps a document.
func NewLoopTargetStore(doc textdoc.Document) *LoopTargetStore {
	return &LoopTargetStore{doc: doc}
}

// Get reads the target recorded for a running number.
func (s *LoopTargetStore) Get(number int) (LoopTarget, bool) {
	return LoadLoopTarget(s.doc.Text(), number)
}

// List reads every recorded target.
func (s *LoopTargetStore) List() []LoopTarget {
	return LoadLoopTargets(s.doc.Text())
}

// Set records that the line at lineIndex loops back to the line at
// targetIndex. Both lines are stamped with process-reference running numbers
// when they lack one; the source line's number keys the block. Re-recording
// the same target and label is a no-op. Returns the source number, or -1
// when either line is unknown.
func (s *LoopTargetStore) Set(lineIndex, targetIndex int, label string) int {
	number := -1
	s.doc.Transact(func(tx *textdoc.Tx) {
		tree := doctree.Parse(tx.Text())
		src := tree.NodeAt(lineIndex)
		dst := tree.NodeAt(targetIndex)
		if src == nil || dst == nil || lineIndex == targetIndex {
			return
		}
		n := src.RunningNumber
		if n < 0 {
			n = resolver.AllocateAndStamp(tx, lineIndex, resolver.FamilyProcRef)
		}
		targetRN := dst.RunningNumber
		if targetRN < 0 {
			targetRN = resolver.AllocateAndStamp(tx, targetIndex, resolver.FamilyProcRef)
		}
		t := LoopTarget{Number: n, TargetNodeID: dst.ID, TargetRN: targetRN, Label: label}
		number = n
		if current, ok := LoadLoopTarget(tx.Text(), n); ok && current == t {
			return
		}
		name := LoopTargetBlockPrefix + strconv.Itoa(n)
		if next, err := block.Write(tx.Text(), name, encodeLoopTarget(t)); err == nil {
			tx.SetText(next)
		}
	})
	return number
}

// ResolveTarget rebinds the recorded target against the current tree.
func (s *LoopTargetStore) ResolveTarget(tree *doctree.Tree, t LoopTarget) (string, bool) {
	return resolver.Resolve(tree, resolver.FamilyProcRef, resolver.Ref{
		NodeID: t.TargetNodeID,
		Number: t.TargetRN,
	})
}

// Clear removes the block for a running number. The anchors stay.
func (s *LoopTargetStore) Clear(number int) bool {
	cleared := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		name := LoopTargetBlockPrefix + strconv.Itoa(number)
		next := block.Remove(tx.Text(), name)
		if next != tx.Text() {
			tx.SetText(next)
			cleared = true
		}
	})
	return cleared
}
