package entity

import (
	"reflect"
	"strconv"
	"strings"

	"tapestry/api/internal/block"
	"tapestry/api/internal/doctree"
	"tapestry/api/internal/resolver"
	"tapestry/api/internal/textdoc"
)

// TestDefinitionsBlock persists the test-definition store.
const TestDefinitionsBlock = "test-definitions"

// TestDefinition is one scripted check, optionally pinned to a structural
// line through a process-reference running number.
type TestDefinition struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Steps         []string `json:"steps"`
	NodeID        string   `json:"nodeId,omitempty"`
	RunningNumber int      `json:"rn"`
}

// TestDefinitions is the persisted store.
type TestDefinitions struct {
	NextID int              `json:"nextId"`
	Tests  []TestDefinition `json:"tests"`
}

// Find returns the test with the given id, or nil.
func (s TestDefinitions) Find(id string) *TestDefinition {
	for i := range s.Tests {
		if s.Tests[i].ID == id {
			return &s.Tests[i]
		}
	}
	return nil
}

// LoadTestDefinitions decodes the store, dropping malformed entries.
func LoadTestDefinitions(text string) TestDefinitions {
	var raw map[string]any
	block.ReadInto(text, TestDefinitionsBlock, &raw)
	s := TestDefinitions{NextID: asInt(raw, "nextId")}
	if s.NextID < 1 {
		s.NextID = 1
	}
	for _, item := range asList(raw["tests"]) {
		m := asMap(item)
		id := strings.TrimSpace(asString(m, "id"))
		if id == "" {
			continue
		}
		t := TestDefinition{
			ID:            id,
			Name:          asString(m, "name"),
			Steps:         asStringList(m, "steps"),
			NodeID:        asString(m, "nodeId"),
			RunningNumber: -1,
		}
		if _, ok := m["rn"]; ok {
			t.RunningNumber = asInt(m, "rn")
		}
		s.Tests = append(s.Tests, t)
	}
	return s
}

func encodeTestDefinitions(s TestDefinitions) map[string]any {
	tests := make([]any, 0, len(s.Tests))
	for _, t := range s.Tests {
		tm := map[string]any{"id": t.ID, "name": t.Name, "steps": t.Steps}
		if t.Steps == nil {
			tm["steps"] = []string{}
		}
		if t.NodeID != "" {
			tm["nodeId"] = t.NodeID
		}
		if t.RunningNumber >= 0 {
			tm["rn"] = t.RunningNumber
		}
		tests = append(tests, tm)
	}
	return map[string]any{"nextId": s.NextID, "tests": tests}
}

// TestDefinitionStore runs test-definition operations against a document.
type TestDefinitionStore struct {
	doc textdoc.Document
}

// NewTestDefinitionStore wraps a document.
func NewTestDefinitionStore(doc textdoc.Document) *TestDefinitionStore {
	return &TestDefinitionStore{doc: doc}
}

// Load reads the current store.
func (s *TestDefinitionStore) Load() TestDefinitions {
	return LoadTestDefinitions(s.doc.Text())
}

// Create allocates `test-<n>`. Blank names are rejected.
func (s *TestDefinitionStore) Create(name string) *TestDefinition {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var created *TestDefinition
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTestDefinitions(tx.Text())
		t := TestDefinition{ID: "test-" + strconv.Itoa(store.NextID), Name: name, RunningNumber: -1}
		store.NextID++
		store.Tests = append(store.Tests, t)
		if next, err := block.Write(tx.Text(), TestDefinitionsBlock, encodeTestDefinitions(store)); err == nil {
			tx.SetText(next)
			created = &t
		}
	})
	return created
}

// Update replaces name and steps. Unknown ids and value-equal patches are
// no-ops.
func (s *TestDefinitionStore) Update(id, name string, steps []string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTestDefinitions(tx.Text())
		t := store.Find(id)
		if t == nil || (t.Name == name && reflect.DeepEqual(t.Steps, steps)) {
			return
		}
		t.Name = name
		t.Steps = steps
		if next, err := block.Write(tx.Text(), TestDefinitionsBlock, encodeTestDefinitions(store)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// Attach pins the test to the structural line: the line is stamped with a
// process-reference running number and the test records both the number and
// the node id current at stamp time. One transaction covers the line edit
// and the block rewrite.
func (s *TestDefinitionStore) Attach(id string, lineIndex int) bool {
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTestDefinitions(tx.Text())
		t := store.Find(id)
		if t == nil {
			return
		}
		tree := doctree.Parse(tx.Text())
		node := tree.NodeAt(lineIndex)
		if node == nil {
			return
		}
		n := node.RunningNumber
		if n < 0 {
			n = resolver.AllocateAndStamp(tx, lineIndex, resolver.FamilyProcRef)
		}
		if t.RunningNumber == n && t.NodeID == node.ID {
			return
		}
		t.RunningNumber = n
		t.NodeID = node.ID
		if next, err := block.Write(tx.Text(), TestDefinitionsBlock, encodeTestDefinitions(store)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// ResolveNode rebinds the test's node reference against the current tree.
func (s *TestDefinitionStore) ResolveNode(tree *doctree.Tree, t TestDefinition) (string, bool) {
	return resolver.Resolve(tree, resolver.FamilyProcRef, resolver.Ref{
		NodeID: t.NodeID,
		Number: t.RunningNumber,
	})
}

// Delete removes the test. The running-number anchor stays on the line: the
// number may still bind other references and is never reused anyway.
func (s *TestDefinitionStore) Delete(id string) bool {
	deleted := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTestDefinitions(tx.Text())
		if store.Find(id) == nil {
			return
		}
		kept := store.Tests[:0]
		for _, t := range store.Tests {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		store.Tests = kept
		if next, err := block.Write(tx.Text(), TestDefinitionsBlock, encodeTestDefinitions(store)); err == nil {
			tx.SetText(next)
			deleted = true
		}
	})
	return deleted
}
