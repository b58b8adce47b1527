// Package entity implements the per-family CRUD stores over named blocks in
// the shared text. Every store follows the same contract: total defensive
// loads, counter-based ids that are never reused, value-equal writes as
// no-ops, and deletes that cascade to every referencing anchor and binding
// inside one document transaction.
package entity

import (
	"reflect"
	"strconv"
	"strings"

	"tapestry/api/internal/anchor"
	"tapestry/api/internal/block"
	"tapestry/api/internal/textdoc"
)

// DataObjectsBlock is the named block persisting the data-object store.
const DataObjectsBlock = "data-objects"

// ObjectNameAttrID is the sentinel attribute id standing for the object's
// name itself in attribute selections.
const ObjectNameAttrID = "__objectName__"

// AttributeType tags the data-object attribute variants.
type AttributeType string

const (
	AttributeText   AttributeType = "text"
	AttributeStatus AttributeType = "status"
)

// Attribute is one typed field of a data object.
type Attribute struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Type   AttributeType `json:"type"`
	Values []string      `json:"values,omitempty"` // status variant only
	Sample string        `json:"sample,omitempty"`
}

// DataObject is a domain entity referenced by structural lines (via `do`
// anchors) and by UI bindings.
type DataObject struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Attributes []Attribute `json:"attributes"`
}

// DataObjects is the persisted store: a counter plus items. NextID is
// strictly greater than any suffix ever issued.
type DataObjects struct {
	NextID  int          `json:"nextId"`
	Objects []DataObject `json:"objects"`
}

// Find returns the object with the given id, or nil.
func (s DataObjects) Find(id string) *DataObject {
	for i := range s.Objects {
		if s.Objects[i].ID == id {
			return &s.Objects[i]
		}
	}
	return nil
}

// AttributeIDs returns the valid attribute-selection ids for an object,
// always including the object-name sentinel.
func (o DataObject) AttributeIDs() map[string]bool {
	out := map[string]bool{ObjectNameAttrID: true}
	for _, a := range o.Attributes {
		if a.ID != "" {
			out[a.ID] = true
		}
	}
	return out
}

// LoadDataObjects decodes the store from a text snapshot. Malformed blocks
// or fields degrade to the empty store, never to an error.
func LoadDataObjects(text string) DataObjects {
	var raw map[string]any
	block.ReadInto(text, DataObjectsBlock, &raw)
	s := DataObjects{NextID: asInt(raw, "nextId")}
	if s.NextID < 1 {
		s.NextID = 1
	}
	for _, item := range asList(raw["objects"]) {
		m := asMap(item)
		id := strings.TrimSpace(asString(m, "id"))
		if id == "" {
			continue
		}
		obj := DataObject{ID: id, Name: asString(m, "name")}
		data := asMap(m["data"])
		for _, av := range asList(data["attributes"]) {
			am := asMap(av)
			aid := strings.TrimSpace(asString(am, "id"))
			if aid == "" {
				continue
			}
			attr := Attribute{
				ID:     aid,
				Name:   asString(am, "name"),
				Type:   AttributeType(asString(am, "type")),
				Sample: asString(am, "sample"),
			}
			switch attr.Type {
			case AttributeStatus:
				attr.Values = asStringList(am, "values")
			case AttributeText:
			default:
				attr.Type = AttributeText
			}
			obj.Attributes = append(obj.Attributes, attr)
		}
		s.Objects = append(s.Objects, obj)
	}
	return s
}

func encodeDataObjects(s DataObjects) map[string]any {
	objects := make([]any, 0, len(s.Objects))
	for _, o := range s.Objects {
		attrs := make([]any, 0, len(o.Attributes))
		for _, a := range o.Attributes {
			am := map[string]any{"id": a.ID, "name": a.Name, "type": string(a.Type)}
			if a.Sample != "" {
				am["sample"] = a.Sample
			}
			if a.Type == AttributeStatus {
				am["values"] = a.Values
			}
			attrs = append(attrs, am)
		}
		objects = append(objects, map[string]any{
			"id":   o.ID,
			"name": o.Name,
			"data": map[string]any{"attributes": attrs},
		})
	}
	return map[string]any{"nextId": s.NextID, "objects": objects}
}

// DataObjectStore runs data-object operations against a shared document.
type DataObjectStore struct {
	doc textdoc.Document
}

// NewDataObjectStore wraps a document.
func NewDataObjectStore(doc textdoc.Document) *DataObjectStore {
	return &DataObjectStore{doc: doc}
}

// Load reads the current store.
func (s *DataObjectStore) Load() DataObjects {
	return LoadDataObjects(s.doc.Text())
}

// Create allocates `do-<n>`, appends the object and persists. A blank name
// is rejected: nil return, no mutation.
func (s *DataObjectStore) Create(name string) *DataObject {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var created *DataObject
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadDataObjects(tx.Text())
		obj := DataObject{ID: "do-" + strconv.Itoa(store.NextID), Name: name}
		store.NextID++
		store.Objects = append(store.Objects, obj)
		if next, err := block.Write(tx.Text(), DataObjectsBlock, encodeDataObjects(store)); err == nil {
			tx.SetText(next)
			created = &obj
		}
	})
	return created
}

// Rename updates the object's name. Unknown ids and value-equal renames are
// no-ops returning false.
func (s *DataObjectStore) Rename(id, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadDataObjects(tx.Text())
		obj := store.Find(id)
		if obj == nil || obj.Name == name {
			return
		}
		obj.Name = name
		if next, err := block.Write(tx.Text(), DataObjectsBlock, encodeDataObjects(store)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// SetAttributes replaces the object's attribute list. Equal lists are a
// no-op.
func (s *DataObjectStore) SetAttributes(id string, attrs []Attribute) bool {
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadDataObjects(tx.Text())
		obj := store.Find(id)
		if obj == nil || reflect.DeepEqual(obj.Attributes, attrs) {
			return
		}
		obj.Attributes = attrs
		if next, err := block.Write(tx.Text(), DataObjectsBlock, encodeDataObjects(store)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// Delete removes the object and cascades: every `do`/`doattrs`/`dostatus`
// anchor naming it is cleared from the content lines, and every UI-binding
// field pointing at it is emptied, all inside the same transaction. Leaving
// a dangling reference behind is a defect, not an edge case.
func (s *DataObjectStore) Delete(id string) bool {
	deleted := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadDataObjects(tx.Text())
		if store.Find(id) == nil {
			return
		}
		kept := store.Objects[:0]
		for _, o := range store.Objects {
			if o.ID != id {
				kept = append(kept, o)
			}
		}
		store.Objects = kept

		text := stripDataObjectAnchors(tx.Text(), id)
		text = clearBindingRefs(text, id)
		next, err := block.Write(text, DataObjectsBlock, encodeDataObjects(store))
		if err != nil {
			return
		}
		tx.SetText(next)
		deleted = true
	})
	return deleted
}

// stripDataObjectAnchors clears the reference anchors for one object id on
// every content line. Attribute selections fall with the reference.
func stripDataObjectAnchors(text, id string) string {
	sep := block.SeparatorIndex(text)
	lines := strings.Split(text, "\n")
	end := len(lines)
	if sep != -1 {
		end = sep
	}
	for i := 0; i < end; i++ {
		ref, ok := anchor.Get(lines[i], anchor.KindDO)
		if !ok || ref != id {
			continue
		}
		lines[i] = anchor.Strip(lines[i], anchor.KindDO, anchor.KindDOAttrs, anchor.KindDOStatus)
	}
	return strings.Join(lines, "\n")
}
