package entity

import (
	"reflect"
	"strconv"
	"strings"

	"tapestry/api/internal/block"
	"tapestry/api/internal/textdoc"
)

// System-flow diagrams are stored as one index block plus one content block
// per diagram, the content block name templated with the flow id.
const (
	SystemFlowIndexBlock  = "systemflows"
	SystemFlowBlockPrefix = "systemflow-"
)

// SystemFlowVersion is the current content-block schema version.
const SystemFlowVersion = 1

// FlowBox is one box on the diagram grid, optionally bound to a structural
// node through its running number.
type FlowBox struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	X             int    `json:"x"`
	Y             int    `json:"y"`
	W             int    `json:"w"`
	H             int    `json:"h"`
	NodeID        string `json:"nodeId,omitempty"`
	RunningNumber int    `json:"rn"`
}

// FlowZone is a labelled background region.
type FlowZone struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	W     int    `json:"w"`
	H     int    `json:"h"`
}

// FlowLink connects two boxes.
type FlowLink struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// SystemFlow is one diagram.
type SystemFlow struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Version    int        `json:"version"`
	GridWidth  int        `json:"gridWidth"`
	GridHeight int        `json:"gridHeight"`
	Boxes      []FlowBox  `json:"boxes"`
	Zones      []FlowZone `json:"zones"`
	Links      []FlowLink `json:"links"`
}

// SystemFlows is the persisted index: counter plus (id, name) entries.
type SystemFlows struct {
	NextID int             `json:"nextId"`
	Flows  []SystemFlowRef `json:"flows"`
}

// SystemFlowRef is an index entry.
type SystemFlowRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Find returns the index entry for id, or nil.
func (s SystemFlows) Find(id string) *SystemFlowRef {
	for i := range s.Flows {
		if s.Flows[i].ID == id {
			return &s.Flows[i]
		}
	}
	return nil
}

// LoadSystemFlows decodes the index block.
func LoadSystemFlows(text string) SystemFlows {
	var raw map[string]any
	block.ReadInto(text, SystemFlowIndexBlock, &raw)
	s := SystemFlows{NextID: asInt(raw, "nextId")}
	if s.NextID < 1 {
		s.NextID = 1
	}
	for _, item := range asList(raw["flows"]) {
		m := asMap(item)
		id := strings.TrimSpace(asString(m, "id"))
		if id == "" {
			continue
		}
		s.Flows = append(s.Flows, SystemFlowRef{ID: id, Name: asString(m, "name")})
	}
	return s
}

// LoadSystemFlow decodes one diagram's content block. A missing or malformed
// block yields an empty diagram with default grid dimensions.
func LoadSystemFlow(text, id string) SystemFlow {
	var raw map[string]any
	block.ReadInto(text, SystemFlowBlockPrefix+id, &raw)
	f := SystemFlow{
		ID:         id,
		Version:    SystemFlowVersion,
		GridWidth:  asInt(raw, "gridWidth"),
		GridHeight: asInt(raw, "gridHeight"),
	}
	if f.GridWidth < 1 {
		f.GridWidth = 12
	}
	if f.GridHeight < 1 {
		f.GridHeight = 8
	}
	for _, item := range asList(raw["boxes"]) {
		m := asMap(item)
		bid := strings.TrimSpace(asString(m, "id"))
		if bid == "" {
			continue
		}
		b := FlowBox{
			ID: bid, Label: asString(m, "label"),
			X: asInt(m, "x"), Y: asInt(m, "y"), W: asInt(m, "w"), H: asInt(m, "h"),
			NodeID:        asString(m, "nodeId"),
			RunningNumber: -1,
		}
		if _, ok := asMap(item)["rn"]; ok {
			b.RunningNumber = asInt(m, "rn")
		}
		f.Boxes = append(f.Boxes, b)
	}
	for _, item := range asList(raw["zones"]) {
		m := asMap(item)
		zid := strings.TrimSpace(asString(m, "id"))
		if zid == "" {
			continue
		}
		f.Zones = append(f.Zones, FlowZone{
			ID: zid, Label: asString(m, "label"),
			X: asInt(m, "x"), Y: asInt(m, "y"), W: asInt(m, "w"), H: asInt(m, "h"),
		})
	}
	for _, item := range asList(raw["links"]) {
		m := asMap(item)
		lid := strings.TrimSpace(asString(m, "id"))
		from := strings.TrimSpace(asString(m, "from"))
		to := strings.TrimSpace(asString(m, "to"))
		if lid == "" || from == "" || to == "" {
			continue
		}
		f.Links = append(f.Links, FlowLink{ID: lid, From: from, To: to, Label: asString(m, "label")})
	}
	return f
}

func encodeSystemFlowIndex(s SystemFlows) map[string]any {
	flows := make([]any, 0, len(s.Flows))
	for _, f := range s.Flows {
		flows = append(flows, map[string]any{"id": f.ID, "name": f.Name})
	}
	return map[string]any{"nextId": s.NextID, "flows": flows}
}

func encodeSystemFlow(f SystemFlow) map[string]any {
	boxes := make([]any, 0, len(f.Boxes))
	for _, b := range f.Boxes {
		bm := map[string]any{"id": b.ID, "label": b.Label, "x": b.X, "y": b.Y, "w": b.W, "h": b.H}
		if b.NodeID != "" {
			bm["nodeId"] = b.NodeID
		}
		if b.RunningNumber >= 0 {
			bm["rn"] = b.RunningNumber
		}
		boxes = append(boxes, bm)
	}
	zones := make([]any, 0, len(f.Zones))
	for _, z := range f.Zones {
		zones = append(zones, map[string]any{"id": z.ID, "label": z.Label, "x": z.X, "y": z.Y, "w": z.W, "h": z.H})
	}
	links := make([]any, 0, len(f.Links))
	for _, l := range f.Links {
		lm := map[string]any{"id": l.ID, "from": l.From, "to": l.To}
		if l.Label != "" {
			lm["label"] = l.Label
		}
		links = append(links, lm)
	}
	return map[string]any{
		"version":    SystemFlowVersion,
		"gridWidth":  f.GridWidth,
		"gridHeight": f.GridHeight,
		"boxes":      boxes,
		"zones":      zones,
		"links":      links,
	}
}

// SystemFlowStore runs diagram operations against a shared document.
type SystemFlowStore struct {
	doc textdoc.Document
}

// NewSystemFlowStore wraps a document.
func NewSystemFlowStore(doc textdoc.Document) *SystemFlowStore {
	return &SystemFlowStore{doc: doc}
}

// Load reads the index.
func (s *SystemFlowStore) Load() SystemFlows { return LoadSystemFlows(s.doc.Text()) }

// Get reads one diagram.
func (s *SystemFlowStore) Get(id string) SystemFlow { return LoadSystemFlow(s.doc.Text(), id) }

// Create allocates `sf-<n>`, registers it in the index and writes an empty
// content block. Blank names are rejected.
func (s *SystemFlowStore) Create(name string) *SystemFlow {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var created *SystemFlow
	s.doc.Transact(func(tx *textdoc.Tx) {
		index := LoadSystemFlows(tx.Text())
		id := "sf-" + strconv.Itoa(index.NextID)
		index.NextID++
		index.Flows = append(index.Flows, SystemFlowRef{ID: id, Name: name})

		text, err := block.Write(tx.Text(), SystemFlowIndexBlock, encodeSystemFlowIndex(index))
		if err != nil {
			return
		}
		flow := SystemFlow{ID: id, Name: name, Version: SystemFlowVersion, GridWidth: 12, GridHeight: 8}
		text, err = block.Write(text, SystemFlowBlockPrefix+id, encodeSystemFlow(flow))
		if err != nil {
			return
		}
		tx.SetText(text)
		created = &flow
	})
	return created
}

// Save replaces the diagram's content block. Unknown ids and value-equal
// saves are no-ops.
func (s *SystemFlowStore) Save(f SystemFlow) bool {
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		index := LoadSystemFlows(tx.Text())
		if index.Find(f.ID) == nil {
			return
		}
		current := LoadSystemFlow(tx.Text(), f.ID)
		f.Version = SystemFlowVersion
		f.Name = "" // name lives in the index, not the content block
		current.Name = ""
		if reflect.DeepEqual(current, f) {
			return
		}
		if next, err := block.Write(tx.Text(), SystemFlowBlockPrefix+f.ID, encodeSystemFlow(f)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// Rename updates the index entry.
func (s *SystemFlowStore) Rename(id, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		index := LoadSystemFlows(tx.Text())
		ref := index.Find(id)
		if ref == nil || ref.Name == name {
			return
		}
		ref.Name = name
		if next, err := block.Write(tx.Text(), SystemFlowIndexBlock, encodeSystemFlowIndex(index)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// Delete removes both the index entry and the content block in one
// transaction.
func (s *SystemFlowStore) Delete(id string) bool {
	deleted := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		index := LoadSystemFlows(tx.Text())
		if index.Find(id) == nil {
			return
		}
		kept := index.Flows[:0]
		for _, f := range index.Flows {
			if f.ID != id {
				kept = append(kept, f)
			}
		}
		index.Flows = kept

		text := block.Remove(tx.Text(), SystemFlowBlockPrefix+id)
		if next, err := block.Write(text, SystemFlowIndexBlock, encodeSystemFlowIndex(index)); err == nil {
			tx.SetText(next)
			deleted = true
		}
	})
	return deleted
}
