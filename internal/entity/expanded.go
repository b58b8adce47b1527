package entity

import (
	"strconv"
	"strings"

	"tapestry/api/internal/block"
)

// Expanded sub-configurations are the per-node UI layouts stored in
// namespaced blocks keyed by the node's expanded-state number:
// `expanded-metadata-<N>` holds the configuration header and
// `expanded-grid-<N>` holds the binding rows. The graph builder consumes
// them as relationship evidence.
const (
	ExpandedMetadataPrefix = "expanded-metadata-"
	ExpandedGridPrefix     = "expanded-grid-"
)

// Relation kinds a binding may declare explicitly.
const (
	RelationNone      = "none"
	RelationRelation  = "relation"
	RelationAttribute = "attribute"
)

// Presentation types. List presentations imply a relation when no kind is
// declared; navigation presentations are pure chrome and never evidence.
const (
	PresentationList = "list"
	PresentationNav  = "nav"
)

// Binding is one UI-binding row inside an expanded grid.
type Binding struct {
	NodeID       string
	DataObjectID string
	AttributeIDs []string
	RelationKind string
	Cardinality  string
	Presentation string
}

// ExpandedConfig is one sub-configuration: its key number, the explicitly
// declared parent entity (may be empty; the enclosing node's entity is
// inherited then) and its binding rows.
type ExpandedConfig struct {
	Number             int
	ParentDataObjectID string
	AttributeIDs       []string
	Bindings           []Binding
}

// LoadExpandedConfigs scans every expanded block in the text. Metadata and
// grid blocks sharing a number merge into one config; malformed bodies are
// skipped.
func LoadExpandedConfigs(text string) []ExpandedConfig {
	byNumber := map[int]*ExpandedConfig{}
	var order []int

	get := func(n int) *ExpandedConfig {
		if c, ok := byNumber[n]; ok {
			return c
		}
		c := &ExpandedConfig{Number: n}
		byNumber[n] = c
		order = append(order, n)
		return c
	}

	for _, b := range block.List(text) {
		if rest, ok := strings.CutPrefix(b.Name, ExpandedMetadataPrefix); ok {
			n, err := strconv.Atoi(rest)
			if err != nil {
				continue
			}
			var raw map[string]any
			if !block.ReadInto(text, b.Name, &raw) {
				continue
			}
			c := get(n)
			c.ParentDataObjectID = strings.TrimSpace(asString(raw, "dataObjectId"))
			c.AttributeIDs = asStringList(raw, "dataObjectAttributeIds")
			continue
		}
		if rest, ok := strings.CutPrefix(b.Name, ExpandedGridPrefix); ok {
			n, err := strconv.Atoi(rest)
			if err != nil {
				continue
			}
			var raw []any
			if !block.ReadInto(text, b.Name, &raw) {
				continue
			}
			c := get(n)
			for _, item := range raw {
				m := asMap(item)
				if m == nil {
					continue
				}
				c.Bindings = append(c.Bindings, Binding{
					NodeID:       asString(m, "nodeId"),
					DataObjectID: strings.TrimSpace(asString(m, "dataObjectId")),
					AttributeIDs: asStringList(m, "dataObjectAttributeIds"),
					RelationKind: asString(m, "relationKind"),
					Cardinality:  asString(m, "cardinality"),
					Presentation: asString(m, "presentation"),
				})
			}
		}
	}

	out := make([]ExpandedConfig, 0, len(order))
	for _, n := range order {
		out = append(out, *byNumber[n])
	}
	return out
}

// clearBindingRefs empties every binding field naming the deleted object in
// all expanded blocks. The rows stay: the layout survives, the reference
// does not.
func clearBindingRefs(text, id string) string {
	for _, b := range block.List(text) {
		if strings.HasPrefix(b.Name, ExpandedMetadataPrefix) {
			var raw map[string]any
			if !block.ReadInto(text, b.Name, &raw) {
				continue
			}
			if strings.TrimSpace(asString(raw, "dataObjectId")) != id {
				continue
			}
			delete(raw, "dataObjectId")
			delete(raw, "dataObjectAttributeIds")
			if next, err := block.Write(text, b.Name, raw); err == nil {
				text = next
			}
			continue
		}
		if strings.HasPrefix(b.Name, ExpandedGridPrefix) {
			var raw []any
			if !block.ReadInto(text, b.Name, &raw) {
				continue
			}
			touched := false
			for _, item := range raw {
				m := asMap(item)
				if m == nil || strings.TrimSpace(asString(m, "dataObjectId")) != id {
					continue
				}
				delete(m, "dataObjectId")
				delete(m, "dataObjectAttributeIds")
				touched = true
			}
			if !touched {
				continue
			}
			if next, err := block.Write(text, b.Name, raw); err == nil {
				text = next
			}
		}
	}
	return text
}
