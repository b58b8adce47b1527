// Package graph derives the data-object relationship graph from three
// evidence sources: UI bindings in expanded sub-configurations, structural
// nesting of entity-bound lines, and the object store itself. The graph is
// recomputed from scratch on every document change; nothing here is
// persisted.
package graph

import (
	"sort"

	"tapestry/api/internal/doctree"
	"tapestry/api/internal/entity"
)

// Edge kinds.
const (
	KindRelation  = "relation"
	KindAttribute = "attribute"
)

// Cardinalities. Unknown is a value of its own, never normalized into the
// others: nesting proves a relationship exists but not its shape.
const (
	CardinalityOne        = "one"
	CardinalityOneToMany  = "oneToMany"
	CardinalityManyToMany = "manyToMany"
	CardinalityUnknown    = "unknown"
)

// Evidence origins recorded on edges.
const (
	SourceBinding = "binding"
	SourceNesting = "nesting"
)

// Node is one data object in the graph. Missing marks ids referenced by an
// edge, binding or anchor but absent from the store; they render so the
// broken reference stays visible.
type Node struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Missing bool   `json:"missing,omitempty"`
}

// Edge is one deduplicated relationship.
type Edge struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Kind        string `json:"kind"`
	Cardinality string `json:"cardinality"`
	Source      string `json:"source"`
}

// Graph is the derived output.
type Graph struct {
	Objects []Node `json:"objects"`
	Edges   []Edge `json:"edges"`
}

// Build merges all evidence for one text snapshot. The tree and the loaded
// stores must come from the same snapshot or the inherited-parent rule can
// bind against the wrong lines.
func Build(tree *doctree.Tree, store entity.DataObjects, configs []entity.ExpandedConfig) *Graph {
	b := &builder{
		store:    store,
		seen:     map[edgeKey]bool{},
		touched:  map[string]bool{},
		byExpand: tree.ByExpandedID(),
		tree:     tree,
	}

	for _, c := range configs {
		parent := b.parentOf(c)
		if parent != "" {
			b.touched[parent] = true
		}
		for _, bind := range c.Bindings {
			b.addBinding(parent, bind)
		}
	}
	b.addNesting()
	b.addAnchors()

	return b.finish()
}

type edgeKey struct {
	from, to, kind, cardinality string
}

type builder struct {
	store    entity.DataObjects
	tree     *doctree.Tree
	byExpand map[int]string

	edges   []Edge
	seen    map[edgeKey]bool
	touched map[string]bool
}

// parentOf applies the inherited-parent rule: an explicit parent id wins;
// otherwise the entity bound to the structural node carrying the config's
// expanded number.
func (b *builder) parentOf(c entity.ExpandedConfig) string {
	if c.ParentDataObjectID != "" {
		return c.ParentDataObjectID
	}
	id, ok := b.byExpand[c.Number]
	if !ok {
		return ""
	}
	n := b.tree.Node(id)
	if n == nil {
		return ""
	}
	return n.AttachedEntityID
}

func (b *builder) addBinding(parent string, bind entity.Binding) {
	if bind.DataObjectID != "" {
		b.touched[bind.DataObjectID] = true
	}
	if parent == "" || bind.DataObjectID == "" || parent == bind.DataObjectID {
		return
	}
	if bind.Presentation == entity.PresentationNav {
		return
	}

	var kind, card string
	switch bind.RelationKind {
	case entity.RelationNone:
		return
	case entity.RelationRelation:
		kind = KindRelation
		card = bind.Cardinality
		if card == "" {
			card = CardinalityManyToMany
		}
	case entity.RelationAttribute:
		kind = KindAttribute
		card = CardinalityOne
	default:
		// Legacy bindings carry no kind; the presentation type decides.
		if bind.Presentation == entity.PresentationList {
			kind = KindRelation
			card = bind.Cardinality
			if card == "" {
				card = CardinalityManyToMany
			}
		} else {
			kind = KindAttribute
			card = CardinalityOne
		}
	}
	b.add(Edge{From: parent, To: bind.DataObjectID, Kind: kind, Cardinality: card, Source: SourceBinding})
}

// addNesting walks parent→child node pairs where both lines carry a bound
// entity. Nesting proves a relationship of unknown shape; pairs bound to the
// same entity are structure, not a self-relation.
func (b *builder) addNesting() {
	for _, n := range b.tree.Nodes {
		if n.AttachedEntityID == "" || n.ParentID == "" {
			continue
		}
		parent := b.tree.Node(n.ParentID)
		if parent == nil || parent.AttachedEntityID == "" {
			continue
		}
		if parent.AttachedEntityID == n.AttachedEntityID {
			continue
		}
		b.add(Edge{
			From:        parent.AttachedEntityID,
			To:          n.AttachedEntityID,
			Kind:        KindRelation,
			Cardinality: CardinalityUnknown,
			Source:      SourceNesting,
		})
	}
}

// addAnchors marks every entity referenced from a line anchor as touched so
// a deleted-but-still-anchored object surfaces as missing.
func (b *builder) addAnchors() {
	for _, n := range b.tree.Nodes {
		if n.AttachedEntityID != "" {
			b.touched[n.AttachedEntityID] = true
		}
	}
}

func (b *builder) add(e Edge) {
	b.touched[e.From] = true
	b.touched[e.To] = true
	k := edgeKey{e.From, e.To, e.Kind, e.Cardinality}
	if b.seen[k] {
		return
	}
	b.seen[k] = true
	b.edges = append(b.edges, e)
}

func (b *builder) finish() *Graph {
	g := &Graph{Edges: b.edges}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}

	for _, o := range b.store.Objects {
		g.Objects = append(g.Objects, Node{ID: o.ID, Name: o.Name})
		delete(b.touched, o.ID)
	}

	missing := make([]string, 0, len(b.touched))
	for id := range b.touched {
		missing = append(missing, id)
	}
	sort.Strings(missing)
	for _, id := range missing {
		g.Objects = append(g.Objects, Node{ID: id, Name: id, Missing: true})
	}
	if g.Objects == nil {
		g.Objects = []Node{}
	}
	return g
}
