package graph

import (
	"testing"

	"tapestry/api/internal/doctree"
	"tapestry/api/internal/entity"
)

func twoObjectStore() entity.DataObjects {
	return entity.DataObjects{
		NextID: 3,
		Objects: []entity.DataObject{
			{ID: "do-1", Name: "Order"},
			{ID: "do-2", Name: "Customer"},
		},
	}
}

func findNode(g *Graph, id string) *Node {
	for i := range g.Objects {
		if g.Objects[i].ID == id {
			return &g.Objects[i]
		}
	}
	return nil
}

func TestBindingEdgeClassification(t *testing.T) {
	tree := doctree.Parse("")
	cases := []struct {
		name     string
		binding  entity.Binding
		wantKind string
		wantCard string
		dropped  bool
	}{
		{"explicit relation", entity.Binding{DataObjectID: "do-2", RelationKind: entity.RelationRelation, Cardinality: CardinalityOneToMany}, KindRelation, CardinalityOneToMany, false},
		{"relation default cardinality", entity.Binding{DataObjectID: "do-2", RelationKind: entity.RelationRelation}, KindRelation, CardinalityManyToMany, false},
		{"explicit attribute", entity.Binding{DataObjectID: "do-2", RelationKind: entity.RelationAttribute, Cardinality: CardinalityOneToMany}, KindAttribute, CardinalityOne, false},
		{"explicit none dropped", entity.Binding{DataObjectID: "do-2", RelationKind: entity.RelationNone}, "", "", true},
		{"legacy list infers relation", entity.Binding{DataObjectID: "do-2", Presentation: entity.PresentationList}, KindRelation, CardinalityManyToMany, false},
		{"legacy non-list infers attribute", entity.Binding{DataObjectID: "do-2", Presentation: "table"}, KindAttribute, CardinalityOne, false},
		{"nav always dropped", entity.Binding{DataObjectID: "do-2", RelationKind: entity.RelationRelation, Presentation: entity.PresentationNav}, "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			configs := []entity.ExpandedConfig{{
				Number:             1,
				ParentDataObjectID: "do-1",
				Bindings:           []entity.Binding{tc.binding},
			}}
			g := Build(tree, twoObjectStore(), configs)
			if tc.dropped {
				if len(g.Edges) != 0 {
					t.Fatalf("edges = %+v, want none", g.Edges)
				}
				return
			}
			if len(g.Edges) != 1 {
				t.Fatalf("edges = %+v, want one", g.Edges)
			}
			e := g.Edges[0]
			if e.From != "do-1" || e.To != "do-2" || e.Kind != tc.wantKind || e.Cardinality != tc.wantCard {
				t.Errorf("edge = %+v, want do-1→do-2 %s/%s", e, tc.wantKind, tc.wantCard)
			}
		})
	}
}

func TestInheritedParent(t *testing.T) {
	// The config declares no parent: the enclosing line's bound entity is it.
	tree := doctree.Parse("- Orders <!-- do:do-1 --> <!-- expid:7 -->\n")
	configs := []entity.ExpandedConfig{{
		Number:   7,
		Bindings: []entity.Binding{{DataObjectID: "do-2", RelationKind: entity.RelationRelation}},
	}}

	g := Build(tree, twoObjectStore(), configs)
	if len(g.Edges) != 1 {
		t.Fatalf("edges = %+v", g.Edges)
	}
	if g.Edges[0].From != "do-1" {
		t.Errorf("from = %q, want inherited do-1", g.Edges[0].From)
	}
}

func TestNestingEmitsUnknownCardinality(t *testing.T) {
	tree := doctree.Parse("# Orders <!-- do:do-1 -->\n- Customer line <!-- do:do-2 -->\n")

	g := Build(tree, twoObjectStore(), nil)
	if len(g.Edges) != 1 {
		t.Fatalf("edges = %+v", g.Edges)
	}
	e := g.Edges[0]
	if e.Kind != KindRelation || e.Cardinality != CardinalityUnknown || e.Source != SourceNesting {
		t.Errorf("edge = %+v", e)
	}
}

func TestUnknownCardinalityNotDedupedAgainstExplicit(t *testing.T) {
	// Binding evidence says oneToMany, nesting says unknown: two edges.
	tree := doctree.Parse("# Orders <!-- do:do-1 -->\n- Customer line <!-- do:do-2 -->\n")
	configs := []entity.ExpandedConfig{{
		Number:             1,
		ParentDataObjectID: "do-1",
		Bindings: []entity.Binding{
			{DataObjectID: "do-2", RelationKind: entity.RelationRelation, Cardinality: CardinalityOneToMany},
		},
	}}

	g := Build(tree, twoObjectStore(), configs)
	if len(g.Edges) != 2 {
		t.Fatalf("edges = %+v, want two", g.Edges)
	}
}

func TestFieldIdenticalEdgesDeduped(t *testing.T) {
	tree := doctree.Parse("")
	bind := entity.Binding{DataObjectID: "do-2", RelationKind: entity.RelationRelation, Cardinality: CardinalityOneToMany}
	configs := []entity.ExpandedConfig{
		{Number: 1, ParentDataObjectID: "do-1", Bindings: []entity.Binding{bind}},
		{Number: 2, ParentDataObjectID: "do-1", Bindings: []entity.Binding{bind}},
	}

	g := Build(tree, twoObjectStore(), configs)
	if len(g.Edges) != 1 {
		t.Fatalf("edges = %+v, want one", g.Edges)
	}
}

func TestMissingReferenceStaysVisible(t *testing.T) {
	// do-9 was deleted from the store but a line still anchors it.
	tree := doctree.Parse("- Ghost line <!-- do:do-9 -->\n")

	g := Build(tree, twoObjectStore(), nil)
	ghost := findNode(g, "do-9")
	if ghost == nil {
		t.Fatal("missing reference dropped from the graph")
	}
	if !ghost.Missing {
		t.Error("missing flag not set")
	}
	if real := findNode(g, "do-1"); real == nil || real.Missing {
		t.Errorf("stored object rendered wrong: %+v", real)
	}
}

func TestBindingToAbsentObjectStillRenders(t *testing.T) {
	tree := doctree.Parse("")
	configs := []entity.ExpandedConfig{{
		Number:             1,
		ParentDataObjectID: "do-1",
		Bindings:           []entity.Binding{{DataObjectID: "do-404", RelationKind: entity.RelationRelation}},
	}}

	g := Build(tree, twoObjectStore(), configs)
	ghost := findNode(g, "do-404")
	if ghost == nil || !ghost.Missing {
		t.Fatalf("dangling binding target = %+v", ghost)
	}
	if len(g.Edges) != 1 {
		t.Errorf("edges = %+v, evidence of the broken reference must stay", g.Edges)
	}
}

func TestSameEntityNestingIsNotASelfRelation(t *testing.T) {
	tree := doctree.Parse("# Orders <!-- do:do-1 -->\n- Order detail <!-- do:do-1 -->\n")

	g := Build(tree, twoObjectStore(), nil)
	if len(g.Edges) != 0 {
		t.Errorf("edges = %+v, want none", g.Edges)
	}
}
