package doctree

import (
	"reflect"
	"testing"
)

const sampleText = `# Checkout Flow
- Cart review <!-- do:do-1 --> <!-- rn:4 --> <!-- tags:tag-1,tag-2 -->
  - Order summary <!-- expid:2 -->
- Payment hub #flowtab#
  - Card
  - Wallet
- Ship order #flow#

---

` + "```data-objects" + `
{"nextId": 1, "objects": []}
` + "```" + `
`

func TestParseHierarchy(t *testing.T) {
	tree := Parse(sampleText)

	if len(tree.Roots) != 1 {
		t.Fatalf("roots = %d", len(tree.Roots))
	}
	root := tree.Roots[0]
	if root.Content != "Checkout Flow" || root.Level != 1 {
		t.Errorf("root = %q level %d", root.Content, root.Level)
	}
	if len(root.Children) != 3 {
		t.Fatalf("children = %d", len(root.Children))
	}

	cart := root.Children[0]
	if cart.Content != "- Cart review" {
		t.Errorf("content = %q", cart.Content)
	}
	if cart.AttachedEntityID != "do-1" || cart.RunningNumber != 4 {
		t.Errorf("anchors = %q rn %d", cart.AttachedEntityID, cart.RunningNumber)
	}
	if !reflect.DeepEqual(cart.TagIDs, []string{"tag-1", "tag-2"}) {
		t.Errorf("tags = %v", cart.TagIDs)
	}
	if len(cart.Children) != 1 || cart.Children[0].ExpandedID != 2 {
		t.Errorf("nested child not parsed: %+v", cart.Children)
	}
	if cart.Children[0].ParentID != cart.ID {
		t.Errorf("parent = %q", cart.Children[0].ParentID)
	}
}

func TestParseHubVariants(t *testing.T) {
	tree := Parse(sampleText)
	hub := tree.Roots[0].Children[1]
	if !hub.IsHub {
		t.Fatal("hub marker not recognized")
	}
	if hub.Content != "- Payment hub" {
		t.Errorf("marker left in content: %q", hub.Content)
	}
	if len(hub.Variants) != 2 || hub.Variants[0].Content != "- Card" {
		t.Errorf("variants = %+v", hub.Variants)
	}
}

func TestParseFlowMarker(t *testing.T) {
	tree := Parse(sampleText)
	ship := tree.Roots[0].Children[2]
	if !ship.IsFlow || ship.Content != "- Ship order" {
		t.Errorf("flow node = %+v", ship)
	}
}

func TestParseSkipsMetadataRegion(t *testing.T) {
	tree := Parse(sampleText)
	for _, n := range tree.Nodes {
		if n.Content == `{"nextId": 1, "objects": []}` {
			t.Fatal("metadata block parsed as a node")
		}
	}
}

func TestParseSkipsFencedContent(t *testing.T) {
	text := "# Doc\n```code\n- not a node\n```\n- real node\n"
	tree := Parse(text)
	if len(tree.Nodes) != 2 {
		t.Fatalf("nodes = %d", len(tree.Nodes))
	}
	if tree.Nodes[1].Content != "- real node" {
		t.Errorf("content = %q", tree.Nodes[1].Content)
	}
}

func TestNodeIDRoundTrip(t *testing.T) {
	if NodeID(7) != "node-7" {
		t.Errorf("id = %q", NodeID(7))
	}
	if LineIndexOf("node-7") != 7 {
		t.Errorf("index = %d", LineIndexOf("node-7"))
	}
	for _, bad := range []string{"node-", "node-x", "do-1", "node--3"} {
		if LineIndexOf(bad) != -1 {
			t.Errorf("LineIndexOf(%q) = %d", bad, LineIndexOf(bad))
		}
	}
}

func TestLookups(t *testing.T) {
	tree := Parse(sampleText)
	cart := tree.NodeAt(1)
	if cart == nil || tree.Node(cart.ID) != cart {
		t.Fatal("line/id lookups disagree")
	}
	if got := tree.ByRunningNumber()[4]; got != cart.ID {
		t.Errorf("rn binding = %q", got)
	}
	if got := tree.ByExpandedID()[2]; got != NodeID(2) {
		t.Errorf("expid binding = %q", got)
	}
	if matches := tree.ByContent("- Cart review"); len(matches) != 1 || matches[0] != cart {
		t.Errorf("content lookup = %v", matches)
	}
}
