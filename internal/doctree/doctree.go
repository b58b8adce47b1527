// Package doctree re-derives the structural node hierarchy from the visible
// document content. Node ids are a pure function of the line index, so they
// shift whenever lines are inserted or removed above a node; durable
// references go through the resolver, never through these ids.
package doctree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"tapestry/api/internal/anchor"
	"tapestry/api/internal/block"
)

// Inline markers recognized on structural lines.
const (
	MarkerFlow    = "#flow#"
	MarkerFlowTab = "#flowtab#"
	MarkerCommon  = "#common#"
)

// Node is one structural line. Two nodes never share a LineIndex, and ID is
// derived from it.
type Node struct {
	ID        string
	LineIndex int
	Level     int
	Content   string // visible text, anchors and markers removed
	Raw       string // the untouched line
	ParentID  string
	Children  []*Node

	IsHub    bool    // flow-tab hub: children are its variants
	Variants []*Node // populated for hubs, aliases Children

	AttachedEntityID string // data-object id from the `do` anchor
	ExpandedID       int    // `expid` anchor value, -1 when absent
	RunningNumber    int    // `rn` anchor value, -1 when absent
	IsFlow           bool
	TagIDs           []string
}

// Tree is the derived hierarchy for one text snapshot.
type Tree struct {
	Roots  []*Node
	Nodes  []*Node
	byID   map[string]*Node
	byLine map[int]*Node
}

// NodeID derives the positional id for a line index.
func NodeID(lineIndex int) string { return fmt.Sprintf("node-%d", lineIndex) }

// LineIndexOf inverts NodeID. Returns -1 for ids of any other shape.
func LineIndexOf(id string) int {
	rest, ok := strings.CutPrefix(id, "node-")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

var headingPattern = regexp.MustCompile(`^(#+)\s`)

// Parse walks the content region of the text (everything before the `---`
// separator, fenced regions skipped) and builds the node hierarchy.
func Parse(text string) *Tree {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	lines := strings.Split(normalized, "\n")

	sep := block.SeparatorIndex(text)
	if sep == -1 {
		sep = len(lines)
	}

	t := &Tree{byID: map[string]*Node{}, byLine: map[int]*Node{}}
	var stack []*Node // ancestors by increasing level
	headingLevel := 0

	inFence := false
	for i := 0; i < sep; i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" {
			continue
		}

		n := parseNode(i, line, &headingLevel)
		t.Nodes = append(t.Nodes, n)
		t.byID[n.ID] = n
		t.byLine[n.LineIndex] = n

		for len(stack) > 0 && stack[len(stack)-1].Level >= n.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			t.Roots = append(t.Roots, n)
		} else {
			parent := stack[len(stack)-1]
			n.ParentID = parent.ID
			parent.Children = append(parent.Children, n)
			if parent.IsHub {
				parent.Variants = append(parent.Variants, n)
			}
		}
		stack = append(stack, n)
	}
	return t
}

func parseNode(lineIndex int, line string, headingLevel *int) *Node {
	n := &Node{
		ID:         NodeID(lineIndex),
		LineIndex:  lineIndex,
		Raw:        line,
		ExpandedID: -1,
	}
	n.RunningNumber = -1

	if m := headingPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
		n.Level = len(m[1])
		*headingLevel = n.Level
	} else {
		n.Level = *headingLevel + 1 + indentWidth(line)/2
	}

	for _, tok := range anchor.Extract(line) {
		switch tok.Kind {
		case anchor.KindDO:
			n.AttachedEntityID = anchor.Sanitize(tok.Value)
		case anchor.KindExpID:
			if v, err := strconv.Atoi(tok.Value); err == nil {
				n.ExpandedID = v
			}
		case anchor.KindRN:
			if v, err := strconv.Atoi(tok.Value); err == nil {
				n.RunningNumber = v
			}
		case anchor.KindTags:
			n.TagIDs = anchor.Values(tok.Value)
		}
	}

	n.IsFlow = strings.Contains(line, MarkerFlow)
	n.IsHub = strings.Contains(line, MarkerFlowTab)
	n.Content = visibleContent(line)
	return n
}

func indentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 2
		default:
			return w
		}
	}
	return w
}

var (
	spacePattern   = regexp.MustCompile(`\s+`)
	commentPattern = regexp.MustCompile(`<!--[\s\S]*?-->`)
)

// visibleContent strips indentation, heading hashes, anchors and inline
// markers, collapsing whitespace. This is the text the resolver's content
// fallback compares, so it must be stable under anchor rewrites.
func visibleContent(line string) string {
	s := anchor.StripAll(strings.TrimSpace(line))
	s = commentPattern.ReplaceAllString(s, "")
	s = headingPattern.ReplaceAllString(s, "")
	s = strings.NewReplacer(MarkerFlowTab, " ", MarkerFlow, " ", MarkerCommon, " ").Replace(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// Node returns the node with the given positional id, or nil.
func (t *Tree) Node(id string) *Node { return t.byID[id] }

// NodeAt returns the node on the given line, or nil.
func (t *Tree) NodeAt(lineIndex int) *Node { return t.byLine[lineIndex] }

// ByContent returns every node whose visible content equals s.
func (t *Tree) ByContent(s string) []*Node {
	var out []*Node
	for _, n := range t.Nodes {
		if n.Content == s {
			out = append(out, n)
		}
	}
	return out
}

// ByRunningNumber builds the running-number binding index: rn → node id.
// The index is derived on every call and never persisted.
func (t *Tree) ByRunningNumber() map[int]string {
	out := map[int]string{}
	for _, n := range t.Nodes {
		if n.RunningNumber >= 0 {
			out[n.RunningNumber] = n.ID
		}
	}
	return out
}

// ByExpandedID maps expid anchor values to node ids.
func (t *Tree) ByExpandedID() map[int]string {
	out := map[int]string{}
	for _, n := range t.Nodes {
		if n.ExpandedID >= 0 {
			out[n.ExpandedID] = n.ID
		}
	}
	return out
}
