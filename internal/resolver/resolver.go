// Package resolver keeps logical references bound to the right structural
// line even though structural ids are derived from line indexes and go stale
// on every edit above them. The durable identity is a monotonic number
// stamped onto the line as an anchor; the node id is recomputed from the
// live tree on every resolve.
package resolver

import (
	"strconv"
	"strings"

	"tapestry/api/internal/anchor"
	"tapestry/api/internal/block"
	"tapestry/api/internal/doctree"
	"tapestry/api/internal/textdoc"
)

// CountersBlock is the named block persisting the allocation counters.
const CountersBlock = "running-numbers"

// Family scopes an identity counter. Families that stamp the same anchor
// kind share a counter so the per-kind binding index stays collision-free.
type Family string

const (
	FamilyExpanded Family = "expanded" // expanded-state ids, `expid` anchors
	FamilyDesc     Family = "desc"     // dimension descriptions, `desc` anchors
	FamilyHubNote  Family = "hubnote"  // conditional hub notes, `rn` anchors
	FamilyProcRef  Family = "procref"  // process references, `rn` anchors
)

// AnchorKind maps a family to the anchor kind carrying its numbers.
func AnchorKind(f Family) anchor.Kind {
	switch f {
	case FamilyExpanded:
		return anchor.KindExpID
	case FamilyDesc:
		return anchor.KindDesc
	default:
		return anchor.KindRN
	}
}

type counters struct {
	ExpID int `json:"expid"`
	Desc  int `json:"desc"`
	RN    int `json:"rn"`
}

func loadCounters(text string) counters {
	var c counters
	block.ReadInto(text, CountersBlock, &c)
	if c.ExpID < 1 {
		c.ExpID = 1
	}
	if c.Desc < 1 {
		c.Desc = 1
	}
	if c.RN < 1 {
		c.RN = 1
	}
	return c
}

func (c *counters) next(kind anchor.Kind) int {
	switch kind {
	case anchor.KindExpID:
		n := c.ExpID
		c.ExpID++
		return n
	case anchor.KindDesc:
		n := c.Desc
		c.Desc++
		return n
	default:
		n := c.RN
		c.RN++
		return n
	}
}

// Allocate issues the next number for the family and persists the bumped
// counter into the transaction text. Numbers are never reused, even after
// the referencing entity is deleted.
func Allocate(tx *textdoc.Tx, f Family) int {
	c := loadCounters(tx.Text())
	n := c.next(AnchorKind(f))
	if next, err := block.Write(tx.Text(), CountersBlock, &c); err == nil {
		tx.SetText(next)
	}
	return n
}

// Stamp writes the family's anchor with number n onto the given line of the
// transaction text. Stamping the number already present is a no-op.
func Stamp(tx *textdoc.Tx, lineIndex int, f Family, n int) {
	lines := strings.Split(tx.Text(), "\n")
	if lineIndex < 0 || lineIndex >= len(lines) {
		return
	}
	next := anchor.Upsert(lines[lineIndex], AnchorKind(f), strconv.Itoa(n))
	if next == lines[lineIndex] {
		return
	}
	lines[lineIndex] = next
	tx.SetText(strings.Join(lines, "\n"))
}

// AllocateAndStamp combines Allocate and Stamp for the common persist path.
func AllocateAndStamp(tx *textdoc.Tx, lineIndex int, f Family) int {
	n := Allocate(tx, f)
	Stamp(tx, lineIndex, f, n)
	return n
}

// Ref is a stored cross-reference: the node id captured at persist time, the
// running number stamped next to it, and the visible content of the line as
// a last-resort matching hint. Number < 0 marks legacy data with no number.
type Ref struct {
	NodeID  string
	Number  int
	Content string
}

// Resolve rebinds ref against the current tree. The stored node id wins when
// it still exists; otherwise the anchor binding for the number; otherwise a
// content match, but only when the content is unique in the tree. Returns
// ("", false) when nothing matches unambiguously; resolution never guesses
// and never mutates the document.
func Resolve(tree *doctree.Tree, f Family, ref Ref) (string, bool) {
	if ref.NodeID != "" && tree.Node(ref.NodeID) != nil {
		return ref.NodeID, true
	}

	if ref.Number >= 0 {
		bindings := bindingsFor(tree, f)
		if id, ok := bindings[ref.Number]; ok {
			return id, true
		}
	}

	if ref.Content != "" {
		matches := tree.ByContent(ref.Content)
		if len(matches) == 1 {
			return matches[0].ID, true
		}
		// Two identical lines: refusing to pick is the duplicate-content
		// guard. The caller surfaces the reference as unresolved.
	}
	return "", false
}

// Bindings returns the number → node id index for the family, rebuilt from
// the anchors present in the tree.
func Bindings(tree *doctree.Tree, f Family) map[int]string {
	return bindingsFor(tree, f)
}

func bindingsFor(tree *doctree.Tree, f Family) map[int]string {
	if AnchorKind(f) == anchor.KindExpID {
		return tree.ByExpandedID()
	}
	if AnchorKind(f) == anchor.KindRN {
		return tree.ByRunningNumber()
	}
	out := map[int]string{}
	for _, n := range tree.Nodes {
		raw, ok := anchor.Get(n.Raw, anchor.KindDesc)
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(raw); err == nil {
			out[v] = n.ID
		}
	}
	return out
}
