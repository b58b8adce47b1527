package anchor

import (
	"reflect"
	"testing"
)

func TestExtractKeepsOriginalOrder(t *testing.T) {
	line := "- Cart <!-- rn:4 --> <!-- do:do-1 --> <!-- tags:tag-1,tag-2 -->"
	got := Extract(line)
	want := []Token{
		{Kind: KindRN, Value: "4"},
		{Kind: KindDO, Value: "do-1"},
		{Kind: KindTags, Value: "tag-1,tag-2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokens = %v", got)
	}
}

func TestExtractIgnoresUnknownComments(t *testing.T) {
	if got := Extract("- x <!-- note to self --> <!-- rn:7 -->"); len(got) != 1 || got[0].Value != "7" {
		t.Errorf("tokens = %v", got)
	}
}

func TestExtractFirstTokenWinsPerKind(t *testing.T) {
	got := Extract("- x <!-- rn:1 --> <!-- rn:2 -->")
	if len(got) != 1 || got[0].Value != "1" {
		t.Errorf("tokens = %v", got)
	}
}

func TestUpsertAppends(t *testing.T) {
	got := Upsert("- Cart", KindDO, "do-1")
	if got != "- Cart <!-- do:do-1 -->" {
		t.Errorf("line = %q", got)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	line := "- Cart <!-- do:do-1 -->"
	if got := Upsert(line, KindDO, "do-1"); got != line {
		t.Errorf("line grew: %q", got)
	}
}

func TestUpsertRewritesInPlace(t *testing.T) {
	line := "- Cart <!-- do:do-1 --> <!-- rn:4 -->"
	got := Upsert(line, KindDO, "do-2")
	if got != "- Cart <!-- do:do-2 --> <!-- rn:4 -->" {
		t.Errorf("line = %q", got)
	}
}

func TestStripLeavesOtherKinds(t *testing.T) {
	line := "- Cart <!-- do:do-1 --> <!-- rn:4 -->"
	got := Strip(line, KindDO)
	if got != "- Cart <!-- rn:4 -->" {
		t.Errorf("line = %q", got)
	}
}

func TestStripAllTrimsTrailingWhitespace(t *testing.T) {
	if got := StripAll("- Cart <!-- do:do-1 -->"); got != "- Cart" {
		t.Errorf("line = %q", got)
	}
}

func TestRemoveAbsentIsNoOp(t *testing.T) {
	line := "- Cart <!-- rn:4 -->"
	if got := Remove(line, KindDO); got != line {
		t.Errorf("line = %q", got)
	}
}

func TestValues(t *testing.T) {
	got := Values(" tag-1, tag-2 ,tag-1,, <x> ")
	want := []string{"tag-1", "tag-2", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("values = %v", got)
	}
}

func TestSanitizeStripsCommentEscapes(t *testing.T) {
	if got := Sanitize("a--><!--b"); got != "a!b" {
		t.Errorf("sanitized = %q", got)
	}
}

func TestRewriteContentKeepsAnchors(t *testing.T) {
	line := "- Cart review <!-- do:do-1 --> <!-- rn:4 -->"
	got := RewriteContent(line, "- Basket review")
	if got != "- Basket review <!-- do:do-1 --> <!-- rn:4 -->" {
		t.Errorf("line = %q", got)
	}
}
