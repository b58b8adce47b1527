// Package anchor handles the HTML-comment tokens attached to structural
// lines: `<!-- kind:value -->`. Anchors carry the durable identity of a line
// (running numbers, entity references, tag references) and must survive
// content-only rewrites byte-for-byte.
package anchor

import (
	"regexp"
	"strings"
)

// Kind identifies an anchor token family. At most one token of each kind may
// appear on a line.
type Kind string

const (
	KindExpID    Kind = "expid"    // expanded-state identity
	KindRN       Kind = "rn"       // running number
	KindDesc     Kind = "desc"     // dimension-description identity
	KindDO       Kind = "do"       // data-object reference
	KindDOAttrs  Kind = "doattrs"  // selected data-object attribute ids
	KindDOStatus Kind = "dostatus" // selected status-attribute values
	KindTags     Kind = "tags"     // tag id list
	KindIcon     Kind = "icon"     // icon marker
	KindAnn      Kind = "ann"      // annotation marker
)

// Kinds lists every recognized kind in canonical order.
var Kinds = []Kind{KindExpID, KindRN, KindDesc, KindDO, KindDOAttrs, KindDOStatus, KindTags, KindIcon, KindAnn}

// Token is one anchor occurrence on a line.
type Token struct {
	Kind  Kind
	Value string
}

// One composite pattern recognizes every known kind. Group 1 is the kind,
// group 2 the raw value.
var tokenPattern = regexp.MustCompile(`<!--\s*(expid|rn|desc|do|doattrs|dostatus|tags|icon|ann):([^>]*?)\s*-->`)

// Extract returns the recognized anchors on a line in their original order.
// Unrecognized HTML comments are ignored.
func Extract(line string) []Token {
	matches := tokenPattern.FindAllStringSubmatch(line, -1)
	var out []Token
	seen := map[Kind]bool{}
	for _, m := range matches {
		k := Kind(m[1])
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Token{Kind: k, Value: strings.TrimSpace(m[2])})
	}
	return out
}

// Get returns the value of the given kind on the line.
func Get(line string, kind Kind) (string, bool) {
	for _, t := range Extract(line) {
		if t.Kind == kind {
			return t.Value, true
		}
	}
	return "", false
}

// Values splits a comma-separated anchor value into sanitized, de-duplicated
// ids, preserving order. Used for `tags`, `doattrs` and `dostatus`.
func Values(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		id := Sanitize(part)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Sanitize strips characters that would let a value escape its comment token.
func Sanitize(v string) string {
	v = strings.NewReplacer("\n", "", "\r", "", "<", "", ">", "", "--", "").Replace(v)
	return strings.TrimSpace(v)
}

func kindPattern(kind Kind) *regexp.Regexp {
	return regexp.MustCompile(`\s*<!--\s*` + regexp.QuoteMeta(string(kind)) + `:[^>]*?-->`)
}

// Strip removes the given kinds from the line, trimming the whitespace left
// behind. All other text, including unrecognized comments, is untouched.
func Strip(line string, kinds ...Kind) string {
	out := line
	for _, k := range kinds {
		out = kindPattern(k).ReplaceAllString(out, "")
	}
	return strings.TrimRight(out, " \t")
}

// StripAll removes every recognized anchor kind from the line.
func StripAll(line string) string {
	return Strip(line, Kinds...)
}

// Upsert sets the value for kind on the line. An existing token is rewritten
// in place, preserving its position among the other anchors; otherwise the
// token is appended after one space. Upserting the current value returns the
// line unchanged, so repeated calls never grow the line.
func Upsert(line string, kind Kind, value string) string {
	value = Sanitize(value)
	token := "<!-- " + string(kind) + ":" + value + " -->"
	if cur, ok := Get(line, kind); ok {
		if cur == value {
			return line
		}
		re := regexp.MustCompile(`<!--\s*` + regexp.QuoteMeta(string(kind)) + `:[^>]*?-->`)
		replaced := false
		return re.ReplaceAllStringFunc(line, func(m string) string {
			if replaced {
				return m
			}
			replaced = true
			return token
		})
	}
	if strings.TrimRight(line, " \t") != line {
		line = strings.TrimRight(line, " \t")
	}
	return line + " " + token
}

// Remove deletes the token of the given kind, if present.
func Remove(line string, kind Kind) string {
	if _, ok := Get(line, kind); !ok {
		return line
	}
	return Strip(line, kind)
}

// RewriteContent replaces the visible content of a line while keeping every
// recognized anchor token byte-identical and in original relative order.
func RewriteContent(line, content string) string {
	tokens := tokenPattern.FindAllString(line, -1)
	out := content
	for _, t := range tokens {
		out += " " + strings.TrimSpace(t)
	}
	return out
}
