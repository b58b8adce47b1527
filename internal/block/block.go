// Package block reads and writes named fenced JSON blocks embedded in the
// shared document text. A block is a fenced region whose opening line is the
// block name:
//
//	```data-objects
//	{ ... }
//	```
//
// Metadata blocks live after the document-wide `---` separator so the
// structural tree walk never mistakes them for content. Fences are scanned
// line by line with open/close tracking rather than with a multiline pattern,
// so a stray fence inside content cannot shift block boundaries.
package block

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Block is a named fenced region with its raw body.
type Block struct {
	Name string
	Body string
}

// span locates a block's lines within the split text, fence lines included.
type span struct {
	start int // index of the opening fence line
	end   int // index of the closing fence line
}

func splitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.Split(normalized, "\n")
}

// lineEnding reports the document's dominant line ending. Mutating operations
// re-join with it so a CRLF buffer round-trips byte-for-byte instead of being
// silently rewritten document-wide.
func lineEnding(text string) string {
	if strings.Contains(text, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// findBlock returns the span of the first block with the given name.
func findBlock(lines []string, name string) (span, bool) {
	open := "```" + name
	inFence := false
	var cur span
	matching := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		if !inFence {
			inFence = true
			matching = trimmed == open
			cur = span{start: i}
			continue
		}
		inFence = false
		if matching && trimmed == "```" {
			cur.end = i
			return cur, true
		}
	}
	return span{}, false
}

// SeparatorIndex returns the line index of the document-wide `---` separator,
// ignoring any `---` inside fenced regions, or -1 if there is none.
func SeparatorIndex(text string) int {
	inFence := false
	for i, line := range splitLines(text) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if !inFence && trimmed == "---" {
			return i
		}
	}
	return -1
}

// Read returns the raw JSON body of the named block, or nil when the block is
// absent or its body fails to parse. Malformed persisted data is treated as
// absent; callers fall back to their defaults.
func Read(text, name string) json.RawMessage {
	lines := splitLines(text)
	sp, ok := findBlock(lines, name)
	if !ok {
		return nil
	}
	body := strings.Join(lines[sp.start+1:sp.end], "\n")
	if !json.Valid([]byte(body)) {
		return nil
	}
	return json.RawMessage(body)
}

// ReadInto decodes the named block into v. Returns false (leaving v untouched
// beyond a failed partial decode) when the block is absent or malformed.
func ReadInto(text, name string, v any) bool {
	raw := Read(text, name)
	if raw == nil {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// Write returns text with the named block holding the JSON encoding of v.
// An existing block is replaced in place, preserving all surrounding text.
// A new block is appended to the metadata region after the `---` separator;
// the separator itself is appended first when the document has none. Writing
// a value equal to the current one returns text unchanged.
func Write(text, name string, v any) (string, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return text, err
	}

	if existing := Read(text, name); existing != nil && jsonEqual(existing, payload) {
		return text, nil
	}

	eol := lineEnding(text)
	lines := splitLines(text)
	blockLines := append([]string{"```" + name}, strings.Split(string(payload), "\n")...)
	blockLines = append(blockLines, "```")

	if sp, ok := findBlock(lines, name); ok {
		out := make([]string, 0, len(lines)+len(blockLines))
		out = append(out, lines[:sp.start]...)
		out = append(out, blockLines...)
		out = append(out, lines[sp.end+1:]...)
		return strings.Join(out, eol), nil
	}

	if SeparatorIndex(text) == -1 {
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		lines = append(lines, "", "---", "")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	lines = append(lines, "")
	lines = append(lines, blockLines...)
	return strings.Join(lines, eol), nil
}

// Remove returns text with the named block deleted. Absent blocks are a no-op.
func Remove(text, name string) string {
	lines := splitLines(text)
	sp, ok := findBlock(lines, name)
	if !ok {
		return text
	}
	start := sp.start
	// Swallow one blank line above the block so removal does not pile up gaps.
	if start > 0 && strings.TrimSpace(lines[start-1]) == "" {
		start--
	}
	out := make([]string, 0, len(lines))
	out = append(out, lines[:start]...)
	out = append(out, lines[sp.end+1:]...)
	return strings.Join(out, lineEnding(text))
}

// List returns every named block in document order. Bodies are raw text and
// may be invalid JSON; consumers that need parsed data go through Read.
func List(text string) []Block {
	lines := splitLines(text)
	var out []Block
	inFence := false
	var name string
	var bodyStart int
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		if !inFence {
			inFence = true
			name = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			bodyStart = i + 1
			continue
		}
		inFence = false
		if name != "" && trimmed == "```" {
			out = append(out, Block{Name: name, Body: strings.Join(lines[bodyStart:i], "\n")})
		}
	}
	return out
}

func jsonEqual(a, b []byte) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
