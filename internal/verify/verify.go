// Package verify runs format and linkage checks over a document: fence and
// JSON integrity, tag and actor discipline, and dangling entity references.
// It reports issues, it never repairs.
package verify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"tapestry/api/internal/anchor"
	"tapestry/api/internal/block"
	"tapestry/api/internal/entity"
)

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue codes.
const (
	CodeUnclosedFence       = "UNCLOSED_CODE_BLOCK"
	CodeInvalidJSON         = "INVALID_JSON"
	CodeMissingTagStore     = "MISSING_TAG_STORE"
	CodeUnknownTagID        = "UNKNOWN_TAG_ID"
	CodeMissingTagGroup     = "MISSING_REQUIRED_TAG_GROUP"
	CodeActorPrefixInTitle  = "ACTOR_PREFIX_IN_TITLE"
	CodeMissingActorTag     = "MISSING_ACTOR_TAG"
	CodeMultipleActorTags   = "MULTIPLE_ACTOR_TAGS"
	CodeDOAttrsWithoutDO    = "DOATTRS_WITHOUT_DO"
	CodeUnknownAttributeID  = "UNKNOWN_DATA_OBJECT_ATTRIBUTE_ID"
	CodeMissingUISurfaceTag = "MISSING_UI_SURFACE_TAG"
	CodeCrossTimeframe      = "CROSS_TIMEFRAME_SIGNAL"
	CodeMissingSeparator    = "MISSING_SEPARATOR"
	CodeBlockInContent      = "BLOCK_BEFORE_SEPARATOR"
)

// Required tag groups enforced on flow and expanded lines.
const (
	ActorsGroupID    = "tg-actors"
	UISurfaceGroupID = "tg-uiSurface"
)

// Issue is one finding. Line is 1-based, 0 for document-level issues.
type Issue struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
}

// Result splits the findings by severity. The counts duplicate the slice
// lengths so clients can show a summary without walking the issues.
type Result struct {
	Errors       []Issue `json:"errors"`
	Warnings     []Issue `json:"warnings"`
	ErrorCount   int     `json:"errorCount"`
	WarningCount int     `json:"warningCount"`
}

// OK reports whether the document passed with no errors. Warnings pass.
func (r Result) OK() bool { return len(r.Errors) == 0 }

var (
	actorPrefixPattern = regexp.MustCompile(`(?i)^(system|staff|applicant|partner)\s*:\s*`)
	timeframePattern   = regexp.MustCompile(`(?i)\b(await|waiting|wait|queued|queue|2-4\s*weeks|weeks?|months?|within\s+one\s+month|mail|postal|partner\s+assessment|assessment|ica)\b`)
	commentPattern     = regexp.MustCompile(`<!--[\s\S]*?-->`)
	spacePattern       = regexp.MustCompile(`\s+`)
	titleMarkerPattern = regexp.MustCompile(`^(?:[-*+]|#+)\s+`)
)

type checker struct {
	issues []Issue

	tagStorePresent  bool
	tagStoreReported bool
	tagGroupIDs      map[string]bool
	tagToGroup       map[string]string
	attrIDs          map[string]map[string]bool
}

func (c *checker) add(severity, code string, line int, format string, args ...any) {
	c.issues = append(c.issues, Issue{
		Severity: severity,
		Code:     code,
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Check runs every rule over the text and returns the findings, errors first.
func Check(text string) Result {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	lines := strings.Split(normalized, "\n")

	c := &checker{
		tagGroupIDs: map[string]bool{},
		tagToGroup:  map[string]string{},
		attrIDs:     map[string]map[string]bool{},
	}

	sep := block.SeparatorIndex(normalized)
	c.checkFences(lines)
	c.checkBlockJSON(normalized)
	c.checkSeparator(lines, sep)
	c.loadStores(normalized)
	c.checkTree(lines, sep)
	c.checkExpandedBlocks(normalized)

	var r Result
	for _, i := range c.issues {
		if i.Severity == SeverityError {
			r.Errors = append(r.Errors, i)
		} else {
			r.Warnings = append(r.Warnings, i)
		}
	}
	r.ErrorCount = len(r.Errors)
	r.WarningCount = len(r.Warnings)
	return r
}

// checkSeparator enforces the layout rule that named blocks live in the
// metadata region after the document-wide separator. Unnamed fenced code in
// the content region is fine.
func (c *checker) checkSeparator(lines []string, sep int) {
	end := len(lines)
	if sep != -1 {
		end = sep
	}
	inFence := false
	for i := 0; i < end; i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		if inFence {
			inFence = false
			continue
		}
		inFence = true
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
		if name == "" {
			continue
		}
		if sep == -1 {
			c.add(SeverityError, CodeMissingSeparator, i+1,
				"block %q present but the document has no --- separator", name)
			return
		}
		c.add(SeverityWarning, CodeBlockInContent, i+1,
			"block %q sits in the content region before the separator", name)
	}
}

func (c *checker) checkFences(lines []string) {
	inFence := false
	start := 0
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if !inFence {
				inFence = true
				start = i + 1
			} else {
				inFence = false
			}
		}
	}
	if inFence {
		c.add(SeverityError, CodeUnclosedFence, start, "unclosed fenced block starting near line %d", start)
	}
}

func (c *checker) checkBlockJSON(text string) {
	for _, b := range block.List(text) {
		if !json.Valid([]byte(b.Body)) {
			c.add(SeverityError, CodeInvalidJSON, 0, "invalid JSON in block %q", b.Name)
		}
	}
}

func (c *checker) loadStores(text string) {
	c.tagStorePresent = block.Read(text, entity.TagStoreBlock) != nil
	tags := entity.LoadTags(text)
	for _, g := range tags.Groups {
		c.tagGroupIDs[g.ID] = true
	}
	for _, t := range tags.Tags {
		c.tagToGroup[t.ID] = t.GroupID
	}

	for _, o := range entity.LoadDataObjects(text).Objects {
		c.attrIDs[o.ID] = o.AttributeIDs()
	}
}

// requireTagStore reports the missing block once, however many rules need it.
func (c *checker) requireTagStore(line int) {
	if c.tagStorePresent || c.tagStoreReported {
		return
	}
	c.tagStoreReported = true
	c.add(SeverityError, CodeMissingTagStore, line, "missing tag-store block, required for tag and actor checks")
}

func (c *checker) actorTags(tagIDs []string) []string {
	var out []string
	for _, id := range tagIDs {
		if c.tagToGroup[id] == ActorsGroupID || strings.HasPrefix(id, "actor-") {
			out = append(out, id)
		}
	}
	return out
}

// titleForPrefixCheck reduces a line to the bare title the actor-prefix rule
// matches against: anchors, list/heading markers and inline markers removed.
func titleForPrefixCheck(line string) string {
	s := commentPattern.ReplaceAllString(strings.TrimLeft(line, " \t"), "")
	s = titleMarkerPattern.ReplaceAllString(s, "")
	s = strings.NewReplacer("#flowtab#", " ", "#flow#", " ", "#common#", " ").Replace(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

func (c *checker) checkTree(lines []string, sep int) {
	end := len(lines)
	if sep != -1 {
		end = sep
	}

	inFence := false
	for i := 0; i < end; i++ {
		line := lines[i]
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence || strings.TrimSpace(line) == "" {
			continue
		}
		num := i + 1

		if actorPrefixPattern.MatchString(titleForPrefixCheck(line)) {
			c.add(SeverityError, CodeActorPrefixInTitle, num,
				"line %d encodes an actor in the title, use actor tags instead", num)
		}

		var tagIDs []string
		if raw, ok := anchor.Get(line, anchor.KindTags); ok {
			tagIDs = anchor.Values(raw)
		}
		if len(tagIDs) > 0 {
			c.requireTagStore(num)
			if c.tagStorePresent {
				for _, id := range tagIDs {
					if _, known := c.tagToGroup[id]; !known {
						c.add(SeverityError, CodeUnknownTagID, num,
							"line %d references unknown tag id %q", num, id)
					}
				}
			}
		}

		if strings.Contains(line, "#flow#") {
			c.checkFlowLine(num, line, tagIDs)
		}

		doID, _ := anchor.Get(line, anchor.KindDO)
		doID = anchor.Sanitize(doID)
		var attrRefs []string
		if raw, ok := anchor.Get(line, anchor.KindDOAttrs); ok {
			attrRefs = anchor.Values(raw)
		}
		if len(attrRefs) > 0 {
			switch {
			case doID == "":
				c.add(SeverityError, CodeDOAttrsWithoutDO, num,
					"line %d selects attributes but carries no data-object reference", num)
			case len(c.attrIDs) > 0:
				c.checkAttrRefs(num, doID, attrRefs)
			}
		}

		if _, ok := anchor.Get(line, anchor.KindExpID); ok {
			c.checkExpandedLine(num, tagIDs)
		}
	}
}

func (c *checker) checkFlowLine(num int, line string, tagIDs []string) {
	c.requireTagStore(num)
	if c.tagStorePresent && !c.tagGroupIDs[ActorsGroupID] {
		c.add(SeverityError, CodeMissingTagGroup, num,
			"tag-store missing required group %q", ActorsGroupID)
	}
	actors := c.actorTags(tagIDs)
	switch {
	case len(actors) == 0:
		c.add(SeverityError, CodeMissingActorTag, num,
			"line %d is a flow step but has no actor tag", num)
	case len(actors) > 1:
		c.add(SeverityError, CodeMultipleActorTags, num,
			"line %d is a flow step with multiple actor tags: %s", num, strings.Join(actors, ", "))
	}

	if timeframePattern.MatchString(line) {
		c.add(SeverityWarning, CodeCrossTimeframe, num,
			"line %d is a flow step with a cross-timeframe signal, consider splitting it into lifecycle hubs", num)
	}
}

func (c *checker) checkExpandedLine(num int, tagIDs []string) {
	c.requireTagStore(num)
	if c.tagStorePresent && !c.tagGroupIDs[UISurfaceGroupID] {
		c.add(SeverityError, CodeMissingTagGroup, num,
			"tag-store missing required group %q", UISurfaceGroupID)
	}
	for _, id := range tagIDs {
		if c.tagToGroup[id] == UISurfaceGroupID {
			return
		}
	}
	c.add(SeverityError, CodeMissingUISurfaceTag, num,
		"line %d has an expanded state but no ui-surface tag", num)
}

func (c *checker) checkAttrRefs(num int, doID string, attrRefs []string) {
	allowed, ok := c.attrIDs[doID]
	if !ok {
		return
	}
	for _, aid := range attrRefs {
		if !allowed[aid] {
			c.add(SeverityWarning, CodeUnknownAttributeID, num,
				"line %d references unknown attribute %q for data object %q", num, aid, doID)
		}
	}
}

// checkExpandedBlocks validates the attribute selections inside expanded
// metadata and grid blocks against the object store.
func (c *checker) checkExpandedBlocks(text string) {
	if len(c.attrIDs) == 0 {
		return
	}
	for _, b := range block.List(text) {
		if strings.HasPrefix(b.Name, entity.ExpandedMetadataPrefix) {
			var raw map[string]any
			if !block.ReadInto(text, b.Name, &raw) {
				continue
			}
			c.checkBlockSelection(b.Name, raw)
			continue
		}
		if strings.HasPrefix(b.Name, entity.ExpandedGridPrefix) {
			var rows []any
			if !block.ReadInto(text, b.Name, &rows) {
				continue
			}
			for _, row := range rows {
				if m, ok := row.(map[string]any); ok {
					c.checkBlockSelection(b.Name, m)
				}
			}
		}
	}
}

func (c *checker) checkBlockSelection(name string, m map[string]any) {
	attrs, _ := m["dataObjectAttributeIds"].([]any)
	if len(attrs) == 0 {
		return
	}
	doID, _ := m["dataObjectId"].(string)
	doID = strings.TrimSpace(doID)
	if doID == "" {
		c.add(SeverityError, CodeDOAttrsWithoutDO, 0,
			"block %q selects attributes but names no data object", name)
		return
	}
	allowed, ok := c.attrIDs[doID]
	if !ok {
		return
	}
	for _, a := range attrs {
		aid, _ := a.(string)
		aid = strings.TrimSpace(aid)
		if aid != "" && !allowed[aid] {
			c.add(SeverityWarning, CodeUnknownAttributeID, 0,
				"block %q references unknown attribute %q for data object %q", name, aid, doID)
		}
	}
}
