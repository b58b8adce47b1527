package entity

import (
	"strconv"
	"strings"

	"tapestry/api/internal/anchor"
	"tapestry/api/internal/block"
	"tapestry/api/internal/textdoc"
)

// TagStoreBlock is the named block persisting tag groups and tags.
const TagStoreBlock = "tag-store"

// UngroupedGroupID is the permanent built-in group. It is merged in on every
// load and can never be deleted; tags of a deleted group fall back into it.
const UngroupedGroupID = "tg-ungrouped"

// TagGroup orders tags in the UI.
type TagGroup struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// Tag is one label assignable to structural lines via `tags` anchors.
type Tag struct {
	ID      string `json:"id"`
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
}

// Tags is the persisted tag store.
type Tags struct {
	NextGroupID int        `json:"nextGroupId"`
	NextTagID   int        `json:"nextTagId"`
	Groups      []TagGroup `json:"groups"`
	Tags        []Tag      `json:"tags"`
}

// FindGroup returns the group with the given id, or nil.
func (t Tags) FindGroup(id string) *TagGroup {
	for i := range t.Groups {
		if t.Groups[i].ID == id {
			return &t.Groups[i]
		}
	}
	return nil
}

// FindTag returns the tag with the given id, or nil.
func (t Tags) FindTag(id string) *Tag {
	for i := range t.Tags {
		if t.Tags[i].ID == id {
			return &t.Tags[i]
		}
	}
	return nil
}

// LoadTags decodes the tag store, dropping malformed entries and merging in
// the permanent ungrouped group.
func LoadTags(text string) Tags {
	var raw map[string]any
	block.ReadInto(text, TagStoreBlock, &raw)
	s := Tags{NextGroupID: asInt(raw, "nextGroupId"), NextTagID: asInt(raw, "nextTagId")}
	if s.NextGroupID < 1 {
		s.NextGroupID = 1
	}
	if s.NextTagID < 1 {
		s.NextTagID = 1
	}
	for _, item := range asList(raw["groups"]) {
		m := asMap(item)
		id := strings.TrimSpace(asString(m, "id"))
		if id == "" {
			continue
		}
		s.Groups = append(s.Groups, TagGroup{ID: id, Name: asString(m, "name"), Order: asInt(m, "order")})
	}
	if s.FindGroup(UngroupedGroupID) == nil {
		s.Groups = append(s.Groups, TagGroup{ID: UngroupedGroupID, Name: "Ungrouped"})
	}
	for _, item := range asList(raw["tags"]) {
		m := asMap(item)
		id := strings.TrimSpace(asString(m, "id"))
		gid := strings.TrimSpace(asString(m, "groupId"))
		if id == "" {
			continue
		}
		if gid == "" || s.FindGroup(gid) == nil {
			gid = UngroupedGroupID
		}
		s.Tags = append(s.Tags, Tag{ID: id, GroupID: gid, Name: asString(m, "name")})
	}
	return s
}

func encodeTags(s Tags) map[string]any {
	groups := make([]any, 0, len(s.Groups))
	for _, g := range s.Groups {
		gm := map[string]any{"id": g.ID, "name": g.Name}
		if g.Order != 0 {
			gm["order"] = g.Order
		}
		groups = append(groups, gm)
	}
	tags := make([]any, 0, len(s.Tags))
	for _, t := range s.Tags {
		tags = append(tags, map[string]any{"id": t.ID, "groupId": t.GroupID, "name": t.Name})
	}
	return map[string]any{
		"nextGroupId": s.NextGroupID,
		"nextTagId":   s.NextTagID,
		"groups":      groups,
		"tags":        tags,
	}
}

// TagStore runs tag operations against a shared document.
type TagStore struct {
	doc textdoc.Document
}

// NewTagStore wraps a document.
func NewTagStore(doc textdoc.Document) *TagStore { return &TagStore{doc: doc} }

// Load reads the current store.
func (s *TagStore) Load() Tags { return LoadTags(s.doc.Text()) }

// CreateGroup allocates `tg-<n>`. Blank names are rejected.
func (s *TagStore) CreateGroup(name string) *TagGroup {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var created *TagGroup
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTags(tx.Text())
		g := TagGroup{ID: "tg-" + strconv.Itoa(store.NextGroupID), Name: name, Order: len(store.Groups)}
		store.NextGroupID++
		store.Groups = append(store.Groups, g)
		if next, err := block.Write(tx.Text(), TagStoreBlock, encodeTags(store)); err == nil {
			tx.SetText(next)
			created = &g
		}
	})
	return created
}

// RenameGroup is a no-op for unknown ids and equal names.
func (s *TagStore) RenameGroup(id, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTags(tx.Text())
		g := store.FindGroup(id)
		if g == nil || g.Name == name {
			return
		}
		g.Name = name
		if next, err := block.Write(tx.Text(), TagStoreBlock, encodeTags(store)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// DeleteGroup removes a group and moves its tags into the ungrouped group.
// The ungrouped group itself cannot be deleted.
func (s *TagStore) DeleteGroup(id string) bool {
	if id == UngroupedGroupID {
		return false
	}
	deleted := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTags(tx.Text())
		if store.FindGroup(id) == nil {
			return
		}
		kept := store.Groups[:0]
		for _, g := range store.Groups {
			if g.ID != id {
				kept = append(kept, g)
			}
		}
		store.Groups = kept
		for i := range store.Tags {
			if store.Tags[i].GroupID == id {
				store.Tags[i].GroupID = UngroupedGroupID
			}
		}
		if next, err := block.Write(tx.Text(), TagStoreBlock, encodeTags(store)); err == nil {
			tx.SetText(next)
			deleted = true
		}
	})
	return deleted
}

// CreateTag allocates `tag-<n>` in the given group (ungrouped when the group
// is unknown). Blank names are rejected.
func (s *TagStore) CreateTag(groupID, name string) *Tag {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var created *Tag
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTags(tx.Text())
		if store.FindGroup(groupID) == nil {
			groupID = UngroupedGroupID
		}
		t := Tag{ID: "tag-" + strconv.Itoa(store.NextTagID), GroupID: groupID, Name: name}
		store.NextTagID++
		store.Tags = append(store.Tags, t)
		if next, err := block.Write(tx.Text(), TagStoreBlock, encodeTags(store)); err == nil {
			tx.SetText(next)
			created = &t
		}
	})
	return created
}

// RenameTag is a no-op for unknown ids and equal names.
func (s *TagStore) RenameTag(id, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTags(tx.Text())
		t := store.FindTag(id)
		if t == nil || t.Name == name {
			return
		}
		t.Name = name
		if next, err := block.Write(tx.Text(), TagStoreBlock, encodeTags(store)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// MoveTag reassigns a tag to another group. Unknown tags, unknown groups and
// value-equal moves are no-ops.
func (s *TagStore) MoveTag(id, groupID string) bool {
	changed := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTags(tx.Text())
		t := store.FindTag(id)
		if t == nil || store.FindGroup(groupID) == nil || t.GroupID == groupID {
			return
		}
		t.GroupID = groupID
		if next, err := block.Write(tx.Text(), TagStoreBlock, encodeTags(store)); err == nil {
			tx.SetText(next)
			changed = true
		}
	})
	return changed
}

// DeleteTag removes the tag and cascades: the id is dropped from every
// `tags` anchor across the content region in the same transaction.
func (s *TagStore) DeleteTag(id string) bool {
	deleted := false
	s.doc.Transact(func(tx *textdoc.Tx) {
		store := LoadTags(tx.Text())
		if store.FindTag(id) == nil {
			return
		}
		kept := store.Tags[:0]
		for _, t := range store.Tags {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		store.Tags = kept

		text := stripTagRefs(tx.Text(), id)
		if next, err := block.Write(text, TagStoreBlock, encodeTags(store)); err == nil {
			tx.SetText(next)
			deleted = true
		}
	})
	return deleted
}

func stripTagRefs(text, id string) string {
	sep := block.SeparatorIndex(text)
	lines := strings.Split(text, "\n")
	end := len(lines)
	if sep != -1 {
		end = sep
	}
	for i := 0; i < end; i++ {
		raw, ok := anchor.Get(lines[i], anchor.KindTags)
		if !ok {
			continue
		}
		ids := anchor.Values(raw)
		kept := ids[:0]
		for _, v := range ids {
			if v != id {
				kept = append(kept, v)
			}
		}
		if len(kept) == len(ids) {
			continue
		}
		if len(kept) == 0 {
			lines[i] = anchor.Remove(lines[i], anchor.KindTags)
		} else {
			lines[i] = anchor.Upsert(lines[i], anchor.KindTags, strings.Join(kept, ","))
		}
	}
	return strings.Join(lines, "\n")
}
