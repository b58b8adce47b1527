package search

import (
	"strings"

	"tapestry/api/internal/entity"
)

// ExtractRecords derives the searchable entity records from one document
// text. It re-reads every store, so records always reflect the snapshot they
// were built from.
func ExtractRecords(documentID, text string) []EntityRecord {
	var out []EntityRecord

	add := func(typ ResultType, entityID, name, snippet string) {
		if strings.TrimSpace(name) == "" {
			return
		}
		out = append(out, EntityRecord{
			ID:         documentID + ":" + entityID,
			EntityID:   entityID,
			Type:       string(typ),
			Name:       name,
			Snippet:    snippet,
			DocumentID: documentID,
		})
	}

	for _, o := range entity.LoadDataObjects(text).Objects {
		names := make([]string, 0, len(o.Attributes))
		for _, a := range o.Attributes {
			names = append(names, a.Name)
		}
		add(ResultDataObject, o.ID, o.Name, strings.Join(names, ", "))
	}

	tags := entity.LoadTags(text)
	groupName := map[string]string{}
	for _, g := range tags.Groups {
		groupName[g.ID] = g.Name
	}
	for _, t := range tags.Tags {
		add(ResultTag, t.ID, t.Name, groupName[t.GroupID])
	}

	for _, f := range entity.LoadSystemFlows(text).Flows {
		flow := entity.LoadSystemFlow(text, f.ID)
		labels := make([]string, 0, len(flow.Boxes))
		for _, b := range flow.Boxes {
			labels = append(labels, b.Label)
		}
		add(ResultSystemFlow, f.ID, f.Name, strings.Join(labels, ", "))
	}

	for _, td := range entity.LoadTestDefinitions(text).Tests {
		add(ResultTestDefinition, td.ID, td.Name, strings.Join(td.Steps, " "))
	}

	for _, n := range entity.LoadHubNotes(text).Notes {
		name := n.Content
		if strings.TrimSpace(name) == "" {
			name = n.Text
		}
		add(ResultHubNote, n.ID, name, n.Text)
	}

	return out
}
