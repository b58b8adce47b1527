package export

import (
	"fmt"
	"html/template"
	"strings"

	"tapestry/api/internal/doctree"
	"tapestry/api/internal/graph"
)

// renderTree turns the structural hierarchy into nested lists. Hubs carry a
// class so variants read as alternatives, and attached data objects show as
// inline badges.
func renderTree(tree *doctree.Tree) template.HTML {
	var b strings.Builder
	b.WriteString(`<ul class="tree">`)
	for _, root := range tree.Roots {
		renderNode(&b, root, false)
	}
	b.WriteString("</ul>")
	return template.HTML(b.String())
}

func renderNode(b *strings.Builder, n *doctree.Node, variant bool) {
	class := ""
	switch {
	case n.IsHub:
		class = ` class="hub"`
	case variant:
		class = ` class="variant"`
	}
	fmt.Fprintf(b, "<li%s>%s", class, template.HTMLEscapeString(n.Content))
	if n.AttachedEntityID != "" {
		fmt.Fprintf(b, `<span class="entity">%s</span>`, template.HTMLEscapeString(n.AttachedEntityID))
	}
	if len(n.Children) > 0 {
		b.WriteString(`<ul class="tree">`)
		for _, c := range n.Children {
			renderNode(b, c, n.IsHub)
		}
		b.WriteString("</ul>")
	}
	b.WriteString("</li>")
}

// renderGraph renders the relation graph as an edge table. Missing objects
// keep their placeholder marking so broken references stay visible in the
// artifact.
func renderGraph(g *graph.Graph) template.HTML {
	if g == nil || len(g.Objects) == 0 {
		return ""
	}

	names := make(map[string]string, len(g.Objects))
	missing := make(map[string]bool, len(g.Objects))
	for _, o := range g.Objects {
		names[o.ID] = o.Name
		missing[o.ID] = o.Missing
	}
	label := func(id string) string {
		name := names[id]
		if name == "" {
			name = id
		}
		escaped := template.HTMLEscapeString(name)
		if missing[id] {
			return `<span class="missing">` + escaped + `</span>`
		}
		return escaped
	}

	var b strings.Builder
	b.WriteString(`<table class="graph"><tr><th>From</th><th>To</th><th>Kind</th><th>Cardinality</th></tr>`)
	for _, e := range g.Edges {
		fmt.Fprintf(&b,"<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			label(e.From), label(e.To),
			template.HTMLEscapeString(e.Kind),
			template.HTMLEscapeString(e.Cardinality))
	}
	b.WriteString("</table>")
	return template.HTML(b.String())
}
