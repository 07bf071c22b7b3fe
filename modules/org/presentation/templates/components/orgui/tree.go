package orgui

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
)

// Marks are the transient drag classes applied to nodes.
type Marks struct {
	DraggingID int64
	OverID     int64
	OverPos    orgtree.Position
}

type RenderOptions struct {
	// Expanded overrides the default (depth 0 open, deeper collapsed).
	Expanded map[int64]bool
	Marks    Marks
}

func (o RenderOptions) expanded(id int64, depth int) bool {
	if v, ok := o.Expanded[id]; ok {
		return v
	}
	return depth == 0
}

func (o RenderOptions) classes(id int64) string {
	cls := "tree-node"
	if o.Marks.DraggingID != 0 && o.Marks.DraggingID == id {
		cls += " dragging"
	}
	if o.Marks.OverID != 0 && o.Marks.OverID == id {
		if o.Marks.OverPos == orgtree.After {
			cls += " drag-over-below"
		} else {
			cls += " drag-over-above"
		}
	}
	return cls
}

func parentAttr(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}

// Tree renders the forest as nested lists. Every user supplied value goes
// through templ.EscapeString.
func Tree(forest []orgtree.TreeNode, opts RenderOptions) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		if len(forest) == 0 {
			b.WriteString(`<div class="tree-empty">No organizations yet</div>`)
		} else {
			b.WriteString(`<ul class="org-tree" role="tree">`)
			for _, n := range forest {
				writeNode(&b, n, 0, opts)
			}
			b.WriteString(`</ul>`)
		}
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeNode(b *strings.Builder, n orgtree.TreeNode, depth int, opts RenderOptions) {
	id := strconv.FormatInt(n.ID, 10)
	b.WriteString(`<li class="` + opts.classes(n.ID) + `" role="treeitem"`)
	b.WriteString(` data-id="` + id + `"`)
	b.WriteString(` data-type="` + templ.EscapeString(n.OrgType) + `"`)
	b.WriteString(` data-parent-id="` + parentAttr(n.ParentID) + `"`)
	b.WriteString(` data-depth="` + strconv.Itoa(depth) + `">`)

	b.WriteString(`<div class="tree-node-content">`)
	open := opts.expanded(n.ID, depth)
	if len(n.Children) > 0 {
		glyph := "&#9656;"
		if open {
			glyph = "&#9662;"
		}
		b.WriteString(`<button type="button" class="tree-toggle" data-action="toggle" data-id="` + id + `" aria-expanded="` + strconv.FormatBool(open) + `">` + glyph + `</button>`)
	} else {
		b.WriteString(`<span class="tree-toggle-spacer"></span>`)
	}
	b.WriteString(`<span class="drag-handle" draggable="true" title="Drag to reorder">&#8942;&#8942;</span>`)
	b.WriteString(`<span class="tree-label"><span class="tree-name">` + templ.EscapeString(n.Name) + `</span>`)
	if n.Code != nil && *n.Code != "" {
		b.WriteString(` <span class="tree-code">(` + templ.EscapeString(*n.Code) + `)</span>`)
	}
	b.WriteString(`<span class="tree-type badge">` + templ.EscapeString(n.OrgType) + `</span></span>`)
	b.WriteString(`</div>`)

	if len(n.Children) > 0 {
		cls := "tree-children"
		if !open {
			cls += " collapsed"
		}
		b.WriteString(`<ul class="` + cls + `" role="group">`)
		for _, c := range n.Children {
			writeNode(b, c, depth+1, opts)
		}
		b.WriteString(`</ul>`)
	}
	b.WriteString(`</li>`)
}

type PageProps struct {
	Title     string
	CSRFToken string
	// APIBase is where the page script sends fetch/reorder requests.
	APIBase string
	Forest  []orgtree.TreeNode
	Options RenderOptions
}

// Page is the standalone admin page. The CSRF token is published in
// <meta name="csrf-token"> for API clients.
func Page(props PageProps) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := strings.TrimSpace(props.Title)
		if title == "" {
			title = "Organizations"
		}
		head := `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">` +
			`<meta name="csrf-token" content="` + templ.EscapeString(props.CSRFToken) + `">` +
			`<title>` + templ.EscapeString(title) + `</title></head><body>` +
			`<main class="org-admin"><h1>` + templ.EscapeString(title) + `</h1>` +
			`<div id="org-tree" data-api-base="` + templ.EscapeString(props.APIBase) + `">`
		if _, err := io.WriteString(w, head); err != nil {
			return err
		}
		if err := Tree(props.Forest, props.Options).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</div></main></body></html>`)
		return err
	})
}
