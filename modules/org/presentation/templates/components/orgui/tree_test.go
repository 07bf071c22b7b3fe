package orgui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
)

func ptr[T any](v T) *T { return &v }

func render(t *testing.T, forest []orgtree.TreeNode, opts RenderOptions) (*goquery.Document, string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Tree(forest, opts).Render(context.Background(), &buf))
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(buf.String()))
	require.NoError(t, err)
	return doc, buf.String()
}

func sampleForest() []orgtree.TreeNode {
	return orgtree.Build([]orgtree.Node{
		{ID: 1, OrgType: "company", Name: "Acme", Code: ptr("ACME")},
		{ID: 2, OrgType: "department", Name: "Eng", ParentID: ptr[int64](1)},
		{ID: 3, OrgType: "team", Name: "Platform", ParentID: ptr[int64](2)},
	})
}

func TestTree_DataAttributesAndNesting(t *testing.T) {
	doc, _ := render(t, sampleForest(), RenderOptions{})

	root := doc.Find(`li.tree-node[data-id="1"]`)
	require.Equal(t, 1, root.Length())
	require.Equal(t, "company", root.AttrOr("data-type", ""))
	require.Equal(t, "", root.AttrOr("data-parent-id", "missing"))

	child := root.Find(`li.tree-node[data-id="2"]`)
	require.Equal(t, "1", child.AttrOr("data-parent-id", ""))
	require.Equal(t, "department", child.AttrOr("data-type", ""))
	require.Equal(t, 1, child.Find(`li[data-id="3"]`).Length())

	require.Equal(t, 3, doc.Find(".drag-handle[draggable=true]").Length())
	require.Equal(t, "(ACME)", root.Find(".tree-code").First().Text())
}

func TestTree_FirstLevelExpandedDeeperCollapsed(t *testing.T) {
	doc, _ := render(t, sampleForest(), RenderOptions{})

	top := doc.Find(`li[data-id="1"] > ul.tree-children`)
	require.Equal(t, 1, top.Length())
	require.False(t, top.HasClass("collapsed"))

	nested := doc.Find(`li[data-id="2"] > ul.tree-children`)
	require.True(t, nested.HasClass("collapsed"))
}

func TestTree_ExpandedOverridesDefault(t *testing.T) {
	doc, _ := render(t, sampleForest(), RenderOptions{Expanded: map[int64]bool{1: false, 2: true}})

	require.True(t, doc.Find(`li[data-id="1"] > ul.tree-children`).HasClass("collapsed"))
	require.False(t, doc.Find(`li[data-id="2"] > ul.tree-children`).HasClass("collapsed"))
	require.Equal(t, "true", doc.Find(`li[data-id="2"] .tree-toggle`).First().AttrOr("aria-expanded", ""))
}

func TestTree_EscapesUserText(t *testing.T) {
	payload := `<img src=x onerror=alert(1)>`
	forest := orgtree.Build([]orgtree.Node{
		{ID: 1, OrgType: `x" onmouseover="alert(2)`, Name: payload, Code: ptr(payload)},
	})

	doc, raw := render(t, forest, RenderOptions{})

	require.NotContains(t, raw, "<img")
	require.Zero(t, doc.Find("img").Length())
	require.Equal(t, payload, doc.Find(".tree-name").Text())
	require.Equal(t, "("+payload+")", doc.Find(".tree-code").Text())
	li := doc.Find("li.tree-node")
	require.Equal(t, `x" onmouseover="alert(2)`, li.AttrOr("data-type", ""))
	_, hasHandler := li.Attr("onmouseover")
	require.False(t, hasHandler)
}

func TestTree_DragMarks(t *testing.T) {
	forest := orgtree.Build([]orgtree.Node{
		{ID: 1, Name: "A"}, {ID: 2, Name: "B", DisplayOrder: 1}, {ID: 3, Name: "C", DisplayOrder: 2},
	})

	doc, _ := render(t, forest, RenderOptions{Marks: Marks{DraggingID: 3, OverID: 1, OverPos: orgtree.Before}})
	require.True(t, doc.Find(`li[data-id="3"]`).HasClass("dragging"))
	require.True(t, doc.Find(`li[data-id="1"]`).HasClass("drag-over-above"))
	require.False(t, doc.Find(`li[data-id="2"]`).HasClass("drag-over-above"))

	doc, _ = render(t, forest, RenderOptions{Marks: Marks{DraggingID: 1, OverID: 2, OverPos: orgtree.After}})
	require.True(t, doc.Find(`li[data-id="2"]`).HasClass("drag-over-below"))
}

func TestTree_Empty(t *testing.T) {
	doc, _ := render(t, nil, RenderOptions{})
	require.Equal(t, 1, doc.Find(".tree-empty").Length())
}

func TestPage_PublishesEscapedCSRFMeta(t *testing.T) {
	var buf bytes.Buffer
	err := Page(PageProps{CSRFToken: `tok"en`, APIBase: "/admin/api/organizations", Forest: sampleForest()}).
		Render(context.Background(), &buf)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	require.Equal(t, `tok"en`, doc.Find(`meta[name="csrf-token"]`).AttrOr("content", ""))
	require.Equal(t, "Organizations", doc.Find("title").Text())
	require.Equal(t, 3, doc.Find("#org-tree li.tree-node").Length())
}
