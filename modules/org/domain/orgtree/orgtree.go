// Package orgtree holds the organization hierarchy model shared by the admin
// API, the HTML renderer and the reorder controller.
package orgtree

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound       = errors.New("org unit not found")
	ErrNotPermutation = errors.New("sibling order is not a permutation of the current siblings")
	ErrCycle          = errors.New("org unit cannot be moved into its own subtree")
	ErrNotSibling     = errors.New("org units do not share a parent")
	ErrDuplicateCode  = errors.New("org unit code already exists")
)

// Node is one flat org unit row.
type Node struct {
	ID           int64   `json:"id"`
	OrgType      string  `json:"org_type"`
	Name         string  `json:"name"`
	Code         *string `json:"code"`
	ParentID     *int64  `json:"parent_id"`
	DisplayOrder int     `json:"display_order"`
}

// TreeNode is a Node with its ordered children. Children is never nil so it
// serializes as [].
type TreeNode struct {
	ID           int64      `json:"id"`
	OrgType      string     `json:"org_type"`
	Name         string     `json:"name"`
	Code         *string    `json:"code"`
	ParentID     *int64     `json:"parent_id"`
	DisplayOrder int        `json:"display_order"`
	Children     []TreeNode `json:"children"`
}

func (t TreeNode) Node() Node {
	return Node{
		ID:           t.ID,
		OrgType:      t.OrgType,
		Name:         t.Name,
		Code:         t.Code,
		ParentID:     t.ParentID,
		DisplayOrder: t.DisplayOrder,
	}
}

// ParentKey identifies a sibling group; the zero value is the root group.
type ParentKey struct {
	Valid bool
	ID    int64
}

func KeyOf(parentID *int64) ParentKey {
	if parentID == nil {
		return ParentKey{}
	}
	return ParentKey{Valid: true, ID: *parentID}
}

func (k ParentKey) Ptr() *int64 {
	if !k.Valid {
		return nil
	}
	id := k.ID
	return &id
}

func SameParent(a, b *int64) bool {
	return KeyOf(a) == KeyOf(b)
}

func codeOf(n Node) string {
	if n.Code == nil {
		return ""
	}
	return strings.TrimSpace(*n.Code)
}

func less(a, b Node) bool {
	if a.DisplayOrder != b.DisplayOrder {
		return a.DisplayOrder < b.DisplayOrder
	}
	na, nb := strings.TrimSpace(a.Name), strings.TrimSpace(b.Name)
	if na != nb {
		return na < nb
	}
	ca, cb := codeOf(a), codeOf(b)
	if ca != cb {
		return ca < cb
	}
	return a.ID < b.ID
}

func sortNodes(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool { return less(nodes[i], nodes[j]) })
}

// Build nests flat rows into a forest. Nodes whose parent is absent become
// roots; nodes only reachable through a cycle are emitted as extra roots so
// no row is lost and the walk always terminates.
func Build(nodes []Node) []TreeNode {
	byID := make(map[int64]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	childrenByParent := make(map[int64][]Node, len(nodes))
	roots := make([]Node, 0, 8)
	for _, n := range byID {
		if n.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		if _, ok := byID[*n.ParentID]; !ok {
			roots = append(roots, n)
			continue
		}
		childrenByParent[*n.ParentID] = append(childrenByParent[*n.ParentID], n)
	}
	for parentID := range childrenByParent {
		sortNodes(childrenByParent[parentID])
	}
	sortNodes(roots)

	visited := make(map[int64]struct{}, len(byID))
	var walk func(n Node) (TreeNode, bool)
	walk = func(n Node) (TreeNode, bool) {
		if _, ok := visited[n.ID]; ok {
			return TreeNode{}, false
		}
		visited[n.ID] = struct{}{}

		out := TreeNode{
			ID:           n.ID,
			OrgType:      n.OrgType,
			Name:         n.Name,
			Code:         n.Code,
			ParentID:     n.ParentID,
			DisplayOrder: n.DisplayOrder,
			Children:     make([]TreeNode, 0, len(childrenByParent[n.ID])),
		}
		for _, child := range childrenByParent[n.ID] {
			if c, ok := walk(child); ok {
				out.Children = append(out.Children, c)
			}
		}
		return out, true
	}

	forest := make([]TreeNode, 0, len(roots))
	for _, r := range roots {
		if t, ok := walk(r); ok {
			forest = append(forest, t)
		}
	}

	if len(visited) != len(byID) {
		remaining := make([]Node, 0, len(byID)-len(visited))
		for _, n := range byID {
			if _, ok := visited[n.ID]; !ok {
				remaining = append(remaining, n)
			}
		}
		sortNodes(remaining)
		for _, n := range remaining {
			if t, ok := walk(n); ok {
				forest = append(forest, t)
			}
		}
	}
	return forest
}

// Flatten lists the forest in pre-order.
func Flatten(forest []TreeNode) []Node {
	out := make([]Node, 0, len(forest))
	var walk func(ts []TreeNode)
	walk = func(ts []TreeNode) {
		for _, t := range ts {
			out = append(out, t.Node())
			walk(t.Children)
		}
	}
	walk(forest)
	return out
}

// Clone deep-copies a forest.
func Clone(forest []TreeNode) []TreeNode {
	if forest == nil {
		return nil
	}
	out := make([]TreeNode, len(forest))
	for i, t := range forest {
		out[i] = t
		if t.Code != nil {
			code := *t.Code
			out[i].Code = &code
		}
		if t.ParentID != nil {
			p := *t.ParentID
			out[i].ParentID = &p
		}
		out[i].Children = Clone(t.Children)
		if out[i].Children == nil {
			out[i].Children = []TreeNode{}
		}
	}
	return out
}

// ValidatePermutation reports whether proposed holds exactly the ids of current.
func ValidatePermutation(current, proposed []int64) error {
	if len(current) != len(proposed) {
		return ErrNotPermutation
	}
	want := make(map[int64]int, len(current))
	for _, id := range current {
		want[id]++
	}
	for _, id := range proposed {
		if want[id] == 0 {
			return ErrNotPermutation
		}
		want[id]--
	}
	return nil
}

type Position int

const (
	Before Position = iota
	After
)

func (p Position) String() string {
	if p == After {
		return "after"
	}
	return "before"
}

// MoveWithin returns a copy of ids with dragged placed before or after target.
// Dropping onto itself returns an unchanged copy.
func MoveWithin(ids []int64, dragged, target int64, pos Position) ([]int64, error) {
	from, at := -1, -1
	for i, id := range ids {
		switch id {
		case dragged:
			from = i
		case target:
			at = i
		}
	}
	if from < 0 {
		return nil, ErrNotFound
	}
	out := make([]int64, 0, len(ids))
	if dragged == target {
		return append(out, ids...), nil
	}
	if at < 0 {
		return nil, ErrNotSibling
	}
	for _, id := range ids {
		if id == dragged {
			continue
		}
		if id == target && pos == Before {
			out = append(out, dragged)
		}
		out = append(out, id)
		if id == target && pos == After {
			out = append(out, dragged)
		}
	}
	return out, nil
}
