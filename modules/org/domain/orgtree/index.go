package orgtree

// Index is a mutable id lookup over a flat node set with ordered sibling
// groups. It is not safe for concurrent use.
type Index struct {
	nodes    map[int64]Node
	siblings map[ParentKey][]int64
}

func NewIndex(nodes []Node) *Index {
	ix := &Index{
		nodes:    make(map[int64]Node, len(nodes)),
		siblings: make(map[ParentKey][]int64),
	}
	for _, n := range nodes {
		ix.nodes[n.ID] = n
	}
	// Flatten(Build(...)) yields siblings already in display order.
	for _, n := range Flatten(Build(nodes)) {
		k := ix.groupOf(n)
		ix.siblings[k] = append(ix.siblings[k], n.ID)
	}
	return ix
}

func IndexForest(forest []TreeNode) *Index {
	return NewIndex(Flatten(forest))
}

// groupOf keys orphans under the root group, matching how Build renders them.
func (ix *Index) groupOf(n Node) ParentKey {
	if n.ParentID == nil {
		return ParentKey{}
	}
	if _, ok := ix.nodes[*n.ParentID]; !ok {
		return ParentKey{}
	}
	return KeyOf(n.ParentID)
}

func (ix *Index) Len() int { return len(ix.nodes) }

func (ix *Index) Get(id int64) (Node, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

func (ix *Index) Group(id int64) (ParentKey, bool) {
	n, ok := ix.nodes[id]
	if !ok {
		return ParentKey{}, false
	}
	return ix.groupOf(n), true
}

// Siblings returns a copy of the ordered ids in one group.
func (ix *Index) Siblings(k ParentKey) []int64 {
	ids := ix.siblings[k]
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}

// SetSiblings replaces a group's order and renumbers display_order from 0.
func (ix *Index) SetSiblings(k ParentKey, ids []int64) error {
	if err := ValidatePermutation(ix.siblings[k], ids); err != nil {
		return err
	}
	next := make([]int64, len(ids))
	copy(next, ids)
	ix.siblings[k] = next
	ix.renumber(k)
	return nil
}

// IsAncestor reports whether ancestorID appears on nodeID's parent chain.
// The walk is bounded by the node count so corrupt cyclic data terminates.
func (ix *Index) IsAncestor(ancestorID, nodeID int64) bool {
	n, ok := ix.nodes[nodeID]
	if !ok {
		return false
	}
	for steps := 0; n.ParentID != nil && steps <= len(ix.nodes); steps++ {
		if *n.ParentID == ancestorID {
			return true
		}
		n, ok = ix.nodes[*n.ParentID]
		if !ok {
			return false
		}
	}
	return false
}

// CheckMove validates reparenting nodeID under newParentID (nil = root).
func (ix *Index) CheckMove(nodeID int64, newParentID *int64) error {
	if _, ok := ix.nodes[nodeID]; !ok {
		return ErrNotFound
	}
	if newParentID == nil {
		return nil
	}
	if _, ok := ix.nodes[*newParentID]; !ok {
		return ErrNotFound
	}
	if *newParentID == nodeID || ix.IsAncestor(nodeID, *newParentID) {
		return ErrCycle
	}
	return nil
}

// Move reparents nodeID and appends it to the end of the new group.
func (ix *Index) Move(nodeID int64, newParentID *int64) error {
	if err := ix.CheckMove(nodeID, newParentID); err != nil {
		return err
	}
	n := ix.nodes[nodeID]
	from := ix.groupOf(n)
	ids := ix.siblings[from]
	for i, id := range ids {
		if id == nodeID {
			ix.siblings[from] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	n.ParentID = newParentID
	ix.nodes[nodeID] = n
	to := ix.groupOf(n)
	ix.siblings[to] = append(ix.siblings[to], nodeID)
	ix.renumber(from)
	ix.renumber(to)
	return nil
}

func (ix *Index) renumber(k ParentKey) {
	for i, id := range ix.siblings[k] {
		m := ix.nodes[id]
		m.DisplayOrder = i
		ix.nodes[id] = m
	}
}

// Nodes returns every node in pre-order.
func (ix *Index) Nodes() []Node {
	return Flatten(ix.Forest())
}

func (ix *Index) Forest() []TreeNode {
	nodes := make([]Node, 0, len(ix.nodes))
	for _, n := range ix.nodes {
		nodes = append(nodes, n)
	}
	return Build(nodes)
}

// Depth of a node, 0 for roots.
func (ix *Index) Depth(id int64) int {
	n, ok := ix.nodes[id]
	depth := 0
	for ok && n.ParentID != nil && depth <= len(ix.nodes) {
		n, ok = ix.nodes[*n.ParentID]
		if ok {
			depth++
		}
	}
	return depth
}

type Stats struct {
	Total    int            `json:"total"`
	Roots    int            `json:"roots"`
	MaxDepth int            `json:"max_depth"`
	ByType   map[string]int `json:"by_type"`
}

func (ix *Index) Stats() Stats {
	s := Stats{Total: len(ix.nodes), ByType: map[string]int{}}
	s.Roots = len(ix.siblings[ParentKey{}])
	for id, n := range ix.nodes {
		s.ByType[n.OrgType]++
		if d := ix.Depth(id); d > s.MaxDepth {
			s.MaxDepth = d
		}
	}
	return s
}
