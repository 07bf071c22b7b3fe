package persistence

import (
	"context"
	"sort"
	"sync"

	gerrors "github.com/go-faster/errors"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
	"github.com/iota-uz/orgadmin/modules/org/services"
)

type memTxKey struct{}

type memState struct {
	rows   map[int64]orgtree.Node
	nextID int64
}

func (s *memState) clone() *memState {
	rows := make(map[int64]orgtree.Node, len(s.rows))
	for id, n := range s.rows {
		rows[id] = n
	}
	return &memState{rows: rows, nextID: s.nextID}
}

// MemoryOrgRepository keeps org units in process. WithTx works on a copy
// that replaces the live state only when fn succeeds.
type MemoryOrgRepository struct {
	mu    sync.Mutex
	state *memState
}

var _ services.OrgRepository = (*MemoryOrgRepository)(nil)

func NewMemoryOrgRepository(seed ...orgtree.Node) *MemoryOrgRepository {
	st := &memState{rows: make(map[int64]orgtree.Node, len(seed)), nextID: 1}
	for _, n := range seed {
		st.rows[n.ID] = n
		if n.ID >= st.nextID {
			st.nextID = n.ID + 1
		}
	}
	return &MemoryOrgRepository{state: st}
}

// do runs fn against the transaction copy bound to ctx, or against the live
// state under the lock.
func (r *MemoryOrgRepository) do(ctx context.Context, fn func(st *memState) error) error {
	if st, ok := ctx.Value(memTxKey{}).(*memState); ok {
		return fn(st)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.state)
}

func (r *MemoryOrgRepository) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memState); ok {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(context.WithValue(ctx, memTxKey{}, work)); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *MemoryOrgRepository) List(ctx context.Context) ([]orgtree.Node, error) {
	var out []orgtree.Node
	err := r.do(ctx, func(st *memState) error {
		out = make([]orgtree.Node, 0, len(st.rows))
		for _, n := range st.rows {
			out = append(out, n)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r *MemoryOrgRepository) Get(ctx context.Context, id int64) (orgtree.Node, error) {
	var n orgtree.Node
	err := r.do(ctx, func(st *memState) error {
		var ok bool
		if n, ok = st.rows[id]; !ok {
			return gerrors.Wrapf(orgtree.ErrNotFound, "org unit %d", id)
		}
		return nil
	})
	return n, err
}

func (r *MemoryOrgRepository) ListSiblingIDs(ctx context.Context, parentID *int64) ([]int64, error) {
	var ids []int64
	err := r.do(ctx, func(st *memState) error {
		group := make([]orgtree.Node, 0, 8)
		for _, n := range st.rows {
			if orgtree.SameParent(n.ParentID, parentID) {
				group = append(group, n)
			}
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].DisplayOrder != group[j].DisplayOrder {
				return group[i].DisplayOrder < group[j].DisplayOrder
			}
			return group[i].ID < group[j].ID
		})
		ids = make([]int64, len(group))
		for i, n := range group {
			ids[i] = n.ID
		}
		return nil
	})
	return ids, err
}

func (r *MemoryOrgRepository) UpdateSiblingOrder(ctx context.Context, ids []int64) error {
	return r.do(ctx, func(st *memState) error {
		for _, id := range ids {
			if _, ok := st.rows[id]; !ok {
				return gerrors.Wrapf(orgtree.ErrNotFound, "org unit %d", id)
			}
		}
		for i, id := range ids {
			n := st.rows[id]
			n.DisplayOrder = i
			st.rows[id] = n
		}
		return nil
	})
}

func (r *MemoryOrgRepository) UpdateParent(ctx context.Context, id int64, parentID *int64, displayOrder int) error {
	return r.do(ctx, func(st *memState) error {
		n, ok := st.rows[id]
		if !ok {
			return gerrors.Wrapf(orgtree.ErrNotFound, "org unit %d", id)
		}
		if parentID != nil {
			if _, ok := st.rows[*parentID]; !ok {
				return gerrors.Wrapf(orgtree.ErrNotFound, "parent %d", *parentID)
			}
		}
		n.ParentID = parentID
		n.DisplayOrder = displayOrder
		st.rows[id] = n
		return nil
	})
}

func (r *MemoryOrgRepository) Insert(ctx context.Context, in services.NodeInsert) (orgtree.Node, error) {
	var n orgtree.Node
	err := r.do(ctx, func(st *memState) error {
		if in.ParentID != nil {
			if _, ok := st.rows[*in.ParentID]; !ok {
				return gerrors.Wrapf(orgtree.ErrNotFound, "parent %d", *in.ParentID)
			}
		}
		if in.Code != nil {
			for _, existing := range st.rows {
				if existing.Code != nil && *existing.Code == *in.Code {
					return gerrors.Wrapf(orgtree.ErrDuplicateCode, "code %q", *in.Code)
				}
			}
		}
		n = orgtree.Node{
			ID:           st.nextID,
			OrgType:      in.OrgType,
			Name:         in.Name,
			Code:         in.Code,
			ParentID:     in.ParentID,
			DisplayOrder: in.DisplayOrder,
		}
		st.rows[n.ID] = n
		st.nextID++
		return nil
	})
	return n, err
}
