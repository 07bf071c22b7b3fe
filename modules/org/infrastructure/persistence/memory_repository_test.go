package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
	"github.com/iota-uz/orgadmin/modules/org/services"
)

func ptr[T any](v T) *T { return &v }

func seededMemory() *MemoryOrgRepository {
	return NewMemoryOrgRepository(
		orgtree.Node{ID: 1, OrgType: "company", Name: "HQ"},
		orgtree.Node{ID: 2, OrgType: "department", Name: "A", ParentID: ptr[int64](1), DisplayOrder: 0},
		orgtree.Node{ID: 3, OrgType: "department", Name: "B", ParentID: ptr[int64](1), DisplayOrder: 1},
		orgtree.Node{ID: 4, OrgType: "department", Name: "C", ParentID: ptr[int64](1), DisplayOrder: 2, Code: ptr("C-1")},
	)
}

func TestMemoryOrgRepository_SiblingsAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := seededMemory()

	ids, err := repo.ListSiblingIDs(ctx, ptr[int64](1))
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 4}, ids)

	roots, err := repo.ListSiblingIDs(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, roots)

	require.NoError(t, repo.UpdateSiblingOrder(ctx, []int64{4, 2, 3}))
	ids, err = repo.ListSiblingIDs(ctx, ptr[int64](1))
	require.NoError(t, err)
	require.Equal(t, []int64{4, 2, 3}, ids)
}

func TestMemoryOrgRepository_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := seededMemory()
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.UpdateSiblingOrder(txCtx, []int64{3, 4, 2}))
		_, err := repo.Insert(txCtx, services.NodeInsert{OrgType: "team", Name: "T", ParentID: ptr[int64](2)})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	nodes, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	ids, err := repo.ListSiblingIDs(ctx, ptr[int64](1))
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 4}, ids)
}

func TestMemoryOrgRepository_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	repo := seededMemory()

	var created orgtree.Node
	err := repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		created, err = repo.Insert(txCtx, services.NodeInsert{OrgType: "team", Name: "T", ParentID: ptr[int64](2)})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), created.ID)

	got, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "T", got.Name)
}

func TestMemoryOrgRepository_Errors(t *testing.T) {
	ctx := context.Background()
	repo := seededMemory()

	_, err := repo.Get(ctx, 99)
	require.ErrorIs(t, err, orgtree.ErrNotFound)

	_, err = repo.Insert(ctx, services.NodeInsert{OrgType: "team", Name: "X", Code: ptr("C-1")})
	require.ErrorIs(t, err, orgtree.ErrDuplicateCode)

	_, err = repo.Insert(ctx, services.NodeInsert{OrgType: "team", Name: "X", ParentID: ptr[int64](42)})
	require.ErrorIs(t, err, orgtree.ErrNotFound)

	require.ErrorIs(t, repo.UpdateParent(ctx, 2, ptr[int64](42), 0), orgtree.ErrNotFound)
	require.ErrorIs(t, repo.UpdateSiblingOrder(ctx, []int64{2, 99}), orgtree.ErrNotFound)
}
