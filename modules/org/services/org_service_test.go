package services_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgadmin/modules/org/domain/events"
	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
	"github.com/iota-uz/orgadmin/modules/org/infrastructure/persistence"
	"github.com/iota-uz/orgadmin/modules/org/services"
	"github.com/iota-uz/orgadmin/pkg/eventbus"
	"github.com/iota-uz/orgadmin/pkg/logging"
)

func ptr[T any](v T) *T { return &v }

// hq(1) -> a(2), b(3), c(4); a -> d(5) -> e(6)
func fixture() *persistence.MemoryOrgRepository {
	return persistence.NewMemoryOrgRepository(
		orgtree.Node{ID: 1, OrgType: "company", Name: "HQ"},
		orgtree.Node{ID: 2, OrgType: "department", Name: "A", ParentID: ptr[int64](1), DisplayOrder: 0},
		orgtree.Node{ID: 3, OrgType: "department", Name: "B", ParentID: ptr[int64](1), DisplayOrder: 1},
		orgtree.Node{ID: 4, OrgType: "department", Name: "C", ParentID: ptr[int64](1), DisplayOrder: 2},
		orgtree.Node{ID: 5, OrgType: "team", Name: "D", ParentID: ptr[int64](2), DisplayOrder: 0},
		orgtree.Node{ID: 6, OrgType: "team", Name: "E", ParentID: ptr[int64](5), DisplayOrder: 0},
	)
}

func requireServiceError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var svcErr *services.ServiceError
	require.True(t, errors.As(err, &svcErr), "expected *ServiceError, got %T: %v", err, err)
	require.Equal(t, status, svcErr.Status)
	require.Equal(t, code, svcErr.Code)
}

func childIDs(forest []orgtree.TreeNode, id int64) []int64 {
	for _, n := range orgtree.Flatten(forest) {
		if n.ID != id {
			continue
		}
		var out []int64
		for _, c := range orgtree.Flatten(forest) {
			if c.ParentID != nil && *c.ParentID == id {
				out = append(out, c.ID)
			}
		}
		return out
	}
	return nil
}

func TestOrgService_ReorderPersistsNewOrder(t *testing.T) {
	ctx := context.Background()
	svc := services.NewOrgService(fixture(), nil, nil)

	require.NoError(t, svc.Reorder(ctx, services.SiblingOrder{ParentID: ptr[int64](1), IDs: []int64{4, 2, 3}}))

	forest, err := svc.GetTree(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{4, 2, 3}, childIDs(forest, 1))
}

func TestOrgService_ReorderRejectsNonPermutation(t *testing.T) {
	ctx := context.Background()
	svc := services.NewOrgService(fixture(), nil, nil)

	cases := map[string][]int64{
		"missing":   {2, 3},
		"duplicate": {2, 2, 3},
		"foreign":   {2, 3, 5},
		"extra":     {2, 3, 4, 5},
	}
	for name, ids := range cases {
		t.Run(name, func(t *testing.T) {
			err := svc.Reorder(ctx, services.SiblingOrder{ParentID: ptr[int64](1), IDs: ids})
			requireServiceError(t, err, http.StatusUnprocessableEntity, "ORG_INVALID_ORDER")
		})
	}

	forest, err := svc.GetTree(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 4}, childIDs(forest, 1))
}

func TestOrgService_ReorderRootGroupAndUnknownParent(t *testing.T) {
	ctx := context.Background()
	svc := services.NewOrgService(fixture(), nil, nil)

	require.NoError(t, svc.Reorder(ctx, services.SiblingOrder{IDs: []int64{1}}))

	err := svc.Reorder(ctx, services.SiblingOrder{ParentID: ptr[int64](99), IDs: []int64{1}})
	requireServiceError(t, err, http.StatusNotFound, "ORG_NOT_FOUND")

	err = svc.Reorder(ctx, services.SiblingOrder{ParentID: ptr[int64](1)})
	requireServiceError(t, err, http.StatusBadRequest, "ORG_INVALID_BODY")
}

func TestOrgService_MoveRejectsCycles(t *testing.T) {
	ctx := context.Background()
	svc := services.NewOrgService(fixture(), nil, nil)

	requireServiceError(t, svc.Move(ctx, 2, ptr[int64](2)), http.StatusUnprocessableEntity, "ORG_CYCLE")
	requireServiceError(t, svc.Move(ctx, 2, ptr[int64](6)), http.StatusUnprocessableEntity, "ORG_CYCLE")
	requireServiceError(t, svc.Move(ctx, 2, ptr[int64](42)), http.StatusNotFound, "ORG_NOT_FOUND")
	requireServiceError(t, svc.Move(ctx, 42, nil), http.StatusNotFound, "ORG_NOT_FOUND")
}

func TestOrgService_MoveAppendsAndRenumbers(t *testing.T) {
	ctx := context.Background()
	svc := services.NewOrgService(fixture(), nil, nil)

	require.NoError(t, svc.Move(ctx, 3, ptr[int64](2)))

	flat, err := svc.ListFlat(ctx)
	require.NoError(t, err)
	byID := map[int64]orgtree.Node{}
	for _, n := range flat {
		byID[n.ID] = n
	}
	require.Equal(t, int64(2), *byID[3].ParentID)
	require.Equal(t, 1, byID[3].DisplayOrder)
	require.Equal(t, 1, byID[4].DisplayOrder)

	forest, err := svc.GetTree(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 4}, childIDs(forest, 1))
	require.Equal(t, []int64{5, 3}, childIDs(forest, 2))

	// to root
	require.NoError(t, svc.Move(ctx, 6, nil))
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Roots)
}

func TestOrgService_CreateValidatesAndAppends(t *testing.T) {
	ctx := context.Background()
	svc := services.NewOrgService(fixture(), nil, nil)

	n, err := svc.Create(ctx, services.CreateNodeInput{OrgType: " Team ", Name: "  Ops ", Code: ptr(" OPS "), ParentID: ptr[int64](1)})
	require.NoError(t, err)
	require.Equal(t, "team", n.OrgType)
	require.Equal(t, "Ops", n.Name)
	require.Equal(t, "OPS", *n.Code)
	require.Equal(t, 3, n.DisplayOrder)

	_, err = svc.Create(ctx, services.CreateNodeInput{OrgType: "team", Name: "Dup", Code: ptr("OPS")})
	requireServiceError(t, err, http.StatusConflict, "ORG_CODE_CONFLICT")

	_, err = svc.Create(ctx, services.CreateNodeInput{OrgType: "guild", Name: "X"})
	requireServiceError(t, err, http.StatusUnprocessableEntity, "ORG_INVALID_TYPE")

	_, err = svc.Create(ctx, services.CreateNodeInput{OrgType: "team", Name: "   "})
	requireServiceError(t, err, http.StatusBadRequest, "ORG_INVALID_BODY")

	_, err = svc.Create(ctx, services.CreateNodeInput{OrgType: "team", Name: "X", ParentID: ptr[int64](77)})
	requireServiceError(t, err, http.StatusUnprocessableEntity, "ORG_PARENT_NOT_FOUND")
}

func TestOrgService_StatsAndTypes(t *testing.T) {
	ctx := context.Background()
	svc := services.NewOrgService(fixture(), nil, nil)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, stats.Total)
	require.Equal(t, 1, stats.Roots)
	require.Equal(t, 3, stats.MaxDepth)
	require.Equal(t, 3, stats.ByType["department"])

	types := svc.Types(ctx)
	require.Equal(t, services.DefaultOrgTypes, types)
	types[0] = "mutated"
	require.Equal(t, "company", svc.Types(ctx)[0])
}

func TestOrgService_WritesPublishEventsThatInvalidateCache(t *testing.T) {
	ctx := context.Background()
	repo := fixture()
	cache := services.NewMemoryTreeCache(0)
	bus := eventbus.NewEventPublisher(logging.Discard())
	bus.Subscribe(services.InvalidateOnChange(cache))

	var seen []string
	bus.Subscribe(func(_ context.Context, ev events.TreeChange) {
		seen = append(seen, ev.Changed().ChangeType)
	})

	svc := services.NewOrgService(repo, cache, bus)

	_, err := svc.GetTree(ctx)
	require.NoError(t, err)
	_, ok := cache.Get(ctx)
	require.True(t, ok)

	require.NoError(t, svc.Reorder(ctx, services.SiblingOrder{ParentID: ptr[int64](1), IDs: []int64{3, 2, 4}}))
	_, ok = cache.Get(ctx)
	require.False(t, ok)

	forest, err := svc.GetTree(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2, 4}, childIDs(forest, 1))

	require.NoError(t, svc.Move(ctx, 4, ptr[int64](3)))
	_, err = svc.Create(ctx, services.CreateNodeInput{OrgType: "team", Name: "New"})
	require.NoError(t, err)

	require.Equal(t, []string{events.ChangeReordered, events.ChangeMoved, events.ChangeCreated}, seen)
}

func TestOrgService_MoveToSameParentIsSilent(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewEventPublisher(logging.Discard())
	published := 0
	bus.Subscribe(func(_ context.Context, _ events.TreeChange) { published++ })

	svc := services.NewOrgService(fixture(), nil, bus)
	require.NoError(t, svc.Move(ctx, 3, ptr[int64](1)))
	require.Zero(t, published)
}
