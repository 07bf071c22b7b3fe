package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/iota-uz/orgadmin/modules/org/domain/events"
	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
	"github.com/iota-uz/orgadmin/pkg/composables"
	"github.com/iota-uz/orgadmin/pkg/eventbus"
)

// DefaultOrgTypes are the org_type values accepted by Create.
var DefaultOrgTypes = []string{"company", "division", "department", "team", "branch"}

// OrgRepository is the storage port. ListSiblingIDs inside WithTx locks the
// group rows until the transaction ends.
type OrgRepository interface {
	List(ctx context.Context) ([]orgtree.Node, error)
	Get(ctx context.Context, id int64) (orgtree.Node, error)
	ListSiblingIDs(ctx context.Context, parentID *int64) ([]int64, error)
	UpdateSiblingOrder(ctx context.Context, ids []int64) error
	UpdateParent(ctx context.Context, id int64, parentID *int64, displayOrder int) error
	Insert(ctx context.Context, in NodeInsert) (orgtree.Node, error)
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type NodeInsert struct {
	OrgType      string
	Name         string
	Code         *string
	ParentID     *int64
	DisplayOrder int
}

type SiblingOrder struct {
	ParentID *int64
	IDs      []int64
}

type CreateNodeInput struct {
	OrgType  string
	Name     string
	Code     *string
	ParentID *int64
}

type OrgService struct {
	repo      OrgRepository
	cache     TreeCache
	publisher eventbus.EventBus
	types     []string
}

// NewOrgService wires the service. A nil cache disables caching; a nil
// publisher makes the service invalidate its own cache after writes.
func NewOrgService(repo OrgRepository, cache TreeCache, publisher eventbus.EventBus) *OrgService {
	if cache == nil {
		cache = NoopTreeCache{}
	}
	return &OrgService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		types:     slices.Clone(DefaultOrgTypes),
	}
}

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func (s *OrgService) nodes(ctx context.Context) ([]orgtree.Node, error) {
	if cached, ok := s.cache.Get(ctx); ok {
		return cached, nil
	}
	nodes, err := s.repo.List(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.cache.Set(ctx, nodes)
	return nodes, nil
}

func (s *OrgService) GetTree(ctx context.Context) ([]orgtree.TreeNode, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return nil, err
	}
	return orgtree.Build(nodes), nil
}

// ListFlat returns every unit in tree pre-order.
func (s *OrgService) ListFlat(ctx context.Context) ([]orgtree.Node, error) {
	forest, err := s.GetTree(ctx)
	if err != nil {
		return nil, err
	}
	return orgtree.Flatten(forest), nil
}

func (s *OrgService) Stats(ctx context.Context) (orgtree.Stats, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return orgtree.Stats{}, err
	}
	return orgtree.NewIndex(nodes).Stats(), nil
}

func (s *OrgService) Types(context.Context) []string {
	return slices.Clone(s.types)
}

// Reorder persists a new order for one sibling group. The proposed ids must
// be exactly the group's current members.
func (s *OrgService) Reorder(ctx context.Context, order SiblingOrder) error {
	if len(order.IDs) == 0 {
		return newServiceError(http.StatusBadRequest, "ORG_INVALID_BODY", "org_ids is required", nil)
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if order.ParentID != nil {
			if _, err := s.repo.Get(txCtx, *order.ParentID); err != nil {
				return mapRepoError(err)
			}
		}
		current, err := s.repo.ListSiblingIDs(txCtx, order.ParentID)
		if err != nil {
			return mapRepoError(err)
		}
		if err := orgtree.ValidatePermutation(current, order.IDs); err != nil {
			recordWriteConflict("order")
			return newServiceError(http.StatusUnprocessableEntity, "ORG_INVALID_ORDER", "org_ids must list every sibling exactly once", err)
		}
		return mapRepoError(s.repo.UpdateSiblingOrder(txCtx, order.IDs))
	})
	if err != nil {
		return err
	}

	composables.UseLogger(ctx).WithField("org_ids", order.IDs).Info("org units reordered")
	s.changed(ctx, &events.OrgUnitsReordered{
		OrgChangedV1: newChange(ctx, events.ChangeReordered),
		ParentID:     order.ParentID,
		OrgIDs:       slices.Clone(order.IDs),
	})
	return nil
}

// Move reparents a unit and appends it to the new sibling group. Moving a
// unit under itself or one of its descendants is rejected.
func (s *OrgService) Move(ctx context.Context, id int64, newParentID *int64) error {
	var oldParentID *int64
	moved := false

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		nodes, err := s.repo.List(txCtx)
		if err != nil {
			return mapRepoError(err)
		}
		ix := orgtree.NewIndex(nodes)
		if err := ix.CheckMove(id, newParentID); err != nil {
			return mapRepoError(err)
		}
		from, _ := ix.Group(id)
		if from == orgtree.KeyOf(newParentID) {
			return nil
		}
		oldParentID = from.Ptr()
		if err := ix.Move(id, newParentID); err != nil {
			return mapRepoError(err)
		}
		n, _ := ix.Get(id)
		if err := s.repo.UpdateParent(txCtx, id, newParentID, n.DisplayOrder); err != nil {
			return mapRepoError(err)
		}
		if rest := ix.Siblings(from); len(rest) > 0 {
			if err := s.repo.UpdateSiblingOrder(txCtx, rest); err != nil {
				return mapRepoError(err)
			}
		}
		moved = true
		return nil
	})
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	composables.UseLogger(ctx).WithField("org_id", id).Info("org unit moved")
	s.changed(ctx, &events.OrgUnitMoved{
		OrgChangedV1: newChange(ctx, events.ChangeMoved),
		OrgID:        id,
		OldParentID:  oldParentID,
		NewParentID:  newParentID,
	})
	return nil
}

func (s *OrgService) Create(ctx context.Context, in CreateNodeInput) (orgtree.Node, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.OrgType = strings.ToLower(strings.TrimSpace(in.OrgType))
	if in.Code != nil {
		code := strings.TrimSpace(*in.Code)
		in.Code = &code
		if code == "" {
			in.Code = nil
		}
	}
	if in.Name == "" {
		return orgtree.Node{}, newServiceError(http.StatusBadRequest, "ORG_INVALID_BODY", "name is required", nil)
	}
	if !slices.Contains(s.types, in.OrgType) {
		return orgtree.Node{}, newServiceError(http.StatusUnprocessableEntity, "ORG_INVALID_TYPE",
			fmt.Sprintf("org_type must be one of %s", strings.Join(s.types, ", ")), nil)
	}

	var created orgtree.Node
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if in.ParentID != nil {
			if _, err := s.repo.Get(txCtx, *in.ParentID); err != nil {
				if errors.Is(err, orgtree.ErrNotFound) {
					return newServiceError(http.StatusUnprocessableEntity, "ORG_PARENT_NOT_FOUND", "parent_id not found", err)
				}
				return mapRepoError(err)
			}
		}
		siblings, err := s.repo.ListSiblingIDs(txCtx, in.ParentID)
		if err != nil {
			return mapRepoError(err)
		}
		created, err = s.repo.Insert(txCtx, NodeInsert{
			OrgType:      in.OrgType,
			Name:         in.Name,
			Code:         in.Code,
			ParentID:     in.ParentID,
			DisplayOrder: len(siblings),
		})
		return mapRepoError(err)
	})
	if err != nil {
		return orgtree.Node{}, err
	}

	composables.UseLogger(ctx).WithField("org_id", created.ID).Info("org unit created")
	s.changed(ctx, &events.OrgUnitCreated{
		OrgChangedV1: newChange(ctx, events.ChangeCreated),
		OrgID:        created.ID,
		OrgType:      created.OrgType,
		ParentID:     created.ParentID,
	})
	return created, nil
}

func newChange(ctx context.Context, changeType string) events.OrgChangedV1 {
	requestID, _ := composables.UseRequestID(ctx)
	return events.NewOrgChanged(changeType, requestID)
}

func (s *OrgService) changed(ctx context.Context, ev events.TreeChange) {
	if s.publisher == nil {
		s.cache.Invalidate(ctx)
		recordCacheInvalidate(ev.Changed().ChangeType)
		return
	}
	s.publisher.Publish(ctx, ev)
}
