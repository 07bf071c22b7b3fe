package apiclient

import (
	"context"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
)

const DefaultOrgAPIPath = "/admin/api/organizations"

// RejectedError is a 2xx response with success=false.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "request rejected"
	}
	return e.Message
}

type envelope[T any] struct {
	Success *bool  `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (e *envelope[T]) check() error {
	if e.Success == nil {
		return errors.Wrap(ErrMalformedResponse, "missing success field")
	}
	if !*e.Success {
		return &RejectedError{Code: e.Code, Message: e.Error}
	}
	return nil
}

type ReorderRequest struct {
	ParentID *int64  `json:"parent_id"`
	OrgIDs   []int64 `json:"org_ids"`
}

type MoveRequest struct {
	NewParentID *int64 `json:"new_parent_id"`
}

type CreateRequest struct {
	OrgType  string  `json:"org_type"`
	Name     string  `json:"name"`
	Code     *string `json:"code,omitempty"`
	ParentID *int64  `json:"parent_id,omitempty"`
}

// OrgClient speaks the organizations endpoints of the admin API.
type OrgClient struct {
	c    *Client
	base string
}

func NewOrgClient(c *Client) *OrgClient {
	return &OrgClient{c: c, base: DefaultOrgAPIPath}
}

func (o *OrgClient) Client() *Client { return o.c }

func (o *OrgClient) FetchTree(ctx context.Context) ([]orgtree.TreeNode, error) {
	var env envelope[[]orgtree.TreeNode]
	if err := o.c.Get(ctx, o.base, url.Values{"format": {"tree"}}, &env); err != nil {
		return nil, errors.Wrap(err, "fetch tree")
	}
	if err := env.check(); err != nil {
		return nil, errors.Wrap(err, "fetch tree")
	}
	if env.Data == nil {
		env.Data = []orgtree.TreeNode{}
	}
	return env.Data, nil
}

func (o *OrgClient) ListFlat(ctx context.Context) ([]orgtree.Node, error) {
	var env envelope[[]orgtree.Node]
	if err := o.c.Get(ctx, o.base, url.Values{"format": {"flat"}}, &env); err != nil {
		return nil, errors.Wrap(err, "list flat")
	}
	if err := env.check(); err != nil {
		return nil, errors.Wrap(err, "list flat")
	}
	return env.Data, nil
}

// Reorder persists one sibling group; parentID nil is the root group.
func (o *OrgClient) Reorder(ctx context.Context, parentID *int64, ids []int64) error {
	var env envelope[any]
	if err := o.c.Post(ctx, o.base+"/reorder", ReorderRequest{ParentID: parentID, OrgIDs: ids}, &env); err != nil {
		return errors.Wrap(err, "reorder")
	}
	if err := env.check(); err != nil {
		return errors.Wrap(err, "reorder")
	}
	return nil
}

func (o *OrgClient) Move(ctx context.Context, nodeID int64, newParentID *int64) error {
	var env envelope[any]
	path := o.base + "/" + strconv.FormatInt(nodeID, 10) + "/move"
	if err := o.c.Post(ctx, path, MoveRequest{NewParentID: newParentID}, &env); err != nil {
		return errors.Wrap(err, "move")
	}
	if err := env.check(); err != nil {
		return errors.Wrap(err, "move")
	}
	return nil
}

func (o *OrgClient) Create(ctx context.Context, in CreateRequest) (orgtree.Node, error) {
	var env envelope[orgtree.Node]
	if err := o.c.Post(ctx, o.base, in, &env); err != nil {
		return orgtree.Node{}, errors.Wrap(err, "create")
	}
	if err := env.check(); err != nil {
		return orgtree.Node{}, errors.Wrap(err, "create")
	}
	return env.Data, nil
}

func (o *OrgClient) Stats(ctx context.Context) (orgtree.Stats, error) {
	var env envelope[orgtree.Stats]
	if err := o.c.Get(ctx, o.base+"/stats", nil, &env); err != nil {
		return orgtree.Stats{}, errors.Wrap(err, "stats")
	}
	if err := env.check(); err != nil {
		return orgtree.Stats{}, errors.Wrap(err, "stats")
	}
	return env.Data, nil
}

func (o *OrgClient) Types(ctx context.Context) ([]string, error) {
	var env envelope[[]string]
	if err := o.c.Get(ctx, o.base+"/types", nil, &env); err != nil {
		return nil, errors.Wrap(err, "types")
	}
	if err := env.check(); err != nil {
		return nil, errors.Wrap(err, "types")
	}
	return env.Data, nil
}

type Dashboard struct {
	Tree  []orgtree.TreeNode
	Stats orgtree.Stats
	Types []string
}

// LoadDashboard fetches tree, stats and types in parallel; the first failure
// cancels the others.
func (o *OrgClient) LoadDashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tree, err := o.FetchTree(gctx)
		d.Tree = tree
		return err
	})
	g.Go(func() error {
		stats, err := o.Stats(gctx)
		d.Stats = stats
		return err
	})
	g.Go(func() error {
		types, err := o.Types(gctx)
		d.Types = types
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}
