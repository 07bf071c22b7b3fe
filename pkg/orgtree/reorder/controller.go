// Package reorder is a headless drag-and-drop controller for the org tree.
// It owns an ordered model of every sibling group, applies drops
// optimistically, persists them and reloads from the server when a save fails.
package reorder

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
	"github.com/iota-uz/orgadmin/modules/org/presentation/templates/components/orgui"
	"github.com/iota-uz/orgadmin/pkg/orgtree/toast"
)

var (
	ErrNotHandle      = errors.New("drag must start on the drag handle")
	ErrDragInProgress = errors.New("another drag is already in progress")
)

type Backend interface {
	FetchTree(ctx context.Context) ([]orgtree.TreeNode, error)
	Reorder(ctx context.Context, parentID *int64, ids []int64) error
	Move(ctx context.Context, nodeID int64, newParentID *int64) error
}

// View receives the full tree markup after every model or state change.
type View interface {
	Replace(markup string) error
}

type ViewFunc func(markup string) error

func (f ViewFunc) Replace(markup string) error { return f(markup) }

type Options struct {
	Backend  Backend
	View     View
	Notifier toast.Notifier
	Logger   *logrus.Logger
}

type Controller struct {
	backend Backend
	view    View
	notify  toast.Notifier
	log     *logrus.Entry

	mu          sync.Mutex
	index       *orgtree.Index
	lastFetched []orgtree.TreeNode
	expanded    map[int64]bool
	state       State
	// seq is the last issued save; inflight counts unresolved saves. A
	// window closes when inflight drops to zero.
	seq      uint64
	inflight int
	failed   bool
	// reloadOwed is set when a fetch landed inside an open window.
	reloadOwed bool
}

func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	view := opts.View
	if view == nil {
		view = ViewFunc(func(string) error { return nil })
	}
	notify := opts.Notifier
	if notify == nil {
		notify = toast.NewLogNotifier(logger)
	}
	return &Controller{
		backend:  opts.Backend,
		view:     view,
		notify:   notify,
		log:      logger.WithField("component", "org-tree-reorder"),
		index:    orgtree.NewIndex(nil),
		expanded: map[int64]bool{},
	}
}

// Load replaces the model with the server tree.
func (c *Controller) Load(ctx context.Context) error {
	err := c.fetchAndApply(ctx, func(forest []orgtree.TreeNode, err error) {
		if err == nil {
			c.replaceLocked(forest)
		}
	})
	if err != nil {
		c.log.WithError(err).Error("failed to load org tree")
		c.notify.ShowToast("Failed to load organizations", toast.Error)
		return err
	}
	return nil
}

// fetchAndApply fetches the server tree and hands it to apply under the lock.
// A save that started and finished during the fetch makes the result stale,
// so it fetches again. A save still in flight owns the window; the reload
// is then left to that window's settle.
func (c *Controller) fetchAndApply(ctx context.Context, apply func([]orgtree.TreeNode, error)) error {
	for {
		c.mu.Lock()
		startSeq := c.seq
		c.mu.Unlock()

		forest, err := c.backend.FetchTree(ctx)

		c.mu.Lock()
		if c.inflight > 0 {
			c.reloadOwed = true
			c.mu.Unlock()
			return err
		}
		if c.seq != startSeq && ctx.Err() == nil {
			c.mu.Unlock()
			continue
		}
		apply(forest, err)
		c.mu.Unlock()
		return err
	}
}

func (c *Controller) replaceLocked(forest []orgtree.TreeNode) {
	c.lastFetched = orgtree.Clone(forest)
	c.index = orgtree.IndexForest(forest)
	c.state = State{}
	c.renderLocked()
}

func (c *Controller) renderLocked() {
	opts := orgui.RenderOptions{Expanded: c.expanded}
	switch c.state.Phase {
	case Dragging:
		opts.Marks.DraggingID = c.state.DraggedID
	case Hover:
		opts.Marks.DraggingID = c.state.DraggedID
		if c.state.Valid {
			opts.Marks.OverID = c.state.TargetID
			opts.Marks.OverPos = c.state.Position
		}
	}
	var buf bytes.Buffer
	if err := orgui.Tree(c.index.Forest(), opts).Render(context.Background(), &buf); err != nil {
		c.log.WithError(err).Error("failed to render org tree")
		return
	}
	if err := c.view.Replace(buf.String()); err != nil {
		c.log.WithError(err).Warn("view rejected org tree markup")
	}
}

// DragStart begins a drag. Only drags that originate on a node's handle
// are accepted, and only one drag may be active.
func (c *Controller) DragStart(nodeID int64, fromHandle bool) error {
	if !fromHandle {
		return ErrNotHandle
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase != Idle {
		return ErrDragInProgress
	}
	group, ok := c.index.Group(nodeID)
	if !ok {
		return orgtree.ErrNotFound
	}
	c.state = State{Phase: Dragging, DraggedID: nodeID, DraggedGroup: group}
	c.renderLocked()
	return nil
}

// DragOver evaluates a candidate target. Only siblings of the dragged node
// other than itself are valid.
func (c *Controller) DragOver(targetID int64, pointerY float64, box Box) HoverResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == Idle {
		return HoverResult{}
	}
	next := State{
		Phase:        Hover,
		DraggedID:    c.state.DraggedID,
		DraggedGroup: c.state.DraggedGroup,
		TargetID:     targetID,
	}
	if group, ok := c.index.Group(targetID); ok && targetID != next.DraggedID && group == next.DraggedGroup {
		next.Valid = true
		next.Position = box.PositionIn(pointerY)
	}
	changed := next != c.state
	c.state = next
	if changed {
		c.renderLocked()
	}
	return HoverResult{Valid: next.Valid, Position: next.Position}
}

// DragEnd cancels whatever drag is active.
func (c *Controller) DragEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == Idle {
		return
	}
	c.state = State{}
	c.renderLocked()
}

// Drop applies the hovered position. Invalid or self drops end the drag
// without touching the model or the network.
func (c *Controller) Drop(ctx context.Context) (DropResult, error) {
	c.mu.Lock()
	st := c.state
	c.state = State{}
	if st.Phase != Hover || !st.Valid || st.TargetID == st.DraggedID {
		if st.Phase != Idle {
			c.renderLocked()
		}
		c.mu.Unlock()
		return DropResult{Outcome: NoOp}, nil
	}

	current := c.index.Siblings(st.DraggedGroup)
	order, err := orgtree.MoveWithin(current, st.DraggedID, st.TargetID, st.Position)
	if err != nil || slices.Equal(order, current) {
		c.renderLocked()
		c.mu.Unlock()
		return DropResult{Outcome: NoOp}, err
	}
	if err := c.index.SetSiblings(st.DraggedGroup, order); err != nil {
		c.renderLocked()
		c.mu.Unlock()
		return DropResult{Outcome: NoOp}, err
	}
	seq := c.beginSaveLocked()
	c.renderLocked()
	c.mu.Unlock()

	parentID := st.DraggedGroup.Ptr()
	saveErr := c.backend.Reorder(ctx, parentID, order)
	if saveErr != nil {
		c.log.WithError(saveErr).WithField("seq", seq).Warn("failed to save sibling order")
	}
	outcome := c.settle(ctx, saveErr, "Order saved", "Failed to save order")
	return DropResult{Outcome: outcome, Seq: seq, ParentID: parentID, Order: order}, nil
}

// MoveInto reparents a node (nil = root). Moving a node into itself or its
// own subtree is rejected before anything is sent.
func (c *Controller) MoveInto(ctx context.Context, nodeID int64, newParentID *int64) (DropResult, error) {
	c.mu.Lock()
	if c.state.Phase != Idle {
		c.state = State{}
	}
	if group, ok := c.index.Group(nodeID); ok && group == orgtree.KeyOf(newParentID) {
		// already there; the server would keep the current position too
		c.renderLocked()
		c.mu.Unlock()
		return DropResult{Outcome: NoOp, ParentID: newParentID}, nil
	}
	if err := c.index.Move(nodeID, newParentID); err != nil {
		c.renderLocked()
		c.mu.Unlock()
		return DropResult{Outcome: NoOp}, err
	}
	if newParentID != nil {
		c.expanded[*newParentID] = true
	}
	seq := c.beginSaveLocked()
	c.renderLocked()
	c.mu.Unlock()

	saveErr := c.backend.Move(ctx, nodeID, newParentID)
	if saveErr != nil {
		c.log.WithError(saveErr).WithField("seq", seq).Warn("failed to move org unit")
	}
	outcome := c.settle(ctx, saveErr, "Organization moved", "Failed to move organization")
	return DropResult{Outcome: outcome, Seq: seq, ParentID: newParentID}, nil
}

func (c *Controller) beginSaveLocked() uint64 {
	c.seq++
	c.inflight++
	return c.seq
}

// settle records one save response. Only the response that closes the
// window touches the model or notifies.
func (c *Controller) settle(ctx context.Context, saveErr error, okMsg, failMsg string) Outcome {
	c.mu.Lock()
	c.inflight--
	if saveErr != nil {
		c.failed = true
	}
	if c.inflight > 0 {
		c.mu.Unlock()
		return Pending
	}
	failed, owed := c.failed, c.reloadOwed
	c.failed, c.reloadOwed = false, false
	c.mu.Unlock()

	if failed {
		c.notify.ShowToast(failMsg+"; reloading", toast.Error)
		c.reconcile(ctx)
		return Reconciled
	}
	c.notify.ShowToast(okMsg, toast.Success)
	if owed {
		// a fetch was skipped while this window was open
		c.reconcile(ctx)
	}
	return Saved
}

// reconcile discards optimistic state. If the reload itself fails the model
// falls back to the last tree the server returned.
func (c *Controller) reconcile(ctx context.Context) {
	_ = c.fetchAndApply(ctx, func(forest []orgtree.TreeNode, err error) {
		if err != nil {
			c.log.WithError(err).Error("failed to reload org tree")
			forest = c.lastFetched
		}
		c.replaceLocked(forest)
	})
}

// Toggle flips a node between expanded and collapsed.
func (c *Controller) Toggle(nodeID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	open, ok := c.expanded[nodeID]
	if !ok {
		open = c.index.Depth(nodeID) == 0
	}
	c.expanded[nodeID] = !open
	c.renderLocked()
}

// Snapshot returns a deep copy of the current model.
func (c *Controller) Snapshot() []orgtree.TreeNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return orgtree.Clone(c.index.Forest())
}

func (c *Controller) Siblings(parentID *int64) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Siblings(orgtree.KeyOf(parentID))
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
