package reorder

import (
	"fmt"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
)

type Phase int

const (
	Idle Phase = iota
	Dragging
	Hover
)

func (p Phase) String() string {
	switch p {
	case Dragging:
		return "dragging"
	case Hover:
		return "hover"
	default:
		return "idle"
	}
}

// State is the tagged drag state. Fields other than Phase are meaningful
// only in the phases that set them.
type State struct {
	Phase     Phase
	DraggedID int64
	// DraggedGroup is the dragged node's sibling group, captured on drag start.
	DraggedGroup orgtree.ParentKey
	TargetID     int64
	Valid        bool
	Position     orgtree.Position
}

func (s State) String() string {
	switch s.Phase {
	case Dragging:
		return fmt.Sprintf("dragging{%d}", s.DraggedID)
	case Hover:
		return fmt.Sprintf("hover{%d over %d valid=%t %s}", s.DraggedID, s.TargetID, s.Valid, s.Position)
	default:
		return "idle"
	}
}

// Box is the target row's vertical extent in the same units as the pointer.
type Box struct {
	Top    float64
	Height float64
}

// PositionIn maps a pointer to insert-before (upper half) or insert-after.
func (b Box) PositionIn(pointerY float64) orgtree.Position {
	if pointerY < b.Top+b.Height/2 {
		return orgtree.Before
	}
	return orgtree.After
}

type HoverResult struct {
	Valid    bool
	Position orgtree.Position
}

type Outcome int

const (
	// NoOp means nothing changed and nothing was sent.
	NoOp Outcome = iota
	// Saved means the server accepted the change and no request in the
	// same overlapping window failed.
	Saved
	// Pending means newer requests are still in flight; the last one to
	// resolve settles the window.
	Pending
	// Reconciled means a request in the window failed and the model was
	// reloaded from the server.
	Reconciled
)

func (o Outcome) String() string {
	switch o {
	case Saved:
		return "saved"
	case Pending:
		return "pending"
	case Reconciled:
		return "reconciled"
	default:
		return "noop"
	}
}

type DropResult struct {
	Outcome  Outcome
	Seq      uint64
	ParentID *int64
	Order    []int64
}
