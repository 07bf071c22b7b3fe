// Package events holds the in-process events published after org tree writes.
package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	ChangeReordered = "reordered"
	ChangeMoved     = "moved"
	ChangeCreated   = "created"
)

// OrgChangedV1 carries what every tree write has in common. Subscribers that
// only need to know "the tree changed" can subscribe to this type alone.
type OrgChangedV1 struct {
	EventID         uuid.UUID `json:"event_id"`
	RequestID       string    `json:"request_id"`
	TransactionTime time.Time `json:"transaction_time"`
	ChangeType      string    `json:"change_type"`
}

type OrgUnitsReordered struct {
	OrgChangedV1
	ParentID *int64  `json:"parent_id"`
	OrgIDs   []int64 `json:"org_ids"`
}

type OrgUnitMoved struct {
	OrgChangedV1
	OrgID       int64  `json:"org_id"`
	OldParentID *int64 `json:"old_parent_id"`
	NewParentID *int64 `json:"new_parent_id"`
}

type OrgUnitCreated struct {
	OrgChangedV1
	OrgID    int64  `json:"org_id"`
	OrgType  string `json:"org_type"`
	ParentID *int64 `json:"parent_id"`
}

func NewOrgChanged(changeType, requestID string) OrgChangedV1 {
	return OrgChangedV1{
		EventID:         uuid.New(),
		RequestID:       requestID,
		TransactionTime: time.Now().UTC(),
		ChangeType:      changeType,
	}
}

// TreeChange is implemented by every event above.
type TreeChange interface {
	Changed() OrgChangedV1
}

func (e OrgChangedV1) Changed() OrgChangedV1 { return e }
