package datagate

import "strings"

// ActionTag identifies the CRUD operation flowing through the pipeline.
// The numeric values are part of the public contract: middlewares match on
// them and they are persisted in audit rows.
type ActionTag uint8

const (
	ActionCommit  ActionTag = 0
	ActionCreate  ActionTag = 1
	ActionRead    ActionTag = 2
	ActionUpdate  ActionTag = 4
	ActionDelete  ActionTag = 8
	ActionDiscard ActionTag = 16
	ActionQuery   ActionTag = 32
)

// ActionCreateOrUpdate is the composite tag used for upserts.
const ActionCreateOrUpdate = ActionCreate | ActionUpdate

const allActions = ActionCreate | ActionRead | ActionUpdate | ActionDelete | ActionDiscard | ActionQuery

var actionNames = []struct {
	tag  ActionTag
	name string
}{
	{ActionCreate, "Create"},
	{ActionRead, "Read"},
	{ActionUpdate, "Update"},
	{ActionDelete, "Delete"},
	{ActionDiscard, "Discard"},
	{ActionQuery, "Query"},
}

// Has reports whether the tag contains flag. Commit has no bit of its own,
// so only the exact Commit value has it.
func (a ActionTag) Has(flag ActionTag) bool {
	if flag == ActionCommit {
		return a == ActionCommit
	}
	return a&flag == flag
}

// IsCommit reports whether the tag is the commit marker.
func (a ActionTag) IsCommit() bool {
	return a == ActionCommit
}

// IsMutating reports whether the tag creates, updates or deletes data.
func (a ActionTag) IsMutating() bool {
	return a&(ActionCreate|ActionUpdate|ActionDelete) != 0
}

// Valid reports whether the tag only carries known bits.
func (a ActionTag) Valid() bool {
	return a&^allActions == 0
}

// String renders the tag as "Create|Update". Unknown bits are ignored.
func (a ActionTag) String() string {
	if a == ActionCommit {
		return "Commit"
	}
	parts := make([]string, 0, 2)
	for _, n := range actionNames {
		if a&n.tag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}
