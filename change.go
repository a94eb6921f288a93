package datagate

import (
	"fmt"
	"reflect"
)

// Entity is any persisted model value, usually a pointer to a bun model.
type Entity any

// Modeler lets an entity choose the model name used in permission contexts.
// Without it the reflected type name is used.
type Modeler interface {
	ModelName() string
}

// Keyed entities expose a primary key for audit records.
type Keyed interface {
	EntityKey() string
}

// ChangeType is derived from which side of a change item is present.
type ChangeType uint8

const (
	ChangeNone ChangeType = iota
	ChangeCreate
	ChangeUpdate
	ChangeDelete
)

func (c ChangeType) String() string {
	switch c {
	case ChangeCreate:
		return "Create"
	case ChangeUpdate:
		return "Update"
	case ChangeDelete:
		return "Delete"
	default:
		return "NoChange"
	}
}

// ChangeItem is an immutable before/after pair for one entity.
type ChangeItem struct {
	old Entity
	new Entity
}

// NewChangeItem pairs the old and new state of an entity. When both are
// present they must share the same runtime type.
func NewChangeItem(old, new Entity) (ChangeItem, error) {
	old, new = present(old), present(new)
	if old != nil && new != nil {
		ot, nt := reflect.TypeOf(old), reflect.TypeOf(new)
		if ot != nt {
			return ChangeItem{}, fmt.Errorf("%w: %s vs %s", ErrModelMismatch, ot, nt)
		}
	}
	return ChangeItem{old: old, new: new}, nil
}

// MustChangeItem is NewChangeItem that panics on a model mismatch.
func MustChangeItem(old, new Entity) ChangeItem {
	item, err := NewChangeItem(old, new)
	if err != nil {
		panic(err)
	}
	return item
}

// Old returns the state before the change, nil for creations.
func (c ChangeItem) Old() Entity { return c.old }

// New returns the state after the change, nil for deletions.
func (c ChangeItem) New() Entity { return c.new }

// Entity returns the new state when present, else the old one.
func (c ChangeItem) Entity() Entity {
	if c.new != nil {
		return c.new
	}
	return c.old
}

// ChangeType classifies the item.
func (c ChangeItem) ChangeType() ChangeType {
	switch {
	case c.old == nil && c.new == nil:
		return ChangeNone
	case c.old == nil:
		return ChangeCreate
	case c.new == nil:
		return ChangeDelete
	default:
		return ChangeUpdate
	}
}

// ModelName returns the model name of the carried entity, "" when empty.
func (c ChangeItem) ModelName() string {
	return ModelNameOf(c.Entity())
}

// Key returns the entity key when the entity implements Keyed.
func (c ChangeItem) Key() string {
	if k, ok := c.Entity().(Keyed); ok {
		return k.EntityKey()
	}
	return ""
}

// ModelNameOf resolves the model name of an entity.
func ModelNameOf(e Entity) string {
	if e == nil {
		return ""
	}
	if m, ok := e.(Modeler); ok {
		return m.ModelName()
	}
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t.Name()
}

func present(e Entity) Entity {
	if isAbsent(e) {
		return nil
	}
	return e
}

func isAbsent(e Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// ChangeSet is the list of items affected by one action.
type ChangeSet []ChangeItem

// Empty reports whether the set carries no entity.
func (cs ChangeSet) Empty() bool {
	for _, c := range cs {
		if c.ChangeType() != ChangeNone {
			return false
		}
	}
	return true
}

// Models returns the distinct model names in first-seen order.
func (cs ChangeSet) Models() []string {
	seen := make(map[string]bool, len(cs))
	models := make([]string, 0, len(cs))
	for _, c := range cs {
		name := c.ModelName()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		models = append(models, name)
	}
	return models
}

// Created builds a change set of creations.
func Created(entities ...Entity) ChangeSet {
	cs := make(ChangeSet, 0, len(entities))
	for _, e := range entities {
		cs = append(cs, ChangeItem{new: present(e)})
	}
	return cs
}

// Deleted builds a change set of deletions.
func Deleted(entities ...Entity) ChangeSet {
	cs := make(ChangeSet, 0, len(entities))
	for _, e := range entities {
		cs = append(cs, ChangeItem{old: present(e)})
	}
	return cs
}

// Updated builds a single-item change set for an update.
func Updated(old, new Entity) (ChangeSet, error) {
	item, err := NewChangeItem(old, new)
	if err != nil {
		return nil, err
	}
	return ChangeSet{item}, nil
}
