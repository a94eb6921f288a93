package datagate

import (
	"github.com/emirpasic/gods/lists/doublylinkedlist"
	"github.com/google/uuid"
)

// Position selects where an action is inserted in a prologue or epilogue list.
type Position uint8

const (
	// PositionDefault appends after every Early and Default entry and before
	// every Late entry.
	PositionDefault Position = iota
	// PositionEarly inserts before every existing entry.
	PositionEarly
	// PositionLate appends after every existing entry.
	PositionLate
)

func (p Position) String() string {
	switch p {
	case PositionEarly:
		return "early"
	case PositionLate:
		return "late"
	default:
		return "default"
	}
}

// ActionID identifies one registered action so it can be removed later.
type ActionID uuid.UUID

func newActionID() ActionID {
	return ActionID(uuid.New())
}

func (id ActionID) String() string {
	return uuid.UUID(id).String()
}

type listEntry struct {
	id       ActionID
	position Position
	owner    Middleware
	action   Action
}

// actionList keeps entries in execution order. It is not safe for
// concurrent use; the Configurator guards it.
type actionList struct {
	entries *doublylinkedlist.List
	early   int
	normal  int
}

func newActionList() *actionList {
	return &actionList{entries: doublylinkedlist.New()}
}

func (l *actionList) insert(position Position, e *listEntry) {
	e.position = position
	switch position {
	case PositionEarly:
		l.entries.Prepend(e)
		l.early++
	case PositionLate:
		l.entries.Add(e)
	default:
		idx := l.early + l.normal
		if idx >= l.entries.Size() {
			l.entries.Add(e)
		} else {
			l.entries.Insert(idx, e)
		}
		l.normal++
	}
}

// removeWhere drops every entry matching fn and reports whether any was removed.
func (l *actionList) removeWhere(fn func(*listEntry) bool) bool {
	removed := false
	for i := l.entries.Size() - 1; i >= 0; i-- {
		v, _ := l.entries.Get(i)
		e := v.(*listEntry)
		if !fn(e) {
			continue
		}
		l.entries.Remove(i)
		switch e.position {
		case PositionEarly:
			l.early--
		case PositionDefault:
			l.normal--
		}
		removed = true
	}
	return removed
}

func (l *actionList) removeID(id ActionID) bool {
	return l.removeWhere(func(e *listEntry) bool { return e.id == id })
}

func (l *actionList) removeOwner(owner Middleware) bool {
	return l.removeWhere(func(e *listEntry) bool { return e.owner != nil && e.owner == owner })
}

func (l *actionList) hasOwner(owner Middleware) bool {
	found := false
	l.entries.Each(func(_ int, v interface{}) {
		if v.(*listEntry).owner == owner {
			found = true
		}
	})
	return found
}

// snapshot copies the actions in stored order. Owners implementing
// Canceler are carried along.
func (l *actionList) snapshot() []hook {
	hooks := make([]hook, 0, l.entries.Size())
	it := l.entries.Iterator()
	for it.Next() {
		e := it.Value().(*listEntry)
		h := hook{action: e.action}
		if c, ok := e.owner.(Canceler); ok {
			h.canceler = c
		}
		hooks = append(hooks, h)
	}
	return hooks
}

func (l *actionList) len() int {
	return l.entries.Size()
}
