package datagate

import (
	"fmt"
	"strings"
)

// Permission is a bit set of capabilities. Sets compose with | and are
// tested with Intersects or Contains.
type Permission uint32

const (
	PermNone    Permission = 0
	PermView    Permission = 1 << 0
	PermRead    Permission = 1 << 1
	PermCreate  Permission = 1 << 2
	PermUpdate  Permission = 1 << 3
	PermDelete  Permission = 1 << 4
	PermExport  Permission = 1 << 5
	PermLock    Permission = 1 << 6
	PermElevate Permission = 1 << 7
	PermSpecial Permission = 1 << 8

	PermNew  = PermCreate
	PermEdit = PermUpdate

	PermWrite     = PermCreate | PermUpdate | PermDelete
	PermReadWrite = PermView | PermRead | PermWrite
	PermAdmin     = PermReadWrite | PermExport | PermLock | PermSpecial
	PermAll       = PermAdmin | PermElevate
)

var permissionNames = []struct {
	perm Permission
	name string
}{
	{PermView, "view"},
	{PermRead, "read"},
	{PermCreate, "create"},
	{PermUpdate, "update"},
	{PermDelete, "delete"},
	{PermExport, "export"},
	{PermLock, "lock"},
	{PermElevate, "elevate"},
	{PermSpecial, "special"},
}

var permissionAliases = map[string]Permission{
	"none":      PermNone,
	"new":       PermNew,
	"edit":      PermEdit,
	"write":     PermWrite,
	"readwrite": PermReadWrite,
	"admin":     PermAdmin,
	"all":       PermAll,
	"*":         PermAll,
}

// Intersects reports whether p and other share at least one bit.
func (p Permission) Intersects(other Permission) bool {
	return p&other != 0
}

// Contains reports whether every bit of other is set in p.
func (p Permission) Contains(other Permission) bool {
	return p&other == other
}

// String renders the set as "read|create". PermNone renders as "none".
func (p Permission) String() string {
	if p == PermNone {
		return "none"
	}
	parts := make([]string, 0, len(permissionNames))
	for _, n := range permissionNames {
		if p&n.perm != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParsePermission parses "read|create", "write" or "all" into a set.
func ParsePermission(s string) (Permission, error) {
	var p Permission
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' || r == ' ' }) {
		part = strings.ToLower(part)
		if alias, ok := permissionAliases[part]; ok {
			p |= alias
			continue
		}
		found := false
		for _, n := range permissionNames {
			if n.name == part {
				p |= n.perm
				found = true
				break
			}
		}
		if !found {
			return PermNone, NewError(ErrValidation, fmt.Sprintf("unknown permission %q", part))
		}
	}
	return p, nil
}

// PermissionForAction maps an action tag to the permission it requires.
// Composite tags map to the union of their parts.
func PermissionForAction(tag ActionTag) Permission {
	var p Permission
	if tag&ActionCreate != 0 {
		p |= PermCreate
	}
	if tag&ActionUpdate != 0 {
		p |= PermUpdate
	}
	if tag&ActionDelete != 0 {
		p |= PermDelete
	}
	if tag&(ActionRead|ActionQuery) != 0 {
		p |= PermRead
	}
	return p
}
