package datagate

// Checker provides permission checks for one actor. It is typically built
// once per request or job and passed to code that branches on permissions.
type Checker struct {
	actor    PermissionHolder
	registry *Registry
}

// NewChecker creates a Checker for actor. registry may be nil, in which case
// the default context ids are used.
func NewChecker(actor PermissionHolder, registry *Registry) *Checker {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Checker{actor: actor, registry: registry}
}

// Actor returns the holder this checker is for.
func (c *Checker) Actor() PermissionHolder {
	return c.actor
}

// Decide returns the raw tri-state decision.
func (c *Checker) Decide(contextID string, perm Permission) Decision {
	return CheckAccess(c.actor, contextID, perm)
}

// Can checks a permission in a context, denying when undecided.
//
// Example:
//
//	if checker.Can("Invoice.export", datagate.PermExport) {
//	    // show export button
//	}
func (c *Checker) Can(contextID string, perm Permission) bool {
	return c.Decide(contextID, perm).Allowed()
}

// IsDenied reports an explicit revocation. Undecided is not denied.
func (c *Checker) IsDenied(contextID string, perm Permission) bool {
	return c.Decide(contextID, perm) == DecisionRevoked
}

// CanAny checks whether any of the permissions is granted.
func (c *Checker) CanAny(contextID string, perms ...Permission) bool {
	for _, p := range perms {
		if c.Can(contextID, p) {
			return true
		}
	}
	return false
}

// CanAll checks whether every permission is granted.
func (c *Checker) CanAll(contextID string, perms ...Permission) bool {
	for _, p := range perms {
		if !c.Can(contextID, p) {
			return false
		}
	}
	return len(perms) > 0
}

// CanModel checks the permission the registry maps to tag on model.
//
// Example:
//
//	if checker.CanModel(datagate.ActionDelete, "Invoice") {
//	    // allow deletion
//	}
func (c *Checker) CanModel(tag ActionTag, model string) bool {
	return c.Can(c.registry.ContextFor(tag, model), c.registry.PermissionFor(tag, model))
}

// DecideModel returns the raw decision for tag on model.
func (c *Checker) DecideModel(tag ActionTag, model string) Decision {
	return c.Decide(c.registry.ContextFor(tag, model), c.registry.PermissionFor(tag, model))
}

// IsEmpty returns true if the actor carries no permission data at all.
func (c *Checker) IsEmpty() bool {
	if isAbsent(c.actor) {
		return true
	}
	if c.actor.DefaultGranted() != PermNone || c.actor.DefaultRevoked() != PermNone || len(c.actor.Descriptors()) > 0 {
		return false
	}
	if m, ok := c.actor.(MemberHolder); ok {
		return len(m.Memberships()) == 0
	}
	return true
}
