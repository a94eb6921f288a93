package datagate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCheckerBasic tests Can, IsDenied and the any/all helpers
func TestCheckerBasic(t *testing.T) {
	cred := (&Credential{ID: "u", Username: "alice"}).
		AddContext("reports", PermRead|PermExport, PermDelete)
	checker := NewChecker(cred, nil)

	assert.Same(t, cred, checker.Actor())
	assert.True(t, checker.Can("reports", PermRead))
	assert.False(t, checker.Can("reports", PermDelete))
	assert.False(t, checker.Can("reports", PermLock), "undecided denies")

	assert.True(t, checker.IsDenied("reports", PermDelete))
	assert.False(t, checker.IsDenied("reports", PermLock))

	assert.True(t, checker.CanAny("reports", PermLock, PermExport))
	assert.False(t, checker.CanAny("reports", PermLock, PermDelete))
	assert.True(t, checker.CanAll("reports", PermRead, PermExport))
	assert.False(t, checker.CanAll("reports", PermRead, PermLock))
	assert.False(t, checker.CanAll("reports"))
}

// TestCheckerModel tests checks routed through the registry
func TestCheckerModel(t *testing.T) {
	registry := NewRegistry()
	registry.Model("Invoice").
		On(ActionDelete, "billing.invoice.delete").
		Permission(ActionDelete, PermDelete|PermSpecial)

	cred := (&Credential{ID: "u"}).
		AddContext("Create:Invoice", PermCreate, PermNone).
		AddContext("billing.invoice.delete", PermSpecial, PermNone)
	checker := NewChecker(cred, registry)

	assert.True(t, checker.CanModel(ActionCreate, "Invoice"))
	assert.True(t, checker.CanModel(ActionDelete, "Invoice"))
	assert.Equal(t, DecisionUndecided, checker.DecideModel(ActionUpdate, "Invoice"))
}

// TestCheckerIsEmpty tests detection of actors without permission data
func TestCheckerIsEmpty(t *testing.T) {
	assert.True(t, NewChecker(nil, nil).IsEmpty())
	assert.True(t, NewChecker(&Credential{ID: "u"}, nil).IsEmpty())
	assert.False(t, NewChecker(&Credential{ID: "u", Granted: PermRead}, nil).IsEmpty())
	assert.False(t, NewChecker((&Credential{ID: "u"}).Join(&Group{ID: "g"}), nil).IsEmpty())
	assert.False(t, NewChecker((&Group{ID: "g"}).AddContext("x", PermRead, PermNone), nil).IsEmpty())
}
