// Package datagate wraps every create, read, update, delete and commit
// against a persistent store in an ordered chain of interceptable hooks.
//
// Cross-cutting concerns such as authorization, auditing, latency
// simulation, timing and logging are composed as middlewares. Each
// middleware contributes a prologue, run before the physical operation, and
// an epilogue, run after it. Either may abort the operation by returning a
// failed Status.
//
// # Core Concepts
//
// Action tag: a bit flag naming the operation underway (Create, Read,
// Update, Delete, Discard, Query, or Commit which is zero).
//
// Change set: the before/after pairs of entities affected by one action.
// Which side is present decides the change type.
//
// Result: the success/failure envelope returned by every operation. A
// failure carries one reason from a closed set and a message.
//
// Permission holder: a credential or group carrying default permission
// bits and contextual descriptors. Access is resolved most specific first:
// personal descriptors, then group descriptors in membership order, then
// the holder's own defaults.
//
// # Basic Usage
//
//	// 1. Map actions on models to permission contexts (at startup)
//	registry := datagate.NewRegistry()
//	registry.Model("Invoice").
//	    On(datagate.ActionDelete, "billing.invoice.delete").
//	    Permission(datagate.ActionDelete, datagate.PermDelete|datagate.PermSpecial)
//
//	// 2. Create the service and run migrations
//	service := datagate.NewService(db, registry, datagate.WithLogger(logger))
//	datagate.NewMigrationService(service).RunMigrations(ctx)
//
//	// 3. Compose the pipeline
//	broker := service.NewBroker()
//	cfg := datagate.NewConfigurator()
//	cfg.AttachAt(datagate.PositionEarly, service.NewAuthorization(broker))
//	cfg.AttachAt(datagate.PositionLate, service.NewAudit(broker))
//
//	// 4. Write through a transaction
//	factory := service.NewTxFactory(cfg.Runner())
//	tx := factory.NewTransaction()
//	defer tx.Close()
//	if res := tx.Insert(ctx, invoice); !res.Success() {
//	    return res.Err()
//	}
//	if res := tx.Commit(ctx); !res.Success() {
//	    return res.Err()
//	}
//
// # Ordering
//
// Early hooks run before every other hook, the most recently attached
// first. Default hooks run next in attach order, and Late hooks run last in
// attach order. The first failing hook stops the chain. Runners are
// snapshots: attaching or detaching later does not change a runner that was
// already built.
//
// # Elevation
//
// The AuthBroker keeps the authenticated identity and can temporarily act
// as another credential when the base identity is granted PermElevate in
// the elevation context:
//
//	broker.Authenticate(alice)
//	if res := broker.Elevate(ctx, "root", password); res.Success() {
//	    defer broker.RevokeElevation()
//	}
package datagate
