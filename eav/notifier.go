package eav

import (
	"context"

	"github.com/andrfilipenk/new-sub004/eav/types"
)

// Notifier observes entity lifecycle events. The manager works with zero
// notifiers registered. Before hooks run synchronously and may veto the
// operation by returning an error; After hooks run synchronously after
// the storage transaction committed and must not mutate the entity.
type Notifier interface {
	BeforeSave(ctx context.Context, e *types.Entity) error
	AfterSave(ctx context.Context, e *types.Entity)
	BeforeDelete(ctx context.Context, e *types.Entity) error
	AfterDelete(ctx context.Context, e *types.Entity)
	AfterLoad(ctx context.Context, e *types.Entity)
}

// NopNotifier implements Notifier with no-ops, for embedding when a
// collaborator only cares about a subset of events.
type NopNotifier struct{}

func (NopNotifier) BeforeSave(context.Context, *types.Entity) error   { return nil }
func (NopNotifier) AfterSave(context.Context, *types.Entity)          {}
func (NopNotifier) BeforeDelete(context.Context, *types.Entity) error { return nil }
func (NopNotifier) AfterDelete(context.Context, *types.Entity)        {}
func (NopNotifier) AfterLoad(context.Context, *types.Entity)          {}
