package pack

import (
	"context"

	"github.com/zond/satchel"
	"github.com/zond/satchel/structs"
)

// The host surfaces a handful of distinct gestures that can move stacks
// into an open view: direct placement, shift-transfer, hotbar swaps, drag
// spreads, and the hand swap. Each gets an adapter here so host event
// handlers stay one-liners, but they all funnel into the registry's guard.

// ResolveActivation picks which held item a use-gesture opens. The main
// hand wins when both hands hold containers; the off hand is only
// consulted when the main hand holds no container.
func ResolveActivation(main *structs.Item, off *structs.Item) (*structs.Item, bool) {
	if IsContainer(main) {
		return main, true
	}
	if IsContainer(off) {
		return off, true
	}
	return nil, false
}

// Deposit is one stack aimed at one slot of an open view.
type Deposit struct {
	Slot  int
	Stack structs.Stack
}

// GuardPlace applies a direct cursor placement into one slot.
func GuardPlace(ctx context.Context, reg *Registry, actor string, slot int, proposed structs.Stack) error {
	return satchel.WithStack(reg.Mutate(ctx, actor, slot, proposed))
}

// GuardBulkTransfer applies a shift-transfer depositing one or more stacks.
// If any proposed stack is rejected the whole transfer is, and the view is
// unchanged.
func GuardBulkTransfer(ctx context.Context, reg *Registry, actor string, deposits []Deposit) error {
	changes := make(map[int]structs.Stack, len(deposits))
	for _, deposit := range deposits {
		changes[deposit.Slot] = deposit.Stack
	}
	return satchel.WithStack(reg.MutateAll(ctx, actor, changes))
}

// GuardQuickSwap applies a number-key swap against one slot, returning the
// stack the swap displaced.
func GuardQuickSwap(ctx context.Context, reg *Registry, actor string, slot int, incoming structs.Stack) (structs.Stack, error) {
	displaced, err := reg.Swap(ctx, actor, slot, incoming)
	return displaced, satchel.WithStack(err)
}

// GuardDrag applies a drag-release spreading a held stack across slots.
// Any rejected slot rejects the whole drag.
func GuardDrag(ctx context.Context, reg *Registry, actor string, spread map[int]structs.Stack) error {
	return satchel.WithStack(reg.MutateAll(ctx, actor, spread))
}

// GuardHandSwap vets the explicit hand-swap gesture, which bypasses the
// view entirely: while the actor has a session open, swapping a container
// into the active hand is blocked so it can't be smuggled into the view by
// a follow-up gesture the registry never sees.
func GuardHandSwap(ctx context.Context, reg *Registry, actor string, incoming structs.Stack) error {
	if reg.IsSessionOpen(actor) && IsContainerStack(incoming) {
		return satchel.WithStack(ErrRecursionRejected)
	}
	return nil
}
