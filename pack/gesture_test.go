package pack

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/zond/satchel/structs"
)

func TestResolveActivation(t *testing.T) {
	mainHand := testContainer(t, 9)
	offHand := testContainer(t, 9)
	stone := plainItem(t)

	tests := []struct {
		name string
		main *structs.Item
		off  *structs.Item
		want *structs.Item
		ok   bool
	}{
		{"both hands", mainHand, offHand, mainHand, true},
		{"main only", mainHand, nil, mainHand, true},
		{"off only", nil, offHand, offHand, true},
		{"main holds stone", stone, offHand, offHand, true},
		{"empty hands", nil, nil, nil, false},
		{"no containers", stone, stone, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveActivation(tt.main, tt.off)
			if got != tt.want || ok != tt.ok {
				t.Errorf("got %v/%v, want %v/%v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestGuardPlace(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	if _, err := reg.Open(ctx, "alice", testContainer(t, 9)); err != nil {
		t.Fatal(err)
	}
	if err := GuardPlace(ctx, reg, "alice", 0, structs.Stack{Kind: "stone", Count: 1}); err != nil {
		t.Fatal(err)
	}
	inner := testContainer(t, 9)
	if err := GuardPlace(ctx, reg, "alice", 1, inner.Stack()); !errors.Is(err, ErrRecursionRejected) {
		t.Errorf("got %v, want %v", err, ErrRecursionRejected)
	}
}

func TestGuardBulkTransfer(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	if _, err := reg.Open(ctx, "alice", testContainer(t, 9)); err != nil {
		t.Fatal(err)
	}
	if err := GuardBulkTransfer(ctx, reg, "alice", []Deposit{
		{Slot: 0, Stack: structs.Stack{Kind: "stone", Count: 3}},
		{Slot: 5, Stack: structs.Stack{Kind: "axe", Count: 1}},
	}); err != nil {
		t.Fatal(err)
	}
	view, err := reg.View("alice")
	if err != nil {
		t.Fatal(err)
	}
	if view[0].Kind != "stone" || view[5].Kind != "axe" {
		t.Errorf("transfer didn't land: %+v", view)
	}

	inner := testContainer(t, 9)
	if err := GuardBulkTransfer(ctx, reg, "alice", []Deposit{
		{Slot: 1, Stack: structs.Stack{Kind: "stone", Count: 1}},
		{Slot: 2, Stack: inner.Stack()},
	}); !errors.Is(err, ErrRecursionRejected) {
		t.Fatalf("got %v, want %v", err, ErrRecursionRejected)
	}
	if view, err = reg.View("alice"); err != nil {
		t.Fatal(err)
	}
	if !view[1].IsEmpty() || !view[2].IsEmpty() {
		t.Error("rejected transfer partially applied")
	}
}

func TestGuardQuickSwap(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	if _, err := reg.Open(ctx, "alice", testContainer(t, 9)); err != nil {
		t.Fatal(err)
	}
	first := structs.Stack{Kind: "stone", Count: 3}
	if err := GuardPlace(ctx, reg, "alice", 0, first); err != nil {
		t.Fatal(err)
	}
	displaced, err := GuardQuickSwap(ctx, reg, "alice", 0, structs.Stack{Kind: "axe", Count: 1})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(displaced, first, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("got %+v, want %+v: %v", displaced, first, diff)
	}
	inner := testContainer(t, 9)
	if _, err := GuardQuickSwap(ctx, reg, "alice", 0, inner.Stack()); !errors.Is(err, ErrRecursionRejected) {
		t.Errorf("got %v, want %v", err, ErrRecursionRejected)
	}
	view, err := reg.View("alice")
	if err != nil {
		t.Fatal(err)
	}
	if view[0].Kind != "axe" {
		t.Errorf("rejected swap changed slot: %+v", view[0])
	}
}

func TestGuardDrag(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	if _, err := reg.Open(ctx, "alice", testContainer(t, 9)); err != nil {
		t.Fatal(err)
	}
	if err := GuardDrag(ctx, reg, "alice", map[int]structs.Stack{
		0: {Kind: "stone", Count: 2},
		1: {Kind: "stone", Count: 2},
		2: {Kind: "stone", Count: 2},
	}); err != nil {
		t.Fatal(err)
	}
	inner := testContainer(t, 9)
	if err := GuardDrag(ctx, reg, "alice", map[int]structs.Stack{
		3: {Kind: "stone", Count: 1},
		4: inner.Stack(),
	}); !errors.Is(err, ErrRecursionRejected) {
		t.Fatalf("got %v, want %v", err, ErrRecursionRejected)
	}
	view, err := reg.View("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !view[3].IsEmpty() || !view[4].IsEmpty() {
		t.Error("rejected drag partially applied")
	}
	if err := GuardDrag(ctx, reg, "alice", map[int]structs.Stack{
		8: {Kind: "stone", Count: 1},
		9: {Kind: "stone", Count: 1},
	}); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("got %v, want %v", err, ErrIndexOutOfRange)
	}
}

func TestGuardHandSwap(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	inner := testContainer(t, 9)

	if err := GuardHandSwap(ctx, reg, "alice", inner.Stack()); err != nil {
		t.Errorf("got %v, want nil without a session", err)
	}
	if _, err := reg.Open(ctx, "alice", testContainer(t, 9)); err != nil {
		t.Fatal(err)
	}
	if err := GuardHandSwap(ctx, reg, "alice", structs.Stack{Kind: "stone", Count: 1}); err != nil {
		t.Errorf("got %v, want nil for a plain stack", err)
	}
	if err := GuardHandSwap(ctx, reg, "alice", inner.Stack()); !errors.Is(err, ErrRecursionRejected) {
		t.Errorf("got %v, want %v", err, ErrRecursionRejected)
	}
}
