// Package integration runs the whole container feature against a real
// vault on disk.
//
// # Testing Principles
//
// All interactions go through the same API the admin tool uses: the factory
// for provisioning, storage for delivery, and the session registry for
// opening and mutating containers. Direct storage reads are only used to
// verify that those actions stuck.
//
// # Test Structure
//
// RunAll runs through a comprehensive happy path covering as much of the
// feature as possible. The holders and items created along the way form a
// coherent little world: a witch minting satchels for two customers, who
// pack them, mislay them, and hand them around.
package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zond/satchel/pack"
	"github.com/zond/satchel/structs"
)

// RunAll runs all integration tests in sequence on a single vault.
// Returns nil on success, or an error describing what failed.
func RunAll(tv *TestVault) error {
	ctx := context.Background()

	// === Test 1: Texture catalog and minting ===
	fmt.Println("Testing texture import and minting...")

	texture := []byte("\x89PNG witch hat over patched leather")
	if err := tv.Store.Textures().Import(ctx, "witch", texture); err != nil {
		return fmt.Errorf("importing texture: %w", err)
	}

	aliceSatchel, err := pack.Mint(ctx, tv.Store, "Witch's Satchel", "witch", 27)
	if err != nil {
		return fmt.Errorf("minting alice's satchel: %w", err)
	}
	if blob, found := pack.Texture(aliceSatchel); !found {
		return fmt.Errorf("minted satchel carries no texture")
	} else if !bytes.Equal(blob, texture) {
		return fmt.Errorf("minted satchel carries the wrong texture: %q", blob)
	}
	identity, err := pack.ReadIdentity(aliceSatchel)
	if err != nil {
		return fmt.Errorf("reading identity: %w", err)
	}
	if identity.Name != "Witch's Satchel" || identity.VisualKey != "witch" || identity.Capacity != 27 {
		return fmt.Errorf("wrong identity: %+v", identity)
	}

	// An unknown visual key mints untextured rather than failing.
	bobSatchel, err := pack.Mint(ctx, tv.Store, "Plain Satchel", "plain", 9)
	if err != nil {
		return fmt.Errorf("minting bob's satchel: %w", err)
	}
	if _, found := pack.Texture(bobSatchel); found {
		return fmt.Errorf("plain satchel unexpectedly textured")
	}

	if _, err := pack.Mint(ctx, tv.Store, "Crooked Satchel", "witch", 13); !errors.Is(err, pack.ErrInvalidCapacity) {
		return fmt.Errorf("capacity 13 minted: %v", err)
	}

	mints, err := tv.Store.Mints(ctx)
	if err != nil {
		return fmt.Errorf("listing mints: %w", err)
	}
	if len(mints) != 2 {
		return fmt.Errorf("got %d mints, want 2", len(mints))
	}
	for _, mint := range mints {
		if mint.Recipient != "" {
			return fmt.Errorf("mint %q has recipient %q before delivery", mint.ItemId, mint.Recipient)
		}
	}

	fmt.Println("  Texture import and minting: OK")

	// === Test 2: Delivery and tray overflow ===
	fmt.Println("Testing delivery and tray overflow...")

	tv.Store.Config().SetTrayRoom(2)

	if kept, err := tv.Store.Deliver(ctx, "alice", aliceSatchel, tv.Store.Config().GetTrayRoom()); err != nil {
		return fmt.Errorf("delivering to alice: %w", err)
	} else if !kept {
		return fmt.Errorf("alice's empty tray overflowed")
	}

	crowbar, err := structs.MakeItem("tool", "Crowbar", 1)
	if err != nil {
		return fmt.Errorf("making crowbar: %w", err)
	}
	lantern, err := structs.MakeItem("tool", "Lantern", 1)
	if err != nil {
		return fmt.Errorf("making lantern: %w", err)
	}
	for _, item := range []*structs.Item{crowbar, lantern} {
		if kept, err := tv.Store.Deliver(ctx, "bob", item, tv.Store.Config().GetTrayRoom()); err != nil {
			return fmt.Errorf("delivering %q to bob: %w", item.Name, err)
		} else if !kept {
			return fmt.Errorf("bob's tray overflowed early at %q", item.Name)
		}
	}
	if kept, err := tv.Store.Deliver(ctx, "bob", bobSatchel, tv.Store.Config().GetTrayRoom()); err != nil {
		return fmt.Errorf("delivering satchel to bob: %w", err)
	} else if kept {
		return fmt.Errorf("bob's full tray kept the satchel")
	}

	// Dropped at his feet, but minted for him and safe in the vault.
	if _, err := tv.Store.LoadItem(ctx, bobSatchel.Id); err != nil {
		return fmt.Errorf("dropped satchel not in vault: %w", err)
	}
	mints, err = tv.Store.Mints(ctx)
	if err != nil {
		return fmt.Errorf("listing mints after delivery: %w", err)
	}
	for _, mint := range mints {
		want := map[string]string{aliceSatchel.Id: "alice", bobSatchel.Id: "bob"}[mint.ItemId]
		if mint.Recipient != want {
			return fmt.Errorf("mint %q has recipient %q, want %q", mint.ItemId, mint.Recipient, want)
		}
	}

	// Bob stashes the lantern and picks the satchel up.
	if err := tv.Store.DropHolding(ctx, "bob", lantern.Id); err != nil {
		return fmt.Errorf("dropping lantern: %w", err)
	}
	if err := tv.Store.SetHolding(ctx, "bob", bobSatchel.Id); err != nil {
		return fmt.Errorf("picking satchel up: %w", err)
	}
	if count, err := tv.Store.HoldingCount(ctx, "bob"); err != nil {
		return fmt.Errorf("counting bob's tray: %w", err)
	} else if count != 2 {
		return fmt.Errorf("bob holds %d items, want 2", count)
	}

	fmt.Println("  Delivery and tray overflow: OK")

	// === Test 3: Open, pack, close ===
	fmt.Println("Testing open, pack and close...")

	view, err := tv.Reg.Open(ctx, "alice", aliceSatchel)
	if err != nil {
		return fmt.Errorf("opening alice's satchel: %w", err)
	}
	if len(view) != 27 {
		return fmt.Errorf("view has %d slots, want 27", len(view))
	}
	for index, slot := range view {
		if !slot.IsEmpty() {
			return fmt.Errorf("fresh satchel has %q in slot %d", slot.Kind, index)
		}
	}

	if err := tv.Reg.Mutate(ctx, "alice", 0, structs.Stack{Kind: "rose", Count: 12}); err != nil {
		return fmt.Errorf("placing roses: %w", err)
	}
	if err := tv.Reg.Mutate(ctx, "alice", 13, structs.Stack{Kind: "newt_eye", Count: 3}); err != nil {
		return fmt.Errorf("placing newt eyes: %w", err)
	}
	displaced, err := tv.Reg.Swap(ctx, "alice", 0, structs.Stack{Kind: "toadstool", Count: 4})
	if err != nil {
		return fmt.Errorf("swapping toadstools in: %w", err)
	}
	if displaced.Kind != "rose" || displaced.Count != 12 {
		return fmt.Errorf("swap displaced %q x%d, want rose x12", displaced.Kind, displaced.Count)
	}
	if err := tv.Reg.MutateAll(ctx, "alice", map[int]structs.Stack{
		1: displaced,
		2: {Kind: "candle", Count: 7},
	}); err != nil {
		return fmt.Errorf("packing the displaced roses: %w", err)
	}

	if warning, err := tv.Reg.Close(ctx, "alice"); err != nil {
		return fmt.Errorf("closing: %w", err)
	} else if warning != nil {
		return fmt.Errorf("closing warned: %v", warning)
	}
	if tv.Reg.IsSessionOpen("alice") {
		return fmt.Errorf("session still open after close")
	}

	reloaded, err := tv.Store.LoadItem(ctx, aliceSatchel.Id)
	if err != nil {
		return fmt.Errorf("reloading satchel: %w", err)
	}
	slots, err := pack.DecodeContent(reloaded)
	if err != nil {
		return fmt.Errorf("decoding reloaded content: %w", err)
	}
	for index, want := range map[int]structs.Stack{
		0:  {Kind: "toadstool", Count: 4},
		1:  {Kind: "rose", Count: 12},
		2:  {Kind: "candle", Count: 7},
		13: {Kind: "newt_eye", Count: 3},
	} {
		if slots[index].Kind != want.Kind || slots[index].Count != want.Count {
			return fmt.Errorf("slot %d holds %q x%d, want %q x%d", index, slots[index].Kind, slots[index].Count, want.Kind, want.Count)
		}
	}
	if summary := pack.DescribeView(slots); !strings.Contains(summary, "4 of 27 slots") {
		return fmt.Errorf("summary doesn't count 4 occupied slots: %q", summary)
	}

	fmt.Println("  Open, pack and close: OK")

	// === Test 4: Replace on reopen ===
	fmt.Println("Testing replace on reopen...")

	if _, err := tv.Reg.Open(ctx, "alice", reloaded); err != nil {
		return fmt.Errorf("reopening: %w", err)
	}
	if err := tv.Reg.Mutate(ctx, "alice", 5, structs.Stack{Kind: "bat_wing", Count: 2}); err != nil {
		return fmt.Errorf("placing bat wings: %w", err)
	}
	// A second open abandons the first session without flushing it.
	view, err = tv.Reg.Open(ctx, "alice", reloaded)
	if err != nil {
		return fmt.Errorf("opening over the stale session: %w", err)
	}
	if !view[5].IsEmpty() {
		return fmt.Errorf("abandoned bat wings survived into the new view")
	}
	if warning, err := tv.Reg.Close(ctx, "alice"); err != nil || warning != nil {
		return fmt.Errorf("closing replacement session: %v, %v", warning, err)
	}

	fmt.Println("  Replace on reopen: OK")

	// === Test 5: Recursion rejection ===
	fmt.Println("Testing recursion rejection...")

	if _, err := tv.Reg.Open(ctx, "alice", reloaded); err != nil {
		return fmt.Errorf("opening for recursion test: %w", err)
	}
	bobStack := bobSatchel.Stack()
	if !pack.IsContainerStack(bobStack) {
		return fmt.Errorf("satchel stack not recognized as a container")
	}
	if err := tv.Reg.Mutate(ctx, "alice", 6, bobStack); !errors.Is(err, pack.ErrRecursionRejected) {
		return fmt.Errorf("satchel went inside a satchel: %v", err)
	}
	if err := pack.GuardHandSwap(ctx, tv.Reg, "alice", bobStack); !errors.Is(err, pack.ErrRecursionRejected) {
		return fmt.Errorf("hand swap smuggled a satchel in: %v", err)
	}
	if err := tv.Reg.Mutate(ctx, "alice", 99, structs.Stack{Kind: "rose", Count: 1}); !errors.Is(err, pack.ErrIndexOutOfRange) {
		return fmt.Errorf("slot 99 accepted: %v", err)
	}
	current, err := tv.Reg.View("alice")
	if err != nil {
		return fmt.Errorf("viewing after rejections: %w", err)
	}
	if !current[6].IsEmpty() {
		return fmt.Errorf("rejected mutation landed in slot 6")
	}
	if warning, err := tv.Reg.Close(ctx, "alice"); err != nil || warning != nil {
		return fmt.Errorf("closing recursion session: %v, %v", warning, err)
	}

	fmt.Println("  Recursion rejection: OK")

	// === Test 6: Abort ===
	fmt.Println("Testing abort...")

	if _, err := tv.Reg.Open(ctx, "alice", reloaded); err != nil {
		return fmt.Errorf("opening for abort test: %w", err)
	}
	if err := tv.Reg.Mutate(ctx, "alice", 7, structs.Stack{Kind: "pearl", Count: 1}); err != nil {
		return fmt.Errorf("placing pearl: %w", err)
	}
	tv.Reg.Abort(ctx, "alice")
	if tv.Reg.IsSessionOpen("alice") {
		return fmt.Errorf("session still open after abort")
	}
	tv.Reg.Abort(ctx, "alice")

	reloaded, err = tv.Store.LoadItem(ctx, aliceSatchel.Id)
	if err != nil {
		return fmt.Errorf("reloading after abort: %w", err)
	}
	slots, err = pack.DecodeContent(reloaded)
	if err != nil {
		return fmt.Errorf("decoding after abort: %w", err)
	}
	if !slots[7].IsEmpty() {
		return fmt.Errorf("aborted pearl got flushed")
	}

	fmt.Println("  Abort: OK")

	// === Test 7: Restart durability ===
	fmt.Println("Testing restart durability...")

	if err := tv.Restart(); err != nil {
		return fmt.Errorf("restarting vault: %w", err)
	}
	reloaded, err = tv.Store.LoadItem(ctx, aliceSatchel.Id)
	if err != nil {
		return fmt.Errorf("satchel lost across restart: %w", err)
	}
	slots, err = pack.DecodeContent(reloaded)
	if err != nil {
		return fmt.Errorf("decoding across restart: %w", err)
	}
	if slots[0].Kind != "toadstool" {
		return fmt.Errorf("slot 0 holds %q across restart, want toadstool", slots[0].Kind)
	}
	if mints, err = tv.Store.Mints(ctx); err != nil {
		return fmt.Errorf("listing mints across restart: %w", err)
	} else if len(mints) != 2 {
		return fmt.Errorf("got %d mints across restart, want 2", len(mints))
	}
	if count, err := tv.Store.HoldingCount(ctx, "bob"); err != nil {
		return fmt.Errorf("counting bob's tray across restart: %w", err)
	} else if count != 2 {
		return fmt.Errorf("bob holds %d items across restart, want 2", count)
	}
	if info, err := os.Stat(filepath.Join(tv.tmpDir, "audit.log")); err != nil {
		return fmt.Errorf("audit log missing: %w", err)
	} else if info.Size() == 0 {
		return fmt.Errorf("audit log empty")
	}

	// The fresh registry can run a full session against the restarted vault.
	if _, err := tv.Reg.Open(ctx, "alice", reloaded); err != nil {
		return fmt.Errorf("opening against restarted vault: %w", err)
	}
	if warning, err := tv.Reg.Close(ctx, "alice"); err != nil || warning != nil {
		return fmt.Errorf("closing against restarted vault: %v, %v", warning, err)
	}

	fmt.Println("  Restart durability: OK")

	// === Test 8: Handing items around ===
	fmt.Println("Testing moves and renames...")

	if err := tv.Store.MoveHolding(ctx, aliceSatchel.Id, "alice", "bob"); err != nil {
		return fmt.Errorf("moving satchel to bob: %w", err)
	}
	if err := tv.Store.MoveHolding(ctx, aliceSatchel.Id, "alice", "bob"); err == nil {
		return fmt.Errorf("moved a satchel alice no longer holds")
	}
	holdings, err := tv.Store.Holdings(ctx, "bob")
	if err != nil {
		return fmt.Errorf("loading bob's holdings: %w", err)
	}
	if _, found := holdings[aliceSatchel.Id]; !found {
		return fmt.Errorf("bob didn't receive the satchel")
	}
	if err := tv.Store.UpdateItem(ctx, aliceSatchel.Id, func(item *structs.Item) (*structs.Item, error) {
		item.Name = "Witch's Hand-Me-Down"
		return item, nil
	}); err != nil {
		return fmt.Errorf("renaming satchel: %w", err)
	}
	if item, err := tv.Store.LoadItem(ctx, aliceSatchel.Id); err != nil {
		return fmt.Errorf("reloading renamed satchel: %w", err)
	} else if item.Name != "Witch's Hand-Me-Down" {
		return fmt.Errorf("satchel named %q, want the hand-me-down", item.Name)
	}

	fmt.Println("  Moves and renames: OK")

	return nil
}
