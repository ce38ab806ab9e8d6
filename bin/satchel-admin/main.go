// satchel-admin administers a satchel vault: minting and delivering
// container items, inspecting their contents, and maintaining the texture
// catalog and mint ledger. With -console it opens an interactive inspector
// that can also drive container sessions against the vault.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/buildkite/shellwords"
	"github.com/rodaine/table"
	"github.com/zond/satchel"
	"github.com/zond/satchel/pack"
	"github.com/zond/satchel/storage"
	"github.com/zond/satchel/structs"
	"golang.org/x/term"

	goccy "github.com/goccy/go-json"
)

func main() {
	dir := flag.String("dir", filepath.Join(os.Getenv("HOME"), ".satchel"), "Where the vault, ledger and audit log live.")
	console := flag.Bool("console", false, "Open an interactive console instead of running one command.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  mint <name> <visualKey> <capacity>          Mint a new container\n")
		fmt.Fprintf(os.Stderr, "  give <holder> <name> <visualKey> <capacity> Mint and deliver a container\n")
		fmt.Fprintf(os.Stderr, "  inspect <itemID>                            Show a container's identity and contents\n")
		fmt.Fprintf(os.Stderr, "  dump <itemID>                               Dump a container's contents as JSON\n")
		fmt.Fprintf(os.Stderr, "  list <holder>                               List a holder's items\n")
		fmt.Fprintf(os.Stderr, "  move <itemID> <from> <to>                   Reassign an item between holders\n")
		fmt.Fprintf(os.Stderr, "  rename <itemID> <name>                      Rename a vaulted item\n")
		fmt.Fprintf(os.Stderr, "  ledger                                      List the mint ledger\n")
		fmt.Fprintf(os.Stderr, "  textures                                    List the texture catalog\n")
		fmt.Fprintf(os.Stderr, "  import <visualKey> <file>                   Import a texture blob\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx := context.Background()
	if err := os.MkdirAll(*dir, 0700); err != nil {
		log.Fatal(err)
	}
	store, err := storage.New(ctx, *dir)
	if err != nil {
		log.Fatal(err)
	}

	if *console {
		err = runConsole(ctx, store)
	} else {
		args := flag.Args()
		if len(args) < 1 {
			flag.Usage()
			os.Exit(1)
		}
		err = runCommand(ctx, store, os.Stdout, args)
	}
	closeErr := store.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if closeErr != nil {
		log.Fatal(closeErr)
	}
}

func runCommand(ctx context.Context, store *storage.Storage, out io.Writer, args []string) error {
	switch args[0] {
	case "mint":
		return mintCmd(ctx, store, out, args[1:])
	case "give":
		return giveCmd(ctx, store, out, args[1:])
	case "inspect":
		return inspectCmd(ctx, store, out, args[1:])
	case "dump":
		return dumpCmd(ctx, store, out, args[1:])
	case "list":
		return listCmd(ctx, store, out, args[1:])
	case "move":
		return moveCmd(ctx, store, out, args[1:])
	case "rename":
		return renameCmd(ctx, store, out, args[1:])
	case "ledger":
		return ledgerCmd(ctx, store, out)
	case "textures":
		return texturesCmd(ctx, store, out)
	case "import", "texture-import":
		return importCmd(ctx, store, out, args[1:])
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func mintCmd(ctx context.Context, store *storage.Storage, out io.Writer, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: mint <name> <visualKey> <capacity>")
	}
	capacity, err := strconv.Atoi(args[2])
	if err != nil {
		return satchel.WithStack(err)
	}
	item, err := pack.Mint(ctx, store, args[0], args[1], capacity)
	if err != nil {
		return satchel.WithStack(err)
	}
	if err := store.SaveItem(ctx, item); err != nil {
		return satchel.WithStack(err)
	}
	fmt.Fprintf(out, "Minted %q (%s)\n", item.Name, item.Id)
	return nil
}

func giveCmd(ctx context.Context, store *storage.Storage, out io.Writer, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: give <holder> <name> <visualKey> <capacity>")
	}
	holder := args[0]
	capacity, err := strconv.Atoi(args[3])
	if err != nil {
		return satchel.WithStack(err)
	}
	item, err := pack.Mint(ctx, store, args[1], args[2], capacity)
	if err != nil {
		return satchel.WithStack(err)
	}
	kept, err := store.Deliver(ctx, holder, item, store.Config().GetTrayRoom())
	if err != nil {
		return satchel.WithStack(err)
	}
	if kept {
		fmt.Fprintf(out, "Gave %q (%s) to %s\n", item.Name, item.Id, holder)
	} else {
		fmt.Fprintf(out, "%s's tray is full; %q (%s) dropped at their feet\n", holder, item.Name, item.Id)
	}
	holdings, err := store.Holdings(ctx, holder)
	if err != nil {
		return satchel.WithStack(err)
	}
	fmt.Fprintf(out, "%s now carries %s\n", holder, pack.DescribeHoldings(holdings))
	return nil
}

func inspectCmd(ctx context.Context, store *storage.Storage, out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: inspect <itemID>")
	}
	item, err := store.LoadItem(ctx, args[0])
	if err != nil {
		return satchel.WithStack(err)
	}
	identity, err := pack.ReadIdentity(item)
	if err != nil {
		return satchel.WithStack(err)
	}
	slots, err := pack.DecodeContent(item)
	if err != nil {
		return satchel.WithStack(err)
	}
	fmt.Fprintf(out, "%s (%s): visual key %q, %d slots\n", identity.Name, item.Id, identity.VisualKey, identity.Capacity)
	fmt.Fprintf(out, "Contents: %s\n", pack.DescribeView(slots))
	printSlots(out, slots)
	return nil
}

func printSlots(out io.Writer, slots []structs.Stack) {
	occupied := false
	t := table.New("Slot", "Kind", "Count", "Meta").WithWriter(out)
	for index, slot := range slots {
		if slot.IsEmpty() {
			continue
		}
		occupied = true
		t.AddRow(index, slot.Kind, slot.Count, fmt.Sprintf("%d bytes", len(slot.Meta)))
	}
	if occupied {
		t.Print()
	}
}

func dumpCmd(ctx context.Context, store *storage.Storage, out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dump <itemID>")
	}
	item, err := store.LoadItem(ctx, args[0])
	if err != nil {
		return satchel.WithStack(err)
	}
	slots, err := pack.DecodeContent(item)
	if err != nil {
		return satchel.WithStack(err)
	}
	b, err := goccy.MarshalIndent(slots, "", "  ")
	if err != nil {
		return satchel.WithStack(err)
	}
	fmt.Fprintf(out, "%s\n", b)
	return nil
}

func listCmd(ctx context.Context, store *storage.Storage, out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: list <holder>")
	}
	holdings, err := store.Holdings(ctx, args[0])
	if err != nil {
		return satchel.WithStack(err)
	}
	if len(holdings) == 0 {
		fmt.Fprintf(out, "%s carries nothing\n", args[0])
		return nil
	}
	ids := make([]string, 0, len(holdings))
	for id := range holdings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	t := table.New("ID", "Kind", "Name", "Count").WithWriter(out)
	for _, id := range ids {
		item := holdings[id]
		t.AddRow(item.Id, item.Kind, item.Name, item.Count)
	}
	t.Print()
	fmt.Fprintf(out, "%s carries %s\n", args[0], pack.DescribeHoldings(holdings))
	return nil
}

func moveCmd(ctx context.Context, store *storage.Storage, out io.Writer, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: move <itemID> <from> <to>")
	}
	if err := store.MoveHolding(ctx, args[0], args[1], args[2]); err != nil {
		return satchel.WithStack(err)
	}
	fmt.Fprintf(out, "Moved %s from %s to %s\n", args[0], args[1], args[2])
	return nil
}

func renameCmd(ctx context.Context, store *storage.Storage, out io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: rename <itemID> <name>")
	}
	if err := store.UpdateItem(ctx, args[0], func(item *structs.Item) (*structs.Item, error) {
		if item == nil {
			return nil, os.ErrNotExist
		}
		item.Name = args[1]
		return item, nil
	}); err != nil {
		return satchel.WithStack(err)
	}
	fmt.Fprintf(out, "Renamed %s to %q\n", args[0], args[1])
	return nil
}

func ledgerCmd(ctx context.Context, store *storage.Storage, out io.Writer) error {
	mints, err := store.Mints(ctx)
	if err != nil {
		return satchel.WithStack(err)
	}
	if len(mints) == 0 {
		fmt.Fprintln(out, "No mints recorded.")
		return nil
	}
	t := table.New("ID", "Name", "Visual Key", "Capacity", "Recipient", "Minted At").WithWriter(out)
	for _, mint := range mints {
		t.AddRow(mint.ItemId, mint.Name, mint.VisualKey, mint.Capacity, mint.Recipient, mint.MintedAt)
	}
	t.Print()
	return nil
}

func texturesCmd(ctx context.Context, store *storage.Storage, out io.Writer) error {
	keys, err := store.Textures().Keys(ctx)
	if err != nil {
		return satchel.WithStack(err)
	}
	if len(keys) == 0 {
		fmt.Fprintln(out, "No textures imported.")
		return nil
	}
	for _, key := range keys {
		fmt.Fprintln(out, key)
	}
	return nil
}

func importCmd(ctx context.Context, store *storage.Storage, out io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: import <visualKey> <file>")
	}
	blob, err := os.ReadFile(args[1])
	if err != nil {
		return satchel.WithStack(err)
	}
	if err := store.Textures().Import(ctx, args[0], blob); err != nil {
		return satchel.WithStack(err)
	}
	fmt.Fprintf(out, "Imported %d bytes as %q\n", len(blob), args[0])
	return nil
}

type console struct {
	ctx   context.Context
	term  *term.Terminal
	store *storage.Storage
	reg   *pack.Registry
	done  bool
}

type command struct {
	names map[string]bool
	f     func(*console, []string) error
}

type commands []command

func (c commands) attempt(cons *console, parts []string) (bool, error) {
	for _, cmd := range c {
		if cmd.names[parts[0]] {
			if err := cmd.f(cons, parts); err != nil {
				return true, satchel.WithStack(err)
			}
			return true, nil
		}
	}
	return false, nil
}

func m(s ...string) map[string]bool {
	res := map[string]bool{}
	for _, p := range s {
		res[p] = true
	}
	return res
}

func (c *console) commands() commands {
	return []command{
		{
			names: m("help", "?"),
			f: func(c *console, parts []string) error {
				fmt.Fprintln(c.term, "mint <name> <visualKey> <capacity>")
				fmt.Fprintln(c.term, "give <holder> <name> <visualKey> <capacity>")
				fmt.Fprintln(c.term, "inspect <itemID>")
				fmt.Fprintln(c.term, "dump <itemID>")
				fmt.Fprintln(c.term, "list <holder>")
				fmt.Fprintln(c.term, "move <itemID> <from> <to>")
				fmt.Fprintln(c.term, "rename <itemID> <name>")
				fmt.Fprintln(c.term, "ledger")
				fmt.Fprintln(c.term, "textures")
				fmt.Fprintln(c.term, "import <visualKey> <file>")
				fmt.Fprintln(c.term, "open <actor> <itemID>")
				fmt.Fprintln(c.term, "put <actor> <slot> <kind> <count>")
				fmt.Fprintln(c.term, "view <actor>")
				fmt.Fprintln(c.term, "close <actor>")
				fmt.Fprintln(c.term, "abort <actor>")
				fmt.Fprintln(c.term, "sessions")
				fmt.Fprintln(c.term, "quit")
				return nil
			},
		},
		{
			names: m("mint", "give", "inspect", "dump", "list", "move", "rename", "ledger", "textures", "import"),
			f: func(c *console, parts []string) error {
				return runCommand(c.ctx, c.store, c.term, parts)
			},
		},
		{
			names: m("open"),
			f: func(c *console, parts []string) error {
				if len(parts) != 3 {
					fmt.Fprintln(c.term, "usage: open <actor> <itemID>")
					return nil
				}
				item, err := c.store.LoadItem(c.ctx, parts[2])
				if err != nil {
					return satchel.WithStack(err)
				}
				view, err := c.reg.Open(c.ctx, parts[1], item)
				if err != nil {
					return satchel.WithStack(err)
				}
				fmt.Fprintf(c.term, "Opened %q for %s: %s\n", item.Name, parts[1], pack.DescribeView(view))
				return nil
			},
		},
		{
			names: m("put"),
			f: func(c *console, parts []string) error {
				if len(parts) != 5 {
					fmt.Fprintln(c.term, "usage: put <actor> <slot> <kind> <count>")
					return nil
				}
				slot, err := strconv.Atoi(parts[2])
				if err != nil {
					return satchel.WithStack(err)
				}
				count, err := strconv.ParseUint(parts[4], 10, 32)
				if err != nil {
					return satchel.WithStack(err)
				}
				stack := structs.Stack{Kind: parts[3], Count: uint32(count)}
				if err := pack.GuardPlace(c.ctx, c.reg, parts[1], slot, stack); err != nil {
					return satchel.WithStack(err)
				}
				fmt.Fprintf(c.term, "Put %s into slot %d\n", pack.Card(int(count), parts[3]), slot)
				return nil
			},
		},
		{
			names: m("view"),
			f: func(c *console, parts []string) error {
				if len(parts) != 2 {
					fmt.Fprintln(c.term, "usage: view <actor>")
					return nil
				}
				view, err := c.reg.View(parts[1])
				if err != nil {
					return satchel.WithStack(err)
				}
				fmt.Fprintln(c.term, pack.DescribeView(view))
				printSlots(c.term, view)
				return nil
			},
		},
		{
			names: m("close"),
			f: func(c *console, parts []string) error {
				if len(parts) != 2 {
					fmt.Fprintln(c.term, "usage: close <actor>")
					return nil
				}
				warning, err := c.reg.Close(c.ctx, parts[1])
				if err != nil {
					return satchel.WithStack(err)
				}
				if warning != nil {
					fmt.Fprintf(c.term, "Closed with warning: %v\n", warning)
				} else {
					fmt.Fprintln(c.term, "Closed")
				}
				return nil
			},
		},
		{
			names: m("abort"),
			f: func(c *console, parts []string) error {
				if len(parts) != 2 {
					fmt.Fprintln(c.term, "usage: abort <actor>")
					return nil
				}
				c.reg.Abort(c.ctx, parts[1])
				fmt.Fprintln(c.term, "Aborted")
				return nil
			},
		},
		{
			names: m("sessions"),
			f: func(c *console, parts []string) error {
				infos := c.reg.Sessions()
				if len(infos) == 0 {
					fmt.Fprintln(c.term, "No open sessions.")
					return nil
				}
				t := table.New("Actor", "Item", "Name", "Open For").WithWriter(c.term)
				for _, info := range infos {
					t.AddRow(info.Actor, info.Item.Id, info.Item.Name, time.Since(info.OpenedAt).Round(time.Second))
				}
				t.Print()
				return nil
			},
		},
		{
			names: m("quit", "exit"),
			f: func(c *console, parts []string) error {
				c.done = true
				return nil
			},
		},
	}
}

func runConsole(ctx context.Context, store *storage.Storage) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("the console needs a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return satchel.WithStack(err)
	}
	defer term.Restore(fd, oldState)

	cons := &console{
		ctx: ctx,
		term: term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, "satchel> "),
		store: store,
		reg:   pack.NewRegistry(store),
	}
	fmt.Fprintln(cons.term, "satchel admin console; try \"help\"")
	cmds := cons.commands()
	for !cons.done {
		line, err := cons.term.ReadLine()
		if err == io.EOF {
			break
		} else if err != nil {
			return satchel.WithStack(err)
		}
		parts, err := shellwords.SplitPosix(line)
		if err != nil {
			fmt.Fprintf(cons.term, "Error: %v\n", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}
		found, err := cmds.attempt(cons, parts)
		if err != nil {
			fmt.Fprintf(cons.term, "Error: %v\n", err)
		} else if !found {
			fmt.Fprintf(cons.term, "Unknown command %q; try \"help\"\n", parts[0])
		}
	}
	return nil
}
