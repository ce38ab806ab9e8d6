package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/zond/satchel/storage"
	"github.com/zond/satchel/structs"

	goccy "github.com/goccy/go-json"
)

type data struct {
	Items    []structs.Item
	Holdings map[string][]string
	Textures map[string][]byte
}

func main() {
	dir := flag.String("dir", filepath.Join(os.Getenv("HOME"), ".satchel"), "Where the vault, ledger and audit log live.")
	dataPath := flag.String("data", "", "Path to load JSON from.")
	doRestore := flag.Bool("restore", false, "XOR 'backup': Whether to load data from the data path to the database dir.")
	doBackup := flag.Bool("backup", false, "XOR 'restore': Whether to load data from the database dir to the data path.")

	flag.Parse()

	if *dataPath == "" || (*doRestore == *doBackup) {
		flag.Usage()
		return
	}

	ctx := context.Background()

	store, err := storage.New(ctx, *dir)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if *doRestore {
		f, err := os.Open(*dataPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()

		d := &data{}
		if err := goccy.NewDecoder(f).Decode(d); err != nil {
			log.Fatalf("decoding data: %v", err)
		}

		for index := range d.Items {
			item := &d.Items[index]
			if err := store.SaveItem(ctx, item); err != nil {
				log.Fatalf("storing item %q: %v", item.Id, err)
			}
		}
		for holder, ids := range d.Holdings {
			for _, id := range ids {
				if err := store.SetHolding(ctx, holder, id); err != nil {
					log.Fatalf("storing holding %q/%q: %v", holder, id, err)
				}
			}
		}
		for visualKey, blob := range d.Textures {
			if err := store.Textures().Import(ctx, visualKey, blob); err != nil {
				log.Fatalf("storing texture %q: %v", visualKey, err)
			}
		}
	}
	if *doBackup {
		d := &data{
			Items:    []structs.Item{},
			Holdings: map[string][]string{},
			Textures: map[string][]byte{},
		}
		for item, err := range store.EachItem(ctx) {
			if err != nil {
				log.Fatalf("iterating items: %v", err)
			}
			d.Items = append(d.Items, *item)
		}
		sort.Slice(d.Items, func(i, j int) bool {
			return d.Items[i].Id < d.Items[j].Id
		})
		for holding, err := range store.AllHoldings(ctx) {
			if err != nil {
				log.Fatalf("iterating holdings: %v", err)
			}
			d.Holdings[holding.Holder] = append(d.Holdings[holding.Holder], holding.ItemId)
		}
		keys, err := store.Textures().Keys(ctx)
		if err != nil {
			log.Fatalf("listing textures: %v", err)
		}
		for _, visualKey := range keys {
			blob, err := store.Textures().Resolve(ctx, visualKey)
			if err != nil {
				log.Fatalf("loading texture %q: %v", visualKey, err)
			}
			d.Textures[visualKey] = blob
		}

		b, err := goccy.MarshalIndent(d, "", "  ")
		if err != nil {
			log.Fatalf("encoding data: %v", err)
		}

		if err := os.WriteFile(*dataPath, b, 0600); err != nil {
			log.Fatal(err)
		}
	}
}
