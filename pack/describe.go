package pack

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gertd/go-pluralize"
	"github.com/zond/satchel/structs"
)

var plural = pluralize.NewClient()

// Card counts a word: no swords, 1 sword, 2 swords.
func Card(count int, word string) string {
	if count == 0 {
		return fmt.Sprintf("no %s", plural.Plural(word))
	}
	return plural.Pluralize(word, count, true)
}

// Enumerate joins elements like an English list.
func Enumerate(elements ...string) string {
	switch len(elements) {
	case 0:
		return ""
	case 1:
		return elements[0]
	case 2:
		return fmt.Sprintf("%s and %s", elements[0], elements[1])
	default:
		return fmt.Sprintf("%s, and %s", strings.Join(elements[:len(elements)-1], ", "), elements[len(elements)-1])
	}
}

// DescribeView summarizes a slot view in one line, for console output and
// log messages.
func DescribeView(slots []structs.Stack) string {
	totals := map[string]int{}
	kinds := []string{}
	occupied := 0
	for _, slot := range slots {
		if slot.IsEmpty() {
			continue
		}
		occupied++
		if _, seen := totals[slot.Kind]; !seen {
			kinds = append(kinds, slot.Kind)
		}
		totals[slot.Kind] += int(slot.Count)
	}
	if occupied == 0 {
		return fmt.Sprintf("empty (%s)", Card(len(slots), "slot"))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, Card(totals[kind], kind))
	}
	return fmt.Sprintf("%s in %d of %d slots", Enumerate(parts...), occupied, len(slots))
}

// DescribeHoldings summarizes items by kind.
func DescribeHoldings(items map[string]*structs.Item) string {
	if len(items) == 0 {
		return "nothing"
	}
	totals := map[string]int{}
	kinds := []string{}
	for _, item := range items {
		if _, seen := totals[item.Kind]; !seen {
			kinds = append(kinds, item.Kind)
		}
		totals[item.Kind] += int(item.Count)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, Card(totals[kind], kind))
	}
	return Enumerate(parts...)
}
