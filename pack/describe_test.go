package pack

import (
	"testing"

	"github.com/zond/satchel/structs"
)

func TestCard(t *testing.T) {
	tests := []struct {
		count    int
		word     string
		expected string
	}{
		{0, "sword", "no swords"},
		{1, "sword", "1 sword"},
		{2, "sword", "2 swords"},
		{3, "knife", "3 knives"},
		{0, "sheep", "no sheep"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := Card(tt.count, tt.word); got != tt.expected {
				t.Errorf("Card(%d, %q) = %q, want %q", tt.count, tt.word, got, tt.expected)
			}
		})
	}
}

func TestEnumerate(t *testing.T) {
	tests := []struct {
		name     string
		elements []string
		expected string
	}{
		{"none", nil, ""},
		{"single", []string{"sword"}, "sword"},
		{"pair", []string{"sword", "shield"}, "sword and shield"},
		{"triple", []string{"sword", "shield", "helmet"}, "sword, shield, and helmet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Enumerate(tt.elements...); got != tt.expected {
				t.Errorf("Enumerate(%v) = %q, want %q", tt.elements, got, tt.expected)
			}
		})
	}
}

func TestDescribeView(t *testing.T) {
	empty := make([]structs.Stack, 27)
	if got, want := DescribeView(empty), "empty (27 slots)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	slots := make([]structs.Stack, 9)
	slots[0] = structs.Stack{Kind: "stone", Count: 3}
	slots[3] = structs.Stack{Kind: "stone", Count: 2}
	slots[5] = structs.Stack{Kind: "axe", Count: 1}
	if got, want := DescribeView(slots), "1 axe and 5 stones in 3 of 9 slots"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDescribeHoldings(t *testing.T) {
	if got, want := DescribeHoldings(nil), "nothing"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	items := map[string]*structs.Item{}
	for _, def := range []struct {
		kind string
		name string
	}{
		{"satchel", "First"},
		{"satchel", "Second"},
		{"crate", "Third"},
	} {
		item, err := structs.MakeItem(def.kind, def.name, 1)
		if err != nil {
			t.Fatal(err)
		}
		items[item.Id] = item
	}
	if got, want := DescribeHoldings(items), "1 crate and 2 satchels"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
