package integration

import (
	"testing"
)

func TestRunAll(t *testing.T) {
	tv, err := NewTestVault()
	if err != nil {
		t.Fatal(err)
	}
	defer tv.Close()
	if err := RunAll(tv); err != nil {
		t.Fatal(err)
	}
}
