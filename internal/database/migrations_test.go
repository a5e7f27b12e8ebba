package database

import (
	"slices"
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_webhooks.sql": {Data: []byte("SELECT 1")},
		"001_init.sql":     {Data: []byte("SELECT 1")},
		"003_swarms.sql":   {Data: []byte("SELECT 1")},
		"README.md":        {Data: []byte("notes")},
	}
	got, err := pendingMigrations(fsys, map[string]bool{"002_webhooks.sql": true})
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	want := []string{"001_init.sql", "003_swarms.sql"}
	if !slices.Equal(got, want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
}
