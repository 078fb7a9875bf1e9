package app

import (
	"errors"
	"testing"

	"github.com/newspaper/mailing/internal/config"
)

func TestOpenStore_MemoryDriver(t *testing.T) {
	cfg := testConfig(t, config.StoreMemory)
	if _, err := OpenStore(t.Context(), cfg); !errors.Is(err, ErrNoPersistentStore) {
		t.Fatalf("OpenStore = %v, want ErrNoPersistentStore", err)
	}
}

func TestOpenStore_SeesSchedulerState(t *testing.T) {
	cfg := testConfig(t, config.StoreSQLite)
	cfg.Gateway.Enabled = false

	rt, err := build(t.Context(), cfg, discard())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := rt.app.Start(); err != nil {
		t.Fatal(err)
	}
	if err := rt.app.Stop(); err != nil {
		t.Fatal(err)
	}

	store, err := OpenStore(t.Context(), cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	states, err := store.List(t.Context())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(states) != 2 {
		t.Errorf("persisted jobs = %+v, want 2", states)
	}
}
