package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/config"
	"github.com/hammermarket/auctiond/internal/store"

	// Import drivers so their init() functions register them.
	_ "github.com/hammermarket/auctiond/internal/store/memstore"
	_ "github.com/hammermarket/auctiond/internal/store/postgres"
)

// fakeStore satisfies store.Store without touching a database.
type fakeStore struct {
	store.Store
}

func fakeDriver(_ context.Context, _ config.DatabaseConfig, _ clock.Clock) (store.Store, error) {
	return fakeStore{}, nil
}

func TestOpen(t *testing.T) {
	// Register a test driver.
	store.Register("test-driver", fakeDriver)

	tests := []struct {
		name    string
		driver  string
		wantErr bool
	}{
		{
			name:    "registered driver succeeds",
			driver:  "test-driver",
			wantErr: false,
		},
		{
			name:    "unknown driver fails",
			driver:  "nonexistent",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DatabaseConfig{Driver: tt.driver}
			_, err := store.Open(context.Background(), cfg, clock.Real{})
			if (err != nil) != tt.wantErr {
				t.Errorf("Open(driver=%q) error = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
		})
	}
}

func TestRegister_BuiltinDrivers(t *testing.T) {
	// "memory" connects without external infrastructure.
	st, err := store.Open(context.Background(), config.DatabaseConfig{Driver: "memory"}, clock.Real{})
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	if err := st.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	// "postgres" is registered; with no database running it must fail with a
	// connection error, never an unknown-driver error.
	cfg := config.DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 1, SSLMode: "disable"}
	_, err = store.Open(context.Background(), cfg, clock.Real{})
	if err == nil {
		t.Fatal("expected error (no DB running), got nil")
	}
	if strings.Contains(err.Error(), "unknown store driver") {
		t.Errorf("expected connection error, got unknown driver error: %v", err)
	}
}
