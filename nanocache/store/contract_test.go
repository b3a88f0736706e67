package store_test

import (
	"path/filepath"
	"testing"

	"github.com/arthur-debert/nanocache/nanocache/store"
	"github.com/arthur-debert/nanocache/testutil"
	"github.com/arthur-debert/nanocache/types"
)

func TestJSONBackendContract(t *testing.T) {
	testutil.BackendContract(t, func(t *testing.T) types.Backend {
		s, err := store.New(filepath.Join(t.TempDir(), "nanocache.json"))
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
