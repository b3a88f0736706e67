package sqlstore_test

import (
	"testing"

	"github.com/arthur-debert/nanocache/nanocache/sqlstore"
	"github.com/arthur-debert/nanocache/testutil"
	"github.com/arthur-debert/nanocache/types"
)

func TestSQLiteBackendContract(t *testing.T) {
	testutil.BackendContract(t, func(t *testing.T) types.Backend {
		s, err := sqlstore.New(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
