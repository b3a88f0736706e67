package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/nanocache/httpapi"
	"github.com/arthur-debert/nanocache/nanocache/sqlstore"
	"github.com/arthur-debert/nanocache/types"
	"github.com/google/go-cmp/cmp"
)

const testSeed = `
collections:
  categories:
    - key: electronics
      payload: {name: Electronics}
    - key: phones
      parent: electronics
      payload: {name: Phones}
    - key: laptops
      parent: electronics
      payload: {name: Laptops}
    - key: books
      payload: {name: Books}
  addresses:
    - key: home
      default: true
      payload: {name: Home, city: Lyon}
    - key: work
      payload: {name: Work, city: Lyon}
`

// isolate points every config and log location at temp dirs
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("NANOCACHE_CONFIG", "")
	return dir
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cli := NewCLI()
	var stdout, stderr bytes.Buffer
	cli.rootCmd.SetOut(&stdout)
	cli.rootCmd.SetErr(&stderr)
	cli.rootCmd.SetArgs(args)
	err := cli.Execute(context.Background())
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := run(t, args...)
	if err != nil {
		t.Fatalf("nanocache %s failed: %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return stdout
}

// seeded returns store flags for a seeded json store
func seeded(t *testing.T, backend string) []string {
	t.Helper()
	dir := isolate(t)
	seedPath := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(seedPath, []byte(testSeed), 0644); err != nil {
		t.Fatalf("failed to write seed: %v", err)
	}

	flags := []string{"--backend", backend, "--store", filepath.Join(dir, "shop."+backend)}
	out := mustRun(t, append(flags, "seed", seedPath)...)
	if want := "Seeded 2 addresses\nSeeded 4 categories\n"; out != want {
		t.Fatalf("seed output = %q, want %q", out, want)
	}
	return flags
}

type listedNode struct {
	ID       string        `json:"id"`
	ParentID string        `json:"parent_id"`
	Payload  types.Payload `json:"payload"`
	Children []listedNode  `json:"children"`
}

// idsByName lists a collection fully opened and maps names to ids
func idsByName(t *testing.T, flags []string, collection string) map[string]string {
	t.Helper()
	out := mustRun(t, append(flags, "-c", collection, "--format", "json", "tree", "--depth", "10")...)
	var doc struct {
		Entities []listedNode `json:"entities"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid json output: %v\n%s", err, out)
	}

	ids := make(map[string]string)
	var collect func(nodes []listedNode)
	collect = func(nodes []listedNode) {
		for _, n := range nodes {
			ids[n.Payload["name"].(string)] = n.ID
			collect(n.Children)
		}
	}
	collect(doc.Entities)
	return ids
}

func lines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		out = append(out, strings.SplitN(line, " [", 2)[0])
	}
	return out
}

func TestListAndTree(t *testing.T) {
	flags := seeded(t, "json")

	t.Run("list shows roots only", func(t *testing.T) {
		got := lines(mustRun(t, append(flags, "list")...))
		if diff := cmp.Diff([]string{"+ Electronics", "+ Books"}, got); diff != "" {
			t.Errorf("list mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("tree opens down to depth", func(t *testing.T) {
		got := lines(mustRun(t, append(flags, "tree", "--depth", "1")...))
		want := []string{"- Electronics", "  + Phones", "  + Laptops", "- Books"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("tree mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("tree opens named nodes", func(t *testing.T) {
		ids := idsByName(t, flags, "categories")
		got := lines(mustRun(t, append(flags, "tree", "--open", ids["Electronics"])...))
		want := []string{"- Electronics", "  + Phones", "  + Laptops", "+ Books"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("tree mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("children", func(t *testing.T) {
		ids := idsByName(t, flags, "categories")
		got := lines(mustRun(t, append(flags, "children", ids["Electronics"])...))
		if diff := cmp.Diff([]string{"  Phones", "  Laptops"}, got); diff != "" {
			t.Errorf("children mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("children of a missing node", func(t *testing.T) {
		_, _, err := run(t, append(flags, "children", "nope")...)
		if !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if !strings.Contains(err.Error(), "Suggestions:") {
			t.Errorf("expected suggestions in %q", err.Error())
		}
	})

	t.Run("markdown format", func(t *testing.T) {
		out := mustRun(t, append(flags, "--format", "markdown", "list")...)
		if !strings.HasPrefix(out, "# categories\n\n- **Electronics**") {
			t.Errorf("unexpected markdown:\n%s", out)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := run(t, append(flags, "--format", "html", "list")...)
		if !errors.Is(err, types.ErrInvalid) || !strings.Contains(err.Error(), "json, markdown, text, yaml") {
			t.Errorf("expected invalid format error, got %v", err)
		}
	})
}

func TestMutations(t *testing.T) {
	flags := seeded(t, "json")
	ids := idsByName(t, flags, "categories")

	t.Run("add under a parent", func(t *testing.T) {
		out := mustRun(t, append(flags, "--format", "json", "add", "Tablets",
			"--parent", ids["Electronics"], "--set", "rank=3", "--set", "sku='0042'")...)
		var created types.Entity
		if err := json.Unmarshal([]byte(out), &created); err != nil {
			t.Fatalf("invalid json output: %v\n%s", err, out)
		}
		if created.ParentID != ids["Electronics"] {
			t.Errorf("expected parent %s, got %s", ids["Electronics"], created.ParentID)
		}
		want := types.Payload{"name": "Tablets", "rank": float64(3), "sku": "0042"}
		if diff := cmp.Diff(want, created.Payload); diff != "" {
			t.Errorf("payload mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("add with list and object values", func(t *testing.T) {
		out := mustRun(t, append(flags, "--format", "json", "add", "Posters",
			"--parent", ids["Electronics"], "--set", "tags=[print, wall]", "--set", "size={w: 2, h: 3}", "--set", "label='[x]'")...)
		var created types.Entity
		if err := json.Unmarshal([]byte(out), &created); err != nil {
			t.Fatalf("invalid json output: %v\n%s", err, out)
		}
		want := types.Payload{
			"name":  "Posters",
			"tags":  []interface{}{"print", "wall"},
			"size":  map[string]interface{}{"w": float64(2), "h": float64(3)},
			"label": "[x]",
		}
		if diff := cmp.Diff(want, created.Payload); diff != "" {
			t.Errorf("payload mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("reserved payload keys are rejected", func(t *testing.T) {
		_, _, err := run(t, append(flags, "add", "Bad", "--set", "id=7")...)
		if !errors.Is(err, types.ErrInvalid) {
			t.Errorf("expected ErrInvalid, got %v", err)
		}
	})

	t.Run("rename and unset", func(t *testing.T) {
		out := mustRun(t, append(flags, "update", ids["Books"], "--name", "Comics", "--set", "shelf=B", "--unset", "missing")...)
		if want := "Updated Comics [" + ids["Books"] + "]\n"; out != want {
			t.Errorf("output = %q, want %q", out, want)
		}
	})

	t.Run("update needs a change", func(t *testing.T) {
		_, _, err := run(t, append(flags, "update", ids["Books"])...)
		if !errors.Is(err, types.ErrInvalid) {
			t.Errorf("expected ErrInvalid, got %v", err)
		}
	})

	t.Run("moving under a descendant fails", func(t *testing.T) {
		_, _, err := run(t, append(flags, "update", ids["Electronics"], "--parent", ids["Phones"])...)
		if !errors.Is(err, types.ErrCycle) {
			t.Fatalf("expected ErrCycle, got %v", err)
		}
		if !strings.Contains(err.Error(), "inside the moved subtree") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("move to the root", func(t *testing.T) {
		mustRun(t, append(flags, "update", ids["Laptops"], "--parent", "")...)
		got := lines(mustRun(t, append(flags, "list")...))
		if diff := cmp.Diff([]string{"+ Electronics", "+ Laptops", "+ Comics"}, got); diff != "" {
			t.Errorf("list mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("delete cascades", func(t *testing.T) {
		out := mustRun(t, append(flags, "delete", ids["Electronics"])...)
		if out != "Deleted "+ids["Electronics"]+"\n" {
			t.Errorf("unexpected output %q", out)
		}
		remaining := idsByName(t, flags, "categories")
		if _, ok := remaining["Phones"]; ok || len(remaining) != 2 {
			t.Errorf("expected Comics and Laptops to remain, got %v", remaining)
		}
	})
}

func TestSetDefault(t *testing.T) {
	flags := seeded(t, "json")
	ids := idsByName(t, flags, "addresses")

	out := mustRun(t, append(flags, "-c", "addresses", "set-default", ids["Work"])...)
	if want := "Default is now Work [" + ids["Work"] + "]\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}

	got := lines(mustRun(t, append(flags, "-c", "addresses", "list")...))
	if diff := cmp.Diff([]string{"  Home", "* Work"}, got); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	_, _, err := run(t, append(flags, "set-default", ids["Work"])...)
	if !errors.Is(err, nanocache.ErrNotFlat) {
		t.Errorf("expected ErrNotFlat on a tree collection, got %v", err)
	}

	out = mustRun(t, append(flags, "-c", "wishlists", "--kind", "flat", "add", "Birthday", "--default")...)
	if !strings.HasPrefix(out, "Created Birthday [") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSQLiteBackend(t *testing.T) {
	flags := seeded(t, "sqlite")

	got := lines(mustRun(t, append(flags, "-c", "addresses", "list")...))
	if diff := cmp.Diff([]string{"* Home", "  Work"}, got); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPBackend(t *testing.T) {
	isolate(t)
	backend, err := sqlstore.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	srv := httptest.NewServer(httpapi.NewRouter(backend, nil))
	t.Cleanup(srv.Close)

	flags := []string{"--backend", "http", "--api", srv.URL}
	mustRun(t, append(flags, "-c", "payment-methods", "add", "Visa", "--default")...)
	mustRun(t, append(flags, "-c", "payment-methods", "add", "PayPal")...)

	got := lines(mustRun(t, append(flags, "-c", "payment-methods", "list")...))
	if diff := cmp.Diff([]string{"* Visa", "  PayPal"}, got); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestBackendConfigErrors(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "http without api", args: []string{"--backend", "http", "list"}, want: "needs --api"},
		{name: "unknown backend", args: []string{"--backend", "redis", "list"}, want: `unknown backend "redis"`},
		{name: "serve needs a local store", args: []string{"--backend", "http", "serve"}, want: "no local store"},
		{name: "bad collection name", args: []string{"-c", "Bad Name", "list"}, want: "invalid collection"},
		{name: "bad kind", args: []string{"--kind", "graph", "list"}, want: "invalid kind"},
		{name: "negative depth", args: []string{"tree", "--depth", "-1"}, want: "invalid depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLogging(t *testing.T) {
	flags := seeded(t, "json")

	_, stderr, err := run(t, append(flags, "--verbose", "--log-level", "debug", "list")...)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(stderr, "collection opened") {
		t.Errorf("expected debug records on stderr, got:\n%s", stderr)
	}

	data, err := os.ReadFile(filepath.Join(os.Getenv("XDG_CACHE_HOME"), "nanocache", "nanocache.log"))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"collection opened"`) {
		t.Errorf("expected JSON records in the log file, got:\n%s", data)
	}
}
