package export_test

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/arthur-debert/nanocache/formats"
	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/nanocache/export"
	"github.com/arthur-debert/nanocache/testutil"
	"github.com/arthur-debert/nanocache/types"
	"github.com/google/go-cmp/cmp"
)

var exportTime = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	backend, fx := testutil.NewStorefrontBackend(t)
	categories := nanocache.NewCollection(backend, "categories", types.Tree)

	data, err := export.Generate(ctx, categories, export.Options{
		Now: func() time.Time { return exportTime },
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if data.ArchiveFilename != "nanocache-categories-20240301T093000Z.zip" {
		t.Errorf("unexpected archive name %s", data.ArchiveFilename)
	}
	if data.Entities != 9 {
		t.Errorf("expected 9 entities, got %d", data.Entities)
	}

	seed := data.Seed.Collections["categories"]
	parents := make(map[string]string, len(seed))
	for _, e := range seed {
		parents[e.Key] = e.Parent
	}
	if parents[fx.Sneakers] != fx.Shoes || parents[fx.Books] != "" {
		t.Errorf("parent links lost: %v", parents)
	}

	var names []string
	contents := make(map[string]string)
	for _, o := range data.Objects {
		names = append(names, o.Filename)
		contents[o.Filename] = o.Content
	}
	wantNames := []string{"categories.json", "categories.md", "categories.txt", "categories.yaml"}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Errorf("objects mismatch (-want +got):\n%s", diff)
	}

	wantText := fmt.Sprintf(`- Electronics [%s]
  - Phones [%s]
      Smartphones [%s]
      Feature Phones [%s]
    Laptops [%s]
- Clothing [%s]
  - Shoes [%s]
      Sneakers [%s]
  Books [%s]
`, fx.Electronics, fx.Phones, fx.Smartphones, fx.FeaturePhones, fx.Laptops, fx.Clothing, fx.Shoes, fx.Sneakers, fx.Books)
	if diff := cmp.Diff(wantText, contents["categories.txt"]); diff != "" {
		t.Errorf("text render mismatch (-want +got):\n%s", diff)
	}

	if n := len(categories.Cache().Expanded()); n != 0 {
		t.Errorf("export must not open cached nodes, got %d open", n)
	}
}

func TestGenerateSelectedFormats(t *testing.T) {
	backend, _ := testutil.NewStorefrontBackend(t)
	addresses := nanocache.NewCollection(backend, "addresses", types.Flat)

	data, err := export.Generate(context.Background(), addresses, export.Options{
		Formats: []*formats.OutputFormat{formats.Text},
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(data.Objects) != 1 || data.Objects[0].Filename != "addresses.txt" {
		t.Fatalf("unexpected objects %+v", data.Objects)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, fx := testutil.NewStorefrontBackend(t)
	categories := nanocache.NewCollection(backend, "categories", types.Tree)

	data, err := export.Generate(ctx, categories, export.Options{})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), data.ArchiveFilename)
	if err := export.CreateArchive(data, path); err != nil {
		t.Fatalf("create archive failed: %v", err)
	}

	extracted, err := export.Extract(path)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if extracted.Collection != "categories" || extracted.Entities != 9 {
		t.Errorf("unexpected archive summary %s/%d", extracted.Collection, extracted.Entities)
	}
	if diff := cmp.Diff(data.Seed, extracted.Seed); diff != "" {
		t.Errorf("seed mismatch (-written +read):\n%s", diff)
	}
	if diff := cmp.Diff(data.Objects[0].Content, extracted.Objects[0].Content); diff != "" {
		t.Errorf("object mismatch (-written +read):\n%s", diff)
	}

	// Reseeding into an empty backend rebuilds the same shape under new ids
	seed, err := export.ReadSeed(path)
	if err != nil {
		t.Fatalf("read seed failed: %v", err)
	}
	target := testutil.NewFakeBackend()
	target.FullFetch = true
	ids, err := nanocache.Seed(ctx, target, seed)
	if err != nil {
		t.Fatalf("reseed failed: %v", err)
	}

	restored := target.Entities("categories")
	if len(restored) != 9 {
		t.Fatalf("expected 9 restored entities, got %d", len(restored))
	}
	sneakers, shoes := ids["categories"][fx.Sneakers], ids["categories"][fx.Shoes]
	var gotParent string
	var names []string
	for _, e := range restored {
		if e.ID == sneakers {
			gotParent = e.ParentID
		}
		names = append(names, e.Name())
	}
	if gotParent != shoes {
		t.Errorf("expected sneakers under shoes (%s), got %s", shoes, gotParent)
	}
	sort.Strings(names)
	want := []string{"Books", "Clothing", "Electronics", "Feature Phones", "Laptops", "Phones", "Shoes", "Smartphones", "Sneakers"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractRejectsArchivesWithoutSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renders-only.zip")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	zw := zip.NewWriter(file)
	w, _ := zw.Create("categories.txt")
	_, _ = w.Write([]byte("- Electronics [1]\n"))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close failed: %v", err)
	}
	_ = file.Close()

	if _, err := export.Extract(path); err == nil {
		t.Error("expected an error for an archive without a seed")
	}
}
