package testutil

import (
	"context"
	_ "embed"
	"testing"

	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/types"
)

//go:embed testdata/storefront.yaml
var storefrontYAML []byte

// Storefront gives typed access to the seeded fixture ids.
// Ids are whatever the backend assigned while seeding.
type Storefront struct {
	// Categories (tree)
	Electronics   string // root
	Phones        string // child of Electronics
	Smartphones   string // child of Phones
	FeaturePhones string // child of Phones
	Laptops       string // child of Electronics
	Clothing      string // root
	Shoes         string // child of Clothing
	Sneakers      string // child of Shoes
	Books         string // root, no children

	// Addresses (flat, Home is default)
	Home    string
	Work    string
	Parents string

	// Payment methods (flat, Visa is default)
	Visa   string
	PayPal string

	// ByKey maps collection -> fixture key -> id
	ByKey nanocache.SeedResult
}

// StorefrontSeed returns the parsed fixture
func StorefrontSeed(t testing.TB) *nanocache.SeedFile {
	t.Helper()
	seed, err := nanocache.ParseSeed(storefrontYAML)
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return seed
}

// LoadStorefront seeds backend with the storefront fixture
func LoadStorefront(t testing.TB, backend types.Backend) *Storefront {
	t.Helper()

	ids, err := nanocache.Seed(context.Background(), backend, StorefrontSeed(t))
	if err != nil {
		t.Fatalf("failed to seed fixture: %v", err)
	}

	cat, addr, pay := ids["categories"], ids["addresses"], ids["payment-methods"]
	return &Storefront{
		Electronics:   cat["electronics"],
		Phones:        cat["phones"],
		Smartphones:   cat["smartphones"],
		FeaturePhones: cat["feature-phones"],
		Laptops:       cat["laptops"],
		Clothing:      cat["clothing"],
		Shoes:         cat["shoes"],
		Sneakers:      cat["sneakers"],
		Books:         cat["books"],
		Home:          addr["home"],
		Work:          addr["work"],
		Parents:       addr["parents"],
		Visa:          pay["visa"],
		PayPal:        pay["paypal"],
		ByKey:         ids,
	}
}

// NewStorefrontBackend returns a fake backend seeded with the fixture
func NewStorefrontBackend(t testing.TB) (*FakeBackend, *Storefront) {
	t.Helper()
	backend := NewFakeBackend()
	fixture := LoadStorefront(t, backend)
	return backend, fixture
}
