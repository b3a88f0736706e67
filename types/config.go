package types

import (
	"fmt"
	"strings"
)

// CollectionKind defines the shape of a collection
type CollectionKind int

const (
	// Tree collections relate entities through ParentID (categories)
	Tree CollectionKind = iota
	// Flat collections have no hierarchy but keep at most one default (addresses, payment methods)
	Flat
)

// String returns the string representation of the CollectionKind
func (k CollectionKind) String() string {
	switch k {
	case Tree:
		return "tree"
	case Flat:
		return "flat"
	default:
		return "unknown"
	}
}

// ParseCollectionKind converts "tree" or "flat" to a CollectionKind
func ParseCollectionKind(s string) (CollectionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tree":
		return Tree, nil
	case "flat":
		return Flat, nil
	default:
		return Tree, fmt.Errorf("unknown collection kind %q (want tree or flat)", s)
	}
}

// CollectionConfig names a collection and its shape
type CollectionConfig struct {
	Name string
	Kind CollectionKind
}

// WellKnownCollections lists the storefront collections and their shapes
var WellKnownCollections = []CollectionConfig{
	{Name: "categories", Kind: Tree},
	{Name: "addresses", Kind: Flat},
	{Name: "payment-methods", Kind: Flat},
}

// KindOf returns the configured kind of a well known collection.
// Unknown collections are treated as trees.
func KindOf(collection string) CollectionKind {
	for _, c := range WellKnownCollections {
		if c.Name == collection {
			return c.Kind
		}
	}
	return Tree
}
