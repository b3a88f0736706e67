package formats

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/nanocache/types"
)

// Source is the read side of a cache that renderers walk.
// *nanocache.Cache satisfies it.
type Source interface {
	Walk(fn func(e types.Entity, depth int) bool)
	Snapshot() []types.Entity
	Children(parentID string) []types.Entity
	ChildrenLoaded(parentID string) bool
	IsExpanded(id string) bool
}

// View is what a format renders: one collection as currently cached
type View struct {
	Collection string
	Kind       types.CollectionKind
	Source     Source

	// Now anchors relative times. Zero means time.Now.
	Now time.Time
}

func (v View) now() time.Time {
	if v.Now.IsZero() {
		return time.Now()
	}
	return v.Now
}

// OutputFormat defines how a cached collection is written out
type OutputFormat struct {
	// Name is the format identifier (alphanumeric, dashes, underscores, lowercase)
	Name string

	// Extension is the file extension including the dot (e.g., ".txt", ".md")
	Extension string

	// Render writes the view to w
	Render func(w io.Writer, v View) error
}

// registry holds all available output formats
var registry = make(map[string]*OutputFormat)

// Register adds a new output format to the registry
func Register(format *OutputFormat) error {
	if !isValidFormatName(format.Name) {
		return fmt.Errorf("invalid format name %q: must be lowercase alphanumeric with dashes and underscores only", format.Name)
	}
	if format.Render == nil {
		return fmt.Errorf("format %q has no renderer", format.Name)
	}

	if !strings.HasPrefix(format.Extension, ".") {
		format.Extension = "." + format.Extension
	}

	if _, exists := registry[format.Name]; exists {
		return fmt.Errorf("format %q already registered", format.Name)
	}

	registry[format.Name] = format
	return nil
}

// Get returns an output format by name
func Get(name string) (*OutputFormat, error) {
	format, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown format %q (available: %s)", name, strings.Join(List(), ", "))
	}
	return format, nil
}

// List returns all registered format names, sorted
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render looks up name and renders v with it
func Render(w io.Writer, name string, v View) error {
	format, err := Get(name)
	if err != nil {
		return err
	}
	return format.Render(w, v)
}

// isValidFormatName checks if a format name is valid
func isValidFormatName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

func mustRegister(format *OutputFormat) {
	if err := Register(format); err != nil {
		panic(fmt.Sprintf("failed to register %s format: %v", format.Name, err))
	}
}
