// Package export snapshots a whole collection into a zip archive.
//
// An archive holds seed.yaml, which the seed command loads back into any
// backend, and one file per output format with the tree fully expanded.
package export

import (
	"time"

	"github.com/arthur-debert/nanocache/formats"
	"github.com/arthur-debert/nanocache/nanocache"
)

// SeedFilename is the name of the re-seedable snapshot inside an archive
const SeedFilename = "seed.yaml"

// Data is everything an archive will contain
type Data struct {
	ArchiveFilename string              `json:"archive-filename"`
	Collection      string              `json:"collection"`
	Entities        int                 `json:"entities"`
	Seed            *nanocache.SeedFile `json:"seed"`
	Objects         []ObjectFile        `json:"objects"`
}

// ObjectFile is one rendered view of the collection
type ObjectFile struct {
	Filename string    `json:"filename"`
	Modified time.Time `json:"modified"`
	Content  string    `json:"content"`
}

// Options configures what an export renders
type Options struct {
	// Formats to render. Empty renders every registered format.
	Formats []*formats.OutputFormat

	// Now stamps the archive name; time.Now when nil
	Now func() time.Time
}
