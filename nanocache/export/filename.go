package export

import (
	"fmt"
	"time"
)

// ArchiveFilename names an archive after its collection and time, without
// characters that are invalid in file names on common systems
func ArchiveFilename(collection string, at time.Time) string {
	return fmt.Sprintf("nanocache-%s-%s.zip", collection, at.UTC().Format("20060102T150405Z"))
}
