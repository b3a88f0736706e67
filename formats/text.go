package formats

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arthur-debert/nanocache/types"
	"github.com/dustin/go-humanize"
)

// Text renders trees indented with expand markers and flat lists with a
// star on the default. Each line ends with how long ago the entity changed.
//
//   - Electronics [c1]  updated 3 minutes ago
//   - Phones [c2]  updated 3 minutes ago
var Text = &OutputFormat{
	Name:      "text",
	Extension: ".txt",
	Render: func(w io.Writer, v View) error {
		bw := bufio.NewWriter(w)
		now := v.now()

		if v.Kind == types.Flat {
			entities := v.Source.Snapshot()
			if len(entities) == 0 {
				fmt.Fprintf(bw, "no entities in %s\n", v.Collection)
			}
			for _, e := range entities {
				star := " "
				if e.Default() {
					star = "*"
				}
				fmt.Fprintf(bw, "%s %s\n", star, textLine(e, now))
			}
			return bw.Flush()
		}

		empty := true
		v.Source.Walk(func(e types.Entity, depth int) bool {
			empty = false
			fmt.Fprintf(bw, "%s%s %s\n", strings.Repeat("  ", depth), marker(v.Source, e.ID), textLine(e, now))
			return v.Source.IsExpanded(e.ID)
		})
		if empty {
			fmt.Fprintf(bw, "no entities in %s\n", v.Collection)
		}
		return bw.Flush()
	},
}

func textLine(e types.Entity, now time.Time) string {
	line := fmt.Sprintf("%s [%s]", e.Name(), e.ID)
	if !e.UpdatedAt.IsZero() {
		line += "  updated " + humanize.RelTime(e.UpdatedAt, now, "ago", "from now")
	}
	return line
}

func init() {
	mustRegister(Text)
}
