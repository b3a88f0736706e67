package formats

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/arthur-debert/nanocache/types"
)

// Markdown renders a collection as a heading followed by a nested bullet list
var Markdown = &OutputFormat{
	Name:      "markdown",
	Extension: ".md",
	Render: func(w io.Writer, v View) error {
		bw := bufio.NewWriter(w)
		fmt.Fprintf(bw, "# %s\n\n", v.Collection)

		nodes := Nodes(v)
		if len(nodes) == 0 {
			bw.WriteString("_empty_\n")
			return bw.Flush()
		}

		var write func(n *Node, depth int)
		write = func(n *Node, depth int) {
			fmt.Fprintf(bw, "%s- %s", strings.Repeat("  ", depth), markdownItem(n.Entity))
			if v.Kind == types.Tree && !n.Expanded && marker(v.Source, n.ID) == "+" {
				bw.WriteString(" …")
			}
			bw.WriteString("\n")
			for _, child := range n.Children {
				write(child, depth+1)
			}
		}
		for _, n := range nodes {
			write(n, 0)
		}
		return bw.Flush()
	},
}

func markdownItem(e types.Entity) string {
	item := fmt.Sprintf("**%s** (`%s`)", escapeMarkdown(e.Name()), e.ID)
	if e.Default() {
		item += " _default_"
	}
	return item
}

var markdownEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func init() {
	mustRegister(Markdown)
}
