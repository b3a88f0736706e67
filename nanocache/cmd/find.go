package main

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/nanocache/search"
	"github.com/spf13/cobra"
)

// addFindCommand adds the find command
func (cli *CLI) addFindCommand() {
	findCmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Search entity payloads",
		Long: `Load the whole collection, every level of a tree included, and search
the payload fields of each entity. Name matches rank first.

Examples:
  nanocache find phone
  nanocache -c addresses find lyon --field city --exact
  nanocache find "rue" --limit 3 --format json`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeFindCommand(cmd, args[0])
		},
	}

	findCmd.Flags().StringArray("field", []string{}, "Payload key to search (repeatable, default all)")
	findCmd.Flags().Bool("exact", false, "Match whole field values only")
	findCmd.Flags().Bool("case-sensitive", false, "Match case")
	findCmd.Flags().Int("limit", 0, "Maximum number of results (0 for all)")

	cli.rootCmd.AddCommand(findCmd)
}

func (cli *CLI) executeFindCommand(cmd *cobra.Command, query string) error {
	fields, _ := cmd.Flags().GetStringArray("field")
	exact, _ := cmd.Flags().GetBool("exact")
	caseSensitive, _ := cmd.Flags().GetBool("case-sensitive")
	limit, _ := cmd.Flags().GetInt("limit")

	if strings.TrimSpace(query) == "" {
		return NewValidationError("find", "query", query, "Provide some text to search for")
	}
	if limit < 0 {
		return NewValidationError("find", "limit", fmt.Sprint(limit), "Use a limit of 0 or more")
	}

	coll, release, err := cli.openCollection("find")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	if err := coll.LoadAll(cmd.Context()); err != nil {
		return WrapError("find", err)
	}

	results := search.NewEngine(coll.Cache()).Search(search.SearchOptions{
		Query:           query,
		Fields:          fields,
		CaseSensitive:   caseSensitive,
		ExactMatch:      exact,
		EnableHighlight: true,
		MaxResults:      limit,
	})
	cli.logger.Debug("search finished", "collection", coll.Name(), "query", query, "results", len(results))

	return cli.writeValue(cmd, results, func() {
		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintf(out, "no matches for %q in %s\n", query, coll.Name())
			return
		}
		for _, r := range results {
			fmt.Fprintf(out, "%s [%s]  %.2f\n", r.Entity.Name(), r.Entity.ID, r.Score)
			for _, key := range r.MatchedFields {
				fmt.Fprintf(out, "  %s: %s\n", key, r.Highlights[key])
			}
		}
	})
}
