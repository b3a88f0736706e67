package main

import (
	"fmt"
	"path/filepath"

	"github.com/arthur-debert/nanocache/nanocache/export"
	"github.com/spf13/cobra"
)

// addExportCommand adds the export command
func (cli *CLI) addExportCommand() {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a collection to a zip archive",
		Long: `Load the whole collection and write a zip archive holding seed.yaml
and one fully expanded rendering per output format. 'nanocache seed' accepts
the archive to rebuild the collection in any backend.

Examples:
  nanocache export
  nanocache -c addresses export --output addresses.zip`,

		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeExportCommand(cmd)
		},
	}

	exportCmd.Flags().StringP("output", "o", "", "Archive path (default nanocache-<collection>-<time>.zip)")

	cli.rootCmd.AddCommand(exportCmd)
}

func (cli *CLI) executeExportCommand(cmd *cobra.Command) error {
	output, _ := cmd.Flags().GetString("output")

	coll, release, err := cli.openCollection("export")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	data, err := export.Generate(cmd.Context(), coll, export.Options{})
	if err != nil {
		return WrapError("export", err)
	}
	if output == "" {
		output = data.ArchiveFilename
	}
	if err := export.CreateArchive(data, output); err != nil {
		return NewStoreError("export", err, "Check that the output directory exists and is writable")
	}

	cli.logger.Info("collection exported", "collection", data.Collection, "entities", data.Entities, "path", output)
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d %s to %s\n", data.Entities, data.Collection, filepath.Clean(output))
	return nil
}
