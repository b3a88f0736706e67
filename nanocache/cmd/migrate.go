package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arthur-debert/nanocache/nanocache/migration"
	"github.com/spf13/cobra"
)

// addMigrateCommand adds the migrate command and its subcommands
func (cli *CLI) addMigrateCommand() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite payload keys across a collection",
		Long: `Load the whole collection and apply a payload change to every entity
through the backend, one partial update each. Entities the change does not
touch are skipped, so an interrupted migration can be run again.

Examples:
  nanocache migrate rename-key slug handle --dry-run
  nanocache -c addresses migrate add-key country FR
  nanocache -c addresses migrate transform-key zip toInt`,
	}

	migrateCmd.PersistentFlags().BoolP("dry-run", "n", false, "Preview changes without applying them")

	renameCmd := &cobra.Command{
		Use:   "rename-key <old> <new>",
		Short: "Move a payload value to a new key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeMigration(cmd, &migration.RenameKey{Old: args[0], New: args[1]})
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove-key <key>",
		Short: "Delete a payload key from every entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeMigration(cmd, &migration.RemoveKey{Key: args[0]})
		},
	}

	addCmd := &cobra.Command{
		Use:   "add-key <key> <value>",
		Short: "Set a payload key on every entity missing it",
		Long: `Set a payload key on every entity. The value is read as YAML, so numbers
and booleans keep their type. Entities that already have the key keep
their value unless --overwrite is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			overwrite, _ := cmd.Flags().GetBool("overwrite")
			payload, err := parseAssignments("migrate", []string{args[0] + "=" + args[1]})
			if err != nil {
				return err
			}
			return cli.executeMigration(cmd, &migration.AddKey{Key: args[0], Value: payload[args[0]], Overwrite: overwrite})
		},
	}
	addCmd.Flags().Bool("overwrite", false, "Replace existing values")

	transformCmd := &cobra.Command{
		Use:   "transform-key <key> <transformer>",
		Short: "Convert the value of a payload key",
		Long: fmt.Sprintf(`Convert the value of a payload key. Values that fail to convert are left
alone and reported.

Transformers: %s`, strings.Join(migration.TransformerNames(), ", ")),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeMigration(cmd, &migration.TransformKey{Key: args[0], Transformer: args[1]})
		},
	}

	migrateCmd.AddCommand(renameCmd, removeCmd, addCmd, transformCmd)
	cli.rootCmd.AddCommand(migrateCmd)
}

func (cli *CLI) executeMigration(cmd *cobra.Command, command migration.Command) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	coll, release, err := cli.openCollection("migrate")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	result, err := migration.Run(cmd.Context(), coll, command, migration.Options{
		DryRun: dryRun,
		Logger: cli.logger,
	})
	if err != nil {
		return WrapError("migrate", err)
	}

	if err := cli.writeValue(cmd, result, func() { cli.printMigration(cmd, result) }); err != nil {
		return err
	}
	if !result.Success {
		return NewMigrationError("migrate", result)
	}
	return nil
}

// printMigration writes messages by level, errors and warnings on stderr,
// then a summary
func (cli *CLI) printMigration(cmd *cobra.Command, result *migration.Result) {
	verbose := cli.viperInst.GetBool("verbose")
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	for _, msg := range result.Messages {
		switch msg.Level {
		case migration.LevelError:
			fmt.Fprintf(errOut, "ERROR: %s\n", msg.Text)
		case migration.LevelWarning:
			fmt.Fprintf(errOut, "WARN: %s\n", msg.Text)
		case migration.LevelInfo:
			fmt.Fprintln(out, msg.Text)
		case migration.LevelDebug:
			if verbose {
				fmt.Fprintf(out, "DEBUG: %s\n", msg.Text)
			}
		}

		if verbose && msg.Details != nil {
			keys := make([]string, 0, len(msg.Details))
			for k := range msg.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %s: %v\n", k, msg.Details[k])
			}
		}
	}

	if !result.Success {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Migration completed successfully")
	fmt.Fprintf(out, "  Modified: %d/%d entities\n", result.Stats.Modified, result.Stats.Total)
}
