package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/nanocache/export"
	"github.com/arthur-debert/nanocache/nanocache/httpapi"
	"github.com/arthur-debert/nanocache/types"
	"github.com/spf13/cobra"
)

// addListCommand adds the list command
func (cli *CLI) addListCommand() {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the roots of a tree, or every entity of a flat collection",
		Long: `Reload the collection and print it. Trees show their roots only;
use 'tree' or 'children' to open nodes.

Examples:
  nanocache list
  nanocache -c addresses list --format json`,

		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeListCommand(cmd)
		},
	}

	cli.rootCmd.AddCommand(listCmd)
}

func (cli *CLI) executeListCommand(cmd *cobra.Command) error {
	coll, release, err := cli.openCollection("list")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	if err := coll.Refresh(cmd.Context()); err != nil {
		return WrapError("list", err)
	}
	return cli.render(cmd, "list", coll.Name(), coll.Kind(), coll.Cache())
}

// addTreeCommand adds the tree command
func (cli *CLI) addTreeCommand() {
	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Print a tree, opening nodes down to a depth",
		Long: `Reload the collection, open the requested nodes, then print the cached tree.
Children are fetched once per node, the first time it is opened.

Markers: '-' open, '+' closed, blank for a known leaf.

Examples:
  nanocache tree --depth 2
  nanocache tree --open 1f0c...,9a2b...`,

		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeTreeCommand(cmd)
		},
	}

	treeCmd.Flags().Int("depth", 0, "Open every node above this depth")
	treeCmd.Flags().StringSlice("open", []string{}, "Ids of nodes to open")

	cli.rootCmd.AddCommand(treeCmd)
}

func (cli *CLI) executeTreeCommand(cmd *cobra.Command) error {
	depth, _ := cmd.Flags().GetInt("depth")
	open, _ := cmd.Flags().GetStringSlice("open")
	if depth < 0 {
		return NewValidationError("tree", "depth", fmt.Sprint(depth), "Use a depth of 0 or more")
	}

	coll, release, err := cli.openCollection("tree")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	ctx := cmd.Context()
	if err := coll.Refresh(ctx); err != nil {
		return WrapError("tree", err)
	}

	for _, id := range open {
		if err := coll.Open(ctx, id); err != nil {
			return WrapError("open "+id, err)
		}
	}

	level := coll.Cache().Roots()
	for d := 0; d < depth && len(level) > 0; d++ {
		var next []types.Entity
		for _, e := range level {
			if err := coll.Open(ctx, e.ID); err != nil {
				return WrapError("open "+e.ID, err)
			}
			next = append(next, coll.Cache().Children(e.ID)...)
		}
		level = next
	}

	return cli.render(cmd, "tree", coll.Name(), coll.Kind(), coll.Cache())
}

// addChildrenCommand adds the children command
func (cli *CLI) addChildrenCommand() {
	childrenCmd := &cobra.Command{
		Use:   "children <id>",
		Short: "Open one node and list its children",
		Long: `Fetch the children of a node and print them as a list.

Examples:
  nanocache children 1f0c...`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeChildrenCommand(cmd, args[0])
		},
	}

	cli.rootCmd.AddCommand(childrenCmd)
}

func (cli *CLI) executeChildrenCommand(cmd *cobra.Command, id string) error {
	coll, release, err := cli.openCollection("list children")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	ctx := cmd.Context()
	if err := coll.Open(ctx, id); err != nil {
		return WrapError("list children", err)
	}

	children := coll.Cache().Children(id)
	listing := nanocache.NewCache(nanocache.WithLogger(cli.logger), nanocache.WithName(coll.Name()))
	if err := listing.Load(ctx, func(context.Context) ([]types.Entity, error) { return children, nil }); err != nil {
		return WrapError("list children", err)
	}
	return cli.render(cmd, "list children", coll.Name(), types.Flat, listing)
}

// addAddCommand adds the add command
func (cli *CLI) addAddCommand() {
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an entity",
		Long: `Create an entity through the backend. The backend assigns the id.

Values given with --set are parsed as YAML: numbers and booleans keep their
type, flow sequences and mappings become lists and objects (tags=[a,b],
size={w: 2, h: 3}), everything else is a string. Quote a value to keep it a string.

Examples:
  nanocache add "Tablets" --parent 1f0c...
  nanocache -c addresses add "Office" --default --set city=Lyon --set "zip='69002'"`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeAddCommand(cmd, args[0])
		},
	}

	addCmd.Flags().String("parent", "", "Parent id (trees only)")
	addCmd.Flags().Bool("default", false, "Make the new entity the collection default")
	addCmd.Flags().StringArray("set", []string{}, "Payload values (key=value)")

	cli.rootCmd.AddCommand(addCmd)
}

func (cli *CLI) executeAddCommand(cmd *cobra.Command, name string) error {
	sets, _ := cmd.Flags().GetStringArray("set")
	payload, err := parseAssignments("add", sets)
	if err != nil {
		return err
	}
	payload["name"] = name

	req := types.CreateRequest{Payload: payload}
	req.ParentID, _ = cmd.Flags().GetString("parent")
	if cmd.Flags().Changed("default") {
		isDefault, _ := cmd.Flags().GetBool("default")
		req.IsDefault = types.Bool(isDefault)
	}

	coll, release, err := cli.openCollection("add")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	created, err := coll.Create(cmd.Context(), req)
	if err = warnOnCycle(cmd, err); err != nil {
		return WrapError("add", err)
	}
	return cli.writeEntity(cmd, "Created", created)
}

// addUpdateCommand adds the update command
func (cli *CLI) addUpdateCommand() {
	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an entity's payload or parent",
		Long: `Apply a partial update. Keys not named are left alone.

Examples:
  nanocache update 1f0c... --name "Mobile Phones"
  nanocache update 1f0c... --parent ""          # move to the root
  nanocache -c addresses update 7f1c... --set zip=69001 --unset floor`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeUpdateCommand(cmd, args[0])
		},
	}

	updateCmd.Flags().String("name", "", "New name")
	updateCmd.Flags().String("parent", "", "New parent id, empty for the root")
	updateCmd.Flags().StringArray("set", []string{}, "Payload values (key=value)")
	updateCmd.Flags().StringArray("unset", []string{}, "Payload keys to remove")

	cli.rootCmd.AddCommand(updateCmd)
}

func (cli *CLI) executeUpdateCommand(cmd *cobra.Command, id string) error {
	sets, _ := cmd.Flags().GetStringArray("set")
	payload, err := parseAssignments("update", sets)
	if err != nil {
		return err
	}

	unset, _ := cmd.Flags().GetStringArray("unset")
	for _, key := range unset {
		payload[key] = nil
	}
	if cmd.Flags().Changed("name") {
		payload["name"], _ = cmd.Flags().GetString("name")
	}

	var req types.UpdateRequest
	if len(payload) > 0 {
		req.Payload = payload
	}
	if cmd.Flags().Changed("parent") {
		parent, _ := cmd.Flags().GetString("parent")
		req.ParentID = types.String(parent)
	}
	if req.Payload == nil && req.ParentID == nil {
		return NewValidationError("update", "update", "nothing to change",
			"Pass --name, --parent, --set or --unset")
	}

	coll, release, err := cli.openCollection("update")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	updated, err := coll.Update(cmd.Context(), id, req)
	if err = warnOnCycle(cmd, err); err != nil {
		return WrapError("update", err)
	}
	return cli.writeEntity(cmd, "Updated", updated)
}

// addSetDefaultCommand adds the set-default command
func (cli *CLI) addSetDefaultCommand() {
	setDefaultCmd := &cobra.Command{
		Use:   "set-default <id>",
		Short: "Make an entity the default of a flat collection",
		Long: `Mark one entity as the default. The previous default is cleared by the backend.

Examples:
  nanocache -c addresses set-default 7f1c...`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeSetDefaultCommand(cmd, args[0])
		},
	}

	cli.rootCmd.AddCommand(setDefaultCmd)
}

func (cli *CLI) executeSetDefaultCommand(cmd *cobra.Command, id string) error {
	coll, release, err := cli.openCollection("set default")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	updated, err := coll.SetDefault(cmd.Context(), id)
	if err != nil {
		return WrapError("set default", err)
	}
	return cli.writeEntity(cmd, "Default is now", updated)
}

// addDeleteCommand adds the delete command
func (cli *CLI) addDeleteCommand() {
	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entity and everything below it",
		Long: `Delete an entity through the backend. Descendants are deleted with it.

Examples:
  nanocache delete 1f0c...`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeDeleteCommand(cmd, args[0])
		},
	}

	cli.rootCmd.AddCommand(deleteCmd)
}

func (cli *CLI) executeDeleteCommand(cmd *cobra.Command, id string) error {
	coll, release, err := cli.openCollection("delete")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	if err := warnOnCycle(cmd, coll.Delete(cmd.Context(), id)); err != nil {
		return WrapError("delete", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
	return nil
}

// warnOnCycle prints a *CycleError as a warning and clears it: the backend
// change went through, only the cached parent links were malformed.
func warnOnCycle(cmd *cobra.Command, err error) error {
	var cycle *nanocache.CycleError
	if errors.As(err, &cycle) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", cycle)
		return nil
	}
	return err
}

// addSeedCommand adds the seed command
func (cli *CLI) addSeedCommand() {
	seedCmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Create collections from a YAML or JSON seed file",
		Long: `Create every entity of a seed file through the backend, parents first.
Entities name their parent by key; the backend assigns the ids.
A .zip written by 'nanocache export' is accepted too.

Example seed file:
  collections:
    categories:
      - key: electronics
        payload: {name: Electronics}
      - key: phones
        parent: electronics
        payload: {name: Phones}
    addresses:
      - key: home
        default: true
        payload: {name: Home, city: Lyon}`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeSeedCommand(cmd, args[0])
		},
	}

	cli.rootCmd.AddCommand(seedCmd)
}

func (cli *CLI) executeSeedCommand(cmd *cobra.Command, path string) error {
	seed, err := readSeed(path)
	if err != nil {
		return err
	}

	backend, release, err := cli.openBackend("seed")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	ids, err := nanocache.Seed(cmd.Context(), backend, seed)
	if err != nil {
		return WrapError("seed", err)
	}

	names := make([]string, 0, len(ids))
	for name := range ids {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d %s\n", len(ids[name]), name)
	}
	return nil
}

// readSeed loads a YAML seed file, or the seed inside an export archive
func readSeed(path string) (*nanocache.SeedFile, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		seed, err := export.ReadSeed(path)
		if err != nil {
			return nil, NewValidationError("seed", "archive", path, err.Error())
		}
		return seed, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewStoreError("seed", err, "Verify the seed file path")
	}
	seed, err := nanocache.ParseSeed(data)
	if err != nil {
		return nil, NewValidationError("seed", "seed file", path, err.Error())
	}
	return seed, nil
}

// addServeCommand adds the serve command
func (cli *CLI) addServeCommand() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local store over HTTP",
		Long: `Run the REST API over the configured json or sqlite store until interrupted.

Endpoints:
  GET    /health
  GET    /collections/{collection}/entities
  POST   /collections/{collection}/entities
  GET    /collections/{collection}/entities/{id}/children
  PATCH  /collections/{collection}/entities/{id}
  DELETE /collections/{collection}/entities/{id}

Examples:
  nanocache --backend sqlite --store shop.db serve --listen :8080`,

		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeServeCommand(cmd)
		},
	}

	serveCmd.Flags().String("listen", ":8080", "Address to listen on")
	_ = cli.viperInst.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))

	cli.rootCmd.AddCommand(serveCmd)
}

func (cli *CLI) executeServeCommand(cmd *cobra.Command) error {
	backend, release, err := cli.openLocalStore("serve")
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	addr := cli.viperInst.GetString("listen")
	fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s store on %s\n", cli.viperInst.GetString("backend"), addr)
	if err := httpapi.Serve(cmd.Context(), addr, httpapi.NewRouter(backend, cli.logger), cli.logger); err != nil {
		return NewStoreError("serve", err, "Check that the address is free")
	}
	return nil
}

// addConfigCommand adds the config command
func (cli *CLI) addConfigCommand() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print every setting after flags, environment, config file and defaults are merged.

Examples:
  NANOCACHE_BACKEND=sqlite nanocache config`,

		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.executeConfigCommand(cmd)
		},
	}

	cli.rootCmd.AddCommand(configCmd)
}

func (cli *CLI) executeConfigCommand(cmd *cobra.Command) error {
	settings := cli.settings()
	return cli.writeValue(cmd, settings, func() {
		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, settings[key])
		}
		if file := cli.viperInst.ConfigFileUsed(); file != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# config file: %s\n", file)
		}
	})
}

// settings returns the resolved value of every configuration key
func (cli *CLI) settings() map[string]interface{} {
	keys := []string{"backend", "store", "api", "retries", "collection", "kind", "format", "verbose", "log-level", "listen"}
	out := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		out[key] = cli.viperInst.Get(key)
	}
	return out
}
