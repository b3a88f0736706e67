package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arthur-debert/nanocache/formats"
	"github.com/arthur-debert/nanocache/internal/validation"
	"github.com/arthur-debert/nanocache/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// render writes a cached collection in the configured format
func (cli *CLI) render(cmd *cobra.Command, operation, collection string, kind types.CollectionKind, src formats.Source) error {
	name := cli.viperInst.GetString("format")
	format, err := formats.Get(name)
	if err != nil {
		return NewValidationError(operation, "format", name,
			fmt.Sprintf("Available formats: %s", strings.Join(formats.List(), ", ")))
	}
	return format.Render(cmd.OutOrStdout(), formats.View{Collection: collection, Kind: kind, Source: src})
}

// writeEntity reports a confirmed mutation. Structured formats print the
// entity itself.
func (cli *CLI) writeEntity(cmd *cobra.Command, verb string, e types.Entity) error {
	return cli.writeValue(cmd, e, func() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s [%s]\n", verb, e.Name(), e.ID)
	})
}

// writeValue encodes v for json and yaml, and calls text otherwise
func (cli *CLI) writeValue(cmd *cobra.Command, v interface{}, text func()) error {
	switch name := cli.viperInst.GetString("format"); name {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "text", "markdown":
		text()
		return nil
	default:
		return NewValidationError("print", "format", name,
			fmt.Sprintf("Available formats: %s", strings.Join(formats.List(), ", ")))
	}
}

// parseAssignments turns key=value pairs into a payload. Values are read as
// YAML so numbers and booleans keep their type and flow sequences or mappings
// become lists and objects. Anything YAML cannot parse stays a raw string.
func parseAssignments(operation string, pairs []string) (types.Payload, error) {
	payload := make(types.Payload, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, NewValidationError(operation, "assignment", pair, "Use key=value")
		}
		if validation.IsReservedKey(key) {
			return nil, NewValidationError(operation, "payload key", key,
				"id, parent_id, is_default and timestamps are managed by the backend")
		}

		var value interface{} = raw
		if raw != "" {
			var parsed interface{}
			if err := yaml.Unmarshal([]byte(raw), &parsed); err == nil && parsed != nil {
				value = parsed
			}
		}
		payload[key] = value
	}
	return payload, nil
}
