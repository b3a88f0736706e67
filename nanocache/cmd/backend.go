package main

import (
	"fmt"

	"github.com/arthur-debert/nanocache/internal/validation"
	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/nanocache/httpapi"
	"github.com/arthur-debert/nanocache/types"
)

const (
	defaultJSONStore   = "nanocache.json"
	defaultSQLiteStore = "nanocache.db"
)

// closer releases what openBackend acquired
type closer func() error

// openLocalStore opens the json or sqlite store named by the configuration
func (cli *CLI) openLocalStore(operation string) (types.Backend, closer, error) {
	path := cli.viperInst.GetString("store")

	switch kind := cli.viperInst.GetString("backend"); kind {
	case "json", "":
		if path == "" {
			path = defaultJSONStore
		}
		s, err := nanocache.OpenJSON(path, cli.logger)
		if err != nil {
			return nil, nil, NewStoreError(operation, err, CommonSuggestions.CheckStore, CommonSuggestions.CheckPerms)
		}
		return s, s.Close, nil

	case "sqlite":
		if path == "" {
			path = defaultSQLiteStore
		}
		s, err := nanocache.OpenSQLite(path, cli.logger)
		if err != nil {
			return nil, nil, NewStoreError(operation, err, CommonSuggestions.CheckStore, CommonSuggestions.CheckPerms)
		}
		return s, s.Close, nil

	case "http":
		return nil, nil, NewConfigError(operation, "the http backend has no local store",
			"Use --backend json or --backend sqlite")

	default:
		return nil, nil, NewConfigError(operation, fmt.Sprintf("unknown backend %q", kind),
			"Use --backend json, sqlite or http")
	}
}

// openBackend returns the configured backend with fetch retries
func (cli *CLI) openBackend(operation string) (types.Backend, closer, error) {
	var (
		backend types.Backend
		release closer = func() error { return nil }
	)

	if cli.viperInst.GetString("backend") == "http" {
		api := cli.viperInst.GetString("api")
		if api == "" {
			return nil, nil, NewConfigError(operation, "the http backend needs --api",
				"Set --api or NANOCACHE_API to the server base URL")
		}
		client, err := httpapi.NewClient(api)
		if err != nil {
			return nil, nil, NewValidationError(operation, "api URL", api, CommonSuggestions.CheckConfig)
		}
		backend = client
	} else {
		local, closeLocal, err := cli.openLocalStore(operation)
		if err != nil {
			return nil, nil, err
		}
		backend, release = local, closeLocal
	}

	policy := nanocache.DefaultRetryPolicy
	policy.Attempts = cli.viperInst.GetInt("retries")
	return nanocache.NewRetryBackend(backend, policy, cli.logger), release, nil
}

// openCollection resolves the configured collection and its kind
func (cli *CLI) openCollection(operation string) (*nanocache.Collection, closer, error) {
	name := cli.viperInst.GetString("collection")
	if err := validation.ValidateCollectionName(name); err != nil {
		return nil, nil, NewValidationError(operation, "collection", name,
			"Collection names use lowercase letters, digits, '-' and '_'")
	}

	kind := types.KindOf(name)
	if raw := cli.viperInst.GetString("kind"); raw != "" {
		parsed, err := types.ParseCollectionKind(raw)
		if err != nil {
			return nil, nil, NewValidationError(operation, "kind", raw, "Use --kind tree or --kind flat")
		}
		kind = parsed
	}

	backend, release, err := cli.openBackend(operation)
	if err != nil {
		return nil, nil, err
	}

	coll := nanocache.NewCollection(backend, name, kind, nanocache.WithLogger(cli.logger))
	cli.logger.Debug("collection opened",
		"collection", name,
		"kind", kind.String(),
		"backend", cli.viperInst.GetString("backend"))
	return coll, release, nil
}
