package formats

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// document is the shape shared by the JSON and YAML formats
type document struct {
	Collection string  `json:"collection" yaml:"collection"`
	Kind       string  `json:"kind" yaml:"kind"`
	Entities   []*Node `json:"entities" yaml:"entities"`
}

func newDocument(v View) document {
	nodes := Nodes(v)
	if nodes == nil {
		nodes = []*Node{}
	}
	return document{Collection: v.Collection, Kind: v.Kind.String(), Entities: nodes}
}

// JSON renders the visible nodes as an indented JSON document
var JSON = &OutputFormat{
	Name:      "json",
	Extension: ".json",
	Render: func(w io.Writer, v View) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newDocument(v))
	},
}

// YAML renders the visible nodes as a YAML document
var YAML = &OutputFormat{
	Name:      "yaml",
	Extension: ".yaml",
	Render: func(w io.Writer, v View) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(v)); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	mustRegister(JSON)
	mustRegister(YAML)
}
