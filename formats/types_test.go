package formats

import (
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegister(t *testing.T) {
	originalRegistry := registry
	defer func() { registry = originalRegistry }()
	registry = make(map[string]*OutputFormat)

	noop := func(io.Writer, View) error { return nil }

	tests := []struct {
		name     string
		format   *OutputFormat
		errorMsg string
	}{
		{
			name:   "valid format",
			format: &OutputFormat{Name: "test-format", Extension: ".test", Render: noop},
		},
		{
			name:     "invalid name with uppercase",
			format:   &OutputFormat{Name: "TestFormat", Render: noop},
			errorMsg: "invalid format name",
		},
		{
			name:     "empty name",
			format:   &OutputFormat{Render: noop},
			errorMsg: "invalid format name",
		},
		{
			name:     "no renderer",
			format:   &OutputFormat{Name: "silent"},
			errorMsg: "no renderer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Register(tt.format)
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}

	t.Run("extension gets a dot", func(t *testing.T) {
		format := &OutputFormat{Name: "csv", Extension: "csv", Render: noop}
		if err := Register(format); err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if format.Extension != ".csv" {
			t.Errorf("expected .csv, got %q", format.Extension)
		}
	})

	t.Run("duplicate format", func(t *testing.T) {
		format := &OutputFormat{Name: "duplicate", Render: noop}
		if err := Register(format); err != nil {
			t.Fatalf("first registration failed: %v", err)
		}
		if err := Register(format); err == nil || !strings.Contains(err.Error(), "already registered") {
			t.Errorf("expected 'already registered' error, got %v", err)
		}
	})
}

func TestGetAndList(t *testing.T) {
	want := []string{"json", "markdown", "text", "yaml"}
	if diff := cmp.Diff(want, List()); diff != "" {
		t.Errorf("registered formats mismatch (-want +got):\n%s", diff)
	}

	for _, name := range want {
		format, err := Get(name)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", name, err)
		}
		if format.Name != name {
			t.Errorf("Get(%q) returned %q", name, format.Name)
		}
	}

	_, err := Get("html")
	if err == nil || !strings.Contains(err.Error(), "json, markdown, text, yaml") {
		t.Errorf("expected unknown format error listing the available ones, got %v", err)
	}
}
