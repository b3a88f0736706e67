package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestEntityClone(t *testing.T) {
	orig := Entity{
		ID:        "a",
		IsDefault: Bool(true),
		Payload:   Payload{"name": "Home"},
	}

	clone := orig.Clone()
	clone.Payload["name"] = "Work"
	*clone.IsDefault = false

	if orig.Payload["name"] != "Home" {
		t.Errorf("payload shared with clone: %v", orig.Payload["name"])
	}
	if !orig.Default() {
		t.Error("is_default shared with clone")
	}
}

func TestEntityName(t *testing.T) {
	tests := []struct {
		name     string
		entity   Entity
		expected string
	}{
		{"payload name", Entity{ID: "1", Payload: Payload{"name": "Shoes"}}, "Shoes"},
		{"falls back to id", Entity{ID: "1"}, "1"},
		{"non-string name", Entity{ID: "1", Payload: Payload{"name": 3}}, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entity.Name(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseCollectionKind(t *testing.T) {
	tests := []struct {
		in      string
		want    CollectionKind
		wantErr bool
	}{
		{"tree", Tree, false},
		{"FLAT", Flat, false},
		{" flat ", Flat, false},
		{"graph", Tree, true},
	}

	for _, tt := range tests {
		got, err := ParseCollectionKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCollectionKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCollectionKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if KindOf("addresses") != Flat {
		t.Error("addresses should be flat")
	}
	if KindOf("unknown") != Tree {
		t.Error("unknown collections default to tree")
	}
}

func TestAPIErrorMapping(t *testing.T) {
	tests := []struct {
		err       error
		status    int
		code      string
		targetErr error
		retryable bool
	}{
		{fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound, CodeNotFound, ErrNotFound, false},
		{fmt.Errorf("bad: %w", ErrInvalid), http.StatusBadRequest, CodeInvalid, ErrInvalid, false},
		{ErrCycle, http.StatusUnprocessableEntity, CodeCycle, ErrCycle, false},
		{ErrConflict, http.StatusConflict, CodeConflict, ErrConflict, false},
		{errors.New("disk full"), http.StatusInternalServerError, CodeInternal, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			apiErr := NewAPIError(tt.err)
			if apiErr.Status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, apiErr.Status)
			}
			if apiErr.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, apiErr.Code)
			}
			if tt.targetErr != nil && !errors.Is(apiErr, tt.targetErr) {
				t.Errorf("expected errors.Is(%v, %v)", apiErr, tt.targetErr)
			}
			if apiErr.Temporary() != tt.retryable {
				t.Errorf("expected Temporary() = %v", tt.retryable)
			}
		})
	}

	t.Run("already an APIError", func(t *testing.T) {
		orig := &APIError{Status: http.StatusTeapot, Code: "teapot", Message: "short and stout"}
		if got := NewAPIError(fmt.Errorf("wrapped: %w", orig)); got != orig {
			t.Errorf("expected the wrapped APIError back, got %v", got)
		}
	})
}
