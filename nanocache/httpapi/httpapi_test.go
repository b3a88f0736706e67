package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/nanocache/httpapi"
	"github.com/arthur-debert/nanocache/nanocache/sqlstore"
	"github.com/arthur-debert/nanocache/testutil"
	"github.com/arthur-debert/nanocache/types"
)

// newServer serves a fresh in-memory SQLite store
func newServer(t *testing.T, logger *slog.Logger) *httptest.Server {
	t.Helper()
	store, err := sqlstore.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewRouter(store, logger))
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close()
	})
	return srv
}

func newClient(t *testing.T, baseURL string) *httpapi.Client {
	t.Helper()
	client, err := httpapi.NewClient(baseURL, httpapi.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestHTTPBackendContract(t *testing.T) {
	testutil.BackendContract(t, func(t *testing.T) types.Backend {
		return newClient(t, newServer(t, nil).URL)
	})
}

func TestServerErrors(t *testing.T) {
	srv := newServer(t, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"unknown entity", "DELETE", "/collections/categories/entities/nope", "", http.StatusNotFound, types.CodeNotFound},
		{"bad collection", "GET", "/collections/Bad%20Name/entities", "", http.StatusBadRequest, types.CodeInvalid},
		{"malformed body", "POST", "/collections/categories/entities", "{", http.StatusBadRequest, types.CodeInvalid},
		{"unknown field", "POST", "/collections/categories/entities", `{"id": "client-made"}`, http.StatusBadRequest, types.CodeInvalid},
		{"unknown route", "GET", "/nowhere", "", http.StatusNotFound, types.CodeNotFound},
		{"wrong method", "PUT", "/collections/categories/entities", "", http.StatusMethodNotAllowed, types.CodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, resp.StatusCode)
			}
			var envelope struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
				t.Fatalf("expected JSON error envelope: %v", err)
			}
			if envelope.Error.Code != tt.wantErr || envelope.Error.Message == "" {
				t.Errorf("unexpected envelope %+v", envelope.Error)
			}
		})
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("cycle maps back to ErrCycle", func(t *testing.T) {
		client := newClient(t, newServer(t, nil).URL)
		a, _ := client.Create(ctx, "categories", types.CreateRequest{})
		b, _ := client.Create(ctx, "categories", types.CreateRequest{ParentID: a.ID})

		_, err := client.Update(ctx, "categories", a.ID, types.UpdateRequest{ParentID: types.String(b.ID)})
		var apiErr *types.APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 APIError, got %v", err)
		}
		if !errors.Is(err, types.ErrCycle) {
			t.Errorf("expected ErrCycle, got %v", err)
		}
	})

	t.Run("non JSON failures", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream exploded", http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).FetchAll(ctx, "categories")
		var apiErr *types.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if !apiErr.Temporary() || apiErr.Message != "upstream exploded" {
			t.Errorf("unexpected error %+v", apiErr)
		}
	})

	t.Run("invalid base URL", func(t *testing.T) {
		if _, err := httpapi.NewClient("localhost"); !errors.Is(err, types.ErrInvalid) {
			t.Errorf("expected ErrInvalid, got %v", err)
		}
	})

	t.Run("retry over a flaky server", func(t *testing.T) {
		backend := newServer(t, nil)
		var failures atomic.Int32
		failures.Store(2)
		flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if failures.Add(-1) >= 0 {
				http.Error(w, "try later", http.StatusServiceUnavailable)
				return
			}
			proxied, _ := http.NewRequest(r.Method, backend.URL+r.URL.Path, r.Body)
			resp, err := http.DefaultClient.Do(proxied)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}
			defer func() { _ = resp.Body.Close() }()
			w.WriteHeader(resp.StatusCode)
			var buf bytes.Buffer
			_, _ = buf.ReadFrom(resp.Body)
			_, _ = w.Write(buf.Bytes())
		}))
		defer flaky.Close()

		policy := nanocache.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
		retrying := nanocache.NewRetryBackend(newClient(t, flaky.URL), policy, nil)
		entities, err := retrying.FetchAll(ctx, "categories")
		if err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if len(entities) != 0 {
			t.Errorf("expected an empty collection, got %d", len(entities))
		}
	})
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	srv := newServer(t, logger)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	_ = resp.Body.Close()
	resp, _ = http.Get(srv.URL + "/collections/categories/entities/missing/children")
	_ = resp.Body.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d:\n%s", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("bad log line: %v", err)
	}
	if entry["level"] != "WARN" || entry["status"] != float64(http.StatusNotFound) || entry["path"] != "/collections/categories/entities/missing/children" {
		t.Errorf("unexpected log entry %v", entry)
	}
}
