// Package testutil provides common test helpers for Finivo HTTP tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Moneymaker1996/finivo-backend/internal/api"
	"github.com/Moneymaker1996/finivo-backend/internal/memory"
	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/nudge"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
	"github.com/Moneymaker1996/finivo-backend/internal/store"
)

// Env bundles a test server with its in-memory dependencies.
type Env struct {
	Store   *store.InMemoryStore
	Memory  *memory.Service
	Engine  *nudge.Engine
	Server  *api.Server
	Handler http.Handler
}

// NewTestEnv creates an API server over an in-memory store and the hashing
// embedder.
func NewTestEnv(opts ...api.Option) *Env {
	st := store.NewInMemoryStore()
	mem := memory.NewService(st, nil, models.SystemClock{})
	engine := nudge.NewEngine(st, st, nudge.WithMemory(mem), nudge.WithPlanLookup(st))
	srv := api.NewServer(engine, st, mem, opts...)
	return &Env{Store: st, Memory: mem, Engine: engine, Server: srv, Handler: srv.Routes()}
}

// SeedUser creates a user on tier and returns its ID.
func SeedUser(t testing.TB, st store.UserRepo, tier plan.Tier) int64 {
	t.Helper()
	id, err := st.CreateUser(context.Background(), models.User{Name: "Test User", Email: "test@example.com", Plan: tier})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return id
}

// Do sends a request through h and returns the recorded response.
func Do(t testing.TB, h http.Handler, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, CreateHTTPRequest(t, method, url, body))
	return rr
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response and validates its status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	status, ok := response["status"].(string)
	if !ok {
		t.Error("response missing or invalid 'status' field")
		return response
	}
	if status != expectedStatus {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		buf.Write(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// MustMarshalJSON marshals v to JSON and fails the test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails the test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
