// Package main tests for the sync core entry point and its HTTP adapter.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/waymarkapp/core/internal/db"
	"github.com/waymarkapp/core/internal/models"
)

func newTestRepo(t *testing.T, serverURL string) *db.Repository {
	t.Helper()
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.NewMigrator(database.DB).Up(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := db.NewRepository(database.DB)
	if err := repo.SetSetting(models.SettingServerURL, serverURL); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetSetting(models.SettingAPIToken, "test-token"); err != nil {
		t.Fatal(err)
	}
	return repo
}

func sampleLocation() *models.QueuedLocation {
	return &models.QueuedLocation{
		ID:        1,
		Latitude:  59.3293,
		Longitude: 18.0686,
		Timestamp: time.Now().UnixMilli(),
		Provider:  "gps",
	}
}

func TestSendLocationSuccess(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var loc models.QueuedLocation
		if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "loc-42"})
	}))
	defer server.Close()

	transport := newAPITransport(newTestRepo(t, server.URL))

	res, err := transport.SendLocation(context.Background(), sampleLocation())
	if err != nil {
		t.Fatalf("SendLocation: %v", err)
	}
	if !res.Success || res.ServerID != "loc-42" {
		t.Errorf("result = %+v, want success with server id", res)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPath != "/api/v1/locations" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestSendLocationSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"skipped": true, "message": "below threshold"})
	}))
	defer server.Close()

	transport := newAPITransport(newTestRepo(t, server.URL))

	res, err := transport.SendLocation(context.Background(), sampleLocation())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || !res.Skipped || res.Message != "below threshold" {
		t.Errorf("result = %+v, want skipped", res)
	}
}

func TestSendLocationCarriesStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{"message": "latitude out of range"})
	}))
	defer server.Close()

	transport := newAPITransport(newTestRepo(t, server.URL))

	res, err := transport.SendLocation(context.Background(), sampleLocation())
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("4xx must not report success")
	}
	if res.StatusCode == nil || *res.StatusCode != 422 {
		t.Errorf("status code = %v, want 422", res.StatusCode)
	}
	if res.Message != "latitude out of range" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestSendLocationConnectionFailure(t *testing.T) {
	// Port 1 is closed; the request fails before a response exists.
	transport := newAPITransport(newTestRepo(t, "http://127.0.0.1:1"))

	res, err := transport.SendLocation(context.Background(), sampleLocation())
	if err == nil {
		t.Fatalf("expected connection error, got %+v", res)
	}
}

func TestSendMutationRoutesByEntityType(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "place-7"})
	}))
	defer server.Close()

	transport := newAPITransport(newTestRepo(t, server.URL))

	m := &models.PendingMutation{
		EntityType: models.EntityPlace,
		Operation:  models.OpCreate,
		EntityID:   "tmp-1",
		Fields:     models.EntityFields{Name: "New Place"},
	}
	res, err := transport.SendMutation(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/v1/places" {
		t.Errorf("path = %q, want /api/v1/places", gotPath)
	}
	if res.ServerID != "place-7" {
		t.Errorf("server id = %q", res.ServerID)
	}
}

func TestVersionDefault(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}
