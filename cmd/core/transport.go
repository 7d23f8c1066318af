package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/waymarkapp/core/internal/db"
	"github.com/waymarkapp/core/internal/models"
	syncpkg "github.com/waymarkapp/core/internal/sync"
)

// apiTransport is the HTTP adapter behind the sync engines. Credentials
// are read from the settings store per request so an in-app
// re-authentication takes effect without a restart.
type apiTransport struct {
	repo   *db.Repository
	client *http.Client
}

func newAPITransport(repo *db.Repository) *apiTransport {
	return &apiTransport{
		repo: repo,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiResponse is the server's envelope for sync endpoints.
type apiResponse struct {
	ID      string `json:"id,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Message string `json:"message,omitempty"`
}

func (t *apiTransport) SendLocation(ctx context.Context, loc *models.QueuedLocation) (*syncpkg.SendResult, error) {
	return t.post(ctx, "/api/v1/locations", loc)
}

func (t *apiTransport) SendMutation(ctx context.Context, m *models.PendingMutation) (*syncpkg.SendResult, error) {
	path := fmt.Sprintf("/api/v1/%ss", m.EntityType)
	return t.post(ctx, path, m)
}

func (t *apiTransport) post(ctx context.Context, path string, payload interface{}) (*syncpkg.SendResult, error) {
	baseURL, _, err := t.repo.GetSetting(models.SettingServerURL)
	if err != nil {
		return nil, err
	}
	token, _, err := t.repo.GetSetting(models.SettingAPIToken)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(req)
	if err != nil {
		// No response: the classifier treats this as a transient failure.
		return nil, err
	}
	defer resp.Body.Close()

	var parsed apiResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = json.Unmarshal(data, &parsed)

	status := resp.StatusCode
	result := &syncpkg.SendResult{
		Success:    status >= 200 && status < 300,
		Skipped:    parsed.Skipped,
		ServerID:   parsed.ID,
		StatusCode: &status,
		Message:    parsed.Message,
	}
	return result, nil
}
