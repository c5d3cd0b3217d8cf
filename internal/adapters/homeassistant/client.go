package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beobridge/halo-bridge-go/internal/core/halosync"
)

// Client talks to the Home Assistant REST API. It implements
// halosync.ServiceCaller and halosync.StateProvider.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewClient creates a REST client for the given Home Assistant base
// URL (e.g. http://homeassistant.local:8123) and long-lived access
// token.
func NewClient(baseURL, token string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.WithField("component", "homeassistant"),
	}
}

// haState mirrors the REST /api/states/<id> response.
type haState struct {
	EntityID   string                 `json:"entity_id"`
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes"`
}

func (s haState) toEntityState() halosync.EntityState {
	domain := ""
	if i := strings.IndexByte(s.EntityID, '.'); i > 0 {
		domain = s.EntityID[:i]
	}
	return halosync.EntityState{
		EntityID:   s.EntityID,
		Domain:     domain,
		State:      s.State,
		Attributes: s.Attributes,
	}
}

// CallService invokes POST /api/services/<domain>/<service> targeting
// one entity.
func (c *Client) CallService(ctx context.Context, domain, service, entityID string, data map[string]interface{}) error {
	payload := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["entity_id"] = entityID

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("service call %s.%s failed with status %d: %s", domain, service, resp.StatusCode, string(respBody))
	}

	c.logger.WithFields(logrus.Fields{
		"service":   domain + "." + service,
		"entity_id": entityID,
	}).Debug("Service call succeeded")
	return nil
}

// GetState fetches one entity's current state.
func (c *Client) GetState(ctx context.Context, entityID string) (*halosync.EntityState, error) {
	url := fmt.Sprintf("%s/api/states/%s", c.baseURL, entityID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("entity %s not found", entityID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("state request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var state haState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, err
	}
	entityState := state.toEntityState()
	return &entityState, nil
}

// CheckConnection verifies the REST API is reachable and the token is
// accepted.
func (c *Client) CheckConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Home Assistant API unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("Home Assistant rejected the access token")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Home Assistant API returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}
