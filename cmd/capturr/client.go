package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/loykin/capturr"
)

// APIClient talks to a running capturr daemon's control API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a new API client.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8391/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Status lists in-flight recordings.
func (c *APIClient) Status() ([]capturr.RecordingStatus, error) {
	resp, err := c.client.Get(c.baseURL + "/status")
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var recs []capturr.RecordingStatus
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Stop cancels an in-flight recording. window is optional (0 = any window
// of the source).
func (c *APIClient) Stop(source string, window int64) error {
	u := c.baseURL + "/stop?source=" + source
	if window != 0 {
		u += "&window=" + strconv.FormatInt(window, 10)
	}
	resp, err := c.client.Post(u, "application/json", nil)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", body.Error)
}
