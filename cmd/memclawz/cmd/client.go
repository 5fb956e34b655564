package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// clientOptions holds the flags shared by commands that talk to a running
// service.
type clientOptions struct {
	serverURL string
	apiKey    string
}

func (c *clientOptions) resolveKey() string {
	if c.apiKey != "" {
		return c.apiKey
	}
	return os.Getenv("MEMCLAWZ_API_KEY")
}

// call sends one JSON request to the service and decodes the response into
// out. A non-2xx status becomes an error carrying the server's message.
func (c *clientOptions) call(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.serverURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.resolveKey())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach memclawz at %s (is 'memclawz serve' running?): %w", c.serverURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}
