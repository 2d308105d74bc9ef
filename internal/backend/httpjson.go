package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mindwtr/mindwtr/internal/task"
)

// validateHTTPURL pre-flights an endpoint URL before any network call.
// requireTLS additionally rejects plain http except for loopback hosts,
// per the self-hosted cloud contract.
func validateHTTPURL(raw string, requireTLS bool) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", ErrConfig, raw, err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if requireTLS && !isLoopback(u.Hostname()) {
			return nil, fmt.Errorf("%w: %q must use https (plain http is allowed only for localhost)", ErrConfig, raw)
		}
	default:
		return nil, fmt.Errorf("%w: %q must be an http or https url", ErrConfig, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrConfig, raw)
	}
	return u, nil
}

func isLoopback(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1", "10.0.2.2":
		return true
	}
	return false
}

// getSnapshot GETs a JSON snapshot. 404 maps to ErrNotFound, auth failures
// to ErrAuth/ErrPermission, undecodable bodies to ErrFormat.
func getSnapshot(ctx context.Context, client *http.Client, endpoint string, decorate func(*http.Request)) (*task.AppData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	decorate(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrNetwork, redactURL(endpoint), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: GET %s", ErrNotFound, redactURL(endpoint))
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: GET %s: status 401", ErrAuth, redactURL(endpoint))
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: GET %s: status 403", ErrPermission, redactURL(endpoint))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrNetwork, redactURL(endpoint), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: GET %s: empty body", ErrNotFound, redactURL(endpoint))
	}
	if err := task.CheckShape(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	var data task.AppData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrFormat, err)
	}
	return data.Normalize(), nil
}

// putSnapshot PUTs a JSON snapshot with the same status mapping as
// getSnapshot (minus the 404 case, which is an error on write).
func putSnapshot(ctx context.Context, client *http.Client, endpoint string, data *task.AppData, decorate func(*http.Request)) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	decorate(req)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: PUT %s: %v", ErrNetwork, redactURL(endpoint), err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: PUT %s: status 401", ErrAuth, redactURL(endpoint))
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: PUT %s: status 403", ErrPermission, redactURL(endpoint))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: PUT %s: status %d", ErrNetwork, redactURL(endpoint), resp.StatusCode)
	}
	return nil
}

// redactURL strips userinfo and query from a URL destined for logs or error
// messages. Credentials must never surface in lastSyncError.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// trimTrailingSlash normalizes endpoint bases.
func trimTrailingSlash(raw string) string {
	return strings.TrimRight(raw, "/")
}
