package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/mindwtr/mindwtr/internal/config"
	"github.com/mindwtr/mindwtr/internal/task"
)

const (
	dropboxContentURL = "https://content.dropboxapi.com"
	dropboxAuthURL    = "https://api.dropbox.com/oauth2/token"
)

// Dropbox stores the snapshot as one file via the Dropbox content API.
// Access tokens are short-lived; on a 401 the adapter refreshes once using
// the stored refresh token, persists the new access token through the
// persist callback, and retries the original request once.
type Dropbox struct {
	appKey       string
	refreshToken string
	path         string
	persist      func(token string) error
	client       *http.Client
	logger       *log.Logger

	// contentBase and authBase are swapped out in tests.
	contentBase string
	authBase    string

	mu          sync.Mutex
	accessToken string
}

// NewDropbox builds the adapter from stored OAuth material. The persist
// callback receives refreshed access tokens; a nil callback skips
// persistence, which only costs an extra refresh after restart.
func NewDropbox(cfg config.Dropbox, persist func(token string) error, logger *log.Logger) *Dropbox {
	if logger == nil {
		logger = log.New(log.Writer(), "[dropbox] ", log.LstdFlags)
	}
	path := cfg.Path
	if path == "" {
		path = "/mindwtr/data.json"
	}
	return &Dropbox{
		appKey:       cfg.AppKey,
		refreshToken: cfg.RefreshToken,
		path:         path,
		persist:      persist,
		client:       &http.Client{Timeout: DefaultTimeout},
		logger:       logger,
		contentBase:  dropboxContentURL,
		authBase:     dropboxAuthURL,
		accessToken:  cfg.AccessToken,
	}
}

func (d *Dropbox) Kind() string { return "dropbox" }

func (d *Dropbox) Description() string {
	return fmt.Sprintf("Dropbox file %s", d.path)
}

func (d *Dropbox) Fetch(ctx context.Context) (*task.AppData, error) {
	body, err := d.call(ctx, "/2/files/download", nil, map[string]any{"path": d.path})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: dropbox file %s is empty", ErrNotFound, d.path)
	}
	if err := task.CheckShape(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	var data task.AppData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: decode dropbox file: %v", ErrFormat, err)
	}
	d.logger.Printf("fetched snapshot from %s", d.path)
	return data.Normalize(), nil
}

func (d *Dropbox) Store(ctx context.Context, data *task.AppData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	arg := map[string]any{"path": d.path, "mode": "overwrite", "mute": true}
	if _, err := d.call(ctx, "/2/files/upload", raw, arg); err != nil {
		return err
	}
	d.logger.Printf("stored snapshot to %s", d.path)
	return nil
}

// call performs one content-API request, refreshing the access token at most
// once if Dropbox answers 401.
func (d *Dropbox) call(ctx context.Context, endpoint string, payload []byte, arg map[string]any) ([]byte, error) {
	body, status, err := d.do(ctx, endpoint, payload, arg)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if err := d.refreshAccessToken(ctx); err != nil {
			return nil, err
		}
		body, status, err = d.do(ctx, endpoint, payload, arg)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: dropbox rejected the refreshed token", ErrAuth)
		}
	}
	switch {
	case status == http.StatusConflict:
		// The content API signals a missing path as 409 path/not_found.
		if bytes.Contains(body, []byte("not_found")) {
			return nil, fmt.Errorf("%w: dropbox file %s", ErrNotFound, d.path)
		}
		return nil, fmt.Errorf("%w: dropbox %s: status 409", ErrNetwork, endpoint)
	case status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: dropbox %s: status 403", ErrPermission, endpoint)
	case status < 200 || status > 299:
		return nil, fmt.Errorf("%w: dropbox %s: status %d", ErrNetwork, endpoint, status)
	}
	return body, nil
}

func (d *Dropbox) do(ctx context.Context, endpoint string, payload []byte, arg map[string]any) ([]byte, int, error) {
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return nil, 0, fmt.Errorf("encode api arg: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentBase+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.currentToken())
	req.Header.Set("Dropbox-API-Arg", string(argJSON))
	if payload != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: dropbox %s: %v", ErrNetwork, endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read dropbox response: %v", ErrNetwork, err)
	}
	return body, resp.StatusCode, nil
}

func (d *Dropbox) currentToken() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accessToken
}

// refreshAccessToken trades the refresh token for a new access token and
// persists it. Any failure here is terminal for the sync attempt.
func (d *Dropbox) refreshAccessToken(ctx context.Context) error {
	if d.refreshToken == "" || d.appKey == "" {
		return fmt.Errorf("%w: dropbox access token expired and no refresh token is stored", ErrAuth)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {d.refreshToken},
		"client_id":     {d.appKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.authBase, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: dropbox token refresh: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read refresh response: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: dropbox token refresh: status %d", ErrAuth, resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		return fmt.Errorf("%w: dropbox token refresh returned no access token", ErrAuth)
	}

	d.mu.Lock()
	d.accessToken = out.AccessToken
	d.mu.Unlock()
	d.logger.Printf("refreshed dropbox access token")

	if d.persist != nil {
		if err := d.persist(out.AccessToken); err != nil {
			// Keep syncing with the in-memory token; persistence can catch
			// up on the next refresh.
			d.logger.Printf("warning: could not persist refreshed token: %v", err)
		}
	}
	return nil
}
