package backend

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/mindwtr/mindwtr/internal/task"
)

// WebDAV stores the snapshot as a single JSON document on a WebDAV share
// using HTTP basic auth. Plain GET/PUT is all we need; no PROPFIND.
type WebDAV struct {
	endpoint string
	username string
	password string
	client   *http.Client
	logger   *log.Logger
}

// NewWebDAV validates the base URL eagerly so a misconfigured share fails
// before the first sync attempt. The snapshot lives at <base>/data.json
// unless the URL already points at a .json file.
func NewWebDAV(rawURL, username, password string, logger *log.Logger) (*WebDAV, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[webdav] ", log.LstdFlags)
	}
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("%w: webdav url is empty", ErrConfig)
	}
	if _, err := validateHTTPURL(rawURL, false); err != nil {
		return nil, err
	}
	endpoint := trimTrailingSlash(rawURL)
	if !strings.HasSuffix(endpoint, ".json") {
		endpoint += "/data.json"
	}
	return &WebDAV{
		endpoint: endpoint,
		username: username,
		password: password,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logger,
	}, nil
}

func (w *WebDAV) Kind() string { return "webdav" }

func (w *WebDAV) Description() string {
	return fmt.Sprintf("WebDAV share at %s", redactURL(w.endpoint))
}

func (w *WebDAV) Fetch(ctx context.Context) (*task.AppData, error) {
	data, err := getSnapshot(ctx, w.client, w.endpoint, w.decorate)
	if err != nil {
		return nil, err
	}
	w.logger.Printf("fetched snapshot from %s", redactURL(w.endpoint))
	return data, nil
}

func (w *WebDAV) Store(ctx context.Context, data *task.AppData) error {
	if err := putSnapshot(ctx, w.client, w.endpoint, data, w.decorate); err != nil {
		return err
	}
	w.logger.Printf("stored snapshot to %s", redactURL(w.endpoint))
	return nil
}

func (w *WebDAV) decorate(req *http.Request) {
	req.SetBasicAuth(w.username, w.password)
}
