package backend

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/mindwtr/mindwtr/internal/task"
)

// Cloud talks to a self-hosted sync server with a bearer token. The server
// exposes GET/PUT on a single /data endpoint holding the whole snapshot.
type Cloud struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *log.Logger
}

// NewCloud requires https except for loopback hosts, so a token is never
// sent over a plaintext link to a remote machine.
func NewCloud(rawURL, token string, logger *log.Logger) (*Cloud, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[cloud] ", log.LstdFlags)
	}
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("%w: cloud url is empty", ErrConfig)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: cloud token is empty", ErrConfig)
	}
	if _, err := validateHTTPURL(rawURL, true); err != nil {
		return nil, err
	}
	endpoint := trimTrailingSlash(rawURL)
	if !strings.HasSuffix(endpoint, "/data") {
		endpoint += "/data"
	}
	return &Cloud{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logger,
	}, nil
}

func (c *Cloud) Kind() string { return "cloud" }

func (c *Cloud) Description() string {
	return fmt.Sprintf("sync server at %s", redactURL(c.endpoint))
}

func (c *Cloud) Fetch(ctx context.Context) (*task.AppData, error) {
	data, err := getSnapshot(ctx, c.client, c.endpoint, c.decorate)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("fetched snapshot from %s", redactURL(c.endpoint))
	return data, nil
}

func (c *Cloud) Store(ctx context.Context, data *task.AppData) error {
	if err := putSnapshot(ctx, c.client, c.endpoint, data, c.decorate); err != nil {
		return err
	}
	c.logger.Printf("stored snapshot to %s", redactURL(c.endpoint))
	return nil
}

func (c *Cloud) decorate(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}
