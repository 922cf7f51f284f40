package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/magnolialogic/go-apns-server/internal/storage/yamlstore"
	"github.com/magnolialogic/go-apns-server/pkg/dispatch"
)

// Client is a minimal client for the registry's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// TokensForBundle fetches the registered device tokens for a bundle id.
func (c *Client) TokensForBundle(ctx context.Context, bundleID string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/v1/tokens/%s", c.baseURL, url.PathEscape(bundleID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", endpoint, res.StatusCode)
	}

	var tokens []string
	if err := json.NewDecoder(res.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decode token list: %w", err)
	}
	return tokens, nil
}

// DeleteToken removes a device token from the registry. Used to purge tokens
// APNs reported as dead.
func (c *Client) DeleteToken(ctx context.Context, tokenID string) error {
	endpoint := fmt.Sprintf("%s/v1/token/%s", c.baseURL, url.PathEscape(tokenID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("DELETE %s: unexpected status %d", endpoint, res.StatusCode)
	}
	return nil
}

// APISource resolves targets against the live registry API.
type APISource struct {
	client *Client
}

func NewAPISource(client *Client) *APISource {
	return &APISource{client: client}
}

func (s *APISource) Resolve(ctx context.Context, bundleID string) ([]string, error) {
	tokens, err := s.client.TokensForBundle(ctx, bundleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dispatch.ErrUpstream, err)
	}
	if len(tokens) == 0 {
		return nil, dispatch.ErrNoTargets
	}
	return tokens, nil
}

// SnapshotSource resolves targets from a local registry snapshot file, for
// pushing without a running registry service.
type SnapshotSource struct {
	path string
}

func NewSnapshotSource(path string) *SnapshotSource {
	return &SnapshotSource{path: path}
}

func (s *SnapshotSource) Resolve(_ context.Context, bundleID string) ([]string, error) {
	doc, err := yamlstore.ReadDocument(s.path)
	if err != nil {
		return nil, err
	}

	var tokens []string
	for _, token := range doc.Tokens {
		if token.BundleID == bundleID {
			tokens = append(tokens, token.ID)
		}
	}
	if len(tokens) == 0 {
		return nil, dispatch.ErrNoTargets
	}
	return tokens, nil
}
