package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/pscheid92/moodmap/internal/platform/version"
)

type catalogResponse struct {
	Results []struct {
		Resource struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"resource"`
	} `json:"results"`
}

// DiscoverDataset searches the catalog for a dataset whose name contains the
// configured query, case-insensitively. It never fails: any error or timeout
// resolves to the fallback dataset id.
func (c *Client) DiscoverDataset(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DiscoveryTimeout)
	defer cancel()

	id, err := c.searchCatalog(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Dataset discovery failed, using default",
			"dataset", c.cfg.FallbackDatasetID,
			"error", err,
		)
		c.metrics.ObserveDiscovery("default")
		return c.cfg.FallbackDatasetID
	}

	slog.InfoContext(ctx, "Discovered fallback dataset", "dataset", id)
	c.metrics.ObserveDiscovery("found")
	return id
}

func (c *Client) searchCatalog(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("only", "datasets")
	q.Set("domains", c.cfg.CatalogDomain)
	q.Set("q", c.cfg.CatalogQuery)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.CatalogURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var body catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode catalog response: %w", err)
	}

	want := strings.ToLower(c.cfg.CatalogQuery)
	for _, r := range body.Results {
		if r.Resource.ID != "" && strings.Contains(strings.ToLower(r.Resource.Name), want) {
			return r.Resource.ID, nil
		}
	}
	return "", fmt.Errorf("no catalog result matches %q", c.cfg.CatalogQuery)
}
