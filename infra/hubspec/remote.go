package hubspec

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/kilianp07/evhub/core/charging"
	"github.com/kilianp07/evhub/core/logger"
)

// maxInventoryBytes bounds the size of a remote hub inventory.
const maxInventoryBytes = 32 << 20

// FetchHubs downloads a hub inventory. The format is taken from the
// response Content-Type and falls back to the URL extension. client is
// expected to carry authentication, see auth.HTTPClient.
func FetchHubs(ctx context.Context, client *http.Client, rawURL string, log logger.Logger) (charging.Infrastructure, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return charging.Infrastructure{}, err
	}
	req.Header.Set("Accept", "application/json, application/yaml, text/csv")
	resp, err := client.Do(req)
	if err != nil {
		return charging.Infrastructure{}, fmt.Errorf("fetch hubs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return charging.Infrastructure{}, fmt.Errorf("fetch hubs %s: unexpected status %s", rawURL, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInventoryBytes))
	if err != nil {
		return charging.Infrastructure{}, fmt.Errorf("read hubs: %w", err)
	}
	infra, err := parseHubs(formatOf(resp.Header.Get("Content-Type"), rawURL), data, log)
	if err != nil {
		return charging.Infrastructure{}, fmt.Errorf("%s: %w", rawURL, err)
	}
	return infra, nil
}

func formatOf(contentType, rawURL string) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return ".json"
	case strings.Contains(mt, "yaml"):
		return ".yaml"
	case mt == "text/csv":
		return ".csv"
	case mt == "text/tab-separated-values":
		return ".tsv"
	}
	if u, err := url.Parse(rawURL); err == nil {
		return strings.ToLower(path.Ext(u.Path))
	}
	return ""
}
