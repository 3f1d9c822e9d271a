package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

const (
	webFetchTimeout = 30 * time.Second
	maxFetchBytes   = 1 << 20 // 1 MiB
)

// WebFetchTool fetches a URL and converts HTML to Markdown.
type WebFetchTool struct {
	client *http.Client
}

// NewWebFetchTool creates a WebFetchTool with a default HTTP client.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{client: &http.Client{Timeout: webFetchTimeout}}
}

func (t *WebFetchTool) Name() string { return "WebFetch" }

func (t *WebFetchTool) Definition() Definition {
	return Definition{
		Name:        "WebFetch",
		Description: "Fetch content from a URL. Converts HTML to Markdown for better readability.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The URL to fetch content from",
				},
				"format": map[string]any{
					"type":        "string",
					"description": "Output format: 'markdown' (default) or 'raw'",
				},
			},
			"required": []string{"url"},
		},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, params map[string]any, cwd string) (string, error) {
	rawURL, ok := params["url"].(string)
	if !ok || rawURL == "" {
		return "", fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid url: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "aide/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch failed: %s returned %s", parsed.Host, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	format, _ := params["format"].(string)
	contentType := resp.Header.Get("Content-Type")
	if format == "raw" || !strings.Contains(contentType, "html") {
		return string(body), nil
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(string(body))
	if err != nil {
		// Conversion failure still leaves usable raw content.
		return string(body), nil
	}
	return markdown, nil
}

func init() {
	Register(NewWebFetchTool())
}
