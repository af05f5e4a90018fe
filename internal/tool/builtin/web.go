package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/unillm/unillm/internal/tool"
	"github.com/unillm/unillm/pkg/types"
)

const webMaxResponse = 2 * 1024 * 1024

func webFetchTool() tool.Definition {
	client := &http.Client{Timeout: 30 * time.Second}

	return tool.Definition{
		ToolInfo: types.ToolInfo{
			Name:        "web_fetch",
			Description: "Fetches a URL and returns its content as markdown or plain text.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "Fully-formed http(s) URL to fetch"},
					"format": {"type": "string", "description": "Output format: markdown (default) or text"}
				},
				"required": ["url"]
			}`),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var input struct {
				URL    string `json:"url"`
				Format string `json:"format"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if !strings.HasPrefix(input.URL, "http://") && !strings.HasPrefix(input.URL, "https://") {
				return "", fmt.Errorf("url must start with http:// or https://")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
			if err != nil {
				return "", err
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("fetch failed: HTTP %d", resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, webMaxResponse))
			if err != nil {
				return "", err
			}

			if input.Format == "text" {
				return htmlToText(string(body))
			}
			return htmlToMarkdown(string(body))
		},
	}
}

// htmlToText strips non-content elements and returns plain text.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe").Remove()
	return strings.TrimSpace(doc.Text()), nil
}

// htmlToMarkdown converts HTML content to markdown.
func htmlToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
	})
	converter.Remove("script", "style", "meta", "link")
	return converter.ConvertString(html)
}
