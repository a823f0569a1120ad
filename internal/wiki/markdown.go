// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package wiki

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
)

// ExtractMarkdown returns the article body converted from the API's HTML
// extract to Markdown. The HTML is sanitized before conversion; when the
// conversion yields nothing usable the plain-text article is returned
// instead. An unresolvable title yields "" without an error.
func (c *Client) ExtractMarkdown(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("empty title")
	}

	if v, ok := c.cache.get("markdown", title); ok {
		return v.(string), nil
	}

	page, err := c.fetchPage(ctx, title, url.Values{
		"prop":   {"extracts|pageprops"},
		"ppprop": {"disambiguation"},
	})
	if err != nil {
		return "", err
	}
	if !page.usable() {
		c.cache.put("markdown", title, "")
		return "", nil
	}

	md := c.htmlToMarkdown(page.Extract)
	if md == "" {
		// Conversion produced nothing; fall back to the plain-text extract.
		md, err = c.FullText(ctx, page.Title)
		if err != nil {
			return "", err
		}
	}
	c.cache.put("markdown", title, md)
	return md, nil
}

// htmlToMarkdown sanitizes an HTML extract and converts it to Markdown.
// Relative article links are resolved against the language edition's host.
// Returns "" when the conversion fails or produces only whitespace.
func (c *Client) htmlToMarkdown(html string) string {
	clean := c.sanitizer.Sanitize(html)
	if strings.TrimSpace(clean) == "" {
		return ""
	}

	origin := fmt.Sprintf("https://%s.wikipedia.org", c.lang)
	result, err := c.conv.ConvertString(clean, converter.WithDomain(origin))
	if err != nil || strings.TrimSpace(result) == "" {
		return ""
	}
	return strings.TrimSpace(result)
}
