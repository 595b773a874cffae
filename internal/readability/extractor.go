// Package readability extracts the main content of an article page on
// demand and caches the result on the article row.
package readability

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/microcosm-cc/bluemonday"

	"estuary/internal/config"
	"estuary/internal/feederr"
	"estuary/internal/network"
	"estuary/internal/repository"
)

const fetchTimeout = 30 * time.Second

type Extractor struct {
	articles  repository.ArticleRepository
	clients   *network.ClientFactory
	sanitizer *bluemonday.Policy
}

func NewExtractor(articles repository.ArticleRepository, clients *network.ClientFactory) *Extractor {
	// Scripts and event handlers confuse the readability pass; strip
	// them first but keep structural elements it relies on.
	p := bluemonday.UGCPolicy()
	p.AllowElements("article", "section", "header", "footer", "nav", "aside", "main", "figure", "figcaption")
	p.AllowAttrs("id", "class", "lang", "dir").Globally()

	return &Extractor{articles: articles, clients: clients, sanitizer: p}
}

// FetchReadableContent returns the readable HTML for an article,
// extracting and caching it on first use.
func (e *Extractor) FetchReadableContent(ctx context.Context, articleID int64) (string, error) {
	article, err := e.articles.GetByID(ctx, articleID)
	if err != nil {
		return "", err
	}
	if article.ReadableContent != nil && *article.ReadableContent != "" {
		return *article.ReadableContent, nil
	}
	if article.URL == nil || *article.URL == "" {
		return "", feederr.New(feederr.KindValidation, "article has no URL")
	}

	content, err := e.Extract(ctx, *article.URL)
	if err != nil {
		return "", err
	}
	if err := e.articles.UpdateReadableContent(ctx, articleID, content); err != nil {
		return "", err
	}
	return content, nil
}

// Extract fetches a page and runs readability extraction over it.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", feederr.Wrap(feederr.KindValidation, "invalid article URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", feederr.Wrap(feederr.KindValidation, "invalid article URL", err)
	}
	req.Header.Set("User-Agent", config.BrowserUserAgent)

	resp, err := e.clients.NewHTTPClient(fetchTimeout).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", feederr.Newf(feederr.KindHTTPStatus, "unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	sanitized := e.sanitizer.Sanitize(string(body))

	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(sanitized), pageURL)
	if err != nil {
		return "", feederr.Wrap(feederr.KindParse, "readability parse failed", err)
	}

	var buf bytes.Buffer
	if err := article.RenderHTML(&buf); err != nil {
		return "", feederr.Wrap(feederr.KindParse, "readability render failed", err)
	}
	if buf.Len() == 0 {
		return "", feederr.New(feederr.KindParse, "no readable content")
	}
	return buf.String(), nil
}
