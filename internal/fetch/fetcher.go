// Package fetch downloads legal documents and extracts their readable text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kiranshivaraju/fineprint/internal/config"
	"golang.org/x/time/rate"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrUnsupportedType  = errors.New("unsupported content type")
)

const (
	// boilerplate is removed before text extraction.
	boilerplate = "script, style, noscript, svg, iframe, nav, header, footer, form, button"
	blocks      = "h1, h2, h3, h4, p, li, td, dd, dt"
)

// HTTPFetcher fetches pages with a shared rate limit.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBytes  int64
}

func NewHTTPFetcher(cfg config.FetchConfig) *HTTPFetcher {
	burst := int(math.Max(1, math.Ceil(cfg.RatePerSec)))
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
	}
}

// Fetch returns the visible text of url. HTML is stripped of scripts and page
// chrome; plain text is returned as is.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, f.maxBytes)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))

	var text string
	switch {
	case contentType == "" || strings.Contains(contentType, "html"):
		text, err = extractText(body)
	case strings.HasPrefix(contentType, "text/plain"):
		var raw []byte
		raw, err = io.ReadAll(body)
		text = collapseSpace(string(raw))
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	return text, nil
}

// extractText prefers the main article region when the page marks one.
func extractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	doc.Find(boilerplate).Remove()

	root := doc.Find("main, article, [role=main]").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var b strings.Builder
	root.Find(blocks).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are already covered by their outermost block.
		if s.ParentsFiltered(blocks).Length() > 0 {
			return
		}
		if t := collapseSpace(s.Text()); t != "" {
			b.WriteString(t)
			b.WriteByte('\n')
		}
	})
	if b.Len() == 0 {
		return collapseSpace(root.Text()), nil
	}
	return strings.TrimSpace(b.String()), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
