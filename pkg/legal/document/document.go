// Package document fetches an uploaded file by URL and extracts its text.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html"
)

var (
	ErrDisallowedURL   = errors.New("document url not allowed")
	ErrTooLarge        = errors.New("document too large")
	ErrUnsupportedType = errors.New("unsupported document type")
)

const (
	DefaultMaxBytes = 10 << 20
	maxTextChars    = 20000
)

type ContentType string

const (
	ContentText ContentType = "text"
	ContentHTML ContentType = "html"
)

// Fetcher downloads documents from an allow-listed set of hosts.
type Fetcher struct {
	AllowedHosts []string
	MaxBytes     int64
	client       *http.Client
}

func NewFetcher(allowedHosts []string, maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		AllowedHosts: allowedHosts,
		MaxBytes:     maxBytes,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *Fetcher) allowed(u *url.URL) bool {
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range f.AllowedHosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Fetch returns the document text and its content type.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, ContentType, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !f.allowed(u) {
		return "", "", fmt.Errorf("%w: %s", ErrDisallowedURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", "", err
	}
	res, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch document: %w", err)
	}
	defer res.Body.Close()

	if !f.allowed(res.Request.URL) {
		return "", "", fmt.Errorf("%w: redirected to %s", ErrDisallowedURL, res.Request.URL.Host)
	}
	if res.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("fetch document: HTTP %d", res.StatusCode)
	}
	if res.ContentLength > f.MaxBytes {
		return "", "", fmt.Errorf("%w: %d bytes", ErrTooLarge, res.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, f.MaxBytes+1))
	if err != nil {
		return "", "", fmt.Errorf("read document: %w", err)
	}
	if int64(len(body)) > f.MaxBytes {
		return "", "", fmt.Errorf("%w: over %d bytes", ErrTooLarge, f.MaxBytes)
	}
	return Extract(body)
}

// Extract sniffs the payload and pulls out readable text.
func Extract(body []byte) (string, ContentType, error) {
	mt := mimetype.Detect(body)
	switch {
	case mt.Is("text/html"):
		text, err := htmlText(string(body))
		if err != nil {
			return "", "", err
		}
		return truncate(text), ContentHTML, nil
	case mt.Is("text/plain"), mt.Is("application/json"), mt.Is("text/csv"):
		return truncate(string(body)), ContentText, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}
}

var blankLines = regexp.MustCompile(`\n{3,}`)

var skipElements = map[string]bool{
	"script": true, "style": true, "nav": true, "header": true, "footer": true, "noscript": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// htmlText prefers the <article> element when present, like most
// legislation sites render their content.
func htmlText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	start := root
	if article := findElement(root, "article"); article != nil {
		start = article
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteString("\n")
		}
	}
	walk(start)

	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text := blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text), nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findElement(c, tag); f != nil {
			return f
		}
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxTextChars {
		return s
	}
	return s[:maxTextChars] + "\n\n[Truncated]"
}
