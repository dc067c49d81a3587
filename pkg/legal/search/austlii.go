package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	austliiBase      = "https://www.austlii.edu.au"
	austliiUserAgent = "LegalAssistant/1.0 (legal research tool)"
)

var caseLawPaths = map[string]string{
	"NSW":     "au/cases/nsw",
	"VIC":     "au/cases/vic",
	"QLD":     "au/cases/qld",
	"SA":      "au/cases/sa",
	"WA":      "au/cases/wa",
	"TAS":     "au/cases/tas",
	"NT":      "au/cases/nt",
	"ACT":     "au/cases/act",
	"FEDERAL": "au/cases/cth",
}

var (
	citationPattern = regexp.MustCompile(`\[\d{4}\]\s+[A-Z]{2,10}\s+\d+`)
	datePattern     = regexp.MustCompile(`^\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+(19|20)\d{2}$`)
)

// CaseLawSearcher queries the AustLII search endpoint for decisions.
type CaseLawSearcher struct {
	BaseURL string
	client  *http.Client
}

func NewCaseLawSearcher() *CaseLawSearcher {
	return &CaseLawSearcher{
		BaseURL: austliiBase,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *CaseLawSearcher) Search(ctx context.Context, query, jurisdiction string, topK int) (Response, error) {
	if topK <= 0 {
		topK = 5
	}
	mask, ok := caseLawPaths[jurisdiction]
	if !ok {
		mask = caseLawPaths["FEDERAL"]
		jurisdiction = "FEDERAL"
	}

	params := url.Values{}
	params.Set("method", "auto")
	params.Set("query", query)
	params.Set("meta", "/au")
	params.Set("mask_path", mask)
	params.Set("results", fmt.Sprint(topK))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/cgi-bin/sinosrch.cgi?"+params.Encode(), nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("User-Agent", austliiUserAgent)
	req.Header.Set("Referer", austliiBase+"/forms/search1.html")

	res, err := s.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("austlii search: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("austlii search: status %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if err != nil {
		return Response{}, err
	}
	cases, err := parseCaseResults(string(body), s.BaseURL)
	if err != nil {
		return Response{}, err
	}

	out := Response{Confidence: ConfidenceWeb}
	for _, c := range cases {
		if len(out.Results) >= topK {
			break
		}
		summary := []string{c.title}
		if c.court != "" {
			summary = append(summary, "Court: "+c.court)
		}
		if c.date != "" {
			summary = append(summary, "Date: "+c.date)
		}
		citation := c.citation
		if citation == "" {
			citation = c.title
		}
		out.Results = append(out.Results, Result{
			Content:      strings.Join(summary, " | "),
			Citation:     citation,
			Jurisdiction: jurisdiction,
			SourceURL:    c.url,
			Source:       SourceCaseLaw,
		})
	}
	if len(out.Results) == 0 {
		out.Confidence = ConfidenceNone
	} else {
		out.Note = fmt.Sprintf("Case law results from AustLII for %s. Verify details via the source links provided.", jurisdiction)
	}
	return out, nil
}

type caseHit struct {
	title    string
	url      string
	court    string
	date     string
	citation string
}

// parseCaseResults reads result items rendered as <li class="multi">.
func parseCaseResults(doc, base string) ([]caseHit, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse austlii results: %w", err)
	}

	var hits []caseHit
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "li" && hasClass(n, "multi") {
			if h, ok := parseCaseItem(n, base); ok {
				hits = append(hits, h)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return hits, nil
}

func parseCaseItem(li *html.Node, base string) (caseHit, bool) {
	link := find(li, func(n *html.Node) bool { return n.Data == "a" })
	if link == nil {
		return caseHit{}, false
	}
	h := caseHit{title: textOf(link)}
	if h.title == "" {
		return caseHit{}, false
	}

	href := attr(link, "href")
	switch {
	case strings.HasPrefix(href, "http"):
		h.url = href
	case strings.HasPrefix(href, "/"):
		h.url = base + href
	default:
		h.url = base + "/" + href
	}

	if meta := find(li, func(n *html.Node) bool { return n.Data == "p" && hasClass(n, "meta") }); meta != nil {
		if court := find(meta, func(n *html.Node) bool { return n.Data == "a" }); court != nil {
			if t := textOf(court); t != "" && !strings.Contains(t, "LawCite") {
				h.court = t
			}
		}
		for _, span := range findAll(meta, func(n *html.Node) bool { return n.Data == "span" && hasClass(n, "break") }) {
			if t := textOf(span); datePattern.MatchString(t) {
				h.date = t
				break
			}
		}
	}

	h.citation = citationPattern.FindString(h.title)
	return h, true
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if f := find(c, match); f != nil {
			return f
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			out = append(out, c)
		}
		out = append(out, findAll(c, match)...)
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
