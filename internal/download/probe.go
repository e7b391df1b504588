// Package download decides whether an article is downloadable and fetches
// its PDF.
package download

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/matsen/snowball/internal/resilience"
	"github.com/rotisserie/eris"
)

// Publisher pages often refuse requests without a browser user agent.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Probe follows an eprint URL to a PDF, looking through one landing page.
type Probe struct {
	Client *http.Client
}

// NewProbe returns a probe with a 30 second timeout.
func NewProbe() *Probe {
	return &Probe{Client: &http.Client{Timeout: 30 * time.Second}}
}

// NewProxyProbe returns a probe whose requests go through the proxy at
// proxyURL. An empty proxyURL gives a direct probe.
func NewProxyProbe(proxyURL string) (*Probe, error) {
	p := NewProbe()
	if proxyURL == "" {
		return p, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, eris.Errorf("invalid proxy url %q", proxyURL)
	}
	p.Client.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	return p, nil
}

type response struct {
	resp  *http.Response
	body  *bufio.Reader
	isPDF bool
}

func (r *response) Close() error { return r.resp.Body.Close() }

func (p *Probe) client() *http.Client {
	if p.Client == nil {
		return http.DefaultClient
	}
	return p.Client
}

func (p *Probe) get(ctx context.Context, rawURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "building request for %s", rawURL)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/pdf;q=0.9,*/*;q=0.8")
	req.Header.Set("Referer", rawURL)

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "GET %s", rawURL)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, resilience.StatusError(rawURL, resp.StatusCode)
	}
	body := bufio.NewReader(resp.Body)
	head, _ := body.Peek(5)
	ctype, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return &response{
		resp:  resp,
		body:  body,
		isPDF: ctype == "application/pdf" || bytes.HasPrefix(head, []byte("%PDF")),
	}, nil
}

// Resolve returns the URL that serves the PDF: rawURL itself, or the
// link found on the page it serves. It returns "" when the page links no
// PDF.
func (p *Probe) Resolve(ctx context.Context, rawURL string) (string, error) {
	r, err := p.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer r.Close()
	if r.isPDF {
		return rawURL, nil
	}
	return pdfLink(r.body, r.resp.Request.URL)
}

// Check reports whether rawURL leads to a PDF. An empty URL is not
// downloadable. Transport and HTTP errors are returned so the caller can
// fall back to asking a human.
func (p *Probe) Check(ctx context.Context, rawURL string) (bool, error) {
	if strings.TrimSpace(rawURL) == "" {
		return false, nil
	}
	link, err := p.Resolve(ctx, rawURL)
	if err != nil || link == "" {
		return false, err
	}
	if link == rawURL {
		return true, nil
	}
	r, err := p.get(ctx, link)
	if err != nil {
		return false, err
	}
	defer r.Close()
	return r.isPDF, nil
}

// pdfLink searches a landing page for the PDF it points at. Meta refresh
// wins, then frames and anchors naming a .pdf, then getPDF.jsp style
// handlers.
func pdfLink(body io.Reader, base *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", eris.Wrap(err, "parsing landing page")
	}

	var found string
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(s.AttrOr("http-equiv", ""), "refresh") {
			return true
		}
		content := s.AttrOr("content", "")
		if i := strings.Index(strings.ToLower(content), "url="); i >= 0 {
			found = strings.Trim(strings.TrimSpace(content[i+4:]), `'"`)
		}
		return found == ""
	})
	if found != "" {
		return resolve(base, found), nil
	}

	candidates := []struct{ sel, attr, needle string }{
		{"iframe[src]", "src", ".pdf"},
		{"embed[src]", "src", ".pdf"},
		{"a[href]", "href", ".pdf"},
		{"[href]", "href", "getpdf.jsp"},
		{"[src]", "src", "getpdf.jsp"},
	}
	for _, c := range candidates {
		doc.Find(c.sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v := s.AttrOr(c.attr, "")
			if strings.Contains(strings.ToLower(v), c.needle) {
				found = strings.TrimSpace(v)
			}
			return found == ""
		})
		if found != "" {
			return resolve(base, found), nil
		}
	}
	return "", nil
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
