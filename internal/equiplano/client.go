// Package equiplano talks to the municipality's legacy transparency portal.
// The portal is a DisplayTag application: expenditure listings export to CSV
// through table export flags, and the budget-versus-collected revenue report
// is produced server side as a PDF from a form POST.
package equiplano

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/farxc/orcamento-monitor/internal/logger"
	"github.com/farxc/orcamento-monitor/internal/sniff"
)

const DefaultBaseURL = "http://portaltransparencia.londrina.pr.gov.br:8080"

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"

type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	logger     *logger.Logger

	// Retries covers transient portal failures; Backoff grows linearly
	// with the attempt number.
	Retries int
	Backoff time.Duration
}

// The DisplayTag export needs the session cookie from the listing page, so
// the client always carries a jar.
func newCookieJar() http.CookieJar {
	jar, _ := cookiejar.New(nil)
	return jar
}

func NewClient(baseURL string, appLogger *logger.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing portal base URL %q: %w", baseURL, err)
	}
	jar := newCookieJar()
	return &Client{
		httpClient: &http.Client{Timeout: 90 * time.Second, Jar: jar},
		baseURL:    u,
		logger:     appLogger,
		Retries:    3,
		Backoff:    1500 * time.Millisecond,
	}, nil
}

func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing portal path %q: %w", ref, err)
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

// get issues a GET with retry and returns the body. The referer matters:
// the portal rejects export requests arriving without one.
func (c *Client) get(ctx context.Context, rawURL string, params url.Values, referer string) (*http.Response, []byte, error) {
	full := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		full = rawURL + sep + params.Encode()
	}
	return c.doRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if err != nil {
			return nil, err
		}
		c.decorate(req, referer)
		return req, nil
	})
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values, referer string) (*http.Response, []byte, error) {
	encoded := form.Encode()
	return c.doRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		c.decorate(req, referer)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

func (c *Client) decorate(req *http.Request, referer string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.8,en-US;q=0.6,en;q=0.4")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

func (c *Client) doRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, []byte, error) {
	const component = "EquiplanoClient"

	var lastErr error
	for attempt := 1; attempt <= c.Retries; attempt++ {
		req, err := build()
		if err != nil {
			return nil, nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr == nil {
				return resp, body, nil
			}
			err = readErr
		} else if err == nil {
			resp.Body.Close()
			err = fmt.Errorf("portal returned status %s", resp.Status)
		}
		lastErr = err
		c.logger.Warn(component, "Request attempt failed: url=%s attempt=%d/%d error=%v", req.URL.Path, attempt, c.Retries, err)
		if attempt < c.Retries {
			select {
			case <-time.After(c.Backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}
	}
	return nil, nil, fmt.Errorf("portal request failed after %d attempts: %w", c.Retries, lastErr)
}

// contentIsCSV trusts the Content-Type header when it is specific and falls
// back to sniffing when the server mislabels the payload.
func contentIsCSV(resp *http.Response, body []byte) bool {
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "text/csv"), strings.Contains(ct, "application/csv"):
		return true
	case strings.Contains(ct, "octet-stream") && sniff.Detect(body) != sniff.HTML:
		return true
	}
	if sniff.Detect(body) == sniff.HTML {
		return false
	}
	return sniff.Detect(body) == sniff.Delimited
}

func contentIsPDF(resp *http.Response, body []byte) bool {
	if bytes.HasPrefix(body, []byte("%PDF")) {
		return true
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "application/pdf") {
		return true
	}
	return strings.Contains(ct, "octet-stream") && sniff.Detect(body) != sniff.HTML
}
