// Package fetch is the shared HTTP path for consent-library endpoints and
// site probes. Every GET goes through the rate limiter and the response
// cache, and every failure is classified into a crawl outcome so the
// extractors never interpret transport errors themselves.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/consent-audit/crawl/internal/cache"
	"github.com/consent-audit/crawl/internal/proxy"
	"github.com/consent-audit/crawl/internal/ratelimit"
	urlutil "github.com/consent-audit/crawl/internal/utils/url"
	"github.com/consent-audit/crawl/pkg/models"
)

// DefaultUserAgent identifies the crawler to consent CDNs.
const DefaultUserAgent = "consent-crawl/1.0 (+https://github.com/consent-audit/crawl)"

const maxRedirects = 10

// Options adjusts a single request.
type Options struct {
	// Headers are sent in addition to the client defaults. Requests with
	// extra headers bypass the cache because the response may depend on
	// them (the Cookiebot declaration varies with Referer).
	Headers map[string]string

	// Insecure skips TLS certificate verification for this request.
	Insecure bool
}

// Result is the classified outcome of a GET. Status and Body are only
// meaningful when a response was received; Outcome is always set.
type Result struct {
	URL        string
	Status     int
	Body       []byte
	Outcome    models.CrawlOutcome
	Diagnostic string
	Err        error
	FromCache  bool
}

// OK reports whether the request produced a usable response.
func (r *Result) OK() bool {
	return r.Outcome == models.OutcomeSuccess
}

// Config carries the client construction knobs. Zero values fall back to
// the defaults the crawler ships with.
type Config struct {
	Timeout        time.Duration // whole-request deadline, default 30s
	ConnectTimeout time.Duration // dial deadline, default 6s
	UserAgent      string
	Insecure       bool                  // skip TLS certificate verification on every request
	Headers        map[string]string     // extra default headers for every request
	Proxies        *proxy.Pool           // optional forward proxies
	Limiter        ratelimit.RateLimiter // optional per-host throttle
	Cache          cache.Cache           // optional response cache
	CacheTTL       time.Duration         // default 15m
}

// Client issues classified GET requests. Both underlying resty clients
// share one cookie jar so a probe and the consent-endpoint requests that
// follow it behave like a single browsing session.
type Client struct {
	std       *resty.Client
	insecure  *resty.Client
	limiter   ratelimit.RateLimiter
	cache     cache.Cache
	cacheTTL  time.Duration
	proxies   *proxy.Pool
	lastProxy atomic.Value
}

// NewClient builds the shared HTTP client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 6 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		limiter:  cfg.Limiter,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		proxies:  cfg.Proxies,
	}
	c.std = c.newRestyClient(cfg, jar, cfg.Insecure)
	c.insecure = c.newRestyClient(cfg, jar, true)
	return c, nil
}

func (c *Client) newRestyClient(cfg Config, jar http.CookieJar, insecure bool) *resty.Client {
	transport := &http.Transport{
		Proxy: c.proxyFor,
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client := resty.New().
		SetTransport(transport).
		SetCookieJar(jar).
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects)).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.9")
	if len(cfg.Headers) > 0 {
		client.SetHeaders(cfg.Headers)
	}
	return client
}

// proxyFor hands each new connection the next healthy proxy. Returning a
// nil URL means a direct connection.
func (c *Client) proxyFor(_ *http.Request) (*url.URL, error) {
	if c.proxies == nil || c.proxies.Size() == 0 {
		return nil, nil
	}
	raw := c.proxies.Next()
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	c.lastProxy.Store(raw)
	return u, nil
}

func (c *Client) currentProxy() string {
	if v := c.lastProxy.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Get performs a rate-limited GET and classifies the result. It never
// returns an error: failures are encoded in Result.Outcome with the
// underlying error kept in Result.Err for logging.
func (c *Client) Get(ctx context.Context, rawURL string, opts Options) *Result {
	res := &Result{URL: rawURL, Outcome: models.OutcomeUnknown}

	if err := urlutil.ValidateURL(rawURL); err != nil {
		res.Outcome = models.OutcomeMalformedURL
		res.Diagnostic = fmt.Sprintf("malformed URL %q: %v", rawURL, err)
		res.Err = err
		return res
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			res.Outcome = models.OutcomeConnFailed
			res.Diagnostic = "request cancelled while rate limited: " + err.Error()
			res.Err = err
			return res
		}
	}

	cacheable := c.cache != nil && len(opts.Headers) == 0 && !opts.Insecure
	if cacheable {
		if entry, found := c.cache.Get(rawURL); found {
			res.Status = entry.Status
			res.Body = entry.Body
			res.Outcome, res.Diagnostic = classifyStatus(entry.Status, http.StatusText(entry.Status))
			res.FromCache = true
			return res
		}
	}

	client := c.std
	if opts.Insecure {
		client = c.insecure
	}

	req := client.R().SetContext(ctx)
	if len(opts.Headers) > 0 {
		req.SetHeaders(opts.Headers)
	}

	log.Debug().Str("url", rawURL).Bool("insecure", opts.Insecure).Msg("GET")
	resp, err := req.Get(rawURL)
	if err != nil {
		res.Outcome, res.Diagnostic = classifyError(err)
		res.Err = err
		if res.Outcome == models.OutcomeConnFailed {
			if p := c.currentProxy(); p != "" {
				c.proxies.MarkFailed(p)
			}
		}
		log.Debug().Str("url", rawURL).Stringer("outcome", res.Outcome).Err(err).Msg("GET failed")
		return res
	}

	res.Status = resp.StatusCode()
	res.Body = resp.Body()
	res.Outcome, res.Diagnostic = classifyStatus(resp.StatusCode(), resp.Status())

	if res.OK() {
		if p := c.currentProxy(); p != "" {
			c.proxies.MarkHealthy(p)
		}
		if cacheable {
			if err := c.cache.Set(rawURL, &cache.Entry{Status: res.Status, Body: res.Body}, c.cacheTTL); err != nil {
				log.Debug().Err(err).Str("url", rawURL).Msg("Response cache store failed")
			}
		}
	}

	log.Debug().
		Str("url", rawURL).
		Int("status", res.Status).
		Int("bytes", len(res.Body)).
		Stringer("outcome", res.Outcome).
		Msg("GET done")
	return res
}

// classifyStatus maps an HTTP status code to a crawl outcome. Cloudflare
// reports an origin TLS handshake failure as 525, which callers treat as
// an SSL problem rather than a generic HTTP error.
func classifyStatus(code int, status string) (models.CrawlOutcome, string) {
	switch {
	case code == 525:
		return models.OutcomeSSLError, "Error Code: 525 -- SSL handshake with Cloudflare failed."
	case code >= 400:
		return models.OutcomeHTTPError, "HTTP error: " + status
	default:
		return models.OutcomeSuccess, ""
	}
}

// classifyError maps a transport error to a crawl outcome. TLS problems
// are checked before connection problems so a certificate failure inside
// a dial is not misread as unreachable.
func classifyError(err error) (models.CrawlOutcome, string) {
	var (
		certVerify  *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostname    x509.HostnameError
		certInvalid x509.CertificateInvalidError
		recordHdr   tls.RecordHeaderError
	)
	if errors.As(err, &certVerify) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostname) || errors.As(err, &certInvalid) ||
		errors.As(err, &recordHdr) {
		return models.OutcomeSSLError, "TLS failure: " + err.Error()
	}

	msg := err.Error()
	if strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:") {
		return models.OutcomeSSLError, "TLS failure: " + msg
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.OutcomeConnFailed, "DNS lookup failed: " + msg
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return models.OutcomeConnFailed, "connection failed: " + msg
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.OutcomeConnFailed, "request timed out: " + msg
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.OutcomeConnFailed, "request cancelled: " + msg
	}
	if strings.Contains(msg, "stopped after") {
		return models.OutcomeConnFailed, "redirect loop: " + msg
	}

	return models.OutcomeUnknown, "unexpected fetch error: " + msg
}
