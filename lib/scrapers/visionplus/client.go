package visionplus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"visionsync-backend/lib/restyutil"
	"visionsync-backend/lib/telemetry"

	"dario.cat/mergo"
	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

var ErrNotConfigured = errors.New("credentials not configured")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Options struct {
	BaseUrl  string
	Username string
	Password string

	// empty entries fall back to DefaultPractice, DefaultPaths and DefaultFields
	Practice Practice
	Paths    Paths
	Fields   Fields

	Timeout           time.Duration
	RequestsPerSecond float64
	CloudflareBypass  bool
}

// Client speaks the VisionPlus web forms protocol. It never follows redirects
// and keeps no cookies of its own, both are the caller's business through a
// Session.
type Client struct {
	BaseUrl  *url.URL
	Http     *resty.Client
	Practice Practice
	Paths    Paths
	Fields   Fields

	username string
	password string
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseUrl == "" || opts.Username == "" || opts.Password == "" {
		return nil, ErrNotConfigured
	}
	baseUrl, err := url.Parse(strings.TrimRight(opts.BaseUrl, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseUrl)
	}

	if opts.Practice == (Practice{}) {
		opts.Practice = DefaultPractice()
	}
	// partial tables from configuration keep the defaults for what they omit
	err = mergo.Merge(&opts.Paths, DefaultPaths())
	if err != nil {
		return nil, err
	}
	err = mergo.Merge(&opts.Fields, DefaultFields())
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}

	client := resty.New()
	client.SetBaseURL(baseUrl.String())
	client.SetCookieJar(nil)
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))
	client.SetHeader("user-agent", userAgent)
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetTimeout(opts.Timeout)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	// a burst of at least 1 means that no requests will be dropped
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, "visionsync.lib.scrapers.visionplus.http")
	restyutil.InstrumentClient(client, "visionplus", restyInstrumentOutput)

	return &Client{
		BaseUrl:  baseUrl,
		Http:     client,
		Practice: opts.Practice,
		Paths:    opts.Paths,
		Fields:   opts.Fields,
		username: opts.Username,
		password: opts.Password,
	}, nil
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
	// Location is the redirect target resolved to an absolute url, empty when
	// the response did not redirect.
	Location string
}

func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r Response) Found() bool {
	return r.StatusCode == http.StatusFound
}

// Get fetches target, a path relative to the base url or an absolute url.
func (c *Client) Get(ctx context.Context, session *Session, target string) (Response, error) {
	return c.do(ctx, session, http.MethodGet, target, nil)
}

// PostForm submits form as application/x-www-form-urlencoded.
func (c *Client) PostForm(ctx context.Context, session *Session, target string, form url.Values) (Response, error) {
	return c.do(ctx, session, http.MethodPost, target, form)
}

func (c *Client) do(ctx context.Context, session *Session, method, target string, form url.Values) (Response, error) {
	req := c.Http.R().SetContext(ctx)
	if cookie := session.Cookies.Header(); cookie != "" {
		req.SetHeader("Cookie", cookie)
	}
	if form != nil {
		req.SetFormDataFromValues(form)
	}

	res, err := req.Execute(method, target)
	if err != nil {
		return Response{}, err
	}
	session.Cookies.Store(res.Header())

	out := Response{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.String(),
	}
	if location := res.Header().Get("Location"); location != "" {
		out.Location = c.resolve(res, location)
	}
	return out, nil
}

func (c *Client) resolve(res *resty.Response, location string) string {
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	base := c.BaseUrl
	if res.Request != nil && res.Request.RawRequest != nil {
		base = res.Request.RawRequest.URL
	}
	return base.ResolveReference(ref).String()
}

// BouncedToLogin reports whether the remote host answered with (or redirected
// to) the login page, which is how it rejects a request from an expired
// session.
func (c *Client) BouncedToLogin(res Response) bool {
	loginPage := path.Base(c.Paths.Login)
	if res.Location != "" && strings.Contains(res.Location, loginPage) {
		return true
	}
	passwordField := c.Fields.Login.Password
	return passwordField != "" && strings.Contains(res.Body, `name="`+passwordField+`"`)
}
