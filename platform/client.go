// Package platform implements the entities repositories over the platform
// REST API.
//
// The transport is a fasthttp client throttled by a token bucket; every
// non-2xx response is surfaced as an *entities.PlatformError carrying the
// status code.
package platform

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/Noofbiz/labelbowl/entities"
)

var log = logrus.WithField("pkg", "platform")

// Config holds the client settings. Zero values are replaced by defaults in
// New.
type Config struct {
	// BaseURL of the API, e.g. "https://gate.example.com/api/v1".
	BaseURL string `yaml:"base_url"`

	// Token is sent as a bearer token when set.
	Token string `yaml:"token"`

	// RequestsPerSecond and Burst bound the request rate (default 20/s, burst 40).
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// Timeout applies to a single request when the context has no deadline
	// (default 60s).
	Timeout time.Duration `yaml:"timeout"`

	// DownloadWorkers bounds concurrent item downloads (default 16).
	DownloadWorkers int `yaml:"download_workers"`

	// Fs receives downloaded files (default: the OS filesystem).
	Fs afero.Fs `yaml:"-"`
}

// Client talks to the platform API. The exported repositories share it.
type Client struct {
	cfg     Config
	http    *fasthttp.Client
	limiter *rate.Limiter

	Items       *Items
	Annotations *Annotations
	Datasets    *Datasets
}

// New creates a client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("platform: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrapf(err, "platform: invalid BaseURL %q", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = 16
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	c := &Client{
		cfg: cfg,
		http: &fasthttp.Client{
			Name:                "labelbowl",
			MaxConnsPerHost:     cfg.DownloadWorkers * 2,
			MaxIdleConnDuration: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
	c.Items = &Items{client: c}
	c.Annotations = &Annotations{client: c}
	c.Datasets = &Datasets{client: c}
	return c, nil
}

// Repositories returns the repository bundle entities are constructed with.
func (c *Client) Repositories() entities.Repositories {
	return entities.Repositories{Items: c.Items, Annotations: c.Annotations}
}

// do performs one request. body, when non-nil, is JSON encoded. The raw
// response body is returned for 2xx responses.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "waiting for rate limiter")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := c.cfg.BaseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding %s %s body", method, path)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.Timeout)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}

	status := resp.StatusCode()
	// resp is released on return, so the body must be copied out.
	out := append([]byte(nil), resp.Body()...)
	if status < 200 || status >= 300 {
		return nil, platformError(status, out)
	}
	log.WithFields(logrus.Fields{"method": method, "path": path, "status": status}).Debug("request done")
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	data, err := c.do(ctx, fasthttp.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, out), "decoding %s", path)
}

func platformError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			msg = payload.Message
		} else if payload.Error != "" {
			msg = payload.Error
		}
	}
	return entities.NewPlatformError(strconv.Itoa(status), "%s", msg)
}
