package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type H = map[string]any

type HTTPDelegate interface {
	Do(req *http.Request) (*http.Response, error)
}

type HTTPClient struct {
	base    string
	m       sync.RWMutex
	headers http.Header
	client  HTTPDelegate
	timeout time.Duration
}

// NewHTTPClient creates a client rooted at base. With an empty base, request
// paths are taken as absolute URLs.
func NewHTTPClient(base string, httpDelegate ...HTTPDelegate) *HTTPClient {
	pathBase := strings.TrimRight(base, "/")
	var delegate HTTPDelegate
	if len(httpDelegate) != 0 && httpDelegate[0] != nil {
		delegate = httpDelegate[0]
	} else {
		delegate = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}
	}
	return &HTTPClient{
		base:    pathBase,
		headers: http.Header{},
		client:  delegate,
	}
}

// SetTimeout bounds every request made by the client. Zero means no bound
// beyond the caller's context.
func (c *HTTPClient) SetTimeout(timeout time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()
	c.timeout = timeout
}

func (c *HTTPClient) SetHeader(key, val string) {
	c.m.Lock()
	defer c.m.Unlock()
	c.headers.Add(key, val)
}

func (c *HTTPClient) UnsetHeader(key string) {
	c.m.Lock()
	defer c.m.Unlock()
	c.headers.Del(key)
}

func (c *HTTPClient) Base() string {
	return c.base
}

type RequestContext struct {
	c       *HTTPClient
	ctx     context.Context
	method  string
	path    string
	body    []byte
	headers http.Header
	query   map[string][]string
	errors  []error
}

type ResponseHelper struct {
	*http.Response
}

// Request starts a request with an arbitrary method.
func (c *HTTPClient) Request(ctx context.Context, method string, path string) *RequestContext {
	c.m.RLock()
	defer c.m.RUnlock()
	headers := http.Header{}
	for k, l := range c.headers {
		for _, v := range l {
			headers.Add(k, v)
		}
	}
	return &RequestContext{
		c:       c,
		ctx:     ctx,
		method:  strings.ToUpper(method),
		query:   map[string][]string{},
		headers: headers,
		path:    path,
	}
}

func (c *HTTPClient) Get(ctx context.Context, path string) *RequestContext {
	return c.Request(ctx, http.MethodGet, path)
}

func (c *HTTPClient) Post(ctx context.Context, path string) *RequestContext {
	return c.Request(ctx, http.MethodPost, path)
}

func (c *HTTPClient) Put(ctx context.Context, path string) *RequestContext {
	return c.Request(ctx, http.MethodPut, path)
}

func (c *HTTPClient) Delete(ctx context.Context, path string) *RequestContext {
	return c.Request(ctx, http.MethodDelete, path)
}

func (rc *RequestContext) handleErr(err error) {
	if err == nil {
		return
	}
	rc.errors = append(rc.errors, err)
}

func (rc *RequestContext) WithQuery(key string, vals ...string) *RequestContext {
	rc.query[key] = append(rc.query[key], vals...)
	return rc
}

func (rc *RequestContext) WithJSON(data any) *RequestContext {
	raw, err := json.Marshal(data)
	rc.handleErr(err)
	if err == nil {
		rc.body = raw
	}
	rc.headers.Set("Content-Type", "application/json")
	return rc
}

func (rc *RequestContext) WithHeader(key, val string) *RequestContext {
	rc.headers.Add(key, val)
	return rc
}

func (rc *RequestContext) url() (string, error) {
	if rc.c.base == "" {
		u, err := neturl.Parse(rc.path)
		if err != nil {
			return "", errors.Wrapf(err, "failed to parse URL: %s", rc.path)
		}
		if u.Scheme == "" || u.Host == "" {
			return "", errors.Errorf("URL must be absolute: %s", rc.path)
		}
		return rc.path, nil
	}
	urlStr, err := neturl.JoinPath(rc.c.base, strings.Split(strings.TrimLeft(rc.path, "/"), "/")...)
	if err != nil {
		return "", errors.Wrapf(err, "failed to construct URL, base: %s, path: %s", rc.c.base, rc.path)
	}
	return urlStr, nil
}

// Do sends the request. The response body is read eagerly so that the
// connection is released even when callers only look at the status.
func (rc *RequestContext) Do() (*ResponseHelper, error) {
	// handle previous errors
	if len(rc.errors) != 0 {
		msg := ""
		for _, e := range rc.errors {
			msg += fmt.Sprintf("%v;", e)
		}
		return nil, errors.Errorf("failed to construct request: %s", msg)
	}

	urlStr, err := rc.url()
	if err != nil {
		return nil, err
	}

	ctx := rc.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	rc.c.m.RLock()
	timeout := rc.c.timeout
	rc.c.m.RUnlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if rc.body != nil {
		body = bytes.NewReader(rc.body)
	}

	req, err := http.NewRequestWithContext(ctx, rc.method, urlStr, body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to construct request, method: %s, url: %s", rc.method, urlStr)
	}

	// the caller's query string is sent as is, WithQuery params are appended
	if len(rc.query) > 0 {
		extra := neturl.Values(rc.query).Encode()
		if req.URL.RawQuery == "" {
			req.URL.RawQuery = extra
		} else {
			req.URL.RawQuery += "&" + extra
		}
	}

	req.Header = rc.headers

	res, err := rc.c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send request, method: %s, url: %s", rc.method, urlStr)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response, method: %s, url: %s", rc.method, urlStr)
	}
	res.Body = io.NopCloser(bytes.NewReader(raw))
	return NewResponseHelper(res), nil
}

func NewResponseHelper(res *http.Response) *ResponseHelper {
	return &ResponseHelper{res}
}

func (rh *ResponseHelper) Bytes() ([]byte, error) {
	return io.ReadAll(rh.Body)
}

func (rh *ResponseHelper) Text() string {
	raw, err := io.ReadAll(rh.Body)
	if err != nil {
		return err.Error()
	}
	return string(raw)
}

func (rh *ResponseHelper) JSON(data any) error {
	raw, err := io.ReadAll(rh.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read body from HTTP response")
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return errors.Wrapf(err, "failed to unmarshal JSON, body: %s", truncate(string(raw), 200))
	}
	return nil
}

func (rh *ResponseHelper) IsSuccess() bool {
	return rh.StatusCode >= 200 && rh.StatusCode < 300
}

// ExpectSuccess returns an error carrying the status and a prefix of the body
// when the response is not 2xx.
func (rh *ResponseHelper) ExpectSuccess() error {
	if rh.IsSuccess() {
		return nil
	}
	return fmt.Errorf("unexpected status code: %d, body: %s", rh.StatusCode, truncate(rh.Text(), 200))
}

func (rh *ResponseHelper) ExpectStatusWithMessage(msg string, statusCodes ...int) error {
	for _, c := range statusCodes {
		if rh.StatusCode == c {
			return nil
		}
	}
	if len(msg) == 0 {
		return fmt.Errorf("unexpected status code: %d, expecting: %v", rh.StatusCode, statusCodes)
	}
	return fmt.Errorf("%s, unexpected status code: %d, expecting: %v", msg, rh.StatusCode, statusCodes)
}

func (rh *ResponseHelper) ExpectStatus(statusCodes ...int) error {
	return rh.ExpectStatusWithMessage("", statusCodes...)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
