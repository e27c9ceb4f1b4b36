package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cloudcarver/extworker/lib/httpx"
	"github.com/cloudcarver/extworker/pkg/extask"
	"github.com/cloudcarver/extworker/pkg/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var log = logger.NewLogAgent("relay")

// Variables read by HTTPRelay.
const (
	VarHTTPMethod     = "httpMethod"
	VarRequestURL     = "requestUrl"
	VarRequestPayload = "requestPayload"
	VarRequestHeaders = "requestHeaders"
)

const (
	defaultHTTPMethod  = http.MethodPost
	defaultRequestBody = "{}"
)

// HTTPRelay issues one HTTP request fully described by task variables:
//
//   - httpMethod: request method, default POST
//   - requestUrl: absolute URL (required)
//   - requestPayload: JSON document sent as body, default {}
//   - requestHeaders: optional JSON object of extra headers
type HTTPRelay struct {
	client *httpx.HTTPClient
}

func NewHTTPRelay(timeout time.Duration, delegate ...httpx.HTTPDelegate) *HTTPRelay {
	c := httpx.NewHTTPClient("", delegate...)
	c.SetTimeout(timeout)
	return &HTTPRelay{client: c}
}

func (h *HTTPRelay) Name() string {
	return "Generic HTTP Worker"
}

func (h *HTTPRelay) Execute(ctx context.Context, vars extask.Variables) error {
	method := strings.ToUpper(strings.TrimSpace(vars.Decode(VarHTTPMethod, defaultHTTPMethod)))
	if method == "" {
		method = defaultHTTPMethod
	}

	url := strings.TrimSpace(vars.Decode(VarRequestURL))
	if url == "" {
		return errors.Wrapf(ErrMissingVariable, "BPMN variable '%s' is missing or empty", VarRequestURL)
	}

	var payload any
	if err := json.Unmarshal([]byte(vars.Decode(VarRequestPayload, defaultRequestBody)), &payload); err != nil {
		return errors.Wrapf(ErrPayloadParse, "failed to parse '%s' JSON: %v", VarRequestPayload, err)
	}

	headers := map[string]string{}
	if vars.Has(VarRequestHeaders) {
		if err := json.Unmarshal([]byte(vars.Decode(VarRequestHeaders)), &headers); err != nil {
			return errors.Wrapf(ErrPayloadParse, "failed to parse '%s' JSON: %v", VarRequestHeaders, err)
		}
	}

	req := h.client.Request(ctx, method, url).WithJSON(payload)
	for k, v := range headers {
		req.WithHeader(k, v)
	}
	withCorrelation(ctx, req)

	log.Info("executing request", zap.String("method", method), zap.String("url", url), zap.String("task_id", TaskIDFromContext(ctx)))

	res, err := req.Do()
	if err != nil {
		return errors.Wrapf(ErrDownstreamCall, "HTTP request failed (%s %s): %v", method, url, err)
	}
	if err := res.ExpectSuccess(); err != nil {
		return errors.Wrapf(ErrDownstreamCall, "HTTP request failed (%s %s): %v", method, url, err)
	}

	log.Info("request succeeded", zap.String("url", url), zap.Int("status", res.StatusCode))
	return nil
}

func withCorrelation(ctx context.Context, req *httpx.RequestContext) {
	req.WithHeader("X-Request-ID", uuid.NewString())
	if id := TaskIDFromContext(ctx); id != "" {
		req.WithHeader("X-Task-ID", id)
	}
}
