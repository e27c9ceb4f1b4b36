package relay

import (
	"context"
	"time"

	"github.com/cloudcarver/extworker/lib/httpx"
	"github.com/cloudcarver/extworker/pkg/extask"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FixedRelay posts a payload of a compiled-in shape to a compiled-in path of
// the downstream API. Every field is read from the task variable of the same
// name; absent ones are sent as "".
type FixedRelay struct {
	name   string
	path   string
	fields []string
	client *httpx.HTTPClient
}

func NewFixedRelay(name, baseURL, path string, fields []string, timeout time.Duration, delegate ...httpx.HTTPDelegate) *FixedRelay {
	c := httpx.NewHTTPClient(baseURL, delegate...)
	c.SetTimeout(timeout)
	return &FixedRelay{
		name:   name,
		path:   path,
		fields: fields,
		client: c,
	}
}

func NewSaveDBRelay(baseURL string, timeout time.Duration, delegate ...httpx.HTTPDelegate) *FixedRelay {
	return NewFixedRelay("Save DB Worker", baseURL, "/save-db",
		[]string{"employeeName", "leaveDate", "reason", "approved"}, timeout, delegate...)
}

func NewSendEmailRelay(baseURL string, timeout time.Duration, delegate ...httpx.HTTPDelegate) *FixedRelay {
	return NewFixedRelay("Send Email Worker", baseURL, "/send-email",
		[]string{"employeeName", "approved"}, timeout, delegate...)
}

func (f *FixedRelay) Name() string {
	return f.name
}

func (f *FixedRelay) Payload(vars extask.Variables) map[string]string {
	payload := make(map[string]string, len(f.fields))
	for _, field := range f.fields {
		payload[field] = vars.Decode(field)
	}
	return payload
}

func (f *FixedRelay) Execute(ctx context.Context, vars extask.Variables) error {
	req := f.client.Post(ctx, f.path).WithJSON(f.Payload(vars))
	withCorrelation(ctx, req)

	res, err := req.Do()
	if err != nil {
		return errors.Wrapf(ErrDownstreamCall, "POST %s: %v", f.path, err)
	}
	if err := res.ExpectSuccess(); err != nil {
		return errors.Wrapf(ErrDownstreamCall, "POST %s: %v", f.path, err)
	}
	log.Info("downstream call succeeded", zap.String("relay", f.name), zap.String("path", f.path), zap.String("task_id", TaskIDFromContext(ctx)))
	return nil
}
