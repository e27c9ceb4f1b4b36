package engine

import (
	"context"
	"net/url"

	"github.com/cloudcarver/extworker/lib/httpx"
	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/extask"
	"github.com/cloudcarver/extworker/pkg/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var log = logger.NewLogAgent("engine")

type fetchTopic struct {
	TopicName    string `json:"topicName"`
	LockDuration int64  `json:"lockDuration"`
}

type fetchAndLockBody struct {
	WorkerID             string       `json:"workerId"`
	MaxTasks             int          `json:"maxTasks"`
	UsePriority          bool         `json:"usePriority"`
	AsyncResponseTimeout *int64       `json:"asyncResponseTimeout,omitempty"`
	Topics               []fetchTopic `json:"topics"`
}

type completeBody struct {
	WorkerID  string           `json:"workerId"`
	Variables extask.Variables `json:"variables"`
}

type failureBody struct {
	WorkerID     string `json:"workerId"`
	ErrorMessage string `json:"errorMessage"`
	ErrorDetails string `json:"errorDetails"`
	Retries      int    `json:"retries"`
	RetryTimeout int64  `json:"retryTimeout"`
}

type Client struct {
	http     *httpx.HTTPClient
	workerID string
}

func NewClient(cfg *config.Config, delegate ...httpx.HTTPDelegate) EngineInterface {
	c := httpx.NewHTTPClient(cfg.Engine.BaseURL, delegate...)
	c.SetTimeout(cfg.Engine.Timeout + cfg.Worker.AsyncResponseTimeout)
	return &Client{
		http:     c,
		workerID: cfg.Worker.ID,
	}
}

func (c *Client) WorkerID() string {
	return c.workerID
}

func (c *Client) FetchAndLock(ctx context.Context, req FetchRequest) ([]extask.Task, error) {
	body := fetchAndLockBody{
		WorkerID:    c.workerID,
		MaxTasks:    req.MaxTasks,
		UsePriority: req.UsePriority,
		Topics:      make([]fetchTopic, 0, len(req.Topics)),
	}
	if req.AsyncResponseTimeout > 0 {
		ms := req.AsyncResponseTimeout.Milliseconds()
		body.AsyncResponseTimeout = &ms
	}
	for _, t := range req.Topics {
		body.Topics = append(body.Topics, fetchTopic{
			TopicName:    t.TopicName,
			LockDuration: t.LockDuration.Milliseconds(),
		})
	}

	res, err := c.http.Post(ctx, "/external-task/fetchAndLock").WithJSON(body).Do()
	if err != nil {
		return nil, errors.Wrapf(ErrFetch, "%v", err)
	}
	if err := res.ExpectSuccess(); err != nil {
		return nil, errors.Wrapf(ErrFetch, "%v", err)
	}

	var tasks []extask.Task
	if err := res.JSON(&tasks); err != nil {
		return nil, errors.Wrapf(ErrFetch, "%v", err)
	}
	log.Debug("fetched tasks", zap.Int("count", len(tasks)))
	return tasks, nil
}

func (c *Client) Complete(ctx context.Context, taskID string) error {
	res, err := c.http.Post(ctx, "/external-task/"+url.PathEscape(taskID)+"/complete").
		WithJSON(completeBody{WorkerID: c.workerID, Variables: extask.Variables{}}).
		Do()
	if err != nil {
		return errors.Wrapf(ErrAckReport, "complete task %s: %v", taskID, err)
	}
	if err := res.ExpectSuccess(); err != nil {
		return errors.Wrapf(ErrAckReport, "complete task %s: %v", taskID, err)
	}
	return nil
}

func (c *Client) Failure(ctx context.Context, taskID string, report FailureReport) error {
	res, err := c.http.Post(ctx, "/external-task/"+url.PathEscape(taskID)+"/failure").
		WithJSON(failureBody{
			WorkerID:     c.workerID,
			ErrorMessage: report.ErrorMessage,
			ErrorDetails: report.ErrorDetails,
			Retries:      report.Retries,
			RetryTimeout: report.RetryTimeout.Milliseconds(),
		}).
		Do()
	if err != nil {
		return errors.Wrapf(ErrAckReport, "report failure of task %s: %v", taskID, err)
	}
	if err := res.ExpectSuccess(); err != nil {
		return errors.Wrapf(ErrAckReport, "report failure of task %s: %v", taskID, err)
	}
	return nil
}
