package audit

import (
	"context"

	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/extask"
)

type State string

const (
	StateStarted   State = "STARTED"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"

	// The handler failed or the acknowledgement was lost; the task is left to
	// lease expiry.
	StateAbandoned State = "ABANDONED"
)

type Entry struct {
	TaskID    string
	Topic     string
	WorkerID  string
	State     State
	Variables extask.Variables
	Error     *string
}

// RecorderInterface keeps a ledger of task states. Recording is best effort:
// a failing recorder never changes how a task is acknowledged.
type RecorderInterface interface {
	Record(ctx context.Context, entry Entry) error

	Close()
}

// NewRecorder returns a Postgres recorder when a DSN is configured and a noop
// recorder otherwise.
func NewRecorder(cfg *config.Config) (RecorderInterface, error) {
	if cfg.Pg.DSN == nil || *cfg.Pg.DSN == "" {
		return NoopRecorder{}, nil
	}
	return NewPgRecorder(cfg)
}

type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, Entry) error { return nil }

func (NoopRecorder) Close() {}
