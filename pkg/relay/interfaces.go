package relay

import (
	"context"

	"github.com/cloudcarver/extworker/pkg/extask"
	"github.com/pkg/errors"
)

var (
	// A variable the handler cannot work without is absent or empty
	ErrMissingVariable = errors.New("missing variable")

	// A variable that must hold JSON does not
	ErrPayloadParse = errors.New("malformed payload")

	// The downstream call failed in transport or answered non-2xx
	ErrDownstreamCall = errors.New("downstream call failed")

	ErrDuplicateTopic = errors.New("topic already registered")
)

// Handler performs the work behind one topic. A nil error means the task is
// done and may be completed in the engine.
type Handler interface {
	// Name is used in failure reports, e.g. "Generic HTTP Worker".
	Name() string

	Execute(ctx context.Context, vars extask.Variables) error
}

type ctxKey struct{}

func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, taskID)
}

func TaskIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}
