package globalctx

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// GlobalContext is cancelled when the process receives SIGINT or SIGTERM.
type GlobalContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *GlobalContext {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &GlobalContext{ctx: ctx, cancel: cancel}
}

// NewWithContext derives a GlobalContext from parent without binding signals.
func NewWithContext(parent context.Context) *GlobalContext {
	ctx, cancel := context.WithCancel(parent)
	return &GlobalContext{ctx: ctx, cancel: cancel}
}

func (g *GlobalContext) Context() context.Context {
	return g.ctx
}

func (g *GlobalContext) Cancel() {
	g.cancel()
}
