package closer

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cloudcarver/extworker/pkg/logger"
	"go.uber.org/zap"
)

var log = logger.NewLogAgent("closer")

const (
	DefaultGracefulShutdownTimeout = 5 * time.Second
)

type Closer func(ctx context.Context) error

// CloserManager runs registered closers once, newest first.
type CloserManager struct {
	mu      sync.Mutex
	closers []Closer
	closed  bool
}

func NewCloserManager() *CloserManager {
	return &CloserManager{}
}

func (cm *CloserManager) Close() {
	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		return
	}
	cm.closed = true
	closers := slices.Clone(cm.closers)
	cm.mu.Unlock()

	log.Info("gracefully shutting down application")

	ctx, cancel := context.WithTimeout(context.Background(), DefaultGracefulShutdownTimeout)
	defer cancel()

	slices.Reverse(closers)
	for _, closer := range closers {
		if err := closer(ctx); err != nil {
			log.Error("error in graceful shutdown", zap.Error(err))
		}
	}
}

func (cm *CloserManager) Register(closers ...Closer) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.closers = append(cm.closers, closers...)
}
