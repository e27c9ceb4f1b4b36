package relay

import (
	"sync"

	"github.com/cloudcarver/extworker/lib/httpx"
	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/extask"
	"github.com/pkg/errors"
)

// Registry maps topic names to handlers. New relays are added by registering
// them; the dispatcher never changes.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	topics   []string
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// NewDefaultRegistry registers the built-in relays on their topics.
func NewDefaultRegistry(cfg *config.Config, delegate ...httpx.HTTPDelegate) (*Registry, error) {
	r := NewRegistry()
	timeout := cfg.Downstream.Timeout
	if err := r.Register(extask.TopicHTTPRequest, NewHTTPRelay(timeout, delegate...)); err != nil {
		return nil, err
	}
	if err := r.Register(extask.TopicSaveDB, NewSaveDBRelay(cfg.Downstream.BaseURL, timeout, delegate...)); err != nil {
		return nil, err
	}
	if err := r.Register(extask.TopicSendEmail, NewSendEmailRelay(cfg.Downstream.BaseURL, timeout, delegate...)); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Register(topic string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[topic]; ok {
		return errors.Wrapf(ErrDuplicateTopic, "topic %s", topic)
	}
	r.handlers[topic] = handler
	r.topics = append(r.topics, topic)
	return nil
}

func (r *Registry) Lookup(topic string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[topic]
	return h, ok
}

// Topics returns registered topics in registration order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.topics...)
}
