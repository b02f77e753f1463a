package circuitbreaker

import (
	"sync"

	"github.com/shoply/gateway/internal/observability"
)

// Registry holds one circuit breaker per protected operation name,
// creating them on demand with a shared configuration.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	config   *Config
	logger   observability.Logger
	opts     []Option
}

// NewRegistry creates a registry. The opts are applied to every
// breaker the registry creates.
func NewRegistry(config *Config, logger observability.Logger, opts ...Option) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logger,
		opts:     opts,
	}
}

// Get returns the breaker for the operation name, creating it if needed.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	opts := append([]Option{WithLogger(r.logger)}, r.opts...)
	cb := New(name, r.config, opts...)
	r.breakers[name] = cb
	return cb
}
