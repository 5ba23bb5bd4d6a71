package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/propertyhub/authgateway/internal/provider"
	"github.com/propertyhub/authgateway/internal/ratelimit"
)

const defaultIdleTTL = 30 * time.Minute

// RegistryConfig sets limits for flows created by a Registry.
type RegistryConfig struct {
	SignInMaxAttempts int
	SignUpMaxAttempts int
	AttemptWindow     time.Duration
	IdleTTL           time.Duration
}

type entry struct {
	flow     *Flow
	lastSeen time.Time
}

// Registry keeps live flows addressable by id. Each flow gets its own
// limiter, so counts do not carry over between form sessions.
type Registry struct {
	mu     sync.Mutex
	flows  map[string]*entry
	idp    provider.Provider
	cfg    RegistryConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry backed by idp.
func NewRegistry(idp provider.Provider, cfg RegistryConfig, logger *slog.Logger) *Registry {
	if cfg.SignInMaxAttempts <= 0 {
		cfg.SignInMaxAttempts = 5
	}
	if cfg.SignUpMaxAttempts <= 0 {
		cfg.SignUpMaxAttempts = 3
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = ratelimit.DefaultWindow
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		flows:  make(map[string]*entry),
		idp:    idp,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Create starts a new flow. from is the sign-in destination and is ignored
// for sign-up.
func (r *Registry) Create(kind Kind, from string) *Flow {
	limit := r.cfg.SignInMaxAttempts
	if kind == KindSignUp {
		limit = r.cfg.SignUpMaxAttempts
	}
	f := New(kind, r.idp, ratelimit.New(limit, r.cfg.AttemptWindow),
		WithDestination(from), WithLogger(r.logger))

	r.mu.Lock()
	r.flows[f.ID()] = &entry{flow: f, lastSeen: r.now()}
	r.mu.Unlock()
	return f
}

// Get returns a live flow and refreshes its idle timer.
func (r *Registry) Get(id string) (*Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	now := r.now()
	if now.Sub(e.lastSeen) > r.cfg.IdleTTL {
		delete(r.flows, id)
		return nil, ErrFlowNotFound
	}
	e.lastSeen = now
	return e.flow, nil
}

// Finish drops a flow after it has navigated away.
func (r *Registry) Finish(id string) {
	r.mu.Lock()
	delete(r.flows, id)
	r.mu.Unlock()
}

// Len returns the number of tracked flows, including idle ones not yet swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep removes idle flows and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	dropped := 0
	for id, e := range r.flows {
		if now.Sub(e.lastSeen) > r.cfg.IdleTTL {
			delete(r.flows, id)
			dropped++
		}
	}
	return dropped
}

// Run sweeps periodically until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("expired idle flows", slog.Int("count", n))
			}
		}
	}
}
