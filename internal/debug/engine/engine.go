package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Engine drives one debuggee.
type Engine interface {
	// Kind returns the runtime kind served by the engine.
	Kind() Kind

	// Tags returns the debug tags the engine contributes while it is alive.
	Tags() []string

	// Start launches or attaches. A returned error means nothing was started
	// and no message will be posted. Later failures are reported with
	// LaunchFailed.
	Start(ctx context.Context, sink Sink) error

	// Break requests a pause, confirmed by BreakRequested.
	Break() error

	// Run resumes the debuggee, confirmed by Running.
	Run() error

	// Step steps the given thread and resumes it, confirmed by Running
	// followed by BreakRequested.
	Step(threadID int, kind StepKind) error

	// Detach leaves the debuggee running, confirmed by Detached.
	Detach() error

	// Terminate kills the debuggee, confirmed by ProcessExited.
	Terminate() error

	// CanDetachWithoutTerminating reports whether Detach keeps the debuggee alive.
	CanDetachWithoutTerminating() bool

	// CanRestart reports whether the debuggee can be started again with the
	// same options.
	CanRestart() bool

	// Close releases engine resources after the debuggee is gone.
	Close() error
}

// Provider creates an engine for a set of start options.
type Provider func(opts StartOptions) (Engine, error)

// Registry maps runtime kinds to providers. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[Kind]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[Kind]Provider)}
}

// Register registers a provider, replacing any previous one for the kind.
func (r *Registry) Register(kind Kind, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[kind] = p
}

// Has reports whether a provider is registered for kind.
func (r *Registry) Has(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[kind]
	return ok
}

// Create validates opts and creates an engine from the matching provider.
func (r *Registry) Create(opts StartOptions) (Engine, error) {
	if opts == nil {
		return nil, &OptionError{Field: "options", Reason: "are missing"}
	}

	r.mu.RLock()
	p, ok := r.providers[opts.RuntimeKind()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, opts.RuntimeKind())
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	eng, err := p(opts)
	if err != nil {
		return nil, fmt.Errorf("create %s engine: %w", opts.RuntimeKind(), err)
	}
	return eng, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
