package openleg

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nysenate/openleg-sync/pkg/metrics"
)

// Response categories requested by processors.
const (
	CategoryItem   = "item"
	CategorySearch = "search"
	CategoryUpdate = "update"
)

// Resolution steps, reported in logs and metrics.
const (
	StepDeclared  = "declared"
	StepProcessor = "processor"
	StepCategory  = "category"
	StepGeneric   = "generic"
)

// Constructor builds a typed Response from a payload.
type Constructor func(Payload) (Response, error)

// Registry maps response type names, processor ids and categories to
// constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewRegistry returns an empty registry.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		logger:       slog.Default().With("component", "response-resolver"),
		metrics:      m,
	}
}

// DefaultRegistry registers the three categories and the response types the
// API is known to declare. Update windows are read in loc, or UTC when nil.
func DefaultRegistry(m *metrics.Metrics, loc *time.Location) *Registry {
	updates := UpdateResponseIn(loc)
	r := NewRegistry(m)
	r.Register(CategoryItem, NewItemResponse)
	r.Register(CategorySearch, NewSearchResponse)
	r.Register(CategoryUpdate, updates)

	for _, name := range []string{"bill", "agenda", "calendar", "transcript", "hearing", "public_hearing"} {
		r.Register(name, NewItemResponse)
	}
	for _, name := range []string{"search-results list", "bill-info list", "agenda-summary list", "calendar-simple list", "transcript list", "hearing list"} {
		r.Register(name, NewSearchResponse)
	}
	for _, name := range []string{"update-token list", "bill-update-token list", "agenda-update-token list", "calendar-update-token list"} {
		r.Register(name, updates)
	}
	return r
}

// Register binds name to ctor, replacing any previous binding.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = ctor
}

func (r *Registry) snapshot() map[string]Constructor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Constructor, len(r.constructors))
	for k, v := range r.constructors {
		out[k] = v
	}
	return out
}

// lookupConstructor picks the constructor for a payload: the declared type,
// then the processor id, then the category. It returns a nil constructor and
// StepGeneric when none match.
func lookupConstructor(ctors map[string]Constructor, declared, processorID, category string) (Constructor, string) {
	if declared != "" {
		if c, ok := ctors[declared]; ok {
			return c, StepDeclared
		}
	}
	if processorID != "" {
		if c, ok := ctors[processorID]; ok {
			return c, StepProcessor
		}
	}
	if category != "" {
		if c, ok := ctors[category]; ok {
			return c, StepCategory
		}
	}
	return nil, StepGeneric
}

// Resolve wraps payload in the best available Response. It never fails: a
// missing or failing constructor yields a Generic.
func (r *Registry) Resolve(payload Payload, processorID, category string) Response {
	declared := NewGeneric(payload).Type()
	ctor, step := lookupConstructor(r.snapshot(), declared, processorID, category)

	log := r.logger.With("response_type", declared, "processor", processorID, "category", category)
	if step != StepDeclared {
		log.Warn("response type not registered, falling back", "step", step)
	}

	if ctor != nil {
		built, err := safeConstruct(ctor, payload)
		if err == nil && built != nil {
			r.metrics.ResolverStep(step)
			return built
		}
		log.Warn("response constructor failed, using generic", "step", step, "error", err)
	}
	r.metrics.ResolverStep(StepGeneric)
	return NewGeneric(payload)
}

func safeConstruct(ctor Constructor, payload Payload) (resp Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp, err = nil, fmt.Errorf("constructor panicked: %v", rec)
		}
	}()
	return ctor(payload)
}
