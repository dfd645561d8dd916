// Package health reports whether the sync process can reach the things it
// writes to and reads from. Each dependency is registered as a ping; a
// required dependency that fails makes the process unready, an optional one
// only degrades the report.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status of a dependency or of the process as a whole.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Ping reaches a dependency and returns nil when it answered.
type Ping func(ctx context.Context) error

type dependency struct {
	name     string
	ping     Ping
	optional bool
}

// Result is the outcome of pinging one dependency.
type Result struct {
	Status   Status `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Error    string `json:"error,omitempty"`
	Elapsed  string `json:"elapsed"`
}

// Report aggregates the results of one round of pings.
type Report struct {
	Status       Status            `json:"status"`
	Dependencies map[string]Result `json:"dependencies"`
	CheckedAt    time.Time         `json:"checkedAt"`
}

// Checker holds the registered dependencies.
type Checker struct {
	mu      sync.RWMutex
	deps    map[string]dependency
	timeout time.Duration
}

// NewChecker returns a Checker whose readiness round gives up after 5s.
func NewChecker() *Checker {
	return &Checker{deps: make(map[string]dependency), timeout: 5 * time.Second}
}

// Require registers a dependency the process cannot sync without, such as
// the document store.
func (c *Checker) Require(name string, ping Ping) { c.add(dependency{name: name, ping: ping}) }

// Optional registers a dependency the process can run without, such as the
// reference cache.
func (c *Checker) Optional(name string, ping Ping) {
	c.add(dependency{name: name, ping: ping, optional: true})
}

func (c *Checker) add(d dependency) {
	c.mu.Lock()
	c.deps[d.name] = d
	c.mu.Unlock()
}

// Names lists the registered dependencies in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.deps))
	for name := range c.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run pings every dependency at once and waits for all of them.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	deps := make([]dependency, 0, len(c.deps))
	for _, d := range c.deps {
		deps = append(deps, d)
	}
	c.mu.RUnlock()

	results := make([]Result, len(deps))
	var g errgroup.Group
	for i, d := range deps {
		g.Go(func() error {
			results[i] = d.check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:       StatusUp,
		Dependencies: make(map[string]Result, len(deps)),
		CheckedAt:    time.Now().UTC(),
	}
	for i, d := range deps {
		report.Dependencies[d.name] = results[i]
		report.Status = worse(report.Status, results[i].Status)
	}
	return report
}

func (d dependency) check(ctx context.Context) Result {
	start := time.Now()
	err := d.ping(ctx)
	res := Result{
		Status:   StatusUp,
		Optional: d.optional,
		Elapsed:  time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		res.Error = err.Error()
		res.Status = StatusDown
		if d.optional {
			res.Status = StatusDegraded
		}
	}
	return res
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// LiveHandler answers 200 while the process is running.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "alive", "dependencies": c.Names()})
	}
}

// ReadyHandler answers 200 only when no dependency is degraded or down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()
		report := c.Run(ctx)
		code := http.StatusOK
		if report.Status != StatusUp {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
