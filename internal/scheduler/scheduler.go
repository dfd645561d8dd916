// Package scheduler drives processors over the API: it fetches items one at
// a time, hands them to the matching processor and reports what happened.
// Runs are single-threaded; one item is fully committed before the next is
// fetched.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/openleg"
	apperrors "github.com/nysenate/openleg-sync/pkg/errors"
	"github.com/nysenate/openleg-sync/pkg/kafka"
	"github.com/nysenate/openleg-sync/pkg/logger"
	"github.com/nysenate/openleg-sync/pkg/metrics"
	"github.com/nysenate/openleg-sync/pkg/resilience"
	"github.com/nysenate/openleg-sync/pkg/tracing"
)

// ImportEvent announces one committed record.
type ImportEvent struct {
	Processor  string    `json:"processor"`
	Kind       string    `json:"kind"`
	RecordID   string    `json:"recordId"`
	Title      string    `json:"title"`
	ImportedAt time.Time `json:"importedAt"`
}

// ImportRequest asks the runner to sync one item, or every item updated in
// a window when From and To are set.
type ImportRequest struct {
	Processor string            `json:"processor"`
	Resource  string            `json:"resource,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	From      string            `json:"from,omitempty"`
	To        string            `json:"to,omitempty"`
}

// EventPublisher receives import events. *kafka.Producer implements it.
type EventPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Stats counts the outcome of one update run.
type Stats struct {
	Total    int
	Imported int
	Failed   int
	Skipped  int
	Records  int
}

// Config tunes paging and fetch resilience.
type Config struct {
	PageSize int
	Location *time.Location
	Retry    resilience.RetryConfig
	Breaker  resilience.CircuitBreakerConfig
}

// Runner owns the processors and the API client.
type Runner struct {
	client     *openleg.Client
	registry   *openleg.Registry
	cfg        Config
	publisher  EventPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	processors map[string]importer.ItemProcessor

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// New creates a Runner. A nil publisher disables events.
func New(client *openleg.Client, registry *openleg.Registry, cfg Config, publisher EventPublisher, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = apperrors.IsRetryable
	}
	if cfg.Breaker.IsFailure == nil {
		cfg.Breaker.IsFailure = func(err error) bool {
			return errors.Is(err, apperrors.ErrTransport) && apperrors.IsRetryable(err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client:     client,
		registry:   registry,
		cfg:        cfg,
		publisher:  publisher,
		metrics:    m,
		logger:     logger.With("component", "scheduler"),
		now:        time.Now,
		processors: make(map[string]importer.ItemProcessor),
		breakers:   make(map[string]*resilience.CircuitBreaker),
	}
}

// Register makes p available under its id.
func (r *Runner) Register(p importer.ItemProcessor) {
	r.processors[p.ID()] = p
}

// Processor looks up a registered processor.
func (r *Runner) Processor(id string) (importer.ItemProcessor, error) {
	p, ok := r.processors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownProcessor, id)
	}
	return p, nil
}

// SyncItem fetches and processes one item. The returned error covers the
// fetch only; import failures are reported in the Outcome.
func (r *Runner) SyncItem(ctx context.Context, processorID string, resource openleg.Path, params map[string]string) (importer.Outcome, error) {
	ctx, span := tracing.Start(ctx, "item")
	span.SetAttr("processor", processorID)
	span.SetAttr("resource", resource.String())
	out, err := r.syncItem(ctx, processorID, resource, params)
	span.SetAttr("records", len(out.Records))
	if err != nil {
		r.endSpan(ctx, span, err)
	} else {
		r.endSpan(ctx, span, out.Err)
	}
	return out, err
}

func (r *Runner) syncItem(ctx context.Context, processorID string, resource openleg.Path, params map[string]string) (importer.Outcome, error) {
	p, err := r.Processor(processorID)
	if err != nil {
		return importer.Outcome{}, err
	}
	query := make(map[string]string)
	for k, v := range p.ItemParams() {
		query[k] = v
	}
	for k, v := range params {
		query[k] = v
	}

	fetchCtx, fetchSpan := tracing.Start(ctx, "fetch")
	payload, err := r.fetch(fetchCtx, p.Endpoint(), resource, query)
	fetchSpan.End(err)
	if err != nil {
		return importer.Outcome{}, err
	}
	processCtx, processSpan := tracing.Start(ctx, "process")
	out := p.Process(processCtx, r.registry.Resolve(payload, p.ID(), openleg.CategoryItem))
	processSpan.End(out.Err)
	if out.Success {
		r.publish(ctx, p.ID(), out)
	}
	return out, nil
}

type pagedResponse interface {
	openleg.Response
	Items() []json.RawMessage
	HasMore() bool
	NextOffset() int
}

// SyncUpdates syncs every item the API reports as updated between from and
// to. A failed item is counted and skipped; only a failed page fetch ends
// the run early.
func (r *Runner) SyncUpdates(ctx context.Context, processorID string, from, to time.Time) (*Stats, error) {
	ctx, span := tracing.Start(ctx, "updates")
	span.SetAttr("processor", processorID)
	stats, err := r.syncUpdates(ctx, processorID, from, to)
	if stats != nil {
		span.SetAttr("total", stats.Total)
		span.SetAttr("failed", stats.Failed)
	}
	r.endSpan(ctx, span, err)
	return stats, err
}

func (r *Runner) syncUpdates(ctx context.Context, processorID string, from, to time.Time) (*Stats, error) {
	p, err := r.Processor(processorID)
	if err != nil {
		return nil, err
	}
	log := logger.Enrich(ctx, r.logger).With("processor", p.ID(), "from", openleg.FormatDateTime(from), "to", openleg.FormatDateTime(to))
	window := openleg.P("updates", openleg.FormatDateTime(from), openleg.FormatDateTime(to))

	stats := &Stats{}
	seen := make(map[string]bool)
	offset := 1
	for {
		params := map[string]string{
			"offset": fmt.Sprint(offset),
			"limit":  fmt.Sprint(r.cfg.PageSize),
		}
		pageCtx, pageSpan := tracing.Start(ctx, "page")
		pageSpan.SetAttr("offset", offset)
		payload, err := r.fetch(pageCtx, p.Endpoint(), window, params)
		pageSpan.End(err)
		if err != nil {
			return stats, fmt.Errorf("fetching updates page at offset %d: %w", offset, err)
		}
		page, ok := r.registry.Resolve(payload, p.ID(), openleg.CategoryUpdate).(pagedResponse)
		if !ok {
			return stats, fmt.Errorf("%w: updates page is not a list", apperrors.ErrInvalidPayload)
		}
		if !page.Success() {
			return stats, apperrors.Newf(apperrors.ErrInvalidPayload, apperrors.CategoryPermanent, "updates page: %s", page.Message())
		}

		for _, token := range page.Items() {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Total++
			resource, err := p.UpdateResource(token)
			if err != nil {
				log.Warn("unusable update token", "error", err)
				stats.Failed++
				continue
			}
			if seen[resource.String()] {
				stats.Skipped++
				continue
			}
			seen[resource.String()] = true

			out, err := r.SyncItem(ctx, p.ID(), resource, nil)
			switch {
			case err != nil:
				log.Error("item fetch failed", "resource", resource.String(), "error", err)
				stats.Failed++
			case !out.Success:
				stats.Failed++
			default:
				stats.Imported++
				stats.Records += len(out.Records)
			}
		}

		if !page.HasMore() || len(page.Items()) == 0 {
			return stats, nil
		}
		offset = page.NextOffset()
	}
}

// HandleRequest serves one ImportRequest message. Malformed requests and
// failed imports are logged and dropped; only retryable fetch errors are
// returned so the message is redelivered.
func (r *Runner) HandleRequest(ctx context.Context, _, value []byte) error {
	req, err := kafka.DecodeJSON[ImportRequest](value)
	if err != nil {
		r.logger.Warn("dropping malformed import request", "error", err)
		return nil
	}
	log := r.logger.With("processor", req.Processor)

	if req.From != "" || req.To != "" {
		from, err := openleg.ParseDateTime(req.From, r.cfg.Location)
		if err != nil {
			log.Warn("dropping import request with bad window", "error", err)
			return nil
		}
		to, err := openleg.ParseDateTime(req.To, r.cfg.Location)
		if err != nil {
			log.Warn("dropping import request with bad window", "error", err)
			return nil
		}
		start := r.now()
		stats, err := r.SyncUpdates(ctx, req.Processor, from, to)
		if stats != nil {
			r.LogSummary(req.Processor, stats, r.now().Sub(start))
		}
		return r.requeueable(log, err)
	}

	out, err := r.SyncItem(ctx, req.Processor, openleg.P(req.Resource), req.Params)
	if err != nil {
		return r.requeueable(log, err)
	}
	if !out.Success {
		log.Warn("requested import failed", "resource", req.Resource, "error", out.Err)
	}
	return nil
}

func (r *Runner) requeueable(log *slog.Logger, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsRetryable(err) {
		return err
	}
	log.Error("dropping import request", "error", err)
	return nil
}

// endSpan closes span and, for the outermost span of a run, logs the whole
// tree at debug level.
func (r *Runner) endSpan(ctx context.Context, span *tracing.Span, err error) {
	span.End(err)
	if span.Root() {
		span.Log(ctx, r.logger, slog.LevelDebug)
	}
}

// LogSummary logs the counters of a finished run.
func (r *Runner) LogSummary(processorID string, s *Stats, elapsed time.Duration) {
	r.logger.Info("sync finished",
		"processor", processorID,
		"total", s.Total,
		"imported", s.Imported,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"records", s.Records,
		"elapsed", elapsed.Round(time.Millisecond).String(),
	)
}

func (r *Runner) fetch(ctx context.Context, endpoint string, resource openleg.Path, params map[string]string) (openleg.Payload, error) {
	client := r.client.WithEndpoint(endpoint)
	var payload openleg.Payload
	err := r.breaker(endpoint).Execute(func() error {
		return resilience.Retry(ctx, "fetch "+endpoint, r.cfg.Retry, func(ctx context.Context) error {
			var err error
			payload, err = client.Get(ctx, resource, params)
			return err
		})
	})
	return payload, err
}

func (r *Runner) breaker(endpoint string) *resilience.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[endpoint]; ok {
		return cb
	}
	cfg := r.cfg.Breaker
	next := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		r.logger.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		r.metrics.SetCircuitState(name, int(to))
		if next != nil {
			next(name, from, to)
		}
	}
	cb := resilience.NewCircuitBreaker("openleg-"+endpoint, cfg)
	r.breakers[endpoint] = cb
	return cb
}

func (r *Runner) publish(ctx context.Context, processorID string, out importer.Outcome) {
	if r.publisher == nil || len(out.Records) == 0 {
		return
	}
	now := r.now().UTC()
	events := make([]kafka.Event, 0, len(out.Records))
	for _, rec := range out.Records {
		events = append(events, kafka.Event{
			Key: string(rec.Kind) + "/" + rec.Title,
			Value: ImportEvent{
				Processor:  processorID,
				Kind:       string(rec.Kind),
				RecordID:   rec.ID,
				Title:      rec.Title,
				ImportedAt: now,
			},
		})
	}
	err := r.publisher.PublishBatch(ctx, events)
	r.metrics.EventPublished(err == nil)
	if err != nil {
		r.logger.Warn("import events not published", "processor", processorID, "count", len(events), "error", err)
	}
}
