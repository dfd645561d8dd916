package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nysenate/openleg-sync/internal/importer"
	"github.com/nysenate/openleg-sync/internal/importer/bills"
	"github.com/nysenate/openleg-sync/internal/legislation"
	"github.com/nysenate/openleg-sync/internal/openleg"
	"github.com/nysenate/openleg-sync/internal/store/memory"
	apperrors "github.com/nysenate/openleg-sync/pkg/errors"
	"github.com/nysenate/openleg-sync/pkg/kafka"
	"github.com/nysenate/openleg-sync/pkg/resilience"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func billBody(printNo string) string {
	return fmt.Sprintf(`{"success": true, "responseType": "bill", "result": {"basePrintNo": %q, "session": 2023}}`, printNo)
}

func token(printNo string) string {
	return fmt.Sprintf(`{"id": {"basePrintNo": %q, "session": 2023}}`, printNo)
}

// fakeAPI serves two update pages over three distinct bills. S2 always
// fails with a server error.
type fakeAPI struct {
	mu   sync.Mutex
	hits map[string]int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/3/bills/updates/"):
		switch r.URL.Query().Get("offset") {
		case "1":
			fmt.Fprintf(w, `{"success": true, "responseType": "update-token list", "total": 4, "offsetStart": 1, "offsetEnd": 2, "limit": 2,
				"result": {"items": [%s, %s], "size": 2}}`, token("S1"), token("S2"))
		case "3":
			fmt.Fprintf(w, `{"success": true, "responseType": "update-token list", "total": 4, "offsetStart": 3, "offsetEnd": 4, "limit": 2,
				"result": {"items": [%s, %s], "size": 2}}`, token("S3"), token("S1"))
		default:
			http.Error(w, "unexpected offset", http.StatusBadRequest)
		}
	case r.URL.Path == "/api/3/bills/2023/S2/":
		http.Error(w, "boom", http.StatusInternalServerError)
	case strings.HasPrefix(r.URL.Path, "/api/3/bills/2023/"):
		printNo := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/3/bills/2023/"), "/")
		fmt.Fprint(w, billBody(printNo))
	default:
		http.NotFound(w, r)
	}
}

type harness struct {
	api       *fakeAPI
	store     *memory.Store
	publisher *recordingPublisher
	runner    *Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := &fakeAPI{hits: map[string]int{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	mem := memory.New()
	pub := &recordingPublisher{}
	client := openleg.NewClient(openleg.Config{Scheme: u.Scheme, Host: u.Host}, nil)
	runner := New(client, openleg.DefaultRegistry(nil, nil), Config{
		PageSize: 2,
		Retry:    resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Breaker:  resilience.CircuitBreakerConfig{FailureThreshold: 10},
	}, pub, nil, nil)
	runner.Register(importer.New[bills.Version](bills.New(nil), importer.Deps{Store: mem, References: mem}))
	return &harness{api: api, store: mem, publisher: pub, runner: runner}
}

func TestSyncUpdatesPagesAndContinuesPastFailures(t *testing.T) {
	h := newHarness(t)
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	stats, err := h.runner.SyncUpdates(context.Background(), "bills", from, from.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, &Stats{Total: 4, Imported: 2, Failed: 1, Skipped: 1, Records: 2}, stats)
	titles := []string{}
	for _, rec := range h.store.Records(legislation.KindBill) {
		titles = append(titles, rec.Title)
	}
	assert.Equal(t, []string{"2023-S1", "2023-S3"}, titles)
	assert.Equal(t, 2, h.api.hits["/api/3/bills/2023/S2/"], "server errors are retried")
	assert.Equal(t, 1, h.api.hits["/api/3/bills/2023/S1/"], "repeated tokens are fetched once")
}

func TestSyncItemPublishesEvents(t *testing.T) {
	h := newHarness(t)

	out, err := h.runner.SyncItem(context.Background(), "bills", openleg.P("2023", "S7"), nil)
	require.NoError(t, err)
	require.True(t, out.Success, out.Err)

	require.Len(t, h.publisher.events, 1)
	ev := h.publisher.events[0]
	assert.Equal(t, "bill/2023-S7", ev.Key)
	assert.Equal(t, "2023-S7", ev.Value.(ImportEvent).Title)
	assert.Equal(t, "bills", ev.Value.(ImportEvent).Processor)
}

func TestPublishFailureDoesNotFailImport(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker down")

	out, err := h.runner.SyncItem(context.Background(), "bills", openleg.P("2023", "S7"), nil)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Len(t, h.store.Records(legislation.KindBill), 1)
}

func TestSyncItemErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.runner.SyncItem(context.Background(), "nope", openleg.P("x"), nil)
	assert.ErrorIs(t, err, apperrors.ErrUnknownProcessor)

	_, err = h.runner.SyncItem(context.Background(), "bills", openleg.P("2023", "S2"), nil)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestHandleRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.runner.HandleRequest(ctx, nil, []byte(`{"processor": "bills", "resource": "2023/S9"}`)))
	_, err := h.store.Find(ctx, legislation.KindBill, "2023-S9")
	assert.NoError(t, err)

	assert.NoError(t, h.runner.HandleRequest(ctx, nil, []byte(`not json`)), "malformed requests are dropped")
	assert.NoError(t, h.runner.HandleRequest(ctx, nil, []byte(`{"processor": "nope", "resource": "x"}`)))

	err = h.runner.HandleRequest(ctx, nil, []byte(`{"processor": "bills", "resource": "2023/S2"}`))
	assert.Error(t, err, "retryable fetch failures are redelivered")

	require.NoError(t, h.runner.HandleRequest(ctx, nil, []byte(`{"processor": "bills", "from": "2023-01-01T00:00:00", "to": "2023-01-02T00:00:00"}`)))
	assert.Len(t, h.store.Records(legislation.KindBill), 3)
}
