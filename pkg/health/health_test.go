package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error { return nil }

func failing(msg string) Ping {
	return func(context.Context) error { return errors.New(msg) }
}

func TestOptionalFailureDegrades(t *testing.T) {
	c := NewChecker()
	c.Require("store", up)
	c.Optional("redis", failing("refused"))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Dependencies["store"].Status)
	assert.Equal(t, Result{Status: StatusDegraded, Optional: true, Error: "refused", Elapsed: report.Dependencies["redis"].Elapsed}, report.Dependencies["redis"])
}

func TestRequiredFailureWins(t *testing.T) {
	c := NewChecker()
	c.Optional("redis", failing("refused"))
	c.Require("store", failing("no db"))
	c.Require("kafka", up)

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "no db", report.Dependencies["store"].Error)
	assert.Len(t, report.Dependencies, 3)
}

func TestRegisteringTwiceReplaces(t *testing.T) {
	c := NewChecker()
	c.Require("store", failing("no db"))
	c.Optional("store", failing("no db"))

	assert.Equal(t, []string{"store"}, c.Names())
	assert.Equal(t, StatusDegraded, c.Run(context.Background()).Status)
}

func TestReadyHandlerStatusCode(t *testing.T) {
	c := NewChecker()
	c.Require("store", up)

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUp, report.Dependencies["store"].Status)

	c.Optional("redis", failing("refused"))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandlerIgnoresDependencies(t *testing.T) {
	c := NewChecker()
	c.Require("store", failing("no db"))

	rec := httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store"`)
}
