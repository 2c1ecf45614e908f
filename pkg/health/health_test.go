package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadyReflectsWorstComponent(t *testing.T) {
	c := NewChecker()
	c.Register("index", PingCheck(func(context.Context) error { return nil }, true))
	c.Register("cache", PingCheck(func(context.Context) error { return errors.New("refused") }, false))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("index", PingCheck(func(context.Context) error { return errors.New("uninitialized") }, true))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "uninitialized")
}

func TestSlowCheckTimesOut(t *testing.T) {
	c := NewChecker()
	c.checkTimeout = 20 * time.Millisecond
	c.Register("postgres", func(ctx context.Context) ComponentHealth {
		time.Sleep(200 * time.Millisecond)
		return ComponentHealth{Status: StatusUp}
	})
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "check timed out", report.Components["postgres"].Message)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"alive"`)
}

func TestEmptyCheckerIsUp(t *testing.T) {
	assert.Equal(t, StatusUp, NewChecker().Run(context.Background()).Status)
}
