package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestRunReportsWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", PingCheck(fakePinger{}))
	c.Register("index", CountCheck("content sets", 1, func() int { return 0 }))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["postgres"].Status)
	assert.Equal(t, StatusDegraded, report.Components["index"].Status)

	c.Register("redis", PingCheck(fakePinger{err: errors.New("connection refused")}))
	report = c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "connection refused", report.Components["redis"].Message)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("index", CountCheck("content sets", 1, func() int { return 0 }))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("postgres", PingCheck(fakePinger{err: errors.New("down")}))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
