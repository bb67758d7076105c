package csrf

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetricsAndLogging(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	core, logs := observer.New(zapcore.DebugLevel)

	p := newProtector(t, Config{Metrics: m, Logger: zap.New(core)})
	app := appHandler(p)
	token := issueToken(t, app, DefaultCookieName)

	require.Equal(t, http.StatusOK, postWithToken(app, DefaultCookieName, DefaultHeaderName, token, token).Code)
	require.Equal(t, http.StatusForbidden, postWithToken(app, DefaultCookieName, DefaultHeaderName, token, "bad").Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.issued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("token_invalid")))

	entries := logs.FilterMessage("csrf check failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "token_invalid", entries[0].ContextMap()["reason"])
	assert.Equal(t, "/submit", entries[0].ContextMap()["path"])
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.validated("ok")
		m.tokenIssued()
		m.tokenDeleted()
	})
}

func TestDefaultErrorHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	DefaultErrorHandler(rec, httptest.NewRequest(http.MethodPost, "/", nil), ErrOriginNoMatch)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "origin")
}

// brokenStorage is an in-memory Storage whose reads or writes can be made to fail.
type brokenStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	failSet bool
	failGet bool
}

func newBrokenStorage() *brokenStorage {
	return &brokenStorage{data: map[string][]byte{}}
}

func (s *brokenStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errors.New("storage down")
	}
	return s.data[key], nil
}

func (s *brokenStorage) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errors.New("storage down")
	}
	s.data[key] = val
	return nil
}

func (s *brokenStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *brokenStorage) set(failGet, failSet bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet, s.failSet = failGet, failSet
}

func TestMetrics_PersistFailureCountedOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	st := newBrokenStorage()

	p := newProtector(t, Config{Metrics: m, Storage: st})
	app := appHandler(p)
	token := issueToken(t, app, DefaultCookieName)

	st.set(false, true)
	rec := postWithToken(app, DefaultCookieName, DefaultHeaderName, token, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.validations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("internal")))
}

func TestMetrics_SingleUseRemoveThenPersistFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	st := newBrokenStorage()

	p := newProtector(t, Config{Metrics: m, Storage: st, SingleUseToken: true})
	app := appHandler(p)
	token := issueToken(t, app, DefaultCookieName)

	st.set(false, true)
	rec := postWithToken(app, DefaultCookieName, DefaultHeaderName, token, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.validations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("internal")))
}

func TestMetrics_SafeMethodFailuresNotCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	st := newBrokenStorage()

	p := newProtector(t, Config{Metrics: m, Storage: st})
	app := appHandler(p)
	token := issueToken(t, app, DefaultCookieName)

	st.set(true, false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, 0, testutil.CollectAndCount(m.validations))
}
