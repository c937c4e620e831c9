package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/snippet-sync/internal/apperror"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "invalid", Result(apperror.ValidationFailed("title", "title is required")))
	assert.Equal(t, "not_found", Result(apperror.NotFound("snippet", 1)))
	assert.Equal(t, "storage_error", Result(apperror.StorageFailed("saving snippet", errors.New("boom"))))
	assert.Equal(t, "error", Result(errors.New("boom")))
}

func TestObserveOperation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("create", nil)
	m.ObserveOperation("create", nil)
	m.ObserveOperation("create", apperror.ValidationFailed("code", "code is required"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "invalid")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("list", nil)
		m.ObserveRequest("GET", "/api/snippets", 200, time.Millisecond)
		m.ObserveMessage("getSnippets", "ok")
		m.ObserveChange()
	})
}
