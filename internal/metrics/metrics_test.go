package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycle(t *testing.T) {
	m := getMetrics()
	activeBefore := testutil.ToFloat64(m.jobsActive)
	doneBefore := testutil.ToFloat64(m.jobsTotal.WithLabelValues(ResultComplete))

	JobStarted()
	assert.Equal(t, activeBefore+1, testutil.ToFloat64(m.jobsActive))

	JobFinished(ResultComplete, 250*time.Millisecond)
	assert.Equal(t, activeBefore, testutil.ToFloat64(m.jobsActive))
	assert.Equal(t, doneBefore+1, testutil.ToFloat64(m.jobsTotal.WithLabelValues(ResultComplete)))
}

func TestRowsProcessed(t *testing.T) {
	m := getMetrics()
	okBefore := testutil.ToFloat64(m.rowsTotal.WithLabelValues("ok"))
	failedBefore := testutil.ToFloat64(m.rowsTotal.WithLabelValues("failed"))

	RowsProcessed(7, 2)

	assert.Equal(t, okBefore+7, testutil.ToFloat64(m.rowsTotal.WithLabelValues("ok")))
	assert.Equal(t, failedBefore+2, testutil.ToFloat64(m.rowsTotal.WithLabelValues("failed")))
}

func TestHandler(t *testing.T) {
	EntityResolved("user", "created")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "policyingest_resolve_total"))
}
