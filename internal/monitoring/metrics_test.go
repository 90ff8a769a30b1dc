package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordResolve("user", time.Millisecond)
	m.RecordResolve("user", time.Millisecond)
	m.RecordResolve("not_found", time.Millisecond)
	m.RecordDirectoryOperation("create_user_address", nil)
	m.RecordDirectoryOperation("create_user_address", errors.New("down"))
	m.RecordQuotaTrackerError()
	m.RecordRecipientCheck("accepted")
	m.RecordSessionLimited()
	m.RecordHTTPRequest(http.MethodGet, "/v1/addresses/resolve/:address", http.StatusOK, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResolveTotal.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolveTotal.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DirectoryOpsTotal.WithLabelValues("create_user_address", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DirectoryOpsTotal.WithLabelValues("create_user_address", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaTrackerErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecipientChecks.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsLimited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/addresses/resolve/:address", "200")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordResolve("user", time.Millisecond)
		m.RecordDirectoryOperation("delete", nil)
		m.RecordQuotaTrackerError()
		m.RecordRecipientCheck("unknown")
		m.RecordSessionLimited()
		m.RecordPanic()
		m.RecordHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	})
}

func TestMetrics_HTTPHandler(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordPanic()

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "addrdir_panics_total 1")
}
