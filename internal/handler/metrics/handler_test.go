package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	appmetrics "github.com/jwalitptl/slotbook/pkg/metrics"
)

func TestExposesRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := appmetrics.New("slotbook", reg)
	m.BookingsCreated.Inc()

	r := gin.New()
	New(reg).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "slotbook_bookings_created_total 1")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
