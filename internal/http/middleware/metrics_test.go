package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsRequestsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.POST("/webhook", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/webhook", "200"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", nil))

	after := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/webhook", "200"))
	if after != before+1 {
		t.Fatalf("http_requests_total delta = %v, want 1", after-before)
	}
}

func TestMetrics_UnmatchedRouteUsesRawPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())

	before := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	after := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))
	if after != before+1 {
		t.Fatalf("unmatched route was not counted")
	}
}

func TestObserveTurn(t *testing.T) {
	before := testutil.ToFloat64(turnOutcomes.WithLabelValues("completed"))
	ObserveTurn("completed")
	after := testutil.ToFloat64(turnOutcomes.WithLabelValues("completed"))
	if after != before+1 {
		t.Fatalf("registration_turns_total delta = %v, want 1", after-before)
	}

	beforeUnknown := testutil.ToFloat64(turnOutcomes.WithLabelValues("unknown"))
	ObserveTurn("")
	if got := testutil.ToFloat64(turnOutcomes.WithLabelValues("unknown")); got != beforeUnknown+1 {
		t.Fatal("empty outcome must count as unknown")
	}
}

func TestObserveOutbound(t *testing.T) {
	before := testutil.ToFloat64(outboundMsgs.WithLabelValues("sent"))
	ObserveOutbound("sent")
	if got := testutil.ToFloat64(outboundMsgs.WithLabelValues("sent")); got != before+1 {
		t.Fatal("outbound_messages_total was not incremented")
	}
}
