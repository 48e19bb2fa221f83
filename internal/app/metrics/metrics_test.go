package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	before := testutil.ToFloat64(checkoutSessions.WithLabelValues("created"))
	RecordCheckout("created", 2)
	RecordCheckout("created", 0)
	if got := testutil.ToFloat64(checkoutSessions.WithLabelValues("created")) - before; got != 2 {
		t.Fatalf("created delta = %v, want 2", got)
	}

	revenue := testutil.ToFloat64(orderRevenue)
	RecordOrder(decimal.RequireFromString("250.50"))
	if got := testutil.ToFloat64(orderRevenue) - revenue; got != 250.5 {
		t.Fatalf("revenue delta = %v, want 250.5", got)
	}

	done := TrackInFlight()
	if testutil.ToFloat64(httpInFlight) < 1 {
		t.Fatal("expected in-flight gauge to increase")
	}
	done()
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordHTTPRequest("get", "/api/products/{slug}", http.StatusOK, 10*time.Millisecond)
	RecordPaymentVerification("ok")
	RecordMail("otp", true)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`storefront_http_requests_total{method="GET",path="/api/products/{slug}",status="200"}`,
		`storefront_payments_verifications_total{result="ok"}`,
		`storefront_mail_messages_total{success="true",template="otp"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
