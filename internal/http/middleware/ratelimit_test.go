package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_AllowsThenRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(0.0001, 2, KeyByCitizenOrIP())
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after burst", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response must carry Retry-After")
	}
}

func TestRateLimiter_BucketsAreIndependentPerCitizen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(0.0001, 1, KeyByCitizenOrIP())
	r.Use(func(c *gin.Context) {
		c.Set(CitizenIDKey, c.GetHeader("X-Test-Citizen"))
		c.Next()
	})
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(citizen string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Test-Citizen", citizen)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if got := send("911111111111"); got != http.StatusOK {
		t.Fatalf("first citizen first request = %d", got)
	}
	if got := send("911111111111"); got != http.StatusTooManyRequests {
		t.Fatalf("first citizen second request = %d, want 429", got)
	}
	// A different citizen has a fresh bucket.
	if got := send("922222222222"); got != http.StatusOK {
		t.Fatalf("second citizen first request = %d, want 200", got)
	}
}

func TestKeyByCitizenOrIP_FallsBackToIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	fn := KeyByCitizenOrIP()
	if key := fn(c); len(key) < 4 || key[:3] != "ip:" {
		t.Fatalf("key = %q, want ip: prefix", key)
	}

	c.Set(CitizenIDKey, "911234567890")
	if key := fn(c); key != "citizen:911234567890" {
		t.Fatalf("key = %q", key)
	}
}

func TestNewRateLimiter_CoercesBurst(t *testing.T) {
	rl := NewRateLimiter(1, 0, KeyByCitizenOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d, want coerced to 1", rl.burst)
	}
}
