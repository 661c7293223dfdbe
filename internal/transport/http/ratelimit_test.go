package http

import (
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()

	router := gin.New()
	router.GET("/limited", RateLimitMiddleware(2, &logger), func(c *gin.Context) {
		c.Status(stdhttp.StatusOK)
	})

	call := func(ip string) int {
		req := httptest.NewRequest(stdhttp.MethodGet, "/limited", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := call("10.0.0.1"); code != stdhttp.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := call("10.0.0.1"); code != stdhttp.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := call("10.0.0.2"); code != stdhttp.StatusOK {
		t.Fatalf("other clients keep their own budget, got %d", code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	limiter := newRateLimiter(0)
	for i := 0; i < 1000; i++ {
		if !limiter.allow("10.0.0.1") {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}
