package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newRateLimitedHandler(t *testing.T, limit int, window time.Duration) (http.Handler, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	mw := RateLimitMiddleware(redisClient, RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            window,
		KeyPrefix:         "ratelimit",
	}, zap.NewNop())

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}
	return handler, cleanup
}

func TestProperty_RateLimitingBlocksExcessiveRequests(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requests beyond the window limit get 429", prop.ForAll(
		func(limit int, excess int) bool {
			handler, cleanup := newRateLimitedHandler(t, limit, time.Second)
			defer cleanup()

			allowed, blocked := 0, 0
			for i := 0; i < limit+excess; i++ {
				req := httptest.NewRequest("GET", "/api/products", nil)
				req.RemoteAddr = "10.0.0.7:4321"
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					allowed++
				case http.StatusTooManyRequests:
					blocked++
				default:
					return false
				}
			}
			return allowed == limit && blocked == excess
		},
		gen.IntRange(1, 40),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_RateLimitHeadersAreSet(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every response carries limit and remaining headers", prop.ForAll(
		func(limit int) bool {
			handler, cleanup := newRateLimitedHandler(t, limit, time.Second)
			defer cleanup()

			for i := 1; i <= limit; i++ {
				req := httptest.NewRequest("GET", "/api/products", nil)
				req.RemoteAddr = "10.0.0.8:4321"
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				if w.Header().Get("X-RateLimit-Limit") != strconv.Itoa(limit) {
					return false
				}
				remaining, err := strconv.Atoi(w.Header().Get("X-RateLimit-Remaining"))
				if err != nil || remaining != limit-i {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitBlockedResponseHasRetryAfter(t *testing.T) {
	handler, cleanup := newRateLimitedHandler(t, 1, time.Minute)
	defer cleanup()

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/api/products", nil)
		req.RemoteAddr = "10.0.0.9:4321"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if i == 0 {
			if w.Code != http.StatusOK {
				t.Fatalf("first request should pass, got %d", w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("second request should be blocked, got %d", w.Code)
		}
		if w.Header().Get("Retry-After") == "" {
			t.Error("blocked response missing Retry-After header")
		}
		if w.Header().Get("X-RateLimit-Reset") == "" {
			t.Error("blocked response missing X-RateLimit-Reset header")
		}
	}
}

func TestRateLimitSeparatesClients(t *testing.T) {
	handler, cleanup := newRateLimitedHandler(t, 1, time.Minute)
	defer cleanup()

	for _, addr := range []string{"10.0.1.1:1000", "10.0.1.2:1000", "10.0.1.3:1000"} {
		req := httptest.NewRequest("GET", "/api/products", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("client %s should have its own window, got %d", addr, w.Code)
		}
	}
}
