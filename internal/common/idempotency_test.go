package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-pos/internal/common"
)

func TestIdemMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	status := http.StatusServiceUnavailable
	calls := 0
	h := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	send := func(op string) int {
		req := httptest.NewRequest(http.MethodPost, "/carts/1/pay", nil)
		req.Header.Set("Idempotency-Key", "abc")
		req = req.WithContext(common.WithOperator(req.Context(), common.Operator{ID: op}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusServiceUnavailable, send("amy"))
	status = http.StatusCreated
	require.Equal(t, http.StatusCreated, send("amy"))
	require.Equal(t, http.StatusConflict, send("amy"))
	require.Equal(t, http.StatusCreated, send("ben"))
	require.Equal(t, 3, calls)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carts/1/pay", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
}
