package requesttime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fedcred/pkg/requestcontext"
)

func serve(h http.Handler) {
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/credentials/verify/x", nil))
}

func TestMiddleware_StampsWallClockInUTC(t *testing.T) {
	var captured time.Time
	before := time.Now()
	serve(Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = requestcontext.Now(r.Context())
	})))
	after := time.Now()

	assert.Equal(t, time.UTC, captured.Location())
	assert.False(t, captured.Before(before.UTC().Add(-time.Millisecond)))
	assert.False(t, captured.After(after))
}

func TestWithClock_IsStableWithinRequest(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, lagos)
	calls := 0
	clock := func() time.Time {
		calls++
		return fixed.Add(time.Duration(calls) * time.Hour)
	}

	var first, second time.Time
	serve(WithClock(clock)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		second = requestcontext.Now(r.Context())
	})))

	assert.Equal(t, 1, calls, "clock is read once per request")
	assert.Equal(t, first, second)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), first)
}

func TestNow_FallsBackToWallClock(t *testing.T) {
	before := time.Now()
	got := requestcontext.Now(context.Background())
	assert.False(t, got.Before(before))
}

func TestWithTime_InnermostWins(t *testing.T) {
	outer := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inner := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	ctx := requestcontext.WithTime(context.Background(), outer)
	ctx = requestcontext.WithTime(ctx, inner)

	assert.Equal(t, inner, requestcontext.Now(ctx))
}
