package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthedEvent(userID, userAgent string) *core.RequestEvent {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mpesa/stkpush", nil)
	req.Header.Set("User-Agent", userAgent)

	e := &core.RequestEvent{}
	e.Request = req
	e.Response = httptest.NewRecorder()
	e.Auth = &core.Record{}
	e.Auth.Id = userID
	return e
}

func errStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *router.ApiError
	require.True(t, errors.As(err, &apiErr), "expected *router.ApiError, got %v", err)
	return apiErr.Status
}

func TestPushRateLimit(t *testing.T) {
	const key = "ratelimit:stkpush:user:u1"

	expectHit := func(mock redismock.ClientMock, count int64, expireSet bool) {
		mock.ExpectTxPipeline()
		mock.ExpectIncr(key).SetVal(count)
		mock.ExpectExpireNX(key, time.Minute).SetVal(expireSet)
		mock.ExpectTxPipelineExec()
	}

	t.Run("First request starts the window", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		expectHit(mock, 1, true)

		err := NewRateLimiter(db, 3, nil).PushRateLimit(newAuthedEvent("u1", "okhttp/4.12"))

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Within limit", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		expectHit(mock, 3, false)

		err := NewRateLimiter(db, 3, nil).PushRateLimit(newAuthedEvent("u1", "okhttp/4.12"))

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Over limit", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		expectHit(mock, 4, false)

		err := NewRateLimiter(db, 3, nil).PushRateLimit(newAuthedEvent("u1", "okhttp/4.12"))

		assert.Equal(t, http.StatusTooManyRequests, errStatus(t, err))
	})

	t.Run("Counter without TTL gets one", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		expectHit(mock, 2, true)

		err := NewRateLimiter(db, 3, nil).PushRateLimit(newAuthedEvent("u1", "okhttp/4.12"))

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Redis down lets the request through", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectTxPipeline()
		mock.ExpectIncr(key).SetErr(errors.New("connection refused"))

		err := NewRateLimiter(db, 3, nil).PushRateLimit(newAuthedEvent("u1", "okhttp/4.12"))

		assert.NoError(t, err)
	})

	t.Run("Disabled", func(t *testing.T) {
		db, mock := redismock.NewClientMock()

		err := NewRateLimiter(db, 0, nil).PushRateLimit(newAuthedEvent("u1", "okhttp/4.12"))

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAntiBot(t *testing.T) {
	db, _ := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 3, nil)

	assert.NoError(t, limiter.AntiBot(newAuthedEvent("u1", "Dart/3.3 (dart:io)")))
	assert.Equal(t, http.StatusForbidden, errStatus(t, limiter.AntiBot(newAuthedEvent("u1", "Googlebot/2.1"))))
	assert.Equal(t, http.StatusForbidden, errStatus(t, limiter.AntiBot(newAuthedEvent("u1", "Mozilla/5.0 (compatible; SomeCrawler)"))))
}
