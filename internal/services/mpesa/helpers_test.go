package mpesa

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testShortCode = "174379"
	testPassKey   = "bfb279f9aa9bdbcf158e97dd71a467cd2e0c893059b10f78e6b72ada1ed2c919"
	testToken     = "tok-abcdef123456"
)

// 2024-03-01 09:30:00 UTC is 12:30:00 in Nairobi.
var testNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type stubReply struct {
	status int
	body   string
	delay  time.Duration
}

// fakeDaraja is an in-process stand-in for the three Daraja endpoints.
type fakeDaraja struct {
	mu    sync.Mutex
	token []stubReply
	push  stubReply
	query stubReply

	tokenCalls atomic.Int32
	pushCalls  atomic.Int32
	queryCalls atomic.Int32

	lastTokenAuth  string
	lastGrantType  string
	lastPushAuth   string
	lastPush       map[string]any
	lastQuery      map[string]any
	lastPushHeader http.Header
}

func newFakeDaraja(t *testing.T) (*fakeDaraja, *httptest.Server) {
	t.Helper()
	f := &fakeDaraja{
		token: []stubReply{{status: http.StatusOK, body: `{"access_token":"` + testToken + `","expires_in":"3599"}`}},
		push: stubReply{status: http.StatusOK, body: `{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_123",` +
			`"ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success. Request accepted for processing"}`},
		query: stubReply{status: http.StatusOK, body: `{"ResponseCode":"0","ResponseDescription":"The service request has been accepted successsfully",` +
			`"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_123","ResultCode":"0","ResultDesc":"The service request is processed successfully."}`},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+tokenPath, func(w http.ResponseWriter, r *http.Request) {
		n := int(f.tokenCalls.Add(1))
		f.mu.Lock()
		f.lastTokenAuth = r.Header.Get("Authorization")
		f.lastGrantType = r.URL.Query().Get("grant_type")
		reply := f.token[len(f.token)-1]
		if n <= len(f.token) {
			reply = f.token[n-1]
		}
		f.mu.Unlock()
		write(w, reply)
	})
	mux.HandleFunc("POST "+stkPushPath, func(w http.ResponseWriter, r *http.Request) {
		f.pushCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lastPushAuth = r.Header.Get("Authorization")
		f.lastPushHeader = r.Header.Clone()
		f.lastPush = map[string]any{}
		_ = json.Unmarshal(body, &f.lastPush)
		reply := f.push
		f.mu.Unlock()
		write(w, reply)
	})
	mux.HandleFunc("POST "+stkQueryPath, func(w http.ResponseWriter, r *http.Request) {
		f.queryCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lastQuery = map[string]any{}
		_ = json.Unmarshal(body, &f.lastQuery)
		reply := f.query
		f.mu.Unlock()
		write(w, reply)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeDaraja) setToken(replies ...stubReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = replies
}

func (f *fakeDaraja) setPush(reply stubReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.push = reply
}

func (f *fakeDaraja) setQuery(reply stubReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = reply
}

func (f *fakeDaraja) calls() int {
	return int(f.tokenCalls.Load() + f.pushCalls.Load() + f.queryCalls.Load())
}

func write(w http.ResponseWriter, reply stubReply) {
	if reply.delay > 0 {
		time.Sleep(reply.delay)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.status)
	_, _ = io.WriteString(w, reply.body)
}

func testCredentials(baseURL string) Credentials {
	return Credentials{
		ShortCode:      testShortCode,
		PassKey:        testPassKey,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		CallbackURL:    "https://example.com/api/v1/mpesa/callback",
		Environment:    EnvironmentSandbox,
		BaseURL:        baseURL,
	}
}

func newTestClient(t *testing.T, baseURL string, opts Options) *Client {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = fixedClock
	}
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	client, err := NewClient(testCredentials(baseURL), opts)
	require.NoError(t, err)
	return client
}
