package mpesa

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"mpesa-gateway/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll_Mapping(t *testing.T) {
	tests := []struct {
		name     string
		reply    stubReply
		want     status.State
		wantCode string
		wantMsg  string
		wantDesc string
	}{
		{
			name:     "Succeeded",
			reply:    stubReply{status: http.StatusOK, body: `{"ResponseCode":"0","ResultCode":"0","ResultDesc":"The service request is processed successfully."}`},
			want:     status.Succeeded,
			wantCode: "0",
			wantMsg:  "The service request is processed successfully",
		},
		{
			name:     "Numeric result code",
			reply:    stubReply{status: http.StatusOK, body: `{"ResponseCode":"0","ResultCode":0,"ResultDesc":"ok"}`},
			want:     status.Succeeded,
			wantCode: "0",
			wantMsg:  "The service request is processed successfully",
		},
		{
			name:     "Cancelled by user",
			reply:    stubReply{status: http.StatusOK, body: `{"ResponseCode":"0","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`},
			want:     status.Failed,
			wantCode: "1032",
			wantMsg:  "The request was cancelled by the user",
			wantDesc: "Request cancelled by user",
		},
		{
			name:     "User unreachable",
			reply:    stubReply{status: http.StatusOK, body: `{"ResponseCode":"0","ResultCode":"1037","ResultDesc":"DS timeout user cannot be reached"}`},
			want:     status.Failed,
			wantCode: "1037",
			wantMsg:  "The user could not be reached",
			wantDesc: "DS timeout user cannot be reached",
		},
		{
			name:     "Unknown result code keeps raw description",
			reply:    stubReply{status: http.StatusOK, body: `{"ResponseCode":"0","ResultCode":"7777","ResultDesc":"Something unexpected"}`},
			want:     status.Failed,
			wantCode: "7777",
			wantMsg:  "Unknown error",
			wantDesc: "Something unexpected",
		},
		{
			name:     "Result code still under processing",
			reply:    stubReply{status: http.StatusOK, body: `{"ResponseCode":"0","ResultCode":"4999","ResultDesc":"The transaction is still under processing"}`},
			want:     status.Processing,
			wantCode: "4999",
			wantMsg:  "The transaction is still under processing",
			wantDesc: "The transaction is still under processing",
		},
		{
			name:     "Still processing",
			reply:    stubReply{status: http.StatusInternalServerError, body: `{"requestId":"r","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`},
			want:     status.Processing,
			wantCode: "500.001.1001",
			wantMsg:  "The transaction is being processed",
			wantDesc: "The transaction is being processed",
		},
		{
			name:    "Accepted without result",
			reply:   stubReply{status: http.StatusOK, body: `{"ResponseCode":"0","ResponseDescription":"accepted"}`},
			want:    status.Processing,
			wantMsg: "The transaction is being processed",
		},
		{
			name:     "Invalid checkout id",
			reply:    stubReply{status: http.StatusBadRequest, body: `{"requestId":"r","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid CheckoutRequestID"}`},
			want:     status.Failed,
			wantCode: "400.002.02",
			wantMsg:  "Invalid request parameters",
			wantDesc: "Bad Request - Invalid CheckoutRequestID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newFakeDaraja(t)
			fake.setQuery(tt.reply)
			client := newTestClient(t, srv.URL, Options{})

			res, err := client.Poll(context.Background(), "ws_CO_123")

			require.NoError(t, err)
			assert.Equal(t, "ws_CO_123", res.CheckoutRequestID)
			assert.Equal(t, tt.want, res.State)
			assert.Equal(t, tt.wantCode, res.ResultCode)
			assert.Equal(t, tt.wantMsg, res.Message)
			assert.Equal(t, tt.wantDesc, res.ResultDescription)
		})
	}
}

func TestPoll_Envelope(t *testing.T) {
	fake, srv := newFakeDaraja(t)
	client := newTestClient(t, srv.URL, Options{})

	_, err := client.Poll(context.Background(), " ws_CO_123 ")

	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"BusinessShortCode": testShortCode,
		"Password":          Password(testShortCode, testPassKey, "20240301123000"),
		"Timestamp":         "20240301123000",
		"CheckoutRequestID": "ws_CO_123",
	}, fake.lastQuery)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestPoll_Errors(t *testing.T) {
	tests := []struct {
		name     string
		reply    stubReply
		wantAuth bool
	}{
		{"System busy", stubReply{status: http.StatusServiceUnavailable, body: `{"errorCode":"500.003.02","errorMessage":"System is busy"}`}, false},
		{"Unparseable body", stubReply{status: http.StatusBadGateway, body: `<html/>`}, false},
		{"Empty object", stubReply{status: http.StatusNotFound, body: `{}`}, false},
		{"Invalid access token", stubReply{status: http.StatusNotFound, body: `{"errorCode":"404.001.03","errorMessage":"Invalid Access Token"}`}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newFakeDaraja(t)
			fake.setQuery(tt.reply)
			client := newTestClient(t, srv.URL, Options{})

			res, err := client.Poll(context.Background(), "ws_CO_123")

			assert.Nil(t, res)
			if tt.wantAuth {
				var authErr *AuthError
				assert.True(t, errors.As(err, &authErr))
				return
			}
			var provErr *ProviderError
			require.True(t, errors.As(err, &provErr))
			assert.Equal(t, tt.reply.status, provErr.StatusCode)
		})
	}
}

func TestPoll_EmptyIDMakesNoCalls(t *testing.T) {
	fake, srv := newFakeDaraja(t)
	client := newTestClient(t, srv.URL, Options{})

	_, err := client.Poll(context.Background(), "  ")

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Zero(t, fake.calls())
}

func TestPoll_Idempotent(t *testing.T) {
	_, srv := newFakeDaraja(t)
	client := newTestClient(t, srv.URL, Options{})

	first, err := client.Poll(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	second, err := client.Poll(context.Background(), "ws_CO_123")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
