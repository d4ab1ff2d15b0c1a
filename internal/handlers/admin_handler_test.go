package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"mpesa-gateway/internal/services"
	"mpesa-gateway/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAdminHandler_PendingAndReconcile(t *testing.T) {
	f := newFixture(t, "")
	admin := NewAdminHandler(f.service, zap.NewNop())

	push, _ := newEvent(http.MethodPost, "/api/v1/mpesa/stkpush", `{"order_id":"ORD-1","amount":250,"phone":"0712345678"}`)
	require.NoError(t, f.handler.InitiatePush(push))

	e, rec := newEvent(http.MethodGet, "/api/v1/mpesa/admin/pending", "")
	require.NoError(t, admin.GetPendingPushes(e))

	var pending struct {
		Count  int                    `json:"count"`
		Pushes []services.PendingPush `json:"pushes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Equal(t, 1, pending.Count)
	assert.Equal(t, services.PendingPush{CheckoutRequestID: "ws_CO_123", OrderID: "ORD-1"}, pending.Pushes[0])

	e, rec = newEvent(http.MethodPost, "/api/v1/mpesa/admin/reconcile", "")
	require.NoError(t, admin.ReconcilePending(e))

	var report services.ReconcileReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, services.ReconcileReport{Checked: 1, Settled: 1}, report)
	assert.Equal(t, status.Succeeded, f.records.records["ws_CO_123"].State)

	e, rec = newEvent(http.MethodGet, "/api/v1/mpesa/admin/pending", "")
	require.NoError(t, admin.GetPendingPushes(e))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Zero(t, pending.Count)
}
