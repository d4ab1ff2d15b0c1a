package mpesa

import (
	"context"
	"errors"
	"testing"

	"mpesa-gateway/internal/status"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandbox_Initiate(t *testing.T) {
	s := NewSandbox(Options{})

	first, err := s.Initiate(context.Background(), validRequest())
	require.NoError(t, err)
	second, err := s.Initiate(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, status.Queued, first.State)
	assert.True(t, IsSimulated(first.CheckoutRequestID))
	assert.NotEqual(t, first.CheckoutRequestID, second.CheckoutRequestID)
	assert.Len(t, first.MerchantRequestID, 16)
	assert.Equal(t, "254712345678", first.Phone)
}

func TestSandbox_InitiateValidates(t *testing.T) {
	s := NewSandbox(Options{})

	req := validRequest()
	req.Amount = decimal.NewFromInt(-1)
	_, err := s.Initiate(context.Background(), req)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "amount", valErr.Field)
}

func TestSandbox_PollIsTerminalAndStable(t *testing.T) {
	s := NewSandbox(Options{SuccessRate: 0.5})

	for i := 0; i < 50; i++ {
		res, err := s.Initiate(context.Background(), validRequest())
		require.NoError(t, err)

		first, err := s.Poll(context.Background(), res.CheckoutRequestID)
		require.NoError(t, err)
		second, err := s.Poll(context.Background(), res.CheckoutRequestID)
		require.NoError(t, err)

		assert.True(t, first.State.Terminal())
		assert.Equal(t, first, second)
		if first.State == status.Failed {
			assert.NotEqual(t, ResultSuccess, first.ResultCode)
			assert.NotEqual(t, unknownError, first.Message)
		}
	}
}

func TestSandbox_PollRejectsLiveIDs(t *testing.T) {
	s := NewSandbox(Options{})

	_, err := s.Poll(context.Background(), "ws_CO_123")

	var valErr *ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestSandbox_SuccessRate(t *testing.T) {
	t.Run("Zero declines every push", func(t *testing.T) {
		s := NewSandbox(Options{SuccessRate: 0})

		for i := 0; i < 20; i++ {
			res, err := s.Initiate(context.Background(), validRequest())
			require.NoError(t, err)

			poll, err := s.Poll(context.Background(), res.CheckoutRequestID)
			require.NoError(t, err)
			assert.Equal(t, status.Failed, poll.State)
		}
	})

	t.Run("Out of range falls back to default", func(t *testing.T) {
		assert.Equal(t, DefaultSuccessRate, NewSandbox(Options{SuccessRate: -0.1}).successRate)
		assert.Equal(t, DefaultSuccessRate, NewSandbox(Options{SuccessRate: 1.5}).successRate)
		assert.Equal(t, 1.0, NewSandbox(Options{SuccessRate: 1}).successRate)
	})
}
