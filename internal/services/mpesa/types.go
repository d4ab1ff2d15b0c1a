package mpesa

import (
	"fmt"
	"strings"

	"mpesa-gateway/internal/phone"
	"mpesa-gateway/internal/status"

	"github.com/shopspring/decimal"
)

const (
	maxAccountReferenceLen = 12
	maxTransactionDescLen  = 13
	defaultTransactionDesc = "Payment"
)

type PaymentRequest struct {
	OrderID          string
	Amount           decimal.Decimal
	Phone            string
	AccountReference string
	Description      string
}

// PushResult is the outcome of one push attempt. State is Queued or Failed.
type PushResult struct {
	OrderID             string          `json:"order_id"`
	CheckoutRequestID   string          `json:"checkout_request_id,omitempty"`
	MerchantRequestID   string          `json:"merchant_request_id,omitempty"`
	State               status.State    `json:"state"`
	Message             string          `json:"message,omitempty"`
	ResponseCode        string          `json:"response_code,omitempty"`
	ResponseDescription string          `json:"response_description,omitempty"`
	Phone               string          `json:"phone"`
	Network             string          `json:"network,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
}

// PollResult is the outcome of one status query.
type PollResult struct {
	CheckoutRequestID string       `json:"checkout_request_id"`
	State             status.State `json:"state"`
	Message           string       `json:"message,omitempty"`
	ResultCode        string       `json:"result_code,omitempty"`
	ResultDescription string       `json:"result_description,omitempty"`
}

// preparedPush is a PaymentRequest that passed validation.
type preparedPush struct {
	orderID          string
	msisdn           string
	amount           decimal.Decimal
	accountReference string
	description      string
}

// prepare validates the request without touching the network.
func (r PaymentRequest) prepare(maxAmount decimal.Decimal) (*preparedPush, error) {
	orderID := strings.TrimSpace(r.OrderID)
	if orderID == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "must not be empty"}
	}

	normalized := phone.Normalize(r.Phone)
	if !normalized.OK {
		return nil, &ValidationError{Field: "phone", Reason: normalized.Reason}
	}

	amount := r.Amount.Round(0)
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if maxAmount.IsPositive() && amount.GreaterThan(maxAmount) {
		return nil, &ValidationError{Field: "amount", Reason: fmt.Sprintf("must not exceed %s", maxAmount.String())}
	}

	ref := strings.TrimSpace(r.AccountReference)
	if ref == "" {
		ref = orderID
	}
	desc := strings.TrimSpace(r.Description)
	if desc == "" {
		desc = defaultTransactionDesc
	}

	return &preparedPush{
		orderID:          orderID,
		msisdn:           normalized.E164,
		amount:           amount,
		accountReference: truncate(ref, maxAccountReferenceLen),
		description:      truncate(desc, maxTransactionDescLen),
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
