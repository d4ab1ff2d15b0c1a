package mpesa

import (
	"encoding/json"
	"fmt"
	"time"

	"mpesa-gateway/internal/status"

	"github.com/shopspring/decimal"
)

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        code   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value,omitempty"`
				} `json:"Item"`
			} `json:"CallbackMetadata,omitempty"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// CallbackResult is the final outcome pushed by the provider to CallBackURL.
type CallbackResult struct {
	MerchantRequestID string          `json:"merchant_request_id"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	State             status.State    `json:"state"`
	ResultCode        string          `json:"result_code"`
	ResultDescription string          `json:"result_description"`
	Message           string          `json:"message"`
	Amount            decimal.Decimal `json:"amount"`
	ReceiptNumber     string          `json:"receipt_number,omitempty"`
	PhoneNumber       string          `json:"phone_number,omitempty"`
	TransactionDate   time.Time       `json:"transaction_date,omitempty"`
}

// ParseCallback decodes an STK callback body. Metadata is only present on
// successful payments.
func ParseCallback(body []byte) (*CallbackResult, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("ParseCallback: json.Unmarshal: %w: %v", status.ErrMalformedCallback, err)
	}

	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" || cb.ResultCode == "" {
		return nil, fmt.Errorf("ParseCallback: %w: missing CheckoutRequestID or ResultCode", status.ErrMalformedCallback)
	}

	rc := cb.ResultCode.String()
	result := &CallbackResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		State:             resultState(rc),
		ResultCode:        rc,
		ResultDescription: cb.ResultDesc,
		Message:           Describe(rc),
	}

	if cb.CallbackMetadata == nil {
		return result, nil
	}

	for _, item := range cb.CallbackMetadata.Item {
		value := rawValue(item.Value)
		switch item.Name {
		case "Amount":
			if amount, err := decimal.NewFromString(value); err == nil {
				result.Amount = amount
			}
		case "MpesaReceiptNumber":
			result.ReceiptNumber = value
		case "PhoneNumber":
			result.PhoneNumber = value
		case "TransactionDate":
			if ts, err := time.ParseInLocation(TimestampLayout, value, eastAfricaTime); err == nil {
				result.TransactionDate = ts
			}
		}
	}

	return result, nil
}

func rawValue(raw json.RawMessage) string {
	var c code
	if len(raw) == 0 {
		return ""
	}
	_ = c.UnmarshalJSON(raw)
	return c.String()
}
