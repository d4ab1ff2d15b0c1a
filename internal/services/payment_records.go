package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mpesa-gateway/internal/services/mpesa"
	"mpesa-gateway/internal/status"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

const PaymentsCollection = "mpesa_payments"

// Outcome is a terminal or intermediate state reported by a poll or callback.
type Outcome struct {
	State             status.State
	ResultCode        string
	ResultDescription string
	Message           string
	ReceiptNumber     string
}

type PaymentRecord struct {
	OrderID           string          `json:"order_id"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	MerchantRequestID string          `json:"merchant_request_id"`
	Phone             string          `json:"phone"`
	Amount            decimal.Decimal `json:"amount"`
	State             status.State    `json:"state"`
	ResultCode        string          `json:"result_code"`
	ResultDescription string          `json:"result_description"`
	Message           string          `json:"message"`
	ReceiptNumber     string          `json:"receipt_number"`
}

type PaymentRecorder interface {
	RecordPush(ctx context.Context, res *mpesa.PushResult) error
	UpdateOutcome(ctx context.Context, checkoutID string, o Outcome) error
	FindByCheckoutID(ctx context.Context, checkoutID string) (*PaymentRecord, error)
}

// PocketBaseRecorder stores push attempts in the mpesa_payments collection.
type PocketBaseRecorder struct {
	app core.App
}

func NewPocketBaseRecorder(app core.App) *PocketBaseRecorder {
	return &PocketBaseRecorder{app: app}
}

func (r *PocketBaseRecorder) RecordPush(ctx context.Context, res *mpesa.PushResult) error {
	collection, err := r.app.FindCollectionByNameOrId(PaymentsCollection)
	if err != nil {
		return fmt.Errorf("RecordPush: FindCollectionByNameOrId: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("order_id", res.OrderID)
	record.Set("checkout_request_id", res.CheckoutRequestID)
	record.Set("merchant_request_id", res.MerchantRequestID)
	record.Set("phone", res.Phone)
	record.Set("network", res.Network)
	record.Set("amount", res.Amount.InexactFloat64())
	record.Set("state", string(res.State))
	record.Set("result_code", res.ResponseCode)
	record.Set("result_description", res.ResponseDescription)
	record.Set("message", res.Message)

	if err := r.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("RecordPush: SaveWithContext: %w", err)
	}
	return nil
}

func (r *PocketBaseRecorder) UpdateOutcome(ctx context.Context, checkoutID string, o Outcome) error {
	record, err := r.find(checkoutID)
	if err != nil {
		return err
	}

	record.Set("state", string(o.State))
	record.Set("result_code", o.ResultCode)
	record.Set("result_description", o.ResultDescription)
	record.Set("message", o.Message)
	if o.ReceiptNumber != "" {
		record.Set("receipt_number", o.ReceiptNumber)
	}

	if err := r.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("UpdateOutcome: SaveWithContext: %w", err)
	}
	return nil
}

func (r *PocketBaseRecorder) FindByCheckoutID(ctx context.Context, checkoutID string) (*PaymentRecord, error) {
	record, err := r.find(checkoutID)
	if err != nil {
		return nil, err
	}

	return &PaymentRecord{
		OrderID:           record.GetString("order_id"),
		CheckoutRequestID: record.GetString("checkout_request_id"),
		MerchantRequestID: record.GetString("merchant_request_id"),
		Phone:             record.GetString("phone"),
		Amount:            decimal.NewFromFloat(record.GetFloat("amount")),
		State:             status.State(record.GetString("state")),
		ResultCode:        record.GetString("result_code"),
		ResultDescription: record.GetString("result_description"),
		Message:           record.GetString("message"),
		ReceiptNumber:     record.GetString("receipt_number"),
	}, nil
}

func (r *PocketBaseRecorder) find(checkoutID string) (*core.Record, error) {
	record, err := r.app.FindFirstRecordByFilter(
		PaymentsCollection,
		"checkout_request_id = {:checkoutId}",
		dbx.Params{"checkoutId": checkoutID},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindFirstRecordByFilter: %w", err)
	}
	return record, nil
}
