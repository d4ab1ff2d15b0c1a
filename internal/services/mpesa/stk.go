package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mpesa-gateway/internal/phone"
	"mpesa-gateway/internal/status"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const stkPushPath = "/mpesa/stkpush/v1/processrequest"

type stkPushEnvelope struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

func (e stkPushEnvelope) logFields() []zap.Field {
	return []zap.Field{
		zap.String("BusinessShortCode", e.BusinessShortCode),
		zap.String("Password", redacted),
		zap.String("Timestamp", e.Timestamp),
		zap.String("TransactionType", e.TransactionType),
		zap.Int64("Amount", e.Amount),
		zap.String("PhoneNumber", e.PhoneNumber),
		zap.String("AccountReference", e.AccountReference),
	}
}

type pushReply struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        code   `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`

	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Initiate sends one STK push. Invalid input fails with *ValidationError
// before any network call. Provider rejections come back as a Failed result.
func (c *Client) Initiate(ctx context.Context, req PaymentRequest) (*PushResult, error) {
	p, err := req.prepare(c.maxAmount)
	if err != nil {
		return nil, err
	}

	token, err := c.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.signer.Sign(c.creds)
	envelope := stkPushEnvelope{
		BusinessShortCode: c.creds.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   c.creds.transactionType(),
		Amount:            p.amount.IntPart(),
		PartyA:            p.msisdn,
		PartyB:            c.creds.receiver(),
		PhoneNumber:       p.msisdn,
		CallBackURL:       c.creds.CallbackURL,
		AccountReference:  p.accountReference,
		TransactionDesc:   p.description,
	}
	c.logger.Info("sending stk push", append(envelope.logFields(), zap.String("order_id", p.orderID))...)

	resp, err := c.send(ctx, "stkpush", func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetAuthToken(token.Value).
			SetHeader("Content-Type", "application/json").
			SetBody(envelope).
			Post(stkPushPath)
	})
	if err != nil {
		return nil, err
	}

	var reply pushReply
	if err := json.Unmarshal(resp.Body(), &reply); err != nil {
		return nil, &ProviderError{Op: "stkpush", StatusCode: resp.StatusCode(), Body: string(resp.Body()), Err: fmt.Errorf("Initiate: json.Unmarshal: %w", err)}
	}

	result := &PushResult{
		OrderID:           p.orderID,
		MerchantRequestID: reply.MerchantRequestID,
		Phone:             p.msisdn,
		Network:           phone.DetectNetwork(p.msisdn),
		Amount:            p.amount,
	}

	switch {
	case resp.IsSuccess() && reply.ResponseCode.String() == ResultSuccess:
		if reply.CheckoutRequestID == "" {
			return nil, &ProviderError{Op: "stkpush", StatusCode: resp.StatusCode(), Body: string(resp.Body()), Err: errors.New("Initiate: missing CheckoutRequestID")}
		}
		result.State = status.Queued
		result.CheckoutRequestID = reply.CheckoutRequestID
		result.ResponseCode = reply.ResponseCode.String()
		result.ResponseDescription = reply.ResponseDescription
		result.Message = reply.CustomerMessage

	case isAuthErrorCode(reply.ErrorCode):
		return nil, &AuthError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}

	case reply.ErrorCode != "":
		result.State = status.Failed
		result.ResponseCode = reply.ErrorCode
		result.ResponseDescription = reply.ErrorMessage
		result.Message = Describe(reply.ErrorCode)
		if reply.ErrorCode == ErrCodeStillProcessing {
			// on push this code means another prompt is pending for the phone
			result.Message = Describe(ResultSubscriberLocked)
		}

	case resp.IsSuccess() && reply.ResponseCode != "":
		result.State = status.Failed
		result.ResponseCode = reply.ResponseCode.String()
		result.ResponseDescription = reply.ResponseDescription
		result.Message = Describe(reply.ResponseCode.String())

	default:
		return nil, &ProviderError{Op: "stkpush", StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	c.logger.Info("stk push answered",
		zap.String("order_id", p.orderID),
		zap.String("state", string(result.State)),
		zap.String("checkout_request_id", result.CheckoutRequestID),
		zap.String("response_code", result.ResponseCode),
	)
	return result, nil
}
