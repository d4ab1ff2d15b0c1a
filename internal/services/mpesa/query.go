package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mpesa-gateway/internal/status"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const stkQueryPath = "/mpesa/stkpushquery/v1/query"

type stkQueryEnvelope struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type queryReply struct {
	ResponseCode        code   `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          code   `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`

	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Poll asks the provider for the state of a push. It never mutates local
// state, so repeated polls are safe.
func (c *Client) Poll(ctx context.Context, checkoutID string) (*PollResult, error) {
	checkoutID = strings.TrimSpace(checkoutID)
	if checkoutID == "" {
		return nil, &ValidationError{Field: "checkout_request_id", Reason: "must not be empty"}
	}

	token, err := c.fetchToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.signer.Sign(c.creds)
	envelope := stkQueryEnvelope{
		BusinessShortCode: c.creds.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutID,
	}

	resp, err := c.send(ctx, "stkquery", func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetAuthToken(token.Value).
			SetHeader("Content-Type", "application/json").
			SetBody(envelope).
			Post(stkQueryPath)
	})
	if err != nil {
		return nil, err
	}

	var reply queryReply
	if err := json.Unmarshal(resp.Body(), &reply); err != nil {
		return nil, &ProviderError{Op: "stkquery", StatusCode: resp.StatusCode(), Body: string(resp.Body()), Err: fmt.Errorf("Poll: json.Unmarshal: %w", err)}
	}

	result, err := interpretQuery(checkoutID, resp.StatusCode(), string(resp.Body()), reply)
	if err != nil {
		c.logger.Warn("stk query failed", zap.String("checkout_request_id", checkoutID), zap.Error(err))
		return nil, err
	}

	c.logger.Info("stk query answered",
		zap.String("checkout_request_id", checkoutID),
		zap.String("state", string(result.State)),
		zap.String("result_code", result.ResultCode),
	)
	return result, nil
}

func interpretQuery(checkoutID string, statusCode int, body string, reply queryReply) (*PollResult, error) {
	result := &PollResult{CheckoutRequestID: checkoutID}
	success := statusCode >= 200 && statusCode < 300

	switch {
	case reply.ResultCode != "":
		rc := reply.ResultCode.String()
		result.State = resultState(rc)
		result.ResultCode = rc
		result.ResultDescription = reply.ResultDesc
		result.Message = Describe(rc)

	case reply.ErrorCode == ErrCodeStillProcessing:
		result.State = status.Processing
		result.ResultCode = reply.ErrorCode
		result.ResultDescription = reply.ErrorMessage
		result.Message = Describe(reply.ErrorCode)

	case isAuthErrorCode(reply.ErrorCode):
		return nil, &AuthError{StatusCode: statusCode, Body: body}

	case strings.HasPrefix(reply.ErrorCode, "5"):
		return nil, &ProviderError{Op: "stkquery", StatusCode: statusCode, Body: body, Err: fmt.Errorf("%s: %s", reply.ErrorCode, reply.ErrorMessage)}

	case reply.ErrorCode != "":
		result.State = status.Failed
		result.ResultCode = reply.ErrorCode
		result.ResultDescription = reply.ErrorMessage
		result.Message = Describe(reply.ErrorCode)

	case success && reply.ResponseCode.String() == ResultSuccess:
		result.State = status.Processing
		result.Message = Describe(ErrCodeStillProcessing)

	default:
		return nil, &ProviderError{Op: "stkquery", StatusCode: statusCode, Body: body}
	}

	return result, nil
}
