package mpesa

import (
	"strings"

	"mpesa-gateway/internal/status"
)

// Result codes returned in ResponseCode / ResultCode.
const (
	ResultSuccess            = "0"
	ResultInsufficientFunds  = "1"
	ResultSubscriberLocked   = "1001"
	ResultTransactionExpired = "1019"
	ResultPushSendError      = "1025"
	ResultCancelledByUser    = "1032"
	ResultUserUnreachable    = "1037"
	ResultInvalidInitiator   = "2001"
	ResultStillProcessing    = "4999"
	ResultPushRequestError   = "9999"
)

// API error codes returned in errorCode.
const (
	ErrCodeInvalidRequest     = "400.002.02"
	ErrCodeInvalidCredentials = "401.002.01"
	ErrCodeResourceNotFound   = "404.001.01"
	ErrCodeInvalidAccessToken = "404.001.03"
	ErrCodeInvalidGrantType   = "404.001.04"
	ErrCodeStillProcessing    = "500.001.1001"
	ErrCodeServerError        = "500.002.1001"
	ErrCodeSystemBusy         = "500.003.02"
	ErrCodeSpikeArrest        = "500.003.03"
)

const unknownError = "Unknown error"

var descriptions = map[string]string{
	ResultSuccess:            "The service request is processed successfully",
	ResultInsufficientFunds:  "The balance is insufficient for the transaction",
	"2":                      "Less than minimum transaction value",
	"3":                      "More than maximum transaction value",
	"4":                      "Would exceed daily transfer limit",
	"5":                      "Would exceed minimum balance",
	"6":                      "Unresolved primary party",
	"7":                      "Unresolved receiver party",
	"8":                      "Would exceed maximum balance",
	"11":                     "Debit account invalid",
	"12":                     "Credit account invalid",
	"13":                     "Unresolved debit account",
	"14":                     "Unresolved credit account",
	"15":                     "Duplicate detected",
	"17":                     "Internal failure",
	"20":                     "Unresolved initiator",
	"26":                     "Traffic blocking condition in place",
	ResultSubscriberLocked:   "A transaction is already in process for the subscriber",
	ResultTransactionExpired: "The transaction has expired",
	ResultPushSendError:      "An error occurred while sending the push request",
	ResultCancelledByUser:    "The request was cancelled by the user",
	ResultUserUnreachable:    "The user could not be reached",
	ResultInvalidInitiator:   "The initiator information is invalid",
	ResultStillProcessing:    "The transaction is still under processing",
	ResultPushRequestError:   "An error occurred while sending the push request",

	ErrCodeInvalidRequest:     "Invalid request parameters",
	ErrCodeInvalidCredentials: "Invalid authentication credentials",
	ErrCodeResourceNotFound:   "Resource not found",
	ErrCodeInvalidAccessToken: "Invalid access token",
	ErrCodeInvalidGrantType:   "Invalid grant type",
	ErrCodeStillProcessing:    "The transaction is being processed",
	ErrCodeServerError:        "Internal server error at the provider",
	ErrCodeSystemBusy:         "The provider system is busy",
	ErrCodeSpikeArrest:        "Too many requests to the provider",
}

// Describe translates a provider result or error code into a human readable
// message. Unknown codes yield "Unknown error".
func Describe(code string) string {
	if d, ok := descriptions[strings.TrimSpace(code)]; ok {
		return d
	}
	return unknownError
}

func isAuthErrorCode(code string) bool {
	return code == ErrCodeInvalidAccessToken || code == ErrCodeInvalidCredentials
}

// resultState maps a ResultCode. Only 4999 is not terminal.
func resultState(code string) status.State {
	switch strings.TrimSpace(code) {
	case ResultSuccess:
		return status.Succeeded
	case ResultStillProcessing:
		return status.Processing
	}
	return status.Failed
}
