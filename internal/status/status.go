package status

import "errors"

// State is the lifecycle position of a push payment as seen by callers.
type State string

const (
	Queued     State = "queued"
	Processing State = "processing"
	Succeeded  State = "succeeded"
	Failed     State = "failed"
)

// Terminal reports whether no further transition is expected.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

var (
	ErrOrderInProgress      = errors.New("order: push already in progress for order")
	ErrPaymentNotFound      = errors.New("payment: payment not found")
	ErrInvalidCallbackToken = errors.New("callback: invalid callback token")
	ErrMalformedCallback    = errors.New("callback: malformed callback payload")
)
