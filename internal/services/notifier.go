package services

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

// Notifier pushes payment state changes to the customer's app.
type Notifier interface {
	Notify(ctx context.Context, orderID string, payload map[string]any) error
}

type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNubNotifier(publishKey, subscribeKey, secretKey, userID string) *PubNubNotifier {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	pnCfg.PublishKey = publishKey
	pnCfg.SubscribeKey = subscribeKey
	pnCfg.SecretKey = secretKey
	return &PubNubNotifier{pn: pubnub.NewPubNub(pnCfg)}
}

// OrderChannel is the channel the app subscribes to for one order.
func OrderChannel(orderID string) string {
	return "order-" + orderID
}

func (n *PubNubNotifier) Notify(ctx context.Context, orderID string, payload map[string]any) error {
	_, _, err := n.pn.Publish().
		Channel(OrderChannel(orderID)).
		Message(payload).
		Execute()
	if err != nil {
		return fmt.Errorf("Notify: pubnub.Publish: %w", err)
	}
	return nil
}

// NopNotifier is used when no PubNub keys are configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, map[string]any) error { return nil }
