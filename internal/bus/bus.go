package bus

import "context"

// Bus is the messaging transport between the coordinator and sprites.
//
// Delivery contract: at-most-once, no persistence, no redelivery.
// Messages published to a channel are delivered in publish order to each
// live subscription of that channel (FIFO per channel); no ordering holds
// across channels or across subscribers.
type Bus interface {
	// Publish sends a message to a channel. Publishing to a channel with
	// no live subscribers is not an error; the message is simply lost.
	Publish(ctx context.Context, channel string, msg *Message) error

	// Subscribe opens a subscription covering the given channels.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)

	// Close releases the bus connection.
	Close() error
}

// Subscription is a live set of channel subscriptions.
type Subscription interface {
	// C returns the receive channel. It is closed when the subscription
	// ends, whether by Close or by an unrecoverable transport failure.
	C() <-chan *Message

	// Channels returns the subscribed channel names.
	Channels() []string

	// Close ends the subscription.
	Close() error
}
