package sagas

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/saga-coordinator/pkg/enums"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer pulls one saga subscription and feeds the ingestor.
type Consumer struct {
	name         string
	subscription receiver
	handle       func(ctx context.Context, d Delivery) error
	logg         *logger.Logger
}

// NewStatusConsumer consumes participant status events.
func NewStatusConsumer(ing *Ingestor, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if ing == nil {
		return nil, errors.New("ingestor required")
	}
	return newConsumer("saga-status", subscription, ing.HandleStatus, logg)
}

// NewInitConsumer consumes saga initiation requests for flow.
func NewInitConsumer(ing *Ingestor, flow enums.SagaFlow, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if ing == nil {
		return nil, errors.New("ingestor required")
	}
	handle := func(ctx context.Context, d Delivery) error { return ing.HandleInit(ctx, flow, d) }
	return newConsumer("saga-init-"+string(flow), subscription, handle, logg)
}

func newConsumer(name string, subscription *pubsub.Subscriber, handle func(context.Context, Delivery) error, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("%s subscription required", name)
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Consumer{name: name, subscription: subscription, handle: handle, logg: logg}, nil
}

func (c *Consumer) Name() string { return c.name }

// Run receives until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether msg should be acknowledged.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	logCtx := c.logg.WithMessage(ctx, c.name, msg.ID)
	err := c.handle(ctx, Delivery{MessageID: msg.ID, Data: msg.Data})
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrMalformedMessage):
		c.logg.Error(logCtx, "dropping malformed message", err)
		return true
	default:
		c.logg.Error(logCtx, "message handling failed", err)
		return false
	}
}
