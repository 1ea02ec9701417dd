package runtime

import (
	"os"
)

type (
	PublisherOption func(*PublisherCtx)

	SubscriberOption func(*SubscriberCtx)
)

func WithPublisherTermination(ch chan os.Signal) PublisherOption {
	return func(ctx *PublisherCtx) {
		ctx.shutdownChannel = ch
	}
}

func WithSubscriberTermination(ch chan os.Signal) SubscriberOption {
	return func(ctx *SubscriberCtx) {
		ctx.shutdownChannel = ch
	}
}
