package live

import (
	"context"

	"tradedesk/internal/logger"
)

// Feed produces messages for the hub. Subscribe blocks until ctx ends or the feed gives up.
type Feed interface {
	Subscribe(ctx context.Context, onMessage func(Message)) error
}

// Bridge runs feed in its own goroutine and hands its messages over a buffered channel. The
// channel is closed when the feed returns. A full channel drops the message instead of
// stalling the feed.
func Bridge(ctx context.Context, feed Feed, buf int) <-chan Message {
	if buf <= 0 {
		buf = 64
	}
	out := make(chan Message, buf)
	go func() {
		defer close(out)
		err := feed.Subscribe(ctx, func(m Message) {
			select {
			case out <- m:
			default:
				logger.Debugf("live: bridge full, dropping %s message", m.Type)
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.Errorf("live: feed stopped: %v", err)
		}
	}()
	return out
}
