package live

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tradedesk/internal/logger"
)

// WSFeed 订阅上游 websocket 行情，断线后指数退避并加抖动重连。
type WSFeed struct {
	URL              string
	SubscribeMessage string
	Header           http.Header
	Dialer           *websocket.Dialer
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
}

func NewWSFeed(url, subscribe string) *WSFeed {
	return &WSFeed{
		URL:              strings.TrimSpace(url),
		SubscribeMessage: strings.TrimSpace(subscribe),
		Dialer:           &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		MinBackoff:       time.Second,
		MaxBackoff:       30 * time.Second,
	}
}

// Subscribe implements Feed. It only returns when ctx ends.
func (f *WSFeed) Subscribe(ctx context.Context, onMessage func(Message)) error {
	if f.URL == "" {
		return errors.New("wsfeed: url is required")
	}
	backoff := f.MinBackoff
	for {
		connected, err := f.session(ctx, onMessage)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = f.MinBackoff
		}
		wait := jitter(backoff)
		logger.With("url", f.URL).Warnf("live feed disconnected: %v; reconnect in %s", err, wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		backoff *= 2
		if backoff > f.MaxBackoff {
			backoff = f.MaxBackoff
		}
	}
}

// session runs one connection until it fails. connected reports whether the dial succeeded.
func (f *WSFeed) session(ctx context.Context, onMessage func(Message)) (connected bool, err error) {
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, f.URL, f.Header)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	logger.With("url", f.URL).Infof("live feed connected")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if f.SubscribeMessage != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f.SubscribeMessage)); err != nil {
			return true, err
		}
	}
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		if !json.Valid(data) {
			logger.Debugf("live feed: skipping non-json frame")
			continue
		}
		onMessage(Message{Type: "feed", Data: json.RawMessage(data)})
	}
}

// jitter returns a duration in [d/2, d).
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + rand.N(half)
}
