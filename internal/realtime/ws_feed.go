package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 25 * time.Second
)

// WSFeed reads notifications from a hosted realtime endpoint over a
// websocket. Each text frame carries one envelope.
type WSFeed struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewWSFeed(url, token string, reconnectEvery time.Duration, log zerolog.Logger) *WSFeed {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WSFeed{
		url:     url,
		header:  header,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(reconnectEvery), 1),
		log:     log,
	}
}

func (f *WSFeed) Listen(ctx context.Context, out chan<- Notification, resync func()) error {
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil
		}

		err := f.session(ctx, out, resync)
		if ctx.Err() != nil {
			return nil
		}
		f.log.Warn().Err(err).Str("url", f.url).Msg("realtime socket dropped, reconnecting")
	}
}

func (f *WSFeed) session(ctx context.Context, out chan<- Notification, resync func()) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, f.header)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go f.keepalive(ctx, conn, stop)

	f.log.Info().Str("url", f.url).Msg("realtime socket connected")
	resync()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}

		ev, err := Decode(data)
		if err != nil {
			f.log.Debug().Err(err).Msg("skipping realtime frame")
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// keepalive pings the server and closes the socket when ctx ends so the
// blocked ReadMessage returns.
func (f *WSFeed) keepalive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
