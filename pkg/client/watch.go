package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/quack/pkg/realtime"
)

// WatchHistory connects to the history stream and calls fn for every
// message, starting with the init message. It returns when ctx is done or
// the connection fails.
func (c *Client) WatchHistory(ctx context.Context, fn func(realtime.Message)) error {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.baseURL.Path + "/search/history/ws"

	dialer := websocket.Dialer{HandshakeTimeout: c.httpClient.Timeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return &StatusError{Method: http.MethodGet, Path: u.Path, Code: resp.StatusCode}
		}
		return fmt.Errorf("connecting to history stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading history stream: %w", err)
		}
		fn(msg)
	}
}
