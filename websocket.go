package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

func createWebsocketHandler(runner *Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %s", err), http.StatusInternalServerError)
			return
		}
		defer c.Close(websocket.StatusInternalError, "the sky is falling")

		unsub, ch := runner.Subscribe()
		defer unsub()

		// Clients only listen; CloseRead notices when they go away.
		ctx := c.CloseRead(r.Context())

		status := runner.Status()
		if err := writeJSON(ctx, c, RunnerEvent{
			State:   status.State,
			Pattern: status.Pattern,
			DelayMs: status.DelayMs,
			Time:    time.Now(),
		}); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					c.Close(websocket.StatusGoingAway, "runner stopped")
					return
				}
				if err := writeJSON(ctx, c, ev); err != nil {
					wlog.Debug().Err(err).Msg("Websocket write failed")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, c *websocket.Conn, v any) error {
	js, err := json.Marshal(v)
	if err != nil {
		wlog.Err(err).Msg("Failed to marshal event payload for websocket")
		return err
	}
	return writeTimeout(ctx, 5*time.Second, c, js)
}

func writeTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.Write(ctx, websocket.MessageText, msg)
}
