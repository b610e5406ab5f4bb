package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"nhooyr.io/websocket"
)

// fetchWS opens the socket, optionally sends the configured subscription
// frame, and treats the first text/binary message as the payload. The socket
// is closed after one message (poll-per-message semantics); the persistent
// listener mode lives in the poll package.
func (c *Client) fetchWS(ctx context.Context, req Request) (Result, error) {
	conn, _, err := websocket.Dial(ctx, req.URL, nil)
	if err != nil {
		return Result{}, transportErr(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(2 << 20) // some feeds ship full playlists per frame

	if req.SubscribeFrame != "" {
		if err := conn.Write(ctx, websocket.MessageText, []byte(req.SubscribeFrame)); err != nil {
			return Result{}, protocolErr(fmt.Errorf("subscribe frame: %w", err))
		}
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Deadline expired with the socket still open.
			return Result{}, transportErr(fmt.Errorf("no message before deadline: %w", err))
		}
		// The peer closed before delivering a message.
		return Result{}, protocolErr(fmt.Errorf("no message before close: %w", err))
	}

	return Result{
		Status:      200,
		ContentType: "application/json",
		Body:        data,
	}, nil
}

// SubscribeFrame derives the ws_json subscription frame from the stored
// headers: an explicit subscribe_payload wins, otherwise a serviceId is
// wrapped in the common {"action":"subscribe"} envelope. Empty means the
// feed pushes without being asked.
func SubscribeFrame(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	for _, key := range []string{"subscribe_payload", "subscribe_message"} {
		if v, ok := headers[key]; ok && v != "" {
			return v
		}
	}
	for _, key := range []string{"serviceId", "service_id"} {
		if v, ok := headers[key]; ok && v != "" {
			frame, _ := json.Marshal(map[string]string{
				"action":    "subscribe",
				"serviceId": v,
			})
			return string(frame)
		}
	}
	return ""
}
