package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"nowplaying/internal/models"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSFirstMessageIsPayload(t *testing.T) {
	frames := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		_, frame, err := conn.Read(r.Context())
		if err != nil {
			t.Errorf("read subscribe frame: %v", err)
			return
		}
		frames <- string(frame)
		conn.Write(r.Context(), websocket.MessageText, []byte(`{"title":"live"}`))
	}))
	defer srv.Close()

	c := NewClient("")
	res, err := c.Do(context.Background(), Request{
		URL:            wsURL(srv),
		ConnectionType: models.TypeWSJSON,
		SubscribeFrame: `{"action":"subscribe","serviceId":"abc"}`,
	}, time.Second)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if string(res.Body) != `{"title":"live"}` {
		t.Fatalf("body = %s", res.Body)
	}
	if got := <-frames; got != `{"action":"subscribe","serviceId":"abc"}` {
		t.Fatalf("subscribe frame = %q", got)
	}
}

func TestWSSilentSocketIsTransportError(t *testing.T) {
	// The server accepts the upgrade and then sends nothing; the socket is
	// healthy but mute, so hitting the fetch deadline is a transport failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient("")
	_, err := c.Do(context.Background(), Request{
		URL:            wsURL(srv),
		ConnectionType: models.TypeWSJSON,
	}, 200*time.Millisecond)

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Kind != KindTransport {
		t.Fatalf("kind = %v, want transport", fe.Kind)
	}
}

func TestWSCloseBeforeMessageIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusNormalClosure, "nothing to say")
	}))
	defer srv.Close()

	c := NewClient("")
	_, err := c.Do(context.Background(), Request{
		URL:            wsURL(srv),
		ConnectionType: models.TypeWSJSON,
	}, time.Second)

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Kind != KindProtocol {
		t.Fatalf("kind = %v, want protocol", fe.Kind)
	}
}
